// Package callback is the in-repo side of the miner reporting contract.
// Workers receive the callback address in their environment and push
// progress and credential-death reports here over HTTP.
package callback

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"minefleet/fleet/database/models"
	"minefleet/fleet/leasing"
	"minefleet/fleet/metrics"
)

// ProgressSink is the slice of the leasing service the server reports into.
type ProgressSink interface {
	SessionByRunID(ctx context.Context, runID string) (*leasing.Session, error)
	AdvanceCampaignProgress(ctx context.Context, session *leasing.Session, dropsClaimed, totalDrops int) (models.ProgressStatus, error)
	Invalidate(ctx context.Context, accountID int64, reason string) error
}

// Server accepts miner reports addressed by run ID. Reports against a
// closed lease get 410: the run is over and the miner should exit.
type Server struct {
	addr    string
	service ProgressSink
	srv     *http.Server
}

func NewServer(addr string, service ProgressSink) *Server {
	return &Server{addr: addr, service: service}
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/healthz", s.handleHealthz)
		r.Post("/progress", s.handleProgress)
		r.Post("/invalid", s.handleInvalid)
	})

	r.Handle("/metrics", metrics.Handler())

	return r
}

// Start begins serving in the background.
func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("Callback server listening",
			slog.String("type", "callback"),
			slog.String("addr", s.addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Callback server stopped",
				slog.String("type", "callback"),
				slog.Any("error", err))
		}
	}()
	return nil
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

type progressRequest struct {
	RunID        string `json:"run_id"`
	DropsClaimed int    `json:"drops_claimed"`
	TotalDrops   int    `json:"total_drops"`
}

type invalidRequest struct {
	RunID  string `json:"run_id"`
	Reason string `json:"reason"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	var req progressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.RunID == "" {
		writeError(w, http.StatusBadRequest, "run_id is required")
		return
	}
	if req.DropsClaimed < 0 || req.TotalDrops < 0 {
		writeError(w, http.StatusBadRequest, "drop counts must not be negative")
		return
	}

	session, err := s.service.SessionByRunID(r.Context(), req.RunID)
	if err != nil {
		if errors.Is(err, leasing.ErrLeaseNotFound) {
			writeError(w, http.StatusGone, "run is no longer active")
			return
		}
		slog.Error("Failed to resolve run",
			slog.String("type", "callback"),
			slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to resolve run")
		return
	}

	status, err := s.service.AdvanceCampaignProgress(r.Context(), session, req.DropsClaimed, req.TotalDrops)
	if err != nil {
		if errors.Is(err, leasing.ErrLeaseNotFound) {
			writeError(w, http.StatusGone, "run is no longer active")
			return
		}
		slog.Error("Failed to record progress",
			slog.String("type", "callback"),
			slog.String("account", session.Username),
			slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to record progress")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}

func (s *Server) handleInvalid(w http.ResponseWriter, r *http.Request) {
	var req invalidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.RunID == "" {
		writeError(w, http.StatusBadRequest, "run_id is required")
		return
	}
	reason := req.Reason
	if reason == "" {
		reason = "Reported invalid by miner"
	}

	session, err := s.service.SessionByRunID(r.Context(), req.RunID)
	if err != nil {
		if errors.Is(err, leasing.ErrLeaseNotFound) {
			writeError(w, http.StatusGone, "run is no longer active")
			return
		}
		slog.Error("Failed to resolve run",
			slog.String("type", "callback"),
			slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to resolve run")
		return
	}

	if err := s.service.Invalidate(r.Context(), session.AccountID, reason); err != nil {
		slog.Error("Failed to invalidate account",
			slog.String("type", "callback"),
			slog.String("account", session.Username),
			slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to invalidate account")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
