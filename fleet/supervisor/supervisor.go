package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"minefleet/fleet/database/models"
	"minefleet/fleet/leasing"
	"minefleet/fleet/metrics"
	"minefleet/fleet/notify"

	"golang.org/x/sync/errgroup"
)

// Config controls the supervised fleet for one campaign.
type Config struct {
	Campaign       string
	Workers        int
	IncludePartial bool

	MinerBinary string
	MinerArgs   []string

	WorkspaceDir      string
	CallbackAddr      string
	AnalyticsBasePort int

	StartStagger    time.Duration
	StartGrace      time.Duration
	MonitorInterval time.Duration
	MaxRestarts     int
	RestartDelay    time.Duration
	StopTimeout     time.Duration
}

func (c *Config) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.WorkspaceDir == "" {
		c.WorkspaceDir = "workspaces"
	}
	if c.AnalyticsBasePort <= 0 {
		c.AnalyticsBasePort = 5000
	}
	if c.StartStagger <= 0 {
		c.StartStagger = 10 * time.Second
	}
	if c.StartGrace <= 0 {
		c.StartGrace = 2 * time.Second
	}
	if c.MonitorInterval <= 0 {
		c.MonitorInterval = 30 * time.Second
	}
	if c.MaxRestarts <= 0 {
		c.MaxRestarts = 3
	}
	if c.RestartDelay <= 0 {
		c.RestartDelay = 60 * time.Second
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = 10 * time.Second
	}
}

// LeaseManager is the slice of the leasing service the supervisor needs.
type LeaseManager interface {
	CampaignByName(ctx context.Context, name string) (*models.Campaign, error)
	AcquireForCampaign(ctx context.Context, campaignID int64, holderPID int, includePartial bool) (*leasing.Session, error)
	SessionByRunID(ctx context.Context, runID string) (*leasing.Session, error)
	Account(ctx context.Context, id int64) (*models.Account, error)
	Release(ctx context.Context, accountID int64) error
	Invalidate(ctx context.Context, accountID int64, reason string) error
	MarkPartial(ctx context.Context, accountID, campaignID int64) (bool, error)
}

// TargetSource turns a campaign's streamer reference into a local file the
// miners can read.
type TargetSource interface {
	Materialize(ctx context.Context, source, destDir string) (string, error)
}

type eventKind int

const (
	eventExited eventKind = iota
	eventConfirm
)

type workerEvent struct {
	kind   eventKind
	slot   int
	runID  string
	err    error
	stderr string
}

// Supervisor runs one miner process per leased account and keeps them
// alive within the restart policy. Exit notifications arrive as messages
// from per-process waiter goroutines; after StartAll returns, worker state
// is mutated only by the monitor loop.
type Supervisor struct {
	cfg      Config
	service  LeaseManager
	targets  TargetSource
	notifier notify.Notifier
	runner   Runner

	campaign    *models.Campaign
	targetsFile string

	mu      sync.RWMutex
	workers map[int]*Worker
	stopped bool

	events   chan workerEvent
	shutdown chan struct{}
	procCtx  context.Context
	procStop context.CancelFunc
	wg       sync.WaitGroup
}

func New(cfg Config, service LeaseManager, targets TargetSource, notifier notify.Notifier, runner Runner) *Supervisor {
	cfg.applyDefaults()
	if runner == nil {
		runner = NewExecRunner()
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}

	procCtx, procStop := context.WithCancel(context.Background())
	return &Supervisor{
		cfg:      cfg,
		service:  service,
		targets:  targets,
		notifier: notifier,
		runner:   runner,
		workers:  make(map[int]*Worker),
		events:   make(chan workerEvent, cfg.Workers*4+16),
		shutdown: make(chan struct{}),
		procCtx:  procCtx,
		procStop: procStop,
	}
}

// StartAll resolves the campaign, materializes the target list, launches
// the configured number of workers with staggered starts, then hands
// control to the monitor loop.
func (s *Supervisor) StartAll(ctx context.Context) error {
	campaign, err := s.service.CampaignByName(ctx, s.cfg.Campaign)
	if err != nil {
		return fmt.Errorf("failed to resolve campaign %q: %w", s.cfg.Campaign, err)
	}
	s.campaign = campaign

	if campaign.StreamerFile != "" && s.targets != nil {
		file, err := s.targets.Materialize(ctx, campaign.StreamerFile, s.cfg.WorkspaceDir)
		if err != nil {
			return fmt.Errorf("failed to materialize target list: %w", err)
		}
		s.targetsFile = file
	}

	started := 0
	for slot := 0; slot < s.cfg.Workers; slot++ {
		if slot > 0 && s.cfg.StartStagger > 0 {
			select {
			case <-time.After(s.cfg.StartStagger):
			case <-ctx.Done():
				return ctx.Err()
			case <-s.shutdown:
				return nil
			}
		}

		if err := s.startWorker(ctx, slot); err != nil {
			if errors.Is(err, leasing.ErrNoAccountAvailable) {
				slog.Warn("Account pool exhausted, leaving remaining slots empty",
					slog.String("type", "worker"),
					slog.String("campaign", campaign.Name),
					slog.Int("slot", slot))
				break
			}
			slog.Error("Failed to start worker slot",
				slog.String("type", "worker"),
				slog.Int("slot", slot),
				slog.Any("error", err))
			continue
		}
		started++
	}

	s.wg.Add(1)
	go s.monitor()

	slog.Info("Supervisor started",
		slog.String("type", "worker"),
		slog.String("campaign", campaign.Name),
		slog.Int("workers", started))
	return nil
}

// startWorker claims an account, registers the slot, and launches its
// process. A launch failure leaves the worker failed with the lease held;
// the restart policy owns it from there.
func (s *Supervisor) startWorker(ctx context.Context, slot int) error {
	session, err := s.service.AcquireForCampaign(ctx, s.campaign.ID, os.Getpid(), s.cfg.IncludePartial)
	if err != nil {
		return err
	}

	w := &Worker{
		Slot:          slot,
		State:         StateStopped,
		Session:       session,
		AnalyticsPort: s.cfg.AnalyticsBasePort + slot,
	}

	s.mu.Lock()
	s.workers[slot] = w
	s.mu.Unlock()

	if err := s.launch(w); err != nil {
		slog.Error("Worker launch failed",
			slog.String("type", "worker"),
			slog.String("account", session.Username),
			slog.Int("slot", slot),
			slog.Any("error", err))
	}
	return nil
}

// launch starts the miner process for the worker's current session. The
// credential is re-read from the store on every start so a refreshed token
// is picked up across restarts.
func (s *Supervisor) launch(w *Worker) error {
	if s.isStopped() {
		return errors.New("supervisor is stopped")
	}

	opctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	account, err := s.service.Account(opctx, w.Session.AccountID)
	cancel()
	if err != nil {
		s.setState(w, StateFailed)
		return err
	}

	workspace, err := workspaceFor(s.cfg.WorkspaceDir, account.Username)
	if err != nil {
		s.setState(w, StateFailed)
		return err
	}

	targetsFile := s.targetsFile
	if targetsFile == "" {
		targetsFile = s.campaign.StreamerFile
	}

	spec := ProcessSpec{
		Binary: s.cfg.MinerBinary,
		Args:   minerArgs(s.cfg.MinerArgs, account.Username, targetsFile, workspace, w.AnalyticsPort),
		Dir:    workspace,
		Env:    minerEnv(account, w.Session, workspace, targetsFile, s.cfg.CallbackAddr, w.AnalyticsPort),
	}

	s.setState(w, StateStarting)
	proc, err := s.runner.Start(s.procCtx, spec)
	if err != nil {
		s.setState(w, StateFailed)
		return err
	}

	s.mu.Lock()
	w.proc = proc
	w.StartedAt = time.Now()
	s.mu.Unlock()

	metrics.WorkersRunning.Inc()
	slog.Info("Worker starting",
		slog.String("type", "worker"),
		slog.String("account", account.Username),
		slog.String("campaign", w.Session.Campaign),
		slog.Int("slot", w.Slot),
		slog.Int("pid", proc.PID()))

	s.watch(w.Slot, w.Session.RunID, proc)
	s.confirmAfterGrace(w.Slot, w.Session.RunID)
	return nil
}

// watch delivers the process's exit as an event to the monitor loop.
func (s *Supervisor) watch(slot int, runID string, proc Process) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		err := proc.Wait()
		ev := workerEvent{
			kind:   eventExited,
			slot:   slot,
			runID:  runID,
			err:    err,
			stderr: proc.StderrTail(),
		}
		select {
		case s.events <- ev:
		case <-s.shutdown:
		}
	}()
}

// confirmAfterGrace samples liveness once after the grace period: if no
// exit arrived first, the worker moves from starting to running.
func (s *Supervisor) confirmAfterGrace(slot int, runID string) {
	timer := time.NewTimer(s.cfg.StartGrace)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer timer.Stop()

		select {
		case <-timer.C:
			select {
			case s.events <- workerEvent{kind: eventConfirm, slot: slot, runID: runID}:
			case <-s.shutdown:
			}
		case <-s.shutdown:
		}
	}()
}

func (s *Supervisor) monitor() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case ev := <-s.events:
			switch ev.kind {
			case eventExited:
				s.handleExit(ev)
			case eventConfirm:
				s.handleConfirm(ev)
			}
		case <-ticker.C:
			s.restartPass()
		case <-s.shutdown:
			return
		}
	}
}

func (s *Supervisor) handleConfirm(ev workerEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.workers[ev.slot]
	if w == nil || w.Session == nil || w.Session.RunID != ev.runID {
		return
	}
	if w.State == StateStarting {
		w.State = StateRunning
		slog.Info("Worker running",
			slog.String("type", "worker"),
			slog.String("account", w.Session.Username),
			slog.Int("slot", w.Slot))
	}
}

func (s *Supervisor) handleExit(ev workerEvent) {
	metrics.WorkersRunning.Dec()

	s.mu.Lock()
	w := s.workers[ev.slot]
	if w == nil || s.stopped || w.Session == nil || w.Session.RunID != ev.runID {
		s.mu.Unlock()
		return
	}
	session := w.Session
	uptime := time.Since(w.StartedAt).Round(time.Second)
	restarts := w.Restarts
	w.State = StateFailed
	s.mu.Unlock()

	opctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// A closed lease means the run ended through the leasing service:
	// campaign completed, account invalidated via callback, or swept.
	if _, err := s.service.SessionByRunID(opctx, ev.runID); errors.Is(err, leasing.ErrLeaseNotFound) {
		s.mu.Lock()
		w.State = StateStopped
		w.Session = nil
		w.proc = nil
		s.mu.Unlock()

		slog.Info("Worker finished",
			slog.String("type", "worker"),
			slog.String("account", session.Username),
			slog.String("campaign", session.Campaign),
			slog.Duration("uptime", uptime))
		return
	}

	if authFailure(ev.stderr) {
		slog.Warn("Worker exited with auth failure",
			slog.String("type", "worker"),
			slog.String("account", session.Username),
			slog.Int("slot", ev.slot))
		if err := s.service.Invalidate(opctx, session.AccountID, "Authentication failed during mining"); err != nil {
			slog.Error("Failed to invalidate account",
				slog.String("account", session.Username),
				slog.Any("error", err))
		}

		s.mu.Lock()
		w.State = StateStopped
		w.Abandoned = true
		w.Session = nil
		w.proc = nil
		s.mu.Unlock()
		return
	}

	slog.Warn("Worker exited",
		slog.String("type", "worker"),
		slog.String("account", session.Username),
		slog.Int("slot", ev.slot),
		slog.Duration("uptime", uptime),
		slog.Int("restarts", restarts),
		slog.Any("error", ev.err))
}

// restartPass applies the restart policy to failed workers: the count cap
// abandons, the delay cap defers to a later tick.
func (s *Supervisor) restartPass() {
	s.mu.RLock()
	var pending []*Worker
	for _, w := range s.workers {
		if w.State == StateFailed && !w.Abandoned && w.Session != nil {
			pending = append(pending, w)
		}
	}
	s.mu.RUnlock()

	if len(pending) == 0 {
		return
	}

	for _, w := range pending {
		if w.Restarts >= s.cfg.MaxRestarts {
			s.abandon(w)
			continue
		}
		if !w.LastRestart.IsZero() && time.Since(w.LastRestart) < s.cfg.RestartDelay {
			continue
		}

		s.mu.Lock()
		w.Restarts++
		w.LastRestart = time.Now()
		attempt := w.Restarts
		proc := w.proc
		s.mu.Unlock()

		metrics.WorkerRestarts.Inc()
		slog.Info("Restarting worker",
			slog.String("type", "worker"),
			slog.String("account", w.Session.Username),
			slog.Int("slot", w.Slot),
			slog.Int("attempt", attempt))

		if proc != nil {
			proc.Stop(s.cfg.StopTimeout)
		}
		if err := s.launch(w); err != nil {
			slog.Error("Worker restart failed",
				slog.String("type", "worker"),
				slog.String("account", w.Session.Username),
				slog.Int("slot", w.Slot),
				slog.Any("error", err))
		}
	}
}

// abandon gives up on a worker that burned its restart budget: progress
// goes partial, the lease is released, and the slot stays down for the
// rest of the daemon's life.
func (s *Supervisor) abandon(w *Worker) {
	session := w.Session

	opctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if session.CampaignID != 0 {
		if _, err := s.service.MarkPartial(opctx, session.AccountID, session.CampaignID); err != nil {
			slog.Error("Failed to mark progress partial",
				slog.String("account", session.Username),
				slog.Any("error", err))
		}
	}
	if err := s.service.Release(opctx, session.AccountID); err != nil {
		slog.Error("Failed to release abandoned lease",
			slog.String("account", session.Username),
			slog.Any("error", err))
	}

	metrics.WorkersAbandoned.Inc()
	slog.Error("Worker abandoned after max restarts",
		slog.String("type", "worker"),
		slog.String("account", session.Username),
		slog.String("campaign", session.Campaign),
		slog.Int("restarts", w.Restarts))
	s.notifier.WorkerAbandoned(opctx, session.Username, session.Campaign, w.Restarts)

	s.mu.Lock()
	w.Abandoned = true
	w.Session = nil
	w.proc = nil
	s.mu.Unlock()
}

// StopAll tears the fleet down: stops every process group concurrently,
// releases every held lease, and waits for the control goroutines.
func (s *Supervisor) StopAll(ctx context.Context) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true

	var procs []Process
	var held []*leasing.Session
	for _, w := range s.workers {
		if w.proc != nil {
			procs = append(procs, w.proc)
		}
		if w.Session != nil {
			held = append(held, w.Session)
		}
		w.State = StateStopped
		w.proc = nil
	}
	s.mu.Unlock()

	close(s.shutdown)

	g := new(errgroup.Group)
	for _, proc := range procs {
		g.Go(func() error {
			return proc.Stop(s.cfg.StopTimeout)
		})
	}
	if err := g.Wait(); err != nil {
		slog.Warn("Some workers did not stop cleanly", slog.Any("error", err))
	}

	// Every outstanding lease goes back to the pool before exit.
	for _, session := range held {
		opctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := s.service.Release(opctx, session.AccountID); err != nil {
			slog.Error("Failed to release lease on shutdown",
				slog.String("type", "lease"),
				slog.String("account", session.Username),
				slog.Any("error", err))
		}
		cancel()
	}

	s.procStop()
	metrics.WorkersRunning.Set(0)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("Supervisor shutdown timed out waiting for workers")
	}

	slog.Info("Supervisor stopped",
		slog.String("type", "worker"),
		slog.Int("released", len(held)))
}

// Status returns a snapshot of every worker slot, ordered by slot.
func (s *Supervisor) Status() []WorkerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	out := make([]WorkerStatus, 0, len(s.workers))
	for _, w := range s.workers {
		out = append(out, w.status(now))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	return out
}

func (s *Supervisor) setState(w *Worker, state WorkerState) {
	s.mu.Lock()
	w.State = state
	s.mu.Unlock()
}

func (s *Supervisor) isStopped() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stopped
}
