package supervisor

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"minefleet/fleet/database/models"
	"minefleet/fleet/leasing"
)

type WorkerState string

const (
	StateStopped  WorkerState = "stopped"
	StateStarting WorkerState = "starting"
	StateRunning  WorkerState = "running"
	StateFailed   WorkerState = "failed"
)

// Worker is one supervised miner slot. State is written only while the
// supervisor's lock is held; after StartAll returns, all writes happen in
// the monitor loop.
type Worker struct {
	Slot    int
	State   WorkerState
	Session *leasing.Session

	Restarts    int
	LastRestart time.Time
	Abandoned   bool

	AnalyticsPort int
	StartedAt     time.Time

	proc Process
}

// WorkerStatus is the read-only snapshot handed to status consumers.
type WorkerStatus struct {
	Slot     int
	Username string
	Campaign string
	State    WorkerState
	Restarts int
	PID      int
	Uptime   time.Duration
}

func (w *Worker) status(now time.Time) WorkerStatus {
	ws := WorkerStatus{
		Slot:     w.Slot,
		State:    w.State,
		Restarts: w.Restarts,
	}
	if w.Session != nil {
		ws.Username = w.Session.Username
		ws.Campaign = w.Session.Campaign
	}
	if w.proc != nil {
		ws.PID = w.proc.PID()
	}
	if w.State == StateRunning || w.State == StateStarting {
		ws.Uptime = now.Sub(w.StartedAt)
	}
	return ws
}

// workspaceFor creates the per-account workspace directory.
func workspaceFor(root, username string) (string, error) {
	dir := filepath.Join(root, username)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create workspace %s: %w", dir, err)
	}
	return dir, nil
}

// minerEnv builds the child environment: the parent environment plus the
// credential and wiring variables the miner reads. The token values pass
// through opaquely.
func minerEnv(account *models.Account, session *leasing.Session, workspace, targetsFile, callbackAddr string, analyticsPort int) []string {
	env := append([]string(nil), os.Environ()...)
	env = append(env,
		"MINER_USERNAME="+account.Username,
		"MINER_ACCESS_TOKEN="+account.AccessToken,
		"MINER_USER_ID="+account.UserID,
		"MINER_RUN_ID="+session.RunID,
		"MINER_CAMPAIGN="+session.Campaign,
		"MINER_TARGETS_FILE="+targetsFile,
		"MINER_WORKSPACE="+workspace,
		"MINER_CALLBACK_ADDR="+callbackAddr,
		"MINER_ANALYTICS_PORT="+strconv.Itoa(analyticsPort),
	)
	return env
}

// minerArgs builds the child argument list: operator-supplied args first
// (interpreter scripts and such), then the standard wiring flags.
func minerArgs(extra []string, username, targetsFile, workspace string, analyticsPort int) []string {
	args := append([]string(nil), extra...)
	args = append(args,
		"--username", username,
		"--streamers-file", targetsFile,
		"--analytics-port", strconv.Itoa(analyticsPort),
		"--workspace", workspace,
	)
	return args
}

// authFailure reports whether the stderr tail carries the known
// bad-credential signature. Retrying with the same token is futile, so
// these exits invalidate instead of restarting.
func authFailure(stderr string) bool {
	return strings.Contains(stderr, "ERR_BADAUTH") || strings.Contains(stderr, "401")
}
