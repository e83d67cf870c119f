package activation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"minefleet/fleet/database/models"
)

// CodeFileName is the file a miner writes into its workspace when the
// platform asks for device activation.
const CodeFileName = "activation_code.json"

type codeFile struct {
	Username string `json:"username"`
	Code     string `json:"code"`
}

// AccountSource resolves stored credentials for activation.
type AccountSource interface {
	AccountByUsername(ctx context.Context, username string) (*models.Account, error)
}

// CodeActivator runs the browser flow for one code.
type CodeActivator interface {
	Activate(ctx context.Context, username, password, code string) error
}

// Watcher observes the workspace tree for activation code files. Writes
// are debounced so a half-written JSON file is not picked up mid-flush.
// The code file is removed only after a successful activation, so
// failures are retried on the next write.
type Watcher struct {
	root      string
	accounts  AccountSource
	activator CodeActivator
	logger    *slog.Logger

	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	debounceMap map[string]time.Time
	debounceDur time.Duration
	running     bool

	stopCh chan struct{}
	doneCh chan struct{}
	wg     sync.WaitGroup
}

func NewWatcher(root string, accounts AccountSource, activator CodeActivator) *Watcher {
	return &Watcher{
		root:        root,
		accounts:    accounts,
		activator:   activator,
		logger:      slog.With(slog.String("service", "activation")),
		debounceMap: make(map[string]time.Time),
		debounceDur: 500 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Start begins watching the workspace root and its existing per-account
// directories. Directories created later are added as they appear.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	w.watcher = fsw

	if err := os.MkdirAll(w.root, 0o755); err != nil {
		return fmt.Errorf("failed to create workspace root %s: %w", w.root, err)
	}
	if err := fsw.Add(w.root); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.root, err)
	}

	entries, err := os.ReadDir(w.root)
	if err == nil {
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			dir := filepath.Join(w.root, entry.Name())
			if err := fsw.Add(dir); err != nil {
				w.logger.Warn("Failed to watch workspace directory",
					slog.String("dir", dir),
					slog.Any("error", err))
			}
		}
	}

	go w.run()

	w.logger.Info("Activation watcher started", slog.String("root", w.root))
	return nil
}

// Stop stops the watcher and waits for in-flight activations.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		w.logger.Error("Failed to close file watcher", slog.Any("error", err))
	}
	w.wg.Wait()
	w.logger.Info("Activation watcher stopped")
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	debounceTicker := time.NewTicker(100 * time.Millisecond)
	defer debounceTicker.Stop()

	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("File watcher error", slog.Any("error", err))

		case <-debounceTicker.C:
			w.processDebounced()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.watcher.Add(event.Name); err != nil {
				w.logger.Warn("Failed to watch new workspace directory",
					slog.String("dir", event.Name),
					slog.Any("error", err))
			}
			return
		}
	}

	if filepath.Base(event.Name) != CodeFileName {
		return
	}
	if event.Op&fsnotify.Create == 0 && event.Op&fsnotify.Write == 0 {
		return
	}

	w.mu.Lock()
	w.debounceMap[event.Name] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) processDebounced() {
	now := time.Now()

	w.mu.Lock()
	var ready []string
	for path, last := range w.debounceMap {
		if now.Sub(last) >= w.debounceDur {
			ready = append(ready, path)
			delete(w.debounceMap, path)
		}
	}
	w.mu.Unlock()

	for _, path := range ready {
		w.wg.Add(1)
		go func(path string) {
			defer w.wg.Done()
			w.process(path)
		}(path)
	}
}

func (w *Watcher) process(path string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	data, err := os.ReadFile(path)
	if err != nil {
		w.logger.Error("Failed to read activation code file",
			slog.String("file", path),
			slog.Any("error", err))
		return
	}

	var cf codeFile
	if err := json.Unmarshal(data, &cf); err != nil {
		w.logger.Error("Malformed activation code file",
			slog.String("file", path),
			slog.Any("error", err))
		return
	}
	if cf.Username == "" || cf.Code == "" {
		w.logger.Error("Activation code file missing username or code",
			slog.String("file", path))
		return
	}

	account, err := w.accounts.AccountByUsername(ctx, cf.Username)
	if err != nil {
		w.logger.Error("No stored account for activation code",
			slog.String("account", cf.Username),
			slog.Any("error", err))
		return
	}
	if account.Password == "" {
		w.logger.Error("Account has no stored password, cannot activate",
			slog.String("account", cf.Username))
		return
	}

	if err := w.activator.Activate(ctx, account.Username, account.Password, cf.Code); err != nil {
		w.logger.Error("Activation failed, keeping code file for retry",
			slog.String("account", cf.Username),
			slog.Any("error", err))
		return
	}

	if err := os.Remove(path); err != nil {
		w.logger.Warn("Failed to remove activation code file",
			slog.String("file", path),
			slog.Any("error", err))
		return
	}
	w.logger.Info("Activation code handled",
		slog.String("account", cf.Username),
		slog.String("file", path))
}
