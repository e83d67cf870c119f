package activation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"minefleet/fleet/database/models"
)

type fakeAccounts struct {
	mu       sync.Mutex
	accounts map[string]*models.Account
}

func (f *fakeAccounts) AccountByUsername(_ context.Context, username string) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.accounts[username]
	if !ok {
		return nil, errors.New("account not found")
	}
	clone := *account
	return &clone, nil
}

type activateCall struct {
	username string
	password string
	code     string
}

type fakeActivator struct {
	mu    sync.Mutex
	calls []activateCall
	err   error
}

func (f *fakeActivator) Activate(_ context.Context, username, password, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, activateCall{username: username, password: password, code: code})
	return nil
}

func (f *fakeActivator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeActivator) call(i int) activateCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

type watcherFixture struct {
	root      string
	accounts  *fakeAccounts
	activator *fakeActivator
	watcher   *Watcher
}

func newWatcherFixture(t *testing.T) *watcherFixture {
	t.Helper()

	f := &watcherFixture{
		root: t.TempDir(),
		accounts: &fakeAccounts{accounts: map[string]*models.Account{
			"miner1": {ID: 1, Username: "miner1", Password: "hunter2", IsValid: true},
			"locked": {ID: 2, Username: "locked", Password: "", IsValid: true},
		}},
		activator: &fakeActivator{},
	}
	f.watcher = NewWatcher(f.root, f.accounts, f.activator)
	f.watcher.debounceDur = 20 * time.Millisecond
	if err := f.watcher.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(f.watcher.Stop)
	return f
}

func (f *watcherFixture) writeCode(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, CodeFileName)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func fileGone(path string) bool {
	_, err := os.Stat(path)
	return os.IsNotExist(err)
}

func TestWatcher_ActivatesOnCodeFile(t *testing.T) {
	f := newWatcherFixture(t)

	path := f.writeCode(t, f.root, `{"username":"miner1","code":"ABCD1234"}`)

	waitFor(t, "activation call", func() bool { return f.activator.callCount() == 1 })
	got := f.activator.call(0)
	if got.username != "miner1" || got.password != "hunter2" || got.code != "ABCD1234" {
		t.Errorf("Activate(%q, %q, %q), want miner1/hunter2/ABCD1234", got.username, got.password, got.code)
	}

	waitFor(t, "code file removal", func() bool { return fileGone(path) })
}

func TestWatcher_PerAccountDirectory(t *testing.T) {
	f := newWatcherFixture(t)

	dir := filepath.Join(f.root, "miner1")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	// Give the watcher a beat to register the new directory.
	time.Sleep(100 * time.Millisecond)

	path := f.writeCode(t, dir, `{"username":"miner1","code":"WXYZ9876"}`)

	waitFor(t, "activation call", func() bool { return f.activator.callCount() == 1 })
	if got := f.activator.call(0).code; got != "WXYZ9876" {
		t.Errorf("code = %q, want WXYZ9876", got)
	}
	waitFor(t, "code file removal", func() bool { return fileGone(path) })
}

func TestWatcher_KeepsFileOnFailure(t *testing.T) {
	f := newWatcherFixture(t)
	f.activator.err = errors.New("browser crashed")

	path := f.writeCode(t, f.root, `{"username":"miner1","code":"ABCD1234"}`)

	// The file must survive the failed attempt for a later retry.
	time.Sleep(400 * time.Millisecond)
	if fileGone(path) {
		t.Error("code file was removed despite activation failure")
	}
	if got := f.activator.callCount(); got != 0 {
		t.Errorf("recorded calls = %d, want 0", got)
	}
}

func TestWatcher_IgnoresMalformedFile(t *testing.T) {
	f := newWatcherFixture(t)

	path := f.writeCode(t, f.root, `{"username": "miner1", "code":`)

	time.Sleep(400 * time.Millisecond)
	if got := f.activator.callCount(); got != 0 {
		t.Errorf("recorded calls = %d, want 0", got)
	}
	if fileGone(path) {
		t.Error("malformed file was removed")
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	f := newWatcherFixture(t)

	if err := os.WriteFile(filepath.Join(f.root, "miner.log"), []byte("starting up\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	time.Sleep(300 * time.Millisecond)
	if got := f.activator.callCount(); got != 0 {
		t.Errorf("recorded calls = %d, want 0", got)
	}
}

func TestWatcher_MissingPassword(t *testing.T) {
	f := newWatcherFixture(t)

	path := f.writeCode(t, f.root, `{"username":"locked","code":"ABCD1234"}`)

	time.Sleep(400 * time.Millisecond)
	if got := f.activator.callCount(); got != 0 {
		t.Errorf("recorded calls = %d, want 0", got)
	}
	if fileGone(path) {
		t.Error("code file was removed without activation")
	}
}

func TestWatcher_UnknownAccount(t *testing.T) {
	f := newWatcherFixture(t)

	f.writeCode(t, f.root, `{"username":"stranger","code":"ABCD1234"}`)

	time.Sleep(400 * time.Millisecond)
	if got := f.activator.callCount(); got != 0 {
		t.Errorf("recorded calls = %d, want 0", got)
	}
}
