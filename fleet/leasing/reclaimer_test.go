package leasing

import (
	"context"
	"errors"
	"testing"
	"time"

	"minefleet/fleet/database/models"
)

func (f *fixture) reclaimer(maxAge time.Duration) *Reclaimer {
	return NewReclaimer(f.service, f.leases, f.notifier, time.Hour, maxAge)
}

// seedLeasedAccount creates an account held by a lease that started age ago.
func (f *fixture) seedLeasedAccount(username string, age time.Duration) *models.Account {
	account := f.seedAccount(username)
	f.state.mu.Lock()
	f.state.accounts[account.ID].InUse = true
	f.state.mu.Unlock()
	f.state.addLease(&models.Lease{
		AccountID: account.ID,
		Username:  username,
		HolderPID: 1000 + int(account.ID),
		RunID:     "run-" + username,
		StartedAt: time.Now().Add(-age),
	})
	return account
}

func TestReclaimer_Sweep(t *testing.T) {
	f := newFixture()
	stale := f.seedLeasedAccount("stale", 25*time.Hour)
	fresh := f.seedLeasedAccount("fresh", 23*time.Hour)

	reclaimed, err := f.reclaimer(24 * time.Hour).Sweep(context.Background(), 24*time.Hour)
	if err != nil {
		t.Fatalf("Reclaimer.Sweep() error = %v", err)
	}
	if reclaimed != 1 {
		t.Errorf("Reclaimer.Sweep() = %d, want 1", reclaimed)
	}

	if f.state.lease(stale.ID) != nil {
		t.Error("stale lease survived the sweep")
	}
	if f.state.account(stale.ID).InUse {
		t.Error("stale account still claimed after sweep")
	}

	if f.state.lease(fresh.ID) == nil {
		t.Error("fresh lease was swept")
	}
	if !f.state.account(fresh.ID).InUse {
		t.Error("fresh account released by sweep")
	}
}

func TestReclaimer_Sweep_DefaultMaxAge(t *testing.T) {
	f := newFixture()
	stale := f.seedLeasedAccount("stale", 25*time.Hour)
	fresh := f.seedLeasedAccount("fresh", 23*time.Hour)

	// maxAge zero falls back to the 24h default.
	reclaimed, err := f.reclaimer(0).Sweep(context.Background(), 0)
	if err != nil {
		t.Fatalf("Reclaimer.Sweep() error = %v", err)
	}
	if reclaimed != 1 {
		t.Errorf("Reclaimer.Sweep() = %d, want 1", reclaimed)
	}
	if f.state.lease(stale.ID) != nil {
		t.Error("stale lease survived the sweep")
	}
	if f.state.lease(fresh.ID) == nil {
		t.Error("fresh lease swept under default max age")
	}
}

func TestReclaimer_Sweep_ShortMaxAge(t *testing.T) {
	f := newFixture()
	f.seedLeasedAccount("one", 10*time.Minute)
	f.seedLeasedAccount("two", 3*time.Minute)

	reclaimed, err := f.reclaimer(24*time.Hour).Sweep(context.Background(), 5*time.Minute)
	if err != nil {
		t.Fatalf("Reclaimer.Sweep() error = %v", err)
	}
	if reclaimed != 1 {
		t.Errorf("Reclaimer.Sweep() = %d, want 1 with 5m max age", reclaimed)
	}
}

func TestReclaimer_Sweep_Empty(t *testing.T) {
	f := newFixture()

	reclaimed, err := f.reclaimer(24 * time.Hour).Sweep(context.Background(), 24*time.Hour)
	if err != nil {
		t.Fatalf("Reclaimer.Sweep() error = %v", err)
	}
	if reclaimed != 0 {
		t.Errorf("Reclaimer.Sweep() = %d, want 0", reclaimed)
	}
	if events := f.notifier.all(); len(events) != 0 {
		t.Errorf("Reclaimer.Sweep() events = %v, want none for empty sweep", events)
	}
}

func TestReclaimer_Sweep_ContinuesOnReleaseFailure(t *testing.T) {
	f := newFixture()
	broken := f.seedLeasedAccount("broken", 30*time.Hour)
	healthy := f.seedLeasedAccount("healthy", 30*time.Hour)
	f.accounts.clearErrFor = map[int64]error{broken.ID: errors.New("row locked")}

	reclaimed, err := f.reclaimer(24 * time.Hour).Sweep(context.Background(), 24*time.Hour)
	if err != nil {
		t.Fatalf("Reclaimer.Sweep() error = %v", err)
	}
	if reclaimed != 1 {
		t.Errorf("Reclaimer.Sweep() = %d, want 1 despite one failure", reclaimed)
	}
	if f.state.lease(healthy.ID) != nil {
		t.Error("healthy lease not swept after earlier failure")
	}
}

func TestReclaimer_Sweep_Notifies(t *testing.T) {
	f := newFixture()
	f.seedLeasedAccount("one", 30*time.Hour)
	f.seedLeasedAccount("two", 30*time.Hour)

	if _, err := f.reclaimer(24 * time.Hour).Sweep(context.Background(), 24*time.Hour); err != nil {
		t.Fatalf("Reclaimer.Sweep() error = %v", err)
	}

	if events := f.notifier.all(); len(events) != 1 || events[0] != "sweep:2" {
		t.Errorf("Reclaimer.Sweep() events = %v, want [sweep:2]", events)
	}
}

func TestReclaimer_ReclaimedAccountClaimableAgain(t *testing.T) {
	f := newFixture()
	stale := f.seedLeasedAccount("stale", 25*time.Hour)

	if _, err := f.reclaimer(24 * time.Hour).Sweep(context.Background(), 24*time.Hour); err != nil {
		t.Fatalf("Reclaimer.Sweep() error = %v", err)
	}

	account, err := f.service.ClaimAny(context.Background())
	if err != nil {
		t.Fatalf("Service.ClaimAny() after sweep error = %v", err)
	}
	if account.ID != stale.ID {
		t.Errorf("Service.ClaimAny() = %q, want reclaimed %q", account.Username, stale.Username)
	}
}
