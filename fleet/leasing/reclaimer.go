package leasing

import (
	"context"
	"log/slog"
	"time"

	"minefleet/fleet/database/repositories"
	"minefleet/fleet/metrics"
	"minefleet/fleet/notify"
)

// DefaultMaxLeaseAge bounds how long a lease may sit without being
// released before a sweep takes it back.
const DefaultMaxLeaseAge = 24 * time.Hour

// Reclaimer sweeps leases abandoned by dead workers back into the pool.
type Reclaimer struct {
	service     *Service
	leases      repositories.LeaseRepository
	notifier    notify.Notifier
	maxAge      time.Duration
	sweepTicker *time.Ticker
	shutdown    chan struct{}
}

func NewReclaimer(service *Service, leases repositories.LeaseRepository, notifier notify.Notifier, interval, maxAge time.Duration) *Reclaimer {
	if maxAge <= 0 {
		maxAge = DefaultMaxLeaseAge
	}
	if interval <= 0 {
		interval = time.Hour
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Reclaimer{
		service:     service,
		leases:      leases,
		notifier:    notifier,
		maxAge:      maxAge,
		sweepTicker: time.NewTicker(interval),
		shutdown:    make(chan struct{}),
	}
}

// Start begins the periodic sweep loop.
func (r *Reclaimer) Start() {
	go func() {
		defer r.sweepTicker.Stop()

		for {
			select {
			case <-r.sweepTicker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				if _, err := r.Sweep(ctx, r.maxAge); err != nil {
					slog.Error("Sweep failed",
						slog.String("type", "lease"),
						slog.Any("error", err))
				}
				cancel()
			case <-r.shutdown:
				return
			}
		}
	}()
}

// Sweep releases every lease started strictly before now minus maxAge and
// returns how many were reclaimed. One lease failing to release does not
// stop the rest; failures stay leased and get picked up next time.
func (r *Reclaimer) Sweep(ctx context.Context, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		maxAge = DefaultMaxLeaseAge
	}
	cutoff := time.Now().Add(-maxAge)

	stale, err := r.leases.ListOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}

	now := time.Now()
	reclaimed := 0
	for _, lease := range stale {
		if err := r.service.Release(ctx, lease.AccountID); err != nil {
			slog.Error("Failed to reclaim lease",
				slog.String("type", "lease"),
				slog.String("account", lease.Username),
				slog.Any("error", err))
			continue
		}

		reclaimed++
		slog.Warn("Reclaimed orphaned lease",
			slog.String("type", "lease"),
			slog.String("account", lease.Username),
			slog.String("run_id", lease.RunID),
			slog.Duration("age", lease.Age(now).Round(time.Second)))
	}

	if reclaimed > 0 {
		metrics.SweepReclaimed.Add(float64(reclaimed))
	}
	r.notifier.SweepCompleted(ctx, reclaimed, maxAge)
	return reclaimed, nil
}

// Shutdown stops the sweep loop.
func (r *Reclaimer) Shutdown() {
	close(r.shutdown)
	r.sweepTicker.Stop()
	slog.Info("Reclaimer shutdown completed")
}
