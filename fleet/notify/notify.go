// Package notify delivers best-effort operational events. Delivery is
// fire-and-forget: failures are logged and counted, never propagated and
// never retried.
package notify

import (
	"context"
	"time"
)

type Notifier interface {
	MiningStarted(ctx context.Context, account, campaign string, completed []string)
	DropProgress(ctx context.Context, account, campaign string, claimed, total int)
	CampaignCompleted(ctx context.Context, account, campaign string, claimed int)
	AccountInvalidated(ctx context.Context, account, reason string)
	WorkerAbandoned(ctx context.Context, account, campaign string, restarts int)
	SweepCompleted(ctx context.Context, reclaimed int, maxAge time.Duration)
}

// Nop discards everything. Used when no sink is configured and in tests.
type Nop struct{}

func (Nop) MiningStarted(context.Context, string, string, []string) {}
func (Nop) DropProgress(context.Context, string, string, int, int)  {}
func (Nop) CampaignCompleted(context.Context, string, string, int)  {}
func (Nop) AccountInvalidated(context.Context, string, string)      {}
func (Nop) WorkerAbandoned(context.Context, string, string, int)    {}
func (Nop) SweepCompleted(context.Context, int, time.Duration)      {}

type multi struct {
	sinks []Notifier
}

// Multi fans one event out to every configured sink.
func Multi(sinks ...Notifier) Notifier {
	return &multi{sinks: sinks}
}

func (m *multi) MiningStarted(ctx context.Context, account, campaign string, completed []string) {
	for _, s := range m.sinks {
		s.MiningStarted(ctx, account, campaign, completed)
	}
}

func (m *multi) DropProgress(ctx context.Context, account, campaign string, claimed, total int) {
	for _, s := range m.sinks {
		s.DropProgress(ctx, account, campaign, claimed, total)
	}
}

func (m *multi) CampaignCompleted(ctx context.Context, account, campaign string, claimed int) {
	for _, s := range m.sinks {
		s.CampaignCompleted(ctx, account, campaign, claimed)
	}
}

func (m *multi) AccountInvalidated(ctx context.Context, account, reason string) {
	for _, s := range m.sinks {
		s.AccountInvalidated(ctx, account, reason)
	}
}

func (m *multi) WorkerAbandoned(ctx context.Context, account, campaign string, restarts int) {
	for _, s := range m.sinks {
		s.WorkerAbandoned(ctx, account, campaign, restarts)
	}
}

func (m *multi) SweepCompleted(ctx context.Context, reclaimed int, maxAge time.Duration) {
	for _, s := range m.sinks {
		s.SweepCompleted(ctx, reclaimed, maxAge)
	}
}
