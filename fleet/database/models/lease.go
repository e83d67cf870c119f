package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Lease marks an account as held by one worker process. At most one lease
// exists per account; deleting the row plus clearing Account.InUse is a
// release.
type Lease struct {
	bun.BaseModel `bun:"table:leases,alias:l"`

	ID         int64  `bun:"id,pk,autoincrement"`
	AccountID  int64  `bun:"account_id,notnull,unique"`
	Username   string `bun:"username,notnull"`
	HolderPID  int    `bun:"holder_pid,notnull"`
	CampaignID int64  `bun:"campaign_id,nullzero"`
	Label      string `bun:"label"`
	RunID      string `bun:"run_id"`

	StartedAt      time.Time `bun:"started_at,notnull,default:current_timestamp"`
	LastProgressAt time.Time `bun:"last_progress_at,nullzero"`
	DropsClaimed   int       `bun:"drops_claimed,notnull,default:0"`
}

// Age returns how long the lease has been held.
func (l *Lease) Age(now time.Time) time.Duration {
	return now.Sub(l.StartedAt)
}
