package models

import (
	"time"

	"github.com/uptrace/bun"
)

type ProgressStatus string

const (
	ProgressInProgress ProgressStatus = "in_progress"
	ProgressPartial    ProgressStatus = "partial"
	ProgressCompleted  ProgressStatus = "completed"
)

// CampaignProgress tracks one (account, campaign) pair through the drop
// state machine: absent -> in_progress -> partial | completed. Completed
// is terminal; no write path moves a pair out of it.
type CampaignProgress struct {
	bun.BaseModel `bun:"table:campaign_progress,alias:cp"`

	ID         int64          `bun:"id,pk,autoincrement"`
	AccountID  int64          `bun:"account_id,notnull"`
	CampaignID int64          `bun:"campaign_id,notnull"`
	Status     ProgressStatus `bun:"status,notnull,default:'in_progress'"`

	DropsClaimed int `bun:"drops_claimed,notnull,default:0"`
	TotalDrops   int `bun:"total_drops,notnull,default:0"`

	StartedAt      time.Time `bun:"started_at,notnull,default:current_timestamp"`
	LastProgressAt time.Time `bun:"last_progress_at,nullzero"`
	CompletedAt    time.Time `bun:"completed_at,nullzero"`
}

// Terminal reports whether the pair can never be mined again.
func (p *CampaignProgress) Terminal() bool {
	return p.Status == ProgressCompleted
}
