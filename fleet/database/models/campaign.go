package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Campaign is a time-bounded drop event mined against a set of target
// channels. StreamerFile points at the target list: a local path or a
// spaces://bucket/key object.
type Campaign struct {
	bun.BaseModel `bun:"table:campaigns,alias:c"`

	ID           int64     `bun:"id,pk,autoincrement"`
	Name         string    `bun:"name,notnull,unique"`
	GameName     string    `bun:"game_name"`
	StreamerFile string    `bun:"streamer_file"`
	TotalDrops   int       `bun:"total_drops,notnull,default:0"`
	IsActive     bool      `bun:"is_active,notnull,default:true"`
	CreatedAt    time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// CampaignStats aggregates pool state against one campaign.
type CampaignStats struct {
	TotalAccounts    int `bun:"total_accounts"`
	Available        int `bun:"available"`
	Completed        int `bun:"completed"`
	InProgress       int `bun:"in_progress"`
	Partial          int `bun:"partial"`
	NotStarted       int `bun:"not_started"`
	SoldWithCampaign int `bun:"sold_with_campaign"`
}
