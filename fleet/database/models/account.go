package models

import (
	"time"

	"github.com/uptrace/bun"
)

type AccountStatus string

const (
	AccountStatusAvailable AccountStatus = "available"
	AccountStatusSold      AccountStatus = "sold"
	AccountStatusGivenAway AccountStatus = "given_away"
)

// Account is one pooled credential. Token material is opaque and must
// never appear in logs or notifications.
type Account struct {
	bun.BaseModel `bun:"table:accounts,alias:a"`

	ID          int64  `bun:"id,pk,autoincrement"`
	Username    string `bun:"username,notnull,unique"`
	Password    string `bun:"password"`
	AccessToken string `bun:"access_token"`
	UserID      string `bun:"user_id"`

	InUse   bool          `bun:"in_use,notnull,default:false"`
	IsValid bool          `bun:"is_valid,notnull,default:true"`
	IsSold  bool          `bun:"is_sold,notnull,default:false"`
	Status  AccountStatus `bun:"status,notnull,default:'available'"`

	CreatedAt      time.Time `bun:"created_at,notnull,default:current_timestamp"`
	LastUsed       time.Time `bun:"last_used,nullzero"`
	InvalidReason  string    `bun:"invalid_reason"`
	InvalidatedAt  time.Time `bun:"invalidated_at,nullzero"`
	SoldAt         time.Time `bun:"sold_at,nullzero"`
	DisposalReason string    `bun:"disposal_reason"`
	DisposalNotes  string    `bun:"disposal_notes"`
	LastCampaignID int64     `bun:"last_campaign_id,nullzero"`
}

// Claimable reports whether the account can be handed to a worker: not
// already held, credential believed good, not disposed, and carrying the
// token material a miner needs.
func (a *Account) Claimable() bool {
	return !a.InUse &&
		a.IsValid &&
		!a.IsSold &&
		a.Status == AccountStatusAvailable &&
		a.AccessToken != "" &&
		a.UserID != ""
}

// HasCredentials reports whether the row carries usable token material.
// Rows without it are skipped by claim scans, never claimed.
func (a *Account) HasCredentials() bool {
	return a.AccessToken != "" && a.UserID != ""
}

// AccountStats is the pool summary shown to operators.
type AccountStats struct {
	Total      int `bun:"total"`
	Available  int `bun:"available"`
	InProgress int `bun:"in_progress"`
	Invalid    int `bun:"invalid"`
}
