package leasing

import (
	"errors"

	"minefleet/fleet/database/repositories"
)

// ErrNoAccountAvailable is the normal pool-exhausted outcome of a claim.
// Callers must branch on it explicitly; it is not a store failure.
var ErrNoAccountAvailable = errors.New("no account available")

// Store sentinels surfaced through the service so callers do not reach
// into the repositories package.
var (
	ErrAccountNotFound  = repositories.ErrAccountNotFound
	ErrCampaignNotFound = repositories.ErrCampaignNotFound
	ErrCampaignExists   = repositories.ErrCampaignExists
	ErrLeaseNotFound    = repositories.ErrLeaseNotFound
	ErrLeaseExists      = repositories.ErrLeaseExists
	ErrAlreadyCompleted = repositories.ErrAlreadyCompleted
)
