package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"minefleet/fleet/database/models"

	"github.com/uptrace/bun"
)

var (
	ErrCampaignNotFound = errors.New("campaign not found")
	ErrCampaignExists   = errors.New("campaign already exists")

	// ErrAlreadyCompleted guards the terminal state: once an
	// (account, campaign) pair is completed, nothing reopens it.
	ErrAlreadyCompleted = errors.New("campaign already completed for account")
)

// ProgressDetail is a reporting row joining progress with account and
// campaign names, used by operator listings.
type ProgressDetail struct {
	Username     string                `bun:"username"`
	CampaignName string                `bun:"campaign_name"`
	Status       models.ProgressStatus `bun:"status"`
	DropsClaimed int                   `bun:"drops_claimed"`
	TotalDrops   int                   `bun:"total_drops"`
	IsSold       bool                  `bun:"is_sold"`
}

type CampaignRepository interface {
	Create(ctx context.Context, campaign *models.Campaign) error
	GetByID(ctx context.Context, id int64) (*models.Campaign, error)
	GetByName(ctx context.Context, name string) (*models.Campaign, error)
	List(ctx context.Context) ([]*models.Campaign, error)
	ListActive(ctx context.Context) ([]*models.Campaign, error)
	SetActive(ctx context.Context, id int64, active bool) error

	GetProgress(ctx context.Context, accountID, campaignID int64) (*models.CampaignProgress, error)
	StartProgress(ctx context.Context, accountID, campaignID int64, totalDrops int) error
	RecordProgress(ctx context.Context, accountID, campaignID int64, dropsClaimed, totalDrops int) error
	CompleteProgress(ctx context.Context, accountID, campaignID int64, dropsClaimed int) (bool, error)
	MarkPartial(ctx context.Context, accountID, campaignID int64) (bool, error)
	CompletedCampaignNames(ctx context.Context, accountID int64) ([]string, error)
	ListProgressDetails(ctx context.Context) ([]*ProgressDetail, error)
	CampaignStats(ctx context.Context, campaignID int64) (*models.CampaignStats, error)
}

type campaignRepository struct {
	db *bun.DB
}

func NewCampaignRepository(db *bun.DB) CampaignRepository {
	return &campaignRepository{db: db}
}

func (r *campaignRepository) Create(ctx context.Context, campaign *models.Campaign) error {
	if campaign.CreatedAt.IsZero() {
		campaign.CreatedAt = time.Now()
	}

	_, err := r.db.NewInsert().Model(campaign).Exec(ctx)
	if err != nil {
		if isIntegrityViolation(err) {
			return ErrCampaignExists
		}
		return fmt.Errorf("failed to create campaign: %w", err)
	}
	return nil
}

func (r *campaignRepository) GetByID(ctx context.Context, id int64) (*models.Campaign, error) {
	campaign := new(models.Campaign)
	err := r.db.NewSelect().
		Model(campaign).
		Where("id = ?", id).
		Scan(ctx)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCampaignNotFound
	}
	if err != nil {
		return nil, err
	}
	return campaign, nil
}

func (r *campaignRepository) GetByName(ctx context.Context, name string) (*models.Campaign, error) {
	campaign := new(models.Campaign)
	err := r.db.NewSelect().
		Model(campaign).
		Where("name = ?", name).
		Scan(ctx)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCampaignNotFound
	}
	if err != nil {
		return nil, err
	}
	return campaign, nil
}

func (r *campaignRepository) List(ctx context.Context) ([]*models.Campaign, error) {
	var campaigns []*models.Campaign
	err := r.db.NewSelect().
		Model(&campaigns).
		OrderExpr("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return campaigns, nil
}

func (r *campaignRepository) ListActive(ctx context.Context) ([]*models.Campaign, error) {
	var campaigns []*models.Campaign
	err := r.db.NewSelect().
		Model(&campaigns).
		Where("is_active = ?", true).
		OrderExpr("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return campaigns, nil
}

func (r *campaignRepository) SetActive(ctx context.Context, id int64, active bool) error {
	result, err := r.db.NewUpdate().
		Model((*models.Campaign)(nil)).
		Set("is_active = ?", active).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set campaign %d active=%t: %w", id, active, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrCampaignNotFound
	}
	return nil
}

// GetProgress returns nil without error when no row exists for the pair;
// absent is a normal state-machine position, not a failure.
func (r *campaignRepository) GetProgress(ctx context.Context, accountID, campaignID int64) (*models.CampaignProgress, error) {
	progress := new(models.CampaignProgress)
	err := r.db.NewSelect().
		Model(progress).
		Where("account_id = ?", accountID).
		Where("campaign_id = ?", campaignID).
		Scan(ctx)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return progress, nil
}

// StartProgress moves a pair to in_progress: inserts a fresh row, or
// reopens a partial one. The conflict update is predicated on the row not
// being completed, so a completed pair is never resurrected; that case
// surfaces as ErrAlreadyCompleted.
func (r *campaignRepository) StartProgress(ctx context.Context, accountID, campaignID int64, totalDrops int) error {
	now := time.Now()
	progress := &models.CampaignProgress{
		AccountID:      accountID,
		CampaignID:     campaignID,
		Status:         models.ProgressInProgress,
		TotalDrops:     totalDrops,
		StartedAt:      now,
		LastProgressAt: now,
	}

	result, err := r.db.NewInsert().
		Model(progress).
		On("CONFLICT (account_id, campaign_id) DO UPDATE").
		Set("status = EXCLUDED.status").
		Set("total_drops = EXCLUDED.total_drops").
		Set("last_progress_at = EXCLUDED.last_progress_at").
		Where("cp.status <> ?", models.ProgressCompleted).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to start progress for account %d campaign %d: %w", accountID, campaignID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrAlreadyCompleted
	}
	return nil
}

// RecordProgress updates the drop counters on an open pair. Completed rows
// are left untouched and reported via ErrAlreadyCompleted.
func (r *campaignRepository) RecordProgress(ctx context.Context, accountID, campaignID int64, dropsClaimed, totalDrops int) error {
	now := time.Now()
	progress := &models.CampaignProgress{
		AccountID:      accountID,
		CampaignID:     campaignID,
		Status:         models.ProgressInProgress,
		DropsClaimed:   dropsClaimed,
		TotalDrops:     totalDrops,
		StartedAt:      now,
		LastProgressAt: now,
	}

	result, err := r.db.NewInsert().
		Model(progress).
		On("CONFLICT (account_id, campaign_id) DO UPDATE").
		Set("status = EXCLUDED.status").
		Set("drops_claimed = EXCLUDED.drops_claimed").
		Set("total_drops = EXCLUDED.total_drops").
		Set("last_progress_at = EXCLUDED.last_progress_at").
		Where("cp.status <> ?", models.ProgressCompleted).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to record progress for account %d campaign %d: %w", accountID, campaignID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrAlreadyCompleted
	}
	return nil
}

// CompleteProgress is the only transition into the terminal state. It is
// idempotent: completing an already-completed pair changes nothing and
// returns false, keeping the original completed_at.
func (r *campaignRepository) CompleteProgress(ctx context.Context, accountID, campaignID int64, dropsClaimed int) (bool, error) {
	now := time.Now()
	progress := &models.CampaignProgress{
		AccountID:      accountID,
		CampaignID:     campaignID,
		Status:         models.ProgressCompleted,
		DropsClaimed:   dropsClaimed,
		StartedAt:      now,
		LastProgressAt: now,
		CompletedAt:    now,
	}

	result, err := r.db.NewInsert().
		Model(progress).
		On("CONFLICT (account_id, campaign_id) DO UPDATE").
		Set("status = EXCLUDED.status").
		Set("drops_claimed = GREATEST(cp.drops_claimed, EXCLUDED.drops_claimed)").
		Set("last_progress_at = EXCLUDED.last_progress_at").
		Set("completed_at = EXCLUDED.completed_at").
		Where("cp.status <> ?", models.ProgressCompleted).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to complete progress for account %d campaign %d: %w", accountID, campaignID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// MarkPartial is the supervisor's failure-path transition. Only an
// in_progress pair moves; completed and partial rows are unchanged.
func (r *campaignRepository) MarkPartial(ctx context.Context, accountID, campaignID int64) (bool, error) {
	result, err := r.db.NewUpdate().
		Model((*models.CampaignProgress)(nil)).
		Set("status = ?", models.ProgressPartial).
		Set("last_progress_at = ?", time.Now()).
		Where("account_id = ?", accountID).
		Where("campaign_id = ?", campaignID).
		Where("status = ?", models.ProgressInProgress).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to mark partial for account %d campaign %d: %w", accountID, campaignID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (r *campaignRepository) CompletedCampaignNames(ctx context.Context, accountID int64) ([]string, error) {
	var names []string
	err := r.db.NewSelect().
		Model((*models.CampaignProgress)(nil)).
		ColumnExpr("c.name").
		Join("JOIN campaigns AS c ON c.id = cp.campaign_id").
		Where("cp.account_id = ?", accountID).
		Where("cp.status = ?", models.ProgressCompleted).
		OrderExpr("cp.completed_at ASC").
		Scan(ctx, &names)
	if err != nil {
		return nil, err
	}
	return names, nil
}

func (r *campaignRepository) ListProgressDetails(ctx context.Context) ([]*ProgressDetail, error) {
	var details []*ProgressDetail
	err := r.db.NewSelect().
		Model((*models.CampaignProgress)(nil)).
		ColumnExpr("a.username").
		ColumnExpr("c.name AS campaign_name").
		ColumnExpr("cp.status").
		ColumnExpr("cp.drops_claimed").
		ColumnExpr("cp.total_drops").
		ColumnExpr("a.is_sold").
		Join("JOIN accounts AS a ON a.id = cp.account_id").
		Join("JOIN campaigns AS c ON c.id = cp.campaign_id").
		OrderExpr("c.name ASC, a.username ASC").
		Scan(ctx, &details)
	if err != nil {
		return nil, err
	}
	return details, nil
}

// CampaignStats composes several small counts; the shape mirrors what
// operators ask about a campaign before deciding how many workers to run.
func (r *campaignRepository) CampaignStats(ctx context.Context, campaignID int64) (*models.CampaignStats, error) {
	stats := new(models.CampaignStats)

	total, err := r.db.NewSelect().
		Model((*models.Account)(nil)).
		Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count accounts: %w", err)
	}
	stats.TotalAccounts = total

	available, err := r.db.NewSelect().
		Model((*models.Account)(nil)).
		Join("LEFT JOIN campaign_progress AS cp ON cp.account_id = a.id AND cp.campaign_id = ?", campaignID).
		Where("a.in_use = ?", false).
		Where("a.is_valid = ?", true).
		Where("a.is_sold = ?", false).
		Where("a.status = ?", models.AccountStatusAvailable).
		Where("a.access_token <> ''").
		Where("a.user_id <> ''").
		Where("(cp.id IS NULL OR cp.status <> ?)", models.ProgressCompleted).
		Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count available accounts: %w", err)
	}
	stats.Available = available

	var statusRows []struct {
		Status models.ProgressStatus `bun:"status"`
		Count  int                   `bun:"count"`
	}
	err = r.db.NewSelect().
		Model((*models.CampaignProgress)(nil)).
		Column("status").
		ColumnExpr("count(*) AS count").
		Where("campaign_id = ?", campaignID).
		Group("status").
		Scan(ctx, &statusRows)
	if err != nil {
		return nil, fmt.Errorf("failed to count progress by status: %w", err)
	}

	for _, row := range statusRows {
		switch row.Status {
		case models.ProgressCompleted:
			stats.Completed = row.Count
		case models.ProgressInProgress:
			stats.InProgress = row.Count
		case models.ProgressPartial:
			stats.Partial = row.Count
		}
	}

	notStarted, err := r.db.NewSelect().
		Model((*models.Account)(nil)).
		Join("LEFT JOIN campaign_progress AS cp ON cp.account_id = a.id AND cp.campaign_id = ?", campaignID).
		Where("cp.id IS NULL").
		Where("a.is_sold = ?", false).
		Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count not-started accounts: %w", err)
	}
	stats.NotStarted = notStarted

	soldWith, err := r.db.NewSelect().
		Model((*models.Account)(nil)).
		Join("JOIN campaign_progress AS cp ON cp.account_id = a.id AND cp.campaign_id = ?", campaignID).
		Where("a.is_sold = ?", true).
		Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count sold accounts: %w", err)
	}
	stats.SoldWithCampaign = soldWith

	return stats, nil
}
