package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"minefleet/fleet/database/models"

	"github.com/uptrace/bun"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account already exists")
)

type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) error
	GetByID(ctx context.Context, id int64) (*models.Account, error)
	GetByUsername(ctx context.Context, username string) (*models.Account, error)
	List(ctx context.Context) ([]*models.Account, error)
	ListClaimable(ctx context.Context) ([]*models.Account, error)
	ListClaimableForCampaign(ctx context.Context, campaignID int64, includePartial bool) ([]*models.Account, error)
	TryClaim(ctx context.Context, id int64) (bool, error)
	ClearInUse(ctx context.Context, id int64) error
	MarkInvalid(ctx context.Context, id int64, reason string) error
	MarkDisposed(ctx context.Context, id int64, status models.AccountStatus, reason, notes string) error
	SetLastCampaign(ctx context.Context, id int64, campaignID int64) error
	UpsertByUsername(ctx context.Context, account *models.Account) (bool, error)
	Stats(ctx context.Context) (*models.AccountStats, error)
}

type accountRepository struct {
	db *bun.DB
}

func NewAccountRepository(db *bun.DB) AccountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) Create(ctx context.Context, account *models.Account) error {
	if account.Status == "" {
		account.Status = models.AccountStatusAvailable
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now()
	}

	_, err := r.db.NewInsert().Model(account).Exec(ctx)
	if err != nil {
		if isIntegrityViolation(err) {
			return ErrAccountExists
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (r *accountRepository) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	account := new(models.Account)
	err := r.db.NewSelect().
		Model(account).
		Where("id = ?", id).
		Scan(ctx)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return account, nil
}

func (r *accountRepository) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	account := new(models.Account)
	err := r.db.NewSelect().
		Model(account).
		Where("username = ?", username).
		Scan(ctx)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return account, nil
}

func (r *accountRepository) List(ctx context.Context) ([]*models.Account, error) {
	var accounts []*models.Account
	err := r.db.NewSelect().
		Model(&accounts).
		OrderExpr("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

// ListClaimable returns accounts a claimer may try to flip, newest first.
// Rows without token material are filtered here so claim scans never hand
// out a credential a miner cannot use.
func (r *accountRepository) ListClaimable(ctx context.Context) ([]*models.Account, error) {
	var accounts []*models.Account
	err := r.db.NewSelect().
		Model(&accounts).
		Where("in_use = ?", false).
		Where("is_valid = ?", true).
		Where("is_sold = ?", false).
		Where("status = ?", models.AccountStatusAvailable).
		Where("access_token <> ''").
		Where("user_id <> ''").
		OrderExpr("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

// ListClaimableForCampaign pushes the campaign exclusion into the query: a
// LEFT JOIN against campaign_progress drops pairs already completed (and
// partial ones unless includePartial), keeping the newest-first order.
func (r *accountRepository) ListClaimableForCampaign(ctx context.Context, campaignID int64, includePartial bool) ([]*models.Account, error) {
	excluded := []models.ProgressStatus{models.ProgressCompleted}
	if !includePartial {
		excluded = append(excluded, models.ProgressPartial)
	}

	var accounts []*models.Account
	err := r.db.NewSelect().
		Model(&accounts).
		Join("LEFT JOIN campaign_progress AS cp ON cp.account_id = a.id AND cp.campaign_id = ?", campaignID).
		Where("a.in_use = ?", false).
		Where("a.is_valid = ?", true).
		Where("a.is_sold = ?", false).
		Where("a.status = ?", models.AccountStatusAvailable).
		Where("a.access_token <> ''").
		Where("a.user_id <> ''").
		Where("(cp.id IS NULL OR cp.status NOT IN (?))", bun.In(excluded)).
		OrderExpr("a.created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

// TryClaim flips in_use with a conditional update. Zero rows affected
// means another claimer won the race; the caller moves to the next
// candidate.
func (r *accountRepository) TryClaim(ctx context.Context, id int64) (bool, error) {
	result, err := r.db.NewUpdate().
		Model((*models.Account)(nil)).
		Set("in_use = ?", true).
		Set("last_used = ?", time.Now()).
		Where("id = ?", id).
		Where("in_use = ?", false).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to claim account %d: %w", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// ClearInUse releases the availability flag unconditionally. Releasing an
// account that is not held is a no-op, not an error.
func (r *accountRepository) ClearInUse(ctx context.Context, id int64) error {
	_, err := r.db.NewUpdate().
		Model((*models.Account)(nil)).
		Set("in_use = ?", false).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to clear in_use for account %d: %w", id, err)
	}
	return nil
}

func (r *accountRepository) MarkInvalid(ctx context.Context, id int64, reason string) error {
	_, err := r.db.NewUpdate().
		Model((*models.Account)(nil)).
		Set("in_use = ?", false).
		Set("is_valid = ?", false).
		Set("invalid_reason = ?", reason).
		Set("invalidated_at = ?", time.Now()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to mark account %d invalid: %w", id, err)
	}
	return nil
}

func (r *accountRepository) MarkDisposed(ctx context.Context, id int64, status models.AccountStatus, reason, notes string) error {
	if status != models.AccountStatusSold && status != models.AccountStatusGivenAway {
		return fmt.Errorf("invalid disposal status %q", status)
	}

	_, err := r.db.NewUpdate().
		Model((*models.Account)(nil)).
		Set("in_use = ?", false).
		Set("is_sold = ?", true).
		Set("status = ?", status).
		Set("sold_at = ?", time.Now()).
		Set("disposal_reason = ?", reason).
		Set("disposal_notes = ?", notes).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to dispose account %d: %w", id, err)
	}
	return nil
}

func (r *accountRepository) SetLastCampaign(ctx context.Context, id int64, campaignID int64) error {
	_, err := r.db.NewUpdate().
		Model((*models.Account)(nil)).
		Set("last_campaign_id = ?", campaignID).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set last campaign for account %d: %w", id, err)
	}
	return nil
}

// UpsertByUsername inserts or refreshes a row during imports. Returns true
// when a new row was created.
func (r *accountRepository) UpsertByUsername(ctx context.Context, account *models.Account) (bool, error) {
	result, err := r.db.NewUpdate().
		Model((*models.Account)(nil)).
		Set("password = ?", account.Password).
		Set("access_token = ?", account.AccessToken).
		Set("user_id = ?", account.UserID).
		Where("username = ?", account.Username).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to upsert account %s: %w", account.Username, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if rows > 0 {
		return false, nil
	}

	if err := r.Create(ctx, account); err != nil {
		if errors.Is(err, ErrAccountExists) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Stats aggregates pool counts in one query. If the aggregate fails the
// whole report must not fail with it, so we degrade to a full row scan
// and count in memory.
func (r *accountRepository) Stats(ctx context.Context) (*models.AccountStats, error) {
	stats := new(models.AccountStats)
	err := r.db.NewSelect().
		Model((*models.Account)(nil)).
		ColumnExpr("count(*) AS total").
		ColumnExpr("count(*) FILTER (WHERE in_use = false AND is_valid = true AND is_sold = false AND status = ? AND access_token <> '' AND user_id <> '') AS available", models.AccountStatusAvailable).
		ColumnExpr("count(*) FILTER (WHERE in_use = true) AS in_progress").
		ColumnExpr("count(*) FILTER (WHERE is_valid = false) AS invalid").
		Scan(ctx, stats)
	if err == nil {
		return stats, nil
	}

	slog.Warn("Aggregate account stats failed, falling back to row scan",
		slog.String("type", "db"),
		slog.Any("error", err))

	accounts, err := r.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to scan accounts for stats: %w", err)
	}

	fallback := &models.AccountStats{Total: len(accounts)}
	for _, a := range accounts {
		if a.Claimable() {
			fallback.Available++
		}
		if a.InUse {
			fallback.InProgress++
		}
		if !a.IsValid {
			fallback.Invalid++
		}
	}
	return fallback, nil
}
