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
	ErrLeaseExists   = errors.New("lease already exists for account")
	ErrLeaseNotFound = errors.New("lease not found")
)

type LeaseRepository interface {
	Create(ctx context.Context, lease *models.Lease) error
	GetByAccountID(ctx context.Context, accountID int64) (*models.Lease, error)
	GetByRunID(ctx context.Context, runID string) (*models.Lease, error)
	List(ctx context.Context) ([]*models.Lease, error)
	ListOlderThan(ctx context.Context, cutoff time.Time) ([]*models.Lease, error)
	DeleteByAccountID(ctx context.Context, accountID int64) (bool, error)
	Touch(ctx context.Context, accountID int64, dropsClaimed int) (bool, error)
	Count(ctx context.Context) (int, error)
}

type leaseRepository struct {
	db *bun.DB
}

func NewLeaseRepository(db *bun.DB) LeaseRepository {
	return &leaseRepository{db: db}
}

// Create inserts the lease row. The unique constraint on account_id is the
// backstop against double-leasing: a second insert for the same account
// maps to ErrLeaseExists.
func (r *leaseRepository) Create(ctx context.Context, lease *models.Lease) error {
	if lease.StartedAt.IsZero() {
		lease.StartedAt = time.Now()
	}

	_, err := r.db.NewInsert().Model(lease).Exec(ctx)
	if err != nil {
		if isIntegrityViolation(err) {
			return ErrLeaseExists
		}
		return fmt.Errorf("failed to create lease for account %d: %w", lease.AccountID, err)
	}
	return nil
}

func (r *leaseRepository) GetByAccountID(ctx context.Context, accountID int64) (*models.Lease, error) {
	lease := new(models.Lease)
	err := r.db.NewSelect().
		Model(lease).
		Where("account_id = ?", accountID).
		Scan(ctx)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrLeaseNotFound
	}
	if err != nil {
		return nil, err
	}
	return lease, nil
}

func (r *leaseRepository) GetByRunID(ctx context.Context, runID string) (*models.Lease, error) {
	lease := new(models.Lease)
	err := r.db.NewSelect().
		Model(lease).
		Where("run_id = ?", runID).
		Scan(ctx)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrLeaseNotFound
	}
	if err != nil {
		return nil, err
	}
	return lease, nil
}

func (r *leaseRepository) List(ctx context.Context) ([]*models.Lease, error) {
	var leases []*models.Lease
	err := r.db.NewSelect().
		Model(&leases).
		OrderExpr("started_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return leases, nil
}

// ListOlderThan returns leases started strictly before cutoff. A lease
// exactly at the boundary is not returned.
func (r *leaseRepository) ListOlderThan(ctx context.Context, cutoff time.Time) ([]*models.Lease, error) {
	var leases []*models.Lease
	err := r.db.NewSelect().
		Model(&leases).
		Where("started_at < ?", cutoff).
		OrderExpr("started_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return leases, nil
}

// DeleteByAccountID removes the lease row if present. Returns false when
// there was nothing to delete, which release paths treat as fine.
func (r *leaseRepository) DeleteByAccountID(ctx context.Context, accountID int64) (bool, error) {
	result, err := r.db.NewDelete().
		Model((*models.Lease)(nil)).
		Where("account_id = ?", accountID).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to delete lease for account %d: %w", accountID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// Touch records a progress heartbeat on the lease row. Returns false when
// no lease exists for the account, which means the run is stale.
func (r *leaseRepository) Touch(ctx context.Context, accountID int64, dropsClaimed int) (bool, error) {
	result, err := r.db.NewUpdate().
		Model((*models.Lease)(nil)).
		Set("last_progress_at = ?", time.Now()).
		Set("drops_claimed = ?", dropsClaimed).
		Where("account_id = ?", accountID).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to touch lease for account %d: %w", accountID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// Count degrades to a full list scan when the aggregate fails so stats
// reporting stays partial rather than absent.
func (r *leaseRepository) Count(ctx context.Context) (int, error) {
	count, err := r.db.NewSelect().
		Model((*models.Lease)(nil)).
		Count(ctx)
	if err == nil {
		return count, nil
	}

	slog.Warn("Lease count failed, falling back to list scan",
		slog.String("type", "db"),
		slog.Any("error", err))

	leases, err := r.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list leases for count: %w", err)
	}
	return len(leases), nil
}
