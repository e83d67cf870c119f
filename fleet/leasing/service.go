package leasing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"minefleet/fleet/database/models"
	"minefleet/fleet/database/repositories"
	"minefleet/fleet/metrics"
	"minefleet/fleet/notify"

	lru "github.com/hashicorp/golang-lru"
	"github.com/oklog/ulid/v2"
)

const campaignCacheSize = 64

// Service is the leasing state machine: claim an account, open a lease,
// report progress, release. Correctness never depends on process-local
// locks; the store's conditional update is the arbiter between racing
// claimers.
type Service struct {
	accounts  repositories.AccountRepository
	leases    repositories.LeaseRepository
	campaigns repositories.CampaignRepository
	notifier  notify.Notifier
	cache     *lru.Cache
}

func NewService(
	accounts repositories.AccountRepository,
	leases repositories.LeaseRepository,
	campaigns repositories.CampaignRepository,
	notifier notify.Notifier,
) *Service {
	cache, _ := lru.New(campaignCacheSize)
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Service{
		accounts:  accounts,
		leases:    leases,
		campaigns: campaigns,
		notifier:  notifier,
		cache:     cache,
	}
}

// ClaimAny walks claimable accounts newest-first and tries the atomic
// in_use flip on each. Losing the flip means another claimer got there
// first; the scan falls through to the next candidate. An exhausted pool
// is reported as ErrNoAccountAvailable.
func (s *Service) ClaimAny(ctx context.Context) (*models.Account, error) {
	candidates, err := s.accounts.ListClaimable(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list claimable accounts: %w", err)
	}
	return s.claimFirst(ctx, candidates)
}

// ClaimForCampaign is ClaimAny with the campaign exclusion pushed into the
// candidate query: pairs already completed never come back, partial pairs
// only when includePartial.
func (s *Service) ClaimForCampaign(ctx context.Context, campaignID int64, includePartial bool) (*models.Account, error) {
	candidates, err := s.accounts.ListClaimableForCampaign(ctx, campaignID, includePartial)
	if err != nil {
		return nil, fmt.Errorf("failed to list claimable accounts for campaign %d: %w", campaignID, err)
	}
	return s.claimFirst(ctx, candidates)
}

func (s *Service) claimFirst(ctx context.Context, candidates []*models.Account) (*models.Account, error) {
	for _, candidate := range candidates {
		won, err := s.accounts.TryClaim(ctx, candidate.ID)
		if err != nil {
			return nil, err
		}
		if !won {
			// Lost the race for this row, try the next one
			metrics.ClaimConflicts.Inc()
			continue
		}

		metrics.ClaimsTotal.Inc()
		candidate.InUse = true
		candidate.LastUsed = time.Now()
		slog.Info("Claimed account",
			slog.String("type", "lease"),
			slog.String("account", candidate.Username))
		return candidate, nil
	}

	metrics.ClaimsExhausted.Inc()
	return nil, ErrNoAccountAvailable
}

// OpenLease records the claim as a lease row. A failure here is fatal to
// the claim: the caller must release the account immediately.
func (s *Service) OpenLease(ctx context.Context, accountID int64, holderPID int, label string) (*models.Lease, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	lease := &models.Lease{
		AccountID: accountID,
		Username:  account.Username,
		HolderPID: holderPID,
		Label:     label,
		RunID:     newRunID(),
		StartedAt: time.Now(),
	}
	if err := s.leases.Create(ctx, lease); err != nil {
		return nil, err
	}
	return lease, nil
}

// OpenLeaseForCampaign opens the lease bound to a campaign and moves the
// (account, campaign) pair to in_progress. The returned session carries
// everything later progress calls need.
func (s *Service) OpenLeaseForCampaign(ctx context.Context, accountID, campaignID int64, holderPID int) (*Session, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	campaign, err := s.Campaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	lease := &models.Lease{
		AccountID:  accountID,
		Username:   account.Username,
		HolderPID:  holderPID,
		CampaignID: campaignID,
		Label:      campaign.Name,
		RunID:      newRunID(),
		StartedAt:  time.Now(),
	}
	if err := s.leases.Create(ctx, lease); err != nil {
		return nil, err
	}

	if err := s.campaigns.StartProgress(ctx, accountID, campaignID, campaign.TotalDrops); err != nil {
		if _, derr := s.leases.DeleteByAccountID(ctx, accountID); derr != nil {
			slog.Error("Failed to remove lease after progress start failure",
				slog.String("type", "lease"),
				slog.String("account", account.Username),
				slog.Any("error", derr))
		}
		return nil, err
	}

	completed, err := s.campaigns.CompletedCampaignNames(ctx, accountID)
	if err != nil {
		slog.Warn("Failed to load completed campaigns for notification",
			slog.String("account", account.Username),
			slog.Any("error", err))
		completed = nil
	}
	s.notifier.MiningStarted(ctx, account.Username, campaign.Name, completed)

	slog.Info("Lease opened",
		slog.String("type", "lease"),
		slog.String("account", account.Username),
		slog.String("campaign", campaign.Name),
		slog.String("run_id", lease.RunID))

	return &Session{
		RunID:      lease.RunID,
		AccountID:  accountID,
		Username:   account.Username,
		CampaignID: campaignID,
		Campaign:   campaign.Name,
		TotalDrops: campaign.TotalDrops,
		HolderPID:  holderPID,
	}, nil
}

// AcquireForCampaign is the composite used by the supervisor: claim, then
// open the lease. Any failure after the claim triggers the compensating
// release so the in_use flip never leaks.
func (s *Service) AcquireForCampaign(ctx context.Context, campaignID int64, holderPID int, includePartial bool) (*Session, error) {
	account, err := s.ClaimForCampaign(ctx, campaignID, includePartial)
	if err != nil {
		return nil, err
	}

	session, err := s.OpenLeaseForCampaign(ctx, account.ID, campaignID, holderPID)
	if err != nil {
		if rerr := s.Release(ctx, account.ID); rerr != nil {
			slog.Error("Compensating release failed",
				slog.String("type", "lease"),
				slog.String("account", account.Username),
				slog.Any("error", rerr))
		}
		return nil, fmt.Errorf("failed to open lease for account %s: %w", account.Username, err)
	}
	return session, nil
}

// AdvanceCampaignProgress records a progress report from the session's
// worker. Hitting the drop target transitions the pair to completed and
// releases the account. Reports against an already-completed pair are
// no-ops answered with the terminal status.
func (s *Service) AdvanceCampaignProgress(ctx context.Context, session *Session, dropsClaimed, totalDrops int) (models.ProgressStatus, error) {
	if totalDrops <= 0 {
		totalDrops = session.TotalDrops
	} else {
		session.TotalDrops = totalDrops
	}

	touched, err := s.leases.Touch(ctx, session.AccountID, dropsClaimed)
	if err != nil {
		return "", fmt.Errorf("failed to heartbeat lease: %w", err)
	}
	if !touched {
		// The lease is gone. If the pair completed, the run ended normally
		// and a straggling report just gets the terminal answer. Otherwise
		// the lease was swept or released and the run is stale.
		progress, perr := s.campaigns.GetProgress(ctx, session.AccountID, session.CampaignID)
		if perr == nil && progress != nil && progress.Terminal() {
			return models.ProgressCompleted, nil
		}
		return "", ErrLeaseNotFound
	}

	if totalDrops > 0 && dropsClaimed >= totalDrops {
		if err := s.CompleteCampaign(ctx, session.AccountID, session.CampaignID, dropsClaimed); err != nil {
			return "", err
		}
		return models.ProgressCompleted, nil
	}

	err = s.campaigns.RecordProgress(ctx, session.AccountID, session.CampaignID, dropsClaimed, totalDrops)
	if errors.Is(err, ErrAlreadyCompleted) {
		return models.ProgressCompleted, nil
	}
	if err != nil {
		return "", err
	}

	metrics.ProgressReports.Inc()
	if dropsClaimed > 0 {
		s.notifier.DropProgress(ctx, session.Username, session.Campaign, dropsClaimed, totalDrops)
	}
	return models.ProgressInProgress, nil
}

// Release ends a lease: delete the row if present, then clear in_use
// unconditionally. Releasing an account nobody holds is a silent no-op.
func (s *Service) Release(ctx context.Context, accountID int64) error {
	deleted, err := s.leases.DeleteByAccountID(ctx, accountID)
	if err != nil {
		return err
	}

	if err := s.accounts.ClearInUse(ctx, accountID); err != nil {
		return err
	}

	if deleted {
		metrics.ReleasesTotal.Inc()
		slog.Info("Released account",
			slog.String("type", "lease"),
			slog.Int64("account_id", accountID))
	}
	return nil
}

// Invalidate pulls a dead credential out of the pool: lease deleted,
// in_use cleared, is_valid dropped with the reason recorded.
func (s *Service) Invalidate(ctx context.Context, accountID int64, reason string) error {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return err
	}

	if _, err := s.leases.DeleteByAccountID(ctx, accountID); err != nil {
		return err
	}
	if err := s.accounts.MarkInvalid(ctx, accountID, reason); err != nil {
		return err
	}

	metrics.InvalidationsTotal.Inc()
	slog.Warn("Account invalidated",
		slog.String("type", "lease"),
		slog.String("account", account.Username),
		slog.String("reason", reason))
	s.notifier.AccountInvalidated(ctx, account.Username, reason)
	return nil
}

// CompleteCampaign is the terminal transition for the pair: progress
// upserted to completed, the account stamped with its last campaign, then
// released. Completing twice changes nothing after the first.
func (s *Service) CompleteCampaign(ctx context.Context, accountID, campaignID int64, dropsClaimed int) error {
	completedNow, err := s.campaigns.CompleteProgress(ctx, accountID, campaignID, dropsClaimed)
	if err != nil {
		return err
	}

	if completedNow {
		metrics.CompletionsTotal.Inc()
		if err := s.accounts.SetLastCampaign(ctx, accountID, campaignID); err != nil {
			slog.Warn("Failed to stamp last campaign",
				slog.Int64("account_id", accountID),
				slog.Any("error", err))
		}

		account, aerr := s.accounts.GetByID(ctx, accountID)
		campaign, cerr := s.Campaign(ctx, campaignID)
		if aerr == nil && cerr == nil {
			slog.Info("Campaign completed",
				slog.String("type", "lease"),
				slog.String("account", account.Username),
				slog.String("campaign", campaign.Name))
			s.notifier.CampaignCompleted(ctx, account.Username, campaign.Name, dropsClaimed)
		}
	}

	return s.Release(ctx, accountID)
}

// MarkPartial is the supervisor's failure-path transition for a pair that
// was in_progress when its worker died for good.
func (s *Service) MarkPartial(ctx context.Context, accountID, campaignID int64) (bool, error) {
	return s.campaigns.MarkPartial(ctx, accountID, campaignID)
}

// Retire disposes of an account as sold. Retired accounts never return to
// the pool.
func (s *Service) Retire(ctx context.Context, accountID int64, reason, notes string) error {
	return s.Dispose(ctx, accountID, models.AccountStatusSold, reason, notes)
}

// Dispose removes an account from circulation with an explicit status
// (sold or given_away).
func (s *Service) Dispose(ctx context.Context, accountID int64, status models.AccountStatus, reason, notes string) error {
	if _, err := s.leases.DeleteByAccountID(ctx, accountID); err != nil {
		return err
	}
	if err := s.accounts.MarkDisposed(ctx, accountID, status, reason, notes); err != nil {
		return err
	}

	slog.Info("Account disposed",
		slog.String("type", "lease"),
		slog.Int64("account_id", accountID),
		slog.String("status", string(status)))
	return nil
}

// Stats reports the pool summary. The in-progress figure prefers the
// lease count; when that fails the in_use-based count from the account
// aggregate stands in so the report degrades instead of failing.
func (s *Service) Stats(ctx context.Context) (*models.AccountStats, error) {
	stats, err := s.accounts.Stats(ctx)
	if err != nil {
		return nil, err
	}

	if count, err := s.leases.Count(ctx); err == nil {
		stats.InProgress = count
	} else {
		slog.Warn("Lease count unavailable, using in_use count",
			slog.Any("error", err))
	}
	return stats, nil
}

func (s *Service) CampaignStats(ctx context.Context, campaignID int64) (*models.CampaignStats, error) {
	return s.campaigns.CampaignStats(ctx, campaignID)
}

// Campaign returns campaign metadata through a small LRU so hot paths do
// not refetch it per progress report.
func (s *Service) Campaign(ctx context.Context, id int64) (*models.Campaign, error) {
	if cached, ok := s.cache.Get(id); ok {
		return cached.(*models.Campaign), nil
	}

	campaign, err := s.campaigns.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.Add(id, campaign)
	return campaign, nil
}

func (s *Service) CampaignByName(ctx context.Context, name string) (*models.Campaign, error) {
	campaign, err := s.campaigns.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	s.cache.Add(campaign.ID, campaign)
	return campaign, nil
}

func (s *Service) ActiveCampaigns(ctx context.Context) ([]*models.Campaign, error) {
	return s.campaigns.ListActive(ctx)
}

func (s *Service) Campaigns(ctx context.Context) ([]*models.Campaign, error) {
	return s.campaigns.List(ctx)
}

func (s *Service) CreateCampaign(ctx context.Context, campaign *models.Campaign) error {
	if err := s.campaigns.Create(ctx, campaign); err != nil {
		return err
	}
	s.cache.Add(campaign.ID, campaign)
	return nil
}

func (s *Service) Account(ctx context.Context, id int64) (*models.Account, error) {
	return s.accounts.GetByID(ctx, id)
}

func (s *Service) AccountByUsername(ctx context.Context, username string) (*models.Account, error) {
	return s.accounts.GetByUsername(ctx, username)
}

// SessionByRunID rebuilds a session from the lease row, used by the
// callback server to resolve progress reports.
func (s *Service) SessionByRunID(ctx context.Context, runID string) (*Session, error) {
	lease, err := s.leases.GetByRunID(ctx, runID)
	if err != nil {
		return nil, err
	}

	session := &Session{
		RunID:     lease.RunID,
		AccountID: lease.AccountID,
		Username:  lease.Username,
		HolderPID: lease.HolderPID,
	}
	if lease.CampaignID != 0 {
		campaign, err := s.Campaign(ctx, lease.CampaignID)
		if err != nil {
			return nil, err
		}
		session.CampaignID = campaign.ID
		session.Campaign = campaign.Name
		session.TotalDrops = campaign.TotalDrops
	}
	return session, nil
}

func newRunID() string {
	return ulid.Make().String()
}
