package leasing

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"minefleet/fleet/database/models"
	"minefleet/fleet/database/repositories"
	"minefleet/fleet/notify"
)

// fakeState is shared in-memory storage behind the fake repositories. All
// mutation goes through one mutex so the fakes behave like a database
// under concurrent claimers: TryClaim is a real compare-and-set.
type fakeState struct {
	mu sync.Mutex

	accounts  map[int64]*models.Account
	leases    map[int64]*models.Lease
	campaigns map[int64]*models.Campaign
	progress  map[progressKey]*models.CampaignProgress

	nextAccountID  int64
	nextLeaseID    int64
	nextCampaignID int64
	nextProgressID int64
}

type progressKey struct {
	accountID  int64
	campaignID int64
}

func newFakeState() *fakeState {
	return &fakeState{
		accounts:  make(map[int64]*models.Account),
		leases:    make(map[int64]*models.Lease),
		campaigns: make(map[int64]*models.Campaign),
		progress:  make(map[progressKey]*models.CampaignProgress),
	}
}

func (st *fakeState) addAccount(account *models.Account) *models.Account {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.nextAccountID++
	account.ID = st.nextAccountID
	if account.Status == "" {
		account.Status = models.AccountStatusAvailable
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Unix(1700000000+account.ID, 0)
	}
	clone := *account
	st.accounts[account.ID] = &clone
	return account
}

func (st *fakeState) addCampaign(campaign *models.Campaign) *models.Campaign {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.nextCampaignID++
	campaign.ID = st.nextCampaignID
	if campaign.CreatedAt.IsZero() {
		campaign.CreatedAt = time.Unix(1700000000+campaign.ID, 0)
	}
	clone := *campaign
	st.campaigns[campaign.ID] = &clone
	return campaign
}

func (st *fakeState) addLease(lease *models.Lease) *models.Lease {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.nextLeaseID++
	lease.ID = st.nextLeaseID
	if lease.StartedAt.IsZero() {
		lease.StartedAt = time.Now()
	}
	clone := *lease
	st.leases[lease.AccountID] = &clone
	return lease
}

func (st *fakeState) setProgress(accountID, campaignID int64, status models.ProgressStatus, drops, total int) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.nextProgressID++
	now := time.Now()
	p := &models.CampaignProgress{
		ID:             st.nextProgressID,
		AccountID:      accountID,
		CampaignID:     campaignID,
		Status:         status,
		DropsClaimed:   drops,
		TotalDrops:     total,
		StartedAt:      now,
		LastProgressAt: now,
	}
	if status == models.ProgressCompleted {
		p.CompletedAt = now
	}
	st.progress[progressKey{accountID, campaignID}] = p
}

func (st *fakeState) account(id int64) *models.Account {
	st.mu.Lock()
	defer st.mu.Unlock()
	if a, ok := st.accounts[id]; ok {
		clone := *a
		return &clone
	}
	return nil
}

func (st *fakeState) lease(accountID int64) *models.Lease {
	st.mu.Lock()
	defer st.mu.Unlock()
	if l, ok := st.leases[accountID]; ok {
		clone := *l
		return &clone
	}
	return nil
}

func (st *fakeState) pair(accountID, campaignID int64) *models.CampaignProgress {
	st.mu.Lock()
	defer st.mu.Unlock()
	if p, ok := st.progress[progressKey{accountID, campaignID}]; ok {
		clone := *p
		return &clone
	}
	return nil
}

// fakeAccounts implements repositories.AccountRepository over fakeState.
type fakeAccounts struct {
	st *fakeState

	// claimHook runs before each TryClaim attempt, letting tests inject a
	// rival claimer between the candidate scan and the flip.
	claimHook   func(id int64)
	clearErrFor map[int64]error
}

var _ repositories.AccountRepository = (*fakeAccounts)(nil)

func (f *fakeAccounts) Create(_ context.Context, account *models.Account) error {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()

	for _, a := range f.st.accounts {
		if a.Username == account.Username {
			return repositories.ErrAccountExists
		}
	}
	f.st.nextAccountID++
	account.ID = f.st.nextAccountID
	if account.Status == "" {
		account.Status = models.AccountStatusAvailable
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now()
	}
	clone := *account
	f.st.accounts[account.ID] = &clone
	return nil
}

func (f *fakeAccounts) GetByID(_ context.Context, id int64) (*models.Account, error) {
	if a := f.st.account(id); a != nil {
		return a, nil
	}
	return nil, repositories.ErrAccountNotFound
}

func (f *fakeAccounts) GetByUsername(_ context.Context, username string) (*models.Account, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()

	for _, a := range f.st.accounts {
		if a.Username == username {
			clone := *a
			return &clone, nil
		}
	}
	return nil, repositories.ErrAccountNotFound
}

func (f *fakeAccounts) List(_ context.Context) ([]*models.Account, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	return f.snapshotLocked(func(*models.Account) bool { return true }), nil
}

func (f *fakeAccounts) ListClaimable(_ context.Context) ([]*models.Account, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	return f.snapshotLocked(func(a *models.Account) bool { return a.Claimable() }), nil
}

func (f *fakeAccounts) ListClaimableForCampaign(_ context.Context, campaignID int64, includePartial bool) ([]*models.Account, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()

	return f.snapshotLocked(func(a *models.Account) bool {
		if !a.Claimable() {
			return false
		}
		p, ok := f.st.progress[progressKey{a.ID, campaignID}]
		if !ok {
			return true
		}
		if p.Status == models.ProgressCompleted {
			return false
		}
		if p.Status == models.ProgressPartial && !includePartial {
			return false
		}
		return true
	}), nil
}

// snapshotLocked clones matching accounts newest-first, the order the
// claim scan sees. Callers must hold st.mu.
func (f *fakeAccounts) snapshotLocked(keep func(*models.Account) bool) []*models.Account {
	var out []*models.Account
	for _, a := range f.st.accounts {
		if keep(a) {
			clone := *a
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (f *fakeAccounts) TryClaim(_ context.Context, id int64) (bool, error) {
	if f.claimHook != nil {
		f.claimHook(id)
	}

	f.st.mu.Lock()
	defer f.st.mu.Unlock()

	a, ok := f.st.accounts[id]
	if !ok || a.InUse {
		return false, nil
	}
	a.InUse = true
	a.LastUsed = time.Now()
	return true, nil
}

func (f *fakeAccounts) ClearInUse(_ context.Context, id int64) error {
	if err := f.clearErrFor[id]; err != nil {
		return err
	}

	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	if a, ok := f.st.accounts[id]; ok {
		a.InUse = false
	}
	return nil
}

func (f *fakeAccounts) MarkInvalid(_ context.Context, id int64, reason string) error {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	if a, ok := f.st.accounts[id]; ok {
		a.InUse = false
		a.IsValid = false
		a.InvalidReason = reason
		a.InvalidatedAt = time.Now()
	}
	return nil
}

func (f *fakeAccounts) MarkDisposed(_ context.Context, id int64, status models.AccountStatus, reason, notes string) error {
	if status != models.AccountStatusSold && status != models.AccountStatusGivenAway {
		return fmt.Errorf("invalid disposal status %q", status)
	}

	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	if a, ok := f.st.accounts[id]; ok {
		a.InUse = false
		a.IsSold = true
		a.Status = status
		a.SoldAt = time.Now()
		a.DisposalReason = reason
		a.DisposalNotes = notes
	}
	return nil
}

func (f *fakeAccounts) SetLastCampaign(_ context.Context, id int64, campaignID int64) error {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	if a, ok := f.st.accounts[id]; ok {
		a.LastCampaignID = campaignID
	}
	return nil
}

func (f *fakeAccounts) UpsertByUsername(_ context.Context, account *models.Account) (bool, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()

	for _, a := range f.st.accounts {
		if a.Username == account.Username {
			a.Password = account.Password
			a.AccessToken = account.AccessToken
			a.UserID = account.UserID
			return false, nil
		}
	}

	f.st.nextAccountID++
	account.ID = f.st.nextAccountID
	if account.Status == "" {
		account.Status = models.AccountStatusAvailable
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now()
	}
	clone := *account
	f.st.accounts[account.ID] = &clone
	return true, nil
}

func (f *fakeAccounts) Stats(_ context.Context) (*models.AccountStats, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()

	stats := &models.AccountStats{Total: len(f.st.accounts)}
	for _, a := range f.st.accounts {
		if a.Claimable() {
			stats.Available++
		}
		if a.InUse {
			stats.InProgress++
		}
		if !a.IsValid {
			stats.Invalid++
		}
	}
	return stats, nil
}

// fakeLeases implements repositories.LeaseRepository over fakeState.
type fakeLeases struct {
	st *fakeState

	createErr error
	countErr  error
}

var _ repositories.LeaseRepository = (*fakeLeases)(nil)

func (f *fakeLeases) Create(_ context.Context, lease *models.Lease) error {
	if f.createErr != nil {
		return f.createErr
	}

	f.st.mu.Lock()
	defer f.st.mu.Unlock()

	if _, exists := f.st.leases[lease.AccountID]; exists {
		return repositories.ErrLeaseExists
	}
	f.st.nextLeaseID++
	lease.ID = f.st.nextLeaseID
	if lease.StartedAt.IsZero() {
		lease.StartedAt = time.Now()
	}
	clone := *lease
	f.st.leases[lease.AccountID] = &clone
	return nil
}

func (f *fakeLeases) GetByAccountID(_ context.Context, accountID int64) (*models.Lease, error) {
	if l := f.st.lease(accountID); l != nil {
		return l, nil
	}
	return nil, repositories.ErrLeaseNotFound
}

func (f *fakeLeases) GetByRunID(_ context.Context, runID string) (*models.Lease, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()

	for _, l := range f.st.leases {
		if l.RunID == runID {
			clone := *l
			return &clone, nil
		}
	}
	return nil, repositories.ErrLeaseNotFound
}

func (f *fakeLeases) List(_ context.Context) ([]*models.Lease, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()

	var out []*models.Lease
	for _, l := range f.st.leases {
		clone := *l
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (f *fakeLeases) ListOlderThan(_ context.Context, cutoff time.Time) ([]*models.Lease, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()

	var out []*models.Lease
	for _, l := range f.st.leases {
		if l.StartedAt.Before(cutoff) {
			clone := *l
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (f *fakeLeases) DeleteByAccountID(_ context.Context, accountID int64) (bool, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()

	if _, exists := f.st.leases[accountID]; !exists {
		return false, nil
	}
	delete(f.st.leases, accountID)
	return true, nil
}

func (f *fakeLeases) Touch(_ context.Context, accountID int64, dropsClaimed int) (bool, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()

	l, ok := f.st.leases[accountID]
	if !ok {
		return false, nil
	}
	l.LastProgressAt = time.Now()
	l.DropsClaimed = dropsClaimed
	return true, nil
}

func (f *fakeLeases) Count(_ context.Context) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}

	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	return len(f.st.leases), nil
}

// fakeCampaigns implements repositories.CampaignRepository over fakeState.
type fakeCampaigns struct {
	st *fakeState

	getByIDCalls int
	startErr     error
}

var _ repositories.CampaignRepository = (*fakeCampaigns)(nil)

func (f *fakeCampaigns) Create(_ context.Context, campaign *models.Campaign) error {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()

	for _, c := range f.st.campaigns {
		if c.Name == campaign.Name {
			return repositories.ErrCampaignExists
		}
	}
	f.st.nextCampaignID++
	campaign.ID = f.st.nextCampaignID
	if campaign.CreatedAt.IsZero() {
		campaign.CreatedAt = time.Now()
	}
	clone := *campaign
	f.st.campaigns[campaign.ID] = &clone
	return nil
}

func (f *fakeCampaigns) GetByID(_ context.Context, id int64) (*models.Campaign, error) {
	f.st.mu.Lock()
	f.getByIDCalls++
	c, ok := f.st.campaigns[id]
	if ok {
		clone := *c
		f.st.mu.Unlock()
		return &clone, nil
	}
	f.st.mu.Unlock()
	return nil, repositories.ErrCampaignNotFound
}

func (f *fakeCampaigns) GetByName(_ context.Context, name string) (*models.Campaign, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()

	for _, c := range f.st.campaigns {
		if c.Name == name {
			clone := *c
			return &clone, nil
		}
	}
	return nil, repositories.ErrCampaignNotFound
}

func (f *fakeCampaigns) List(_ context.Context) ([]*models.Campaign, error) {
	return f.listWhere(func(*models.Campaign) bool { return true }), nil
}

func (f *fakeCampaigns) ListActive(_ context.Context) ([]*models.Campaign, error) {
	return f.listWhere(func(c *models.Campaign) bool { return c.IsActive }), nil
}

func (f *fakeCampaigns) listWhere(keep func(*models.Campaign) bool) []*models.Campaign {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()

	var out []*models.Campaign
	for _, c := range f.st.campaigns {
		if keep(c) {
			clone := *c
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (f *fakeCampaigns) SetActive(_ context.Context, id int64, active bool) error {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()

	c, ok := f.st.campaigns[id]
	if !ok {
		return repositories.ErrCampaignNotFound
	}
	c.IsActive = active
	return nil
}

func (f *fakeCampaigns) GetProgress(_ context.Context, accountID, campaignID int64) (*models.CampaignProgress, error) {
	return f.st.pair(accountID, campaignID), nil
}

func (f *fakeCampaigns) StartProgress(_ context.Context, accountID, campaignID int64, totalDrops int) error {
	if f.startErr != nil {
		return f.startErr
	}

	f.st.mu.Lock()
	defer f.st.mu.Unlock()

	key := progressKey{accountID, campaignID}
	now := time.Now()
	if p, ok := f.st.progress[key]; ok {
		if p.Status == models.ProgressCompleted {
			return repositories.ErrAlreadyCompleted
		}
		p.Status = models.ProgressInProgress
		p.TotalDrops = totalDrops
		p.LastProgressAt = now
		return nil
	}

	f.st.nextProgressID++
	f.st.progress[key] = &models.CampaignProgress{
		ID:             f.st.nextProgressID,
		AccountID:      accountID,
		CampaignID:     campaignID,
		Status:         models.ProgressInProgress,
		TotalDrops:     totalDrops,
		StartedAt:      now,
		LastProgressAt: now,
	}
	return nil
}

func (f *fakeCampaigns) RecordProgress(_ context.Context, accountID, campaignID int64, dropsClaimed, totalDrops int) error {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()

	key := progressKey{accountID, campaignID}
	now := time.Now()
	if p, ok := f.st.progress[key]; ok {
		if p.Status == models.ProgressCompleted {
			return repositories.ErrAlreadyCompleted
		}
		p.Status = models.ProgressInProgress
		p.DropsClaimed = dropsClaimed
		p.TotalDrops = totalDrops
		p.LastProgressAt = now
		return nil
	}

	f.st.nextProgressID++
	f.st.progress[key] = &models.CampaignProgress{
		ID:             f.st.nextProgressID,
		AccountID:      accountID,
		CampaignID:     campaignID,
		Status:         models.ProgressInProgress,
		DropsClaimed:   dropsClaimed,
		TotalDrops:     totalDrops,
		StartedAt:      now,
		LastProgressAt: now,
	}
	return nil
}

func (f *fakeCampaigns) CompleteProgress(_ context.Context, accountID, campaignID int64, dropsClaimed int) (bool, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()

	key := progressKey{accountID, campaignID}
	now := time.Now()
	if p, ok := f.st.progress[key]; ok {
		if p.Status == models.ProgressCompleted {
			return false, nil
		}
		p.Status = models.ProgressCompleted
		if dropsClaimed > p.DropsClaimed {
			p.DropsClaimed = dropsClaimed
		}
		p.LastProgressAt = now
		p.CompletedAt = now
		return true, nil
	}

	f.st.nextProgressID++
	f.st.progress[key] = &models.CampaignProgress{
		ID:             f.st.nextProgressID,
		AccountID:      accountID,
		CampaignID:     campaignID,
		Status:         models.ProgressCompleted,
		DropsClaimed:   dropsClaimed,
		StartedAt:      now,
		LastProgressAt: now,
		CompletedAt:    now,
	}
	return true, nil
}

func (f *fakeCampaigns) MarkPartial(_ context.Context, accountID, campaignID int64) (bool, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()

	p, ok := f.st.progress[progressKey{accountID, campaignID}]
	if !ok || p.Status != models.ProgressInProgress {
		return false, nil
	}
	p.Status = models.ProgressPartial
	p.LastProgressAt = time.Now()
	return true, nil
}

func (f *fakeCampaigns) CompletedCampaignNames(_ context.Context, accountID int64) ([]string, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()

	var done []*models.CampaignProgress
	for _, p := range f.st.progress {
		if p.AccountID == accountID && p.Status == models.ProgressCompleted {
			done = append(done, p)
		}
	}
	sort.Slice(done, func(i, j int) bool { return done[i].CompletedAt.Before(done[j].CompletedAt) })

	var names []string
	for _, p := range done {
		if c, ok := f.st.campaigns[p.CampaignID]; ok {
			names = append(names, c.Name)
		}
	}
	return names, nil
}

func (f *fakeCampaigns) ListProgressDetails(_ context.Context) ([]*repositories.ProgressDetail, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()

	var details []*repositories.ProgressDetail
	for _, p := range f.st.progress {
		a, aok := f.st.accounts[p.AccountID]
		c, cok := f.st.campaigns[p.CampaignID]
		if !aok || !cok {
			continue
		}
		details = append(details, &repositories.ProgressDetail{
			Username:     a.Username,
			CampaignName: c.Name,
			Status:       p.Status,
			DropsClaimed: p.DropsClaimed,
			TotalDrops:   p.TotalDrops,
			IsSold:       a.IsSold,
		})
	}
	sort.Slice(details, func(i, j int) bool {
		if details[i].CampaignName != details[j].CampaignName {
			return details[i].CampaignName < details[j].CampaignName
		}
		return details[i].Username < details[j].Username
	})
	return details, nil
}

func (f *fakeCampaigns) CampaignStats(_ context.Context, campaignID int64) (*models.CampaignStats, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()

	stats := &models.CampaignStats{TotalAccounts: len(f.st.accounts)}
	for _, a := range f.st.accounts {
		p := f.st.progress[progressKey{a.ID, campaignID}]
		if a.Claimable() && (p == nil || p.Status != models.ProgressCompleted) {
			stats.Available++
		}
		if p == nil && !a.IsSold {
			stats.NotStarted++
		}
		if p != nil && a.IsSold {
			stats.SoldWithCampaign++
		}
	}
	for key, p := range f.st.progress {
		if key.campaignID != campaignID {
			continue
		}
		switch p.Status {
		case models.ProgressCompleted:
			stats.Completed++
		case models.ProgressInProgress:
			stats.InProgress++
		case models.ProgressPartial:
			stats.Partial++
		}
	}
	return stats, nil
}

// recordingNotifier captures notification events for assertions.
type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

var _ notify.Notifier = (*recordingNotifier)(nil)

func (n *recordingNotifier) record(event string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

func (n *recordingNotifier) MiningStarted(_ context.Context, account, campaign string, completed []string) {
	n.record(fmt.Sprintf("started:%s:%s:%v", account, campaign, completed))
}

func (n *recordingNotifier) DropProgress(_ context.Context, account, campaign string, claimed, total int) {
	n.record(fmt.Sprintf("progress:%s:%s:%d/%d", account, campaign, claimed, total))
}

func (n *recordingNotifier) CampaignCompleted(_ context.Context, account, campaign string, claimed int) {
	n.record(fmt.Sprintf("completed:%s:%s:%d", account, campaign, claimed))
}

func (n *recordingNotifier) AccountInvalidated(_ context.Context, account, reason string) {
	n.record(fmt.Sprintf("invalidated:%s:%s", account, reason))
}

func (n *recordingNotifier) WorkerAbandoned(_ context.Context, account, campaign string, restarts int) {
	n.record(fmt.Sprintf("abandoned:%s:%s:%d", account, campaign, restarts))
}

func (n *recordingNotifier) SweepCompleted(_ context.Context, reclaimed int, _ time.Duration) {
	n.record(fmt.Sprintf("sweep:%d", reclaimed))
}

// fixture wires a service over fresh fakes.
type fixture struct {
	state     *fakeState
	accounts  *fakeAccounts
	leases    *fakeLeases
	campaigns *fakeCampaigns
	notifier  *recordingNotifier
	service   *Service
}

func newFixture() *fixture {
	st := newFakeState()
	f := &fixture{
		state:     st,
		accounts:  &fakeAccounts{st: st},
		leases:    &fakeLeases{st: st},
		campaigns: &fakeCampaigns{st: st},
		notifier:  &recordingNotifier{},
	}
	f.service = NewService(f.accounts, f.leases, f.campaigns, f.notifier)
	return f
}

func (f *fixture) seedAccount(username string) *models.Account {
	return f.state.addAccount(&models.Account{
		Username:    username,
		Password:    "pw-" + username,
		AccessToken: "token-" + username,
		UserID:      "uid-" + username,
		IsValid:     true,
	})
}

func (f *fixture) seedCampaign(name string, totalDrops int) *models.Campaign {
	return f.state.addCampaign(&models.Campaign{
		Name:       name,
		GameName:   name + " game",
		TotalDrops: totalDrops,
		IsActive:   true,
	})
}
