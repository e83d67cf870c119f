package leasing

// Session is the handle returned by a successful acquire. Progress calls
// carry it back in, so account and campaign travel as explicit parameters
// instead of ambient state.
type Session struct {
	RunID      string
	AccountID  int64
	Username   string
	CampaignID int64
	Campaign   string
	TotalDrops int
	HolderPID  int
}
