package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"minefleet/fleet/metrics"
)

// WebhookNotifier POSTs events as JSON to an arbitrary endpoint for
// operators who bridge into their own tooling.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

type webhookEvent struct {
	Event     string    `json:"event"`
	Account   string    `json:"account,omitempty"`
	Campaign  string    `json:"campaign,omitempty"`
	Claimed   int       `json:"drops_claimed,omitempty"`
	Total     int       `json:"total_drops,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Restarts  int       `json:"restarts,omitempty"`
	Reclaimed int       `json:"reclaimed,omitempty"`
	Completed []string  `json:"completed,omitempty"`
	At        time.Time `json:"at"`
}

func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (n *WebhookNotifier) MiningStarted(ctx context.Context, account, campaign string, completed []string) {
	n.post(ctx, webhookEvent{Event: "mining_started", Account: account, Campaign: campaign, Completed: completed})
}

func (n *WebhookNotifier) DropProgress(ctx context.Context, account, campaign string, claimed, total int) {
	n.post(ctx, webhookEvent{Event: "drop_progress", Account: account, Campaign: campaign, Claimed: claimed, Total: total})
}

func (n *WebhookNotifier) CampaignCompleted(ctx context.Context, account, campaign string, claimed int) {
	n.post(ctx, webhookEvent{Event: "campaign_completed", Account: account, Campaign: campaign, Claimed: claimed})
}

func (n *WebhookNotifier) AccountInvalidated(ctx context.Context, account, reason string) {
	n.post(ctx, webhookEvent{Event: "account_invalidated", Account: account, Reason: reason})
}

func (n *WebhookNotifier) WorkerAbandoned(ctx context.Context, account, campaign string, restarts int) {
	n.post(ctx, webhookEvent{Event: "worker_abandoned", Account: account, Campaign: campaign, Restarts: restarts})
}

func (n *WebhookNotifier) SweepCompleted(ctx context.Context, reclaimed int, maxAge time.Duration) {
	if reclaimed == 0 {
		return
	}
	n.post(ctx, webhookEvent{Event: "sweep_completed", Reclaimed: reclaimed})
}

func (n *WebhookNotifier) post(ctx context.Context, event webhookEvent) {
	event.At = time.Now()

	body, err := json.Marshal(event)
	if err != nil {
		slog.Error("Failed to marshal webhook event",
			slog.String("error", err.Error()))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		slog.Error("Failed to build webhook request",
			slog.String("error", err.Error()))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		metrics.NotifyFailures.Inc()
		slog.Error("Failed to deliver webhook event",
			slog.String("event", event.Event),
			slog.String("error", err.Error()))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		metrics.NotifyFailures.Inc()
		slog.Error("Webhook endpoint rejected event",
			slog.String("event", event.Event),
			slog.Int("status", resp.StatusCode))
	}
}
