package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"minefleet/fleet/metrics"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/disgo/webhook"
	"github.com/disgoorg/snowflake/v2"
)

const (
	colorNeutral   = 0x2b2d31
	colorStarted   = 0x57f287
	colorCompleted = 0xf1c40f
	colorInvalid   = 0xed4245
	colorAbandoned = 0xe67e22
)

// DiscordNotifier posts rich embeds to a Discord webhook. The target is
// either a full webhook URL or an "id:token" pair.
type DiscordNotifier struct {
	client   webhook.Client
	username string
	mu       sync.RWMutex
}

func NewDiscordNotifier(target, username string) (*DiscordNotifier, error) {
	client, err := newWebhookClient(target)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord webhook client: %w", err)
	}
	return &DiscordNotifier{client: client, username: username}, nil
}

func newWebhookClient(target string) (webhook.Client, error) {
	if strings.Contains(target, "/api/webhooks/") {
		return webhook.NewWithURL(target)
	}

	id, token, ok := strings.Cut(target, ":")
	if !ok {
		return nil, fmt.Errorf("webhook target must be a URL or id:token, got %q", target)
	}
	webhookID, err := snowflake.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook id: %w", err)
	}
	return webhook.New(webhookID, token), nil
}

func (n *DiscordNotifier) Close(ctx context.Context) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.client != nil {
		n.client.Close(ctx)
	}
}

func (n *DiscordNotifier) MiningStarted(ctx context.Context, account, campaign string, completed []string) {
	embed := discord.NewEmbedBuilder().
		SetTitle("⛏️ Mining Started").
		SetDescription(fmt.Sprintf("**%s** started mining **%s**", account, campaign)).
		SetColor(colorStarted).
		SetTimestamp(time.Now())

	if len(completed) > 0 {
		embed.AddField("Previously Completed", strings.Join(completed, ", "), false)
	}

	n.send(ctx, embed.Build())
}

func (n *DiscordNotifier) DropProgress(ctx context.Context, account, campaign string, claimed, total int) {
	embed := discord.NewEmbedBuilder().
		SetTitle("🎁 Drop Claimed").
		SetDescription(fmt.Sprintf("**%s** claimed drop %d/%d of **%s**", account, claimed, total, campaign)).
		SetColor(colorNeutral).
		SetTimestamp(time.Now())

	n.send(ctx, embed.Build())
}

func (n *DiscordNotifier) CampaignCompleted(ctx context.Context, account, campaign string, claimed int) {
	embed := discord.NewEmbedBuilder().
		SetTitle("🏁 Campaign Completed").
		SetDescription(fmt.Sprintf("**%s** finished **%s**", account, campaign)).
		AddField("Drops", fmt.Sprintf("%d", claimed), true).
		SetColor(colorCompleted).
		SetTimestamp(time.Now())

	n.send(ctx, embed.Build())
}

func (n *DiscordNotifier) AccountInvalidated(ctx context.Context, account, reason string) {
	embed := discord.NewEmbedBuilder().
		SetTitle("🚫 Account Invalidated").
		SetDescription(fmt.Sprintf("**%s** was marked invalid", account)).
		AddField("Reason", reason, false).
		SetColor(colorInvalid).
		SetTimestamp(time.Now())

	n.send(ctx, embed.Build())
}

func (n *DiscordNotifier) WorkerAbandoned(ctx context.Context, account, campaign string, restarts int) {
	embed := discord.NewEmbedBuilder().
		SetTitle("⚠️ Worker Abandoned").
		SetDescription(fmt.Sprintf("Worker for **%s** on **%s** gave up after %d restarts", account, campaign, restarts)).
		SetColor(colorAbandoned).
		SetTimestamp(time.Now())

	n.send(ctx, embed.Build())
}

func (n *DiscordNotifier) SweepCompleted(ctx context.Context, reclaimed int, maxAge time.Duration) {
	if reclaimed == 0 {
		return
	}

	embed := discord.NewEmbedBuilder().
		SetTitle("🧹 Orphan Sweep").
		SetDescription(fmt.Sprintf("Reclaimed %d leases older than %s", reclaimed, maxAge)).
		SetColor(colorNeutral).
		SetTimestamp(time.Now())

	n.send(ctx, embed.Build())
}

func (n *DiscordNotifier) send(ctx context.Context, embed discord.Embed) {
	n.mu.RLock()
	client := n.client
	username := n.username
	n.mu.RUnlock()

	if client == nil {
		return
	}

	message := discord.NewWebhookMessageCreateBuilder().
		SetUsername(username).
		SetEmbeds(embed).
		Build()

	if _, err := client.CreateMessage(message, rest.WithCtx(ctx)); err != nil {
		metrics.NotifyFailures.Inc()
		slog.Error("Failed to send discord notification",
			slog.String("error", err.Error()))
	}
}
