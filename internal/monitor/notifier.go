package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/arbitgo/triarb/internal/domain"
)

// Notifier posts outbound webhook notifications for a venue supervisor.
// Per-attempt and successful-trade notifications are throttled by
// independent minimum-interval gates so a hot venue can't flood the
// configured webhook; metrics counters, by contrast, are never throttled.
type Notifier struct {
	http        *resty.Client
	webhookURL  string
	attemptGate *rate.Limiter
	successGate *rate.Limiter
	logger      *slog.Logger
}

// NewNotifier builds a Notifier posting to webhookURL, or a no-op one if
// webhookURL is empty (the configured-off case). minAttemptInterval and
// minSuccessInterval are the minimum gap between notifications of each
// kind; a burst of one lets the first event of a quiet period through
// immediately.
func NewNotifier(webhookURL string, minAttemptInterval, minSuccessInterval time.Duration, logger *slog.Logger) *Notifier {
	client := resty.New().
		SetTimeout(5 * time.Second).
		SetRetryCount(1).
		SetRetryWaitTime(200 * time.Millisecond)

	return &Notifier{
		http:        client,
		webhookURL:  webhookURL,
		attemptGate: rate.NewLimiter(rate.Every(minAttemptInterval), 1),
		successGate: rate.NewLimiter(rate.Every(minSuccessInterval), 1),
		logger:      logger,
	}
}

func (n *Notifier) enabled() bool {
	return n != nil && n.webhookURL != ""
}

// NotifyAttempt reports one evaluated attempt, throttled by the attempt
// gate. Dropped silently (not queued) when the gate is closed, per the
// spec's "rate-limited, never retried for staleness" notification model.
func (n *Notifier) NotifyAttempt(ctx context.Context, venue string, attempt domain.TriangleAttempt) {
	if !n.enabled() || !n.attemptGate.Allow() {
		return
	}
	n.post(ctx, map[string]any{
		"type":         "attempt",
		"venue":        venue,
		"attempt_id":   attempt.ID.String(),
		"ok":           attempt.OK,
		"net_est":      attempt.NetEst,
		"skip_reasons": attempt.SkipReasons,
		"latency_ms":   attempt.LatencyMs,
		"slippage_bps": attempt.SlippageBps,
	})
}

// NotifySuccess reports a completed, profitable attempt, throttled by the
// independent success gate so a burst of fills doesn't starve attempt
// notifications of webhook bandwidth or vice versa.
func (n *Notifier) NotifySuccess(ctx context.Context, venue string, attempt domain.TriangleAttempt) {
	if !n.enabled() || !n.successGate.Allow() {
		return
	}
	var realized float64
	if attempt.RealizedUSDT != nil {
		realized, _ = attempt.RealizedUSDT.Float64()
	}
	n.post(ctx, map[string]any{
		"type":          "success",
		"venue":         venue,
		"attempt_id":    attempt.ID.String(),
		"realized_usdt": realized,
		"dry_run":       attempt.DryRun,
		"latency_ms":    attempt.LatencyMs,
		"slippage_bps":  attempt.SlippageBps,
	})
}

// NotifyStop reports supervisor shutdown with final balances. Not
// throttled: it fires at most once per venue per process lifetime.
func (n *Notifier) NotifyStop(ctx context.Context, venue string, balances map[string]domain.Balance) {
	if !n.enabled() {
		return
	}
	assets := make(map[string]string, len(balances))
	for asset, bal := range balances {
		assets[asset] = bal.Free.String()
	}
	n.post(ctx, map[string]any{
		"type":     "stop",
		"venue":    venue,
		"balances": assets,
	})
}

func (n *Notifier) post(ctx context.Context, payload map[string]any) {
	resp, err := n.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(n.webhookURL)
	if err != nil {
		n.logger.Warn("notification webhook failed", "error", err)
		return
	}
	if resp.IsError() {
		n.logger.Warn("notification webhook rejected", "status", resp.StatusCode())
	}
}
