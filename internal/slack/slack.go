// Package slack delivers hot-lead alerts to an operations channel via an
// incoming webhook.
//
// Delivery is best-effort by contract: the engine never fails a conversation
// because an alert did not go through, so outcomes are reported as an explicit
// DeliveryResult instead of an error.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// DefaultRequestTimeout bounds one webhook POST.
const DefaultRequestTimeout = 10 * time.Second

// DeliveryStatus is the outcome of one alert attempt.
type DeliveryStatus string

const (
	// StatusDelivered indicates the webhook accepted the alert.
	StatusDelivered DeliveryStatus = "delivered"
	// StatusFailed indicates the POST failed or the webhook rejected it;
	// non-fatal for the caller.
	StatusFailed DeliveryStatus = "delivery-failed-non-fatal"
	// StatusDisabled indicates no webhook URL is configured.
	StatusDisabled DeliveryStatus = "disabled"
)

// DeliveryResult reports one alert attempt.
type DeliveryResult struct {
	Status DeliveryStatus
	Err    error
}

// Delivered reports whether the alert reached the channel.
func (r DeliveryResult) Delivered() bool {
	return r.Status == StatusDelivered
}

// Opts holds configuration options for the notifier.
type Opts struct {
	WebhookURL string
	HTTPClient *http.Client
}

// Option defines a configuration option for the notifier.
type Option func(*Opts)

// WithWebhookURL sets the incoming webhook URL.
func WithWebhookURL(url string) Option {
	return func(o *Opts) { o.WebhookURL = url }
}

// WithHTTPClient overrides the HTTP client (for tests).
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// Notifier posts alerts to a chat webhook.
type Notifier struct {
	webhookURL string
	httpClient *http.Client
}

// NewNotifier creates a notifier. An empty webhook URL yields a disabled
// notifier that reports StatusDisabled on every call.
func NewNotifier(opts ...Option) *Notifier {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultRequestTimeout}
	}
	if cfg.WebhookURL == "" {
		slog.Warn("Slack notifier created without webhook URL; alerts disabled")
	}
	return &Notifier{webhookURL: cfg.WebhookURL, httpClient: cfg.HTTPClient}
}

// webhookPayload is the incoming-webhook message body.
type webhookPayload struct {
	Text string `json:"text"`
}

// NotifyHotLead fires a one-way alert that a lead accepted the call proposal.
// All failures are absorbed into the result; the primary flow never aborts on
// a notification problem.
func (n *Notifier) NotifyHotLead(ctx context.Context, phone, snippet string) DeliveryResult {
	if n.webhookURL == "" {
		slog.Warn("Slack NotifyHotLead skipped: no webhook URL configured")
		return DeliveryResult{Status: StatusDisabled}
	}

	text := fmt.Sprintf("🔥 *LEAD CALIENTE DETECTADO* 🔥\n\n📱 *Teléfono:* %s\n💬 *Dijo:* _%s_\n🚀 *Acción:* Link enviado. ¡Revisar Calendly!", phone, snippet)
	body, err := json.Marshal(webhookPayload{Text: text})
	if err != nil {
		return DeliveryResult{Status: StatusFailed, Err: fmt.Errorf("failed to marshal alert payload: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return DeliveryResult{Status: StatusFailed, Err: fmt.Errorf("failed to build alert request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		slog.Error("Slack NotifyHotLead request failed", "error", err, "phone", phone)
		return DeliveryResult{Status: StatusFailed, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		slog.Error("Slack NotifyHotLead rejected", "status", resp.StatusCode, "body", string(respBody))
		return DeliveryResult{Status: StatusFailed, Err: fmt.Errorf("webhook returned status %d", resp.StatusCode)}
	}

	slog.Info("Slack hot-lead alert delivered", "phone", phone)
	return DeliveryResult{Status: StatusDelivered}
}
