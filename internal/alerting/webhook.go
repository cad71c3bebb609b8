package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"tokenwatch/internal/domain"
)

// WebhookSender posts Discord-style JSON payloads to the rule's target
// URL. It never retries; the dispatcher owns the retry policy.
type WebhookSender struct {
	client *http.Client
}

// NewWebhookSender creates a webhook sender.
func NewWebhookSender(opts ...WebhookOption) *WebhookSender {
	s := &WebhookSender{
		client: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WebhookOption customizes a WebhookSender.
type WebhookOption func(*WebhookSender)

// WithWebhookHTTPClient overrides the HTTP client, mainly for tests.
func WithWebhookHTTPClient(c *http.Client) WebhookOption {
	return func(s *WebhookSender) { s.client = c }
}

var _ Sender = (*WebhookSender)(nil)

func (s *WebhookSender) Channel() domain.ChannelType { return domain.ChannelWebhook }

type webhookPayload struct {
	Content string         `json:"content"`
	Embeds  []webhookEmbed `json:"embeds,omitempty"`
}

type webhookEmbed struct {
	Title  string              `json:"title"`
	Fields []webhookEmbedField `json:"fields"`
}

type webhookEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// Send posts the event to the target URL. Any non-2xx response is an
// error so the dispatcher can retry.
func (s *WebhookSender) Send(ctx context.Context, ev *domain.AlertEvent) error {
	payload := webhookPayload{
		Content: formatMessage(ev),
		Embeds: []webhookEmbed{{
			Title: "tokenwatch alert",
			Fields: []webhookEmbedField{
				{Name: "token", Value: ev.TokenAddress, Inline: true},
				{Name: "metric", Value: string(ev.Metric), Inline: true},
				{Name: "condition", Value: fmt.Sprintf("%s %g", ev.Op, ev.Threshold), Inline: true},
				{Name: "observed", Value: fmt.Sprintf("%g", ev.ObservedValue), Inline: true},
			},
		}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ev.Target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
