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

const telegramAPIBase = "https://api.telegram.org"

// TelegramSender delivers events through the Telegram bot API. The
// rule's target is the chat ID.
type TelegramSender struct {
	botToken string
	baseURL  string
	client   *http.Client
}

// NewTelegramSender creates a telegram sender for one bot token.
func NewTelegramSender(botToken string, opts ...TelegramOption) *TelegramSender {
	s := &TelegramSender{
		botToken: botToken,
		baseURL:  telegramAPIBase,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TelegramOption customizes a TelegramSender.
type TelegramOption func(*TelegramSender)

// WithTelegramBaseURL overrides the API base URL, mainly for tests.
func WithTelegramBaseURL(u string) TelegramOption {
	return func(s *TelegramSender) { s.baseURL = u }
}

// WithTelegramHTTPClient overrides the HTTP client.
func WithTelegramHTTPClient(c *http.Client) TelegramOption {
	return func(s *TelegramSender) { s.client = c }
}

var _ Sender = (*TelegramSender)(nil)

func (s *TelegramSender) Channel() domain.ChannelType { return domain.ChannelTelegram }

type telegramRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send posts a sendMessage call for the event's chat.
func (s *TelegramSender) Send(ctx context.Context, ev *domain.AlertEvent) error {
	body, err := json.Marshal(telegramRequest{ChatID: ev.Target, Text: formatMessage(ev)})
	if err != nil {
		return fmt.Errorf("marshal telegram request: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, s.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post telegram message: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var parsed telegramResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&parsed); err != nil {
		return fmt.Errorf("decode telegram response (status %d): %w", resp.StatusCode, err)
	}
	if !parsed.OK {
		return fmt.Errorf("telegram rejected message (status %d): %s", resp.StatusCode, parsed.Description)
	}
	return nil
}
