package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokenwatch/internal/domain"
)

// fakeSender is a scriptable channel sender.
type fakeSender struct {
	channel  domain.ChannelType
	failures int32 // fail this many sends before succeeding
	block    chan struct{}

	sent  atomic.Int32
	calls atomic.Int32
}

func (f *fakeSender) Channel() domain.ChannelType { return f.channel }

func (f *fakeSender) Send(ctx context.Context, ev *domain.AlertEvent) error {
	f.calls.Add(1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.calls.Load() <= f.failures {
		return errors.New("send failed")
	}
	f.sent.Add(1)
	return nil
}

func event(channel domain.ChannelType, target string) *domain.AlertEvent {
	return &domain.AlertEvent{
		EventID:       "ev-1",
		RuleID:        "r1",
		TokenAddress:  "tok",
		Metric:        domain.MetricPrice,
		Op:            domain.OpGreater,
		Threshold:     1.0,
		ObservedValue: 2.0,
		Channel:       channel,
		Target:        target,
	}
}

func TestDispatcher_DeliversToChannel(t *testing.T) {
	webhook := &fakeSender{channel: domain.ChannelWebhook}
	d := NewDispatcher(DispatcherConfig{QueueSize: 8, RetryBackoff: time.Millisecond}, webhook)
	d.Start(context.Background())

	require.True(t, d.Enqueue(event(domain.ChannelWebhook, "http://example.com/hook")))
	d.Close()

	assert.Equal(t, int32(1), webhook.sent.Load())
}

func TestDispatcher_RetriesUntilSuccess(t *testing.T) {
	webhook := &fakeSender{channel: domain.ChannelWebhook, failures: 2}
	d := NewDispatcher(DispatcherConfig{QueueSize: 8, RetryBackoff: time.Millisecond, WebhookRetries: 3}, webhook)
	d.Start(context.Background())

	require.True(t, d.Enqueue(event(domain.ChannelWebhook, "http://example.com/hook")))
	d.Close()

	assert.Equal(t, int32(3), webhook.calls.Load(), "two failures then a success")
	assert.Equal(t, int32(1), webhook.sent.Load())
}

func TestDispatcher_ExhaustedRetriesDropEvent(t *testing.T) {
	webhook := &fakeSender{channel: domain.ChannelWebhook, failures: 100}
	d := NewDispatcher(DispatcherConfig{QueueSize: 8, RetryBackoff: time.Millisecond, WebhookRetries: 3}, webhook)
	d.Start(context.Background())

	require.True(t, d.Enqueue(event(domain.ChannelWebhook, "http://example.com/hook")))
	d.Close()

	assert.Equal(t, int32(3), webhook.calls.Load())
	assert.Zero(t, webhook.sent.Load())
}

func TestDispatcher_ChannelsAreIsolated(t *testing.T) {
	block := make(chan struct{})
	webhook := &fakeSender{channel: domain.ChannelWebhook, block: block}
	telegram := &fakeSender{channel: domain.ChannelTelegram}

	d := NewDispatcher(DispatcherConfig{QueueSize: 8, RetryBackoff: time.Millisecond}, webhook, telegram)
	d.Start(context.Background())

	// The webhook worker is stuck on a hanging delivery; telegram
	// deliveries must still go through.
	require.True(t, d.Enqueue(event(domain.ChannelWebhook, "http://example.com/hook")))
	require.True(t, d.Enqueue(event(domain.ChannelTelegram, "12345")))

	require.Eventually(t, func() bool { return telegram.sent.Load() == 1 },
		2*time.Second, 10*time.Millisecond, "telegram unaffected by webhook outage")
	assert.Zero(t, webhook.sent.Load())

	close(block)
	d.Close()
	assert.Equal(t, int32(1), webhook.sent.Load())
}

func TestDispatcher_FullQueueDropsWithoutBlocking(t *testing.T) {
	block := make(chan struct{})
	webhook := &fakeSender{channel: domain.ChannelWebhook, block: block}

	d := NewDispatcher(DispatcherConfig{QueueSize: 1, RetryBackoff: time.Millisecond}, webhook)
	d.Start(context.Background())

	// First event occupies the worker, second fills the queue, third
	// must be rejected immediately.
	require.True(t, d.Enqueue(event(domain.ChannelWebhook, "a")))
	require.Eventually(t, func() bool { return webhook.calls.Load() == 1 }, 2*time.Second, time.Millisecond)
	require.True(t, d.Enqueue(event(domain.ChannelWebhook, "b")))
	assert.False(t, d.Enqueue(event(domain.ChannelWebhook, "c")))

	close(block)
	d.Close()
}

func TestDispatcher_UnknownChannelRejected(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{QueueSize: 8}, &fakeSender{channel: domain.ChannelWebhook})
	assert.False(t, d.Enqueue(event(domain.ChannelTelegram, "12345")))
	d.Close()
}

func TestWebhookSender_PostsDiscordStylePayload(t *testing.T) {
	var got webhookPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	s := NewWebhookSender()
	require.NoError(t, s.Send(context.Background(), event(domain.ChannelWebhook, server.URL)))

	assert.Contains(t, got.Content, "tok")
	require.Len(t, got.Embeds, 1)
	assert.Equal(t, "token", got.Embeds[0].Fields[0].Name)
}

func TestWebhookSender_NonSuccessStatusIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	s := NewWebhookSender()
	err := s.Send(context.Background(), event(domain.ChannelWebhook, server.URL))
	assert.ErrorContains(t, err, "500")
}

func TestTelegramSender_SendsMessage(t *testing.T) {
	var (
		mu   sync.Mutex
		path string
		got  telegramRequest
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer server.Close()

	s := NewTelegramSender("bot-token", WithTelegramBaseURL(server.URL))
	require.NoError(t, s.Send(context.Background(), event(domain.ChannelTelegram, "12345")))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "/botbot-token/sendMessage", path)
	assert.Equal(t, "12345", got.ChatID)
	assert.Contains(t, got.Text, "tok")
}

func TestTelegramSender_APIRejectionIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "description": "chat not found"})
	}))
	defer server.Close()

	s := NewTelegramSender("bot-token", WithTelegramBaseURL(server.URL))
	err := s.Send(context.Background(), event(domain.ChannelTelegram, "12345"))
	assert.ErrorContains(t, err, "chat not found")
}
