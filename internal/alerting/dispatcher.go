package alerting

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tokenwatch/internal/domain"
	"tokenwatch/internal/logging"
	"tokenwatch/internal/observability"
)

// Sender delivers one event to a single notification channel.
type Sender interface {
	Channel() domain.ChannelType
	Send(ctx context.Context, ev *domain.AlertEvent) error
}

// DispatcherConfig holds the per-channel delivery policy.
type DispatcherConfig struct {
	QueueSize       int
	RetryBackoff    time.Duration
	WebhookRetries  int
	TelegramRetries int
}

// Dispatcher routes fired events to their channel. Each channel gets
// its own queue and worker so an outage on one channel never blocks
// deliveries on another.
type Dispatcher struct {
	cfg     DispatcherConfig
	senders map[domain.ChannelType]Sender
	queues  map[domain.ChannelType]chan *domain.AlertEvent
	log     zerolog.Logger

	wg        sync.WaitGroup
	closeOnce sync.Once
}

var _ EventSink = (*Dispatcher)(nil)

// NewDispatcher creates a dispatcher over the given channel senders.
func NewDispatcher(cfg DispatcherConfig, senders ...Sender) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.WebhookRetries <= 0 {
		cfg.WebhookRetries = 3
	}
	if cfg.TelegramRetries <= 0 {
		cfg.TelegramRetries = 3
	}

	d := &Dispatcher{
		cfg:     cfg,
		senders: make(map[domain.ChannelType]Sender),
		queues:  make(map[domain.ChannelType]chan *domain.AlertEvent),
		log:     logging.WithComponent("dispatcher"),
	}
	for _, s := range senders {
		d.senders[s.Channel()] = s
		d.queues[s.Channel()] = make(chan *domain.AlertEvent, cfg.QueueSize)
	}
	return d
}

// Start launches one delivery worker per channel. Workers drain their
// queues until Close is called, then exit; ctx bounds in-flight sends.
func (d *Dispatcher) Start(ctx context.Context) {
	for channel, queue := range d.queues {
		d.wg.Add(1)
		go d.worker(ctx, channel, queue)
	}
}

// Enqueue hands an event to its channel's queue without blocking.
// Events for unknown channels or full queues are dropped.
func (d *Dispatcher) Enqueue(ev *domain.AlertEvent) bool {
	queue, ok := d.queues[ev.Channel]
	if !ok {
		observability.RecordDispatch(string(ev.Channel), "unknown_channel")
		return false
	}
	select {
	case queue <- ev:
		observability.DefaultMetrics.DispatchQueueSize.WithLabelValues(string(ev.Channel)).Set(float64(len(queue)))
		return true
	default:
		observability.RecordDispatch(string(ev.Channel), "dropped")
		return false
	}
}

// Close stops accepting events and waits for the workers to drain
// their queues.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		for _, queue := range d.queues {
			close(queue)
		}
	})
	d.wg.Wait()
}

func (d *Dispatcher) worker(ctx context.Context, channel domain.ChannelType, queue chan *domain.AlertEvent) {
	defer d.wg.Done()

	gauge := observability.DefaultMetrics.DispatchQueueSize.WithLabelValues(string(channel))
	for ev := range queue {
		gauge.Set(float64(len(queue)))
		d.deliver(ctx, channel, ev)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, channel domain.ChannelType, ev *domain.AlertEvent) {
	sender := d.senders[channel]
	retries := d.retriesFor(channel)

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}

		lastErr = sender.Send(ctx, ev)
		if lastErr == nil {
			observability.RecordDispatch(string(channel), "delivered")
			return
		}

		d.log.Warn().Err(lastErr).
			Str("channel", string(channel)).
			Str("event_id", ev.EventID).
			Int("attempt", attempt).
			Msg("delivery attempt failed")

		if attempt < retries {
			// Linear backoff between attempts.
			select {
			case <-time.After(d.cfg.RetryBackoff * time.Duration(attempt)):
			case <-ctx.Done():
			}
		}
	}

	observability.RecordDispatch(string(channel), "failed")
	d.log.Error().Err(lastErr).
		Str("channel", string(channel)).
		Str("event_id", ev.EventID).
		Str("rule_id", ev.RuleID).
		Msg("delivery failed permanently")
}

func (d *Dispatcher) retriesFor(channel domain.ChannelType) int {
	switch channel {
	case domain.ChannelTelegram:
		return d.cfg.TelegramRetries
	default:
		return d.cfg.WebhookRetries
	}
}

// formatMessage renders the human-readable notification text shared by
// all channels.
func formatMessage(ev *domain.AlertEvent) string {
	return fmt.Sprintf("Token %s: %s %s %g (observed %g)",
		ev.TokenAddress, ev.Metric, ev.Op, ev.Threshold, ev.ObservedValue)
}
