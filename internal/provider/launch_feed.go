package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"tokenwatch/internal/addr"
	"tokenwatch/internal/logging"
)

// LaunchEvent is one newly observed token mint.
type LaunchEvent struct {
	Address    string
	Slot       int64
	ObservedAt int64 // Unix timestamp in milliseconds
}

// LaunchFeedConfig configures reconnect and keepalive behavior.
type LaunchFeedConfig struct {
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	HandshakeTimeout  time.Duration
	PingInterval      time.Duration
}

// DefaultLaunchFeedConfig returns the default feed configuration.
func DefaultLaunchFeedConfig() LaunchFeedConfig {
	return LaunchFeedConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		PingInterval:      30 * time.Second,
	}
}

// LaunchFeed subscribes to program logs over WebSocket and emits the
// mint address of every InitializeMint it observes. The feed owns its
// connection and reconnects with backoff until Close is called; missed
// launches during a gap are not replayed, the poll loop picks those
// tokens up from the seed list or later activity.
type LaunchFeed struct {
	endpoint string
	programs []string
	cfg      LaunchFeedConfig
	log      zerolog.Logger

	events    chan LaunchEvent
	done      chan struct{}
	wg        sync.WaitGroup
	closed    atomic.Bool
	requestID atomic.Uint64
}

// NewLaunchFeed creates a feed subscribed to logs mentioning the given
// program IDs.
func NewLaunchFeed(endpoint string, programs []string, cfg LaunchFeedConfig) *LaunchFeed {
	return &LaunchFeed{
		endpoint: endpoint,
		programs: programs,
		cfg:      cfg,
		log:      logging.WithComponent("launch_feed"),
		events:   make(chan LaunchEvent, 256),
		done:     make(chan struct{}),
	}
}

// Events returns the launch event stream. Closed when the feed stops.
func (f *LaunchFeed) Events() <-chan LaunchEvent {
	return f.events
}

// Start runs the connect/read loop until Close is called or the
// context ends.
func (f *LaunchFeed) Start(ctx context.Context) {
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		defer close(f.events)
		f.run(ctx)
	}()
}

// Close stops the feed and waits for the read loop to exit.
func (f *LaunchFeed) Close() {
	if f.closed.CompareAndSwap(false, true) {
		close(f.done)
	}
	f.wg.Wait()
}

func (f *LaunchFeed) run(ctx context.Context) {
	delay := f.cfg.ReconnectDelay

	for {
		select {
		case <-ctx.Done():
			return
		case <-f.done:
			return
		default:
		}

		err := f.connectAndRead(ctx)
		if err == nil || ctx.Err() != nil || f.closed.Load() {
			return
		}

		f.log.Warn().Err(err).Dur("retry_in", delay).Msg("websocket session ended, reconnecting")
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		case <-f.done:
			return
		}
		delay *= 2
		if delay > f.cfg.MaxReconnectDelay {
			delay = f.cfg.MaxReconnectDelay
		}
	}
}

// wsEnvelope covers both subscription confirmations and notifications.
type wsEnvelope struct {
	ID     uint64 `json:"id"`
	Method string `json:"method"`
	Params struct {
		Result struct {
			Context struct {
				Slot int64 `json:"slot"`
			} `json:"context"`
			Value struct {
				Signature string   `json:"signature"`
				Err       any      `json:"err"`
				Logs      []string `json:"logs"`
			} `json:"value"`
		} `json:"result"`
	} `json:"params"`
}

func (f *LaunchFeed) connectAndRead(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: f.cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, f.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	defer conn.Close()

	for _, program := range f.programs {
		sub := map[string]any{
			"jsonrpc": "2.0",
			"id":      f.requestID.Add(1),
			"method":  "logsSubscribe",
			"params": []any{
				map[string]any{"mentions": []string{program}},
				map[string]string{"commitment": "confirmed"},
			},
		}
		if err := conn.WriteJSON(sub); err != nil {
			return fmt.Errorf("subscribe logs: %w", err)
		}
	}
	f.log.Info().Strs("programs", f.programs).Msg("subscribed to launch logs")

	// Unblock ReadMessage on shutdown.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-f.done:
		case <-stop:
			return
		}
		conn.Close()
	}()

	ticker := time.NewTicker(f.cfg.PingInterval)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ticker.C:
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			case <-stop:
				return
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || f.closed.Load() {
				return nil
			}
			return fmt.Errorf("websocket read: %w", err)
		}

		var env wsEnvelope
		if err := json.Unmarshal(msg, &env); err != nil {
			f.log.Debug().Err(err).Msg("dropping unparseable message")
			continue
		}
		if env.Method != "logsNotification" || env.Params.Result.Value.Err != nil {
			continue
		}

		mint, ok := extractMint(env.Params.Result.Value.Logs)
		if !ok {
			continue
		}

		event := LaunchEvent{
			Address:    mint,
			Slot:       env.Params.Result.Context.Slot,
			ObservedAt: time.Now().UnixMilli(),
		}
		select {
		case f.events <- event:
		default:
			f.log.Warn().Str("mint", mint).Msg("launch event buffer full, dropping")
		}
	}
}

// extractMint scans transaction logs for an InitializeMint instruction
// and returns the first valid base58 address mentioned after it.
func extractMint(logs []string) (string, bool) {
	sawInit := false
	for _, line := range logs {
		if strings.Contains(line, "Instruction: InitializeMint") {
			sawInit = true
			continue
		}
		if !sawInit {
			continue
		}
		for _, field := range strings.Fields(line) {
			candidate := strings.Trim(field, ",:;\"'")
			if len(candidate) < 32 || len(candidate) > 44 {
				continue
			}
			if err := addr.Validate(candidate); err == nil {
				return candidate, true
			}
		}
	}
	return "", false
}
