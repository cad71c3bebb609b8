// Package governor gates every upstream provider call behind a
// per-provider token bucket and a bounded retry policy. Transient
// failures are retried with exponential backoff and jitter; fatal
// failures and rate-limit exhaustion surface immediately; no retry is
// ever scheduled past the caller's deadline.
package governor

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"tokenwatch/internal/observability"
)

// Default retry policy values.
const (
	DefaultMaxRetries  = 3
	DefaultBackoffBase = 500 * time.Millisecond
	DefaultBackoffMax  = 10 * time.Second
)

// ProviderLimit configures one provider's token bucket.
type ProviderLimit struct {
	RPS   float64 // bucket refill rate, requests per second
	Burst int     // bucket capacity

	// WaitTimeout bounds how long a call blocks on an empty bucket
	// before failing with ErrRateLimited.
	WaitTimeout time.Duration
}

type providerState struct {
	limiter     *rate.Limiter
	waitTimeout time.Duration
}

// Governor wraps provider calls with rate limiting and retries.
type Governor struct {
	mu        sync.RWMutex
	providers map[string]*providerState

	maxRetries  int
	backoffBase time.Duration
	backoffMax  time.Duration

	rng   *rand.Rand
	rngMu sync.Mutex
}

// Option configures a Governor.
type Option func(*Governor)

// WithMaxRetries sets the retry budget for transient failures.
func WithMaxRetries(n int) Option {
	return func(g *Governor) { g.maxRetries = n }
}

// WithBackoff sets the exponential backoff base and cap.
func WithBackoff(base, max time.Duration) Option {
	return func(g *Governor) {
		g.backoffBase = base
		g.backoffMax = max
	}
}

// New creates a Governor for the given provider limits.
func New(limits map[string]ProviderLimit, opts ...Option) *Governor {
	g := &Governor{
		providers:   make(map[string]*providerState, len(limits)),
		maxRetries:  DefaultMaxRetries,
		backoffBase: DefaultBackoffBase,
		backoffMax:  DefaultBackoffMax,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for id, lim := range limits {
		waitTimeout := lim.WaitTimeout
		if waitTimeout == 0 {
			waitTimeout = 5 * time.Second
		}
		burst := lim.Burst
		if burst < 1 {
			burst = 1
		}
		g.providers[id] = &providerState{
			limiter:     rate.NewLimiter(rate.Limit(lim.RPS), burst),
			waitTimeout: waitTimeout,
		}
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Execute runs call under providerID's bucket and the shared retry
// policy. The call receives a context it must honor; Execute never
// retries past ctx's deadline.
func (g *Governor) Execute(ctx context.Context, providerID string, call func(ctx context.Context) error) error {
	g.mu.RLock()
	state, ok := g.providers[providerID]
	g.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, providerID)
	}

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			delay := g.backoffDelay(attempt - 1)
			if !g.sleepWithinDeadline(ctx, delay) {
				observability.RecordGovernorOutcome(providerID, "deadline")
				return fmt.Errorf("%w: retry %d for %s skipped: %v", ErrDeadlineExceeded, attempt, providerID, lastErr)
			}
			observability.RecordGovernorRetry(providerID)
		}

		if err := g.acquire(ctx, state); err != nil {
			observability.RecordGovernorOutcome(providerID, "rate_limited")
			return err
		}

		err := call(ctx)
		if err == nil {
			observability.RecordGovernorOutcome(providerID, "ok")
			return nil
		}
		if ctx.Err() != nil {
			observability.RecordGovernorOutcome(providerID, "deadline")
			return fmt.Errorf("%w: %v", ErrDeadlineExceeded, err)
		}
		if !IsTransient(err) {
			observability.RecordGovernorOutcome(providerID, "fatal")
			return fmt.Errorf("%w: %v", ErrFatal, err)
		}
		lastErr = err
	}

	observability.RecordGovernorOutcome(providerID, "exhausted")
	return fmt.Errorf("retries exhausted for %s: %w", providerID, lastErr)
}

// acquire takes one token from the bucket, blocking up to the
// provider's wait timeout or the caller's deadline, whichever is
// sooner.
func (g *Governor) acquire(ctx context.Context, state *providerState) error {
	waitCtx, cancel := context.WithTimeout(ctx, state.waitTimeout)
	defer cancel()

	if err := state.limiter.Wait(waitCtx); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrDeadlineExceeded, ctx.Err())
		}
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	}
	return nil
}

// backoffDelay computes base*2^attempt plus jitter bounded by the base
// delay, capped at the configured maximum.
func (g *Governor) backoffDelay(attempt int) time.Duration {
	delay := g.backoffBase << uint(attempt)
	if delay > g.backoffMax || delay <= 0 {
		delay = g.backoffMax
	}

	g.rngMu.Lock()
	jitter := time.Duration(g.rng.Int63n(int64(g.backoffBase) + 1))
	g.rngMu.Unlock()

	if delay+jitter > g.backoffMax {
		return g.backoffMax
	}
	return delay + jitter
}

// sleepWithinDeadline sleeps for delay unless the context would expire
// first. Returns false when the sleep was not completed.
func (g *Governor) sleepWithinDeadline(ctx context.Context, delay time.Duration) bool {
	if deadline, ok := ctx.Deadline(); ok {
		if time.Now().Add(delay).After(deadline) {
			return false
		}
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(delay):
		return true
	}
}
