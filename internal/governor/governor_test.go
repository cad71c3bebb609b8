package governor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGovernor(limit ProviderLimit) *Governor {
	return New(
		map[string]ProviderLimit{"helius": limit},
		WithMaxRetries(3),
		WithBackoff(5*time.Millisecond, 50*time.Millisecond),
	)
}

func TestExecute_Success(t *testing.T) {
	g := newTestGovernor(ProviderLimit{RPS: 100, Burst: 10})

	calls := 0
	err := g.Execute(context.Background(), "helius", func(ctx context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestExecute_UnknownProvider(t *testing.T) {
	g := newTestGovernor(ProviderLimit{RPS: 100, Burst: 10})

	err := g.Execute(context.Background(), "nosuch", func(ctx context.Context) error {
		return nil
	})

	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestExecute_RetriesTransientThenSucceeds(t *testing.T) {
	g := newTestGovernor(ProviderLimit{RPS: 1000, Burst: 10})

	calls := 0
	err := g.Execute(context.Background(), "helius", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return Transient(errors.New("connection reset"))
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestExecute_ExhaustsRetries(t *testing.T) {
	g := newTestGovernor(ProviderLimit{RPS: 1000, Burst: 10})

	calls := 0
	err := g.Execute(context.Background(), "helius", func(ctx context.Context) error {
		calls++
		return Transient(errors.New("upstream 503"))
	})

	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Equal(t, 4, calls, "initial attempt plus 3 retries")
}

func TestExecute_FatalNotRetried(t *testing.T) {
	g := newTestGovernor(ProviderLimit{RPS: 1000, Burst: 10})

	calls := 0
	err := g.Execute(context.Background(), "helius", func(ctx context.Context) error {
		calls++
		return errors.New("401 unauthorized")
	})

	assert.ErrorIs(t, err, ErrFatal)
	assert.Equal(t, 1, calls)
}

func TestExecute_NeverRetriesPastDeadline(t *testing.T) {
	g := New(
		map[string]ProviderLimit{"helius": {RPS: 1000, Burst: 10}},
		WithMaxRetries(3),
		// Backoff far longer than the deadline, so the first retry
		// cannot be scheduled.
		WithBackoff(time.Second, 5*time.Second),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	calls := 0
	err := g.Execute(ctx, "helius", func(ctx context.Context) error {
		calls++
		return Transient(errors.New("timeout"))
	})

	assert.ErrorIs(t, err, ErrDeadlineExceeded)
	assert.Equal(t, 1, calls, "retry past deadline must be skipped")
}

func TestExecute_BucketCapacityTwo(t *testing.T) {
	// Capacity 2 bucket with a negligible refill rate and a short wait
	// timeout: of 3 concurrent calls, exactly 2 proceed and 1 fails
	// with ErrRateLimited.
	g := New(
		map[string]ProviderLimit{"helius": {
			RPS:         0.001,
			Burst:       2,
			WaitTimeout: 20 * time.Millisecond,
		}},
		WithMaxRetries(0),
	)

	var proceeded atomic.Int32
	var limited atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := g.Execute(context.Background(), "helius", func(ctx context.Context) error {
				return nil
			})
			switch {
			case err == nil:
				proceeded.Add(1)
			case errors.Is(err, ErrRateLimited):
				limited.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(2), proceeded.Load())
	assert.Equal(t, int32(1), limited.Load())
}

func TestBackoffDelay_CappedAtMax(t *testing.T) {
	g := New(
		map[string]ProviderLimit{"helius": {RPS: 1, Burst: 1}},
		WithBackoff(10*time.Millisecond, 40*time.Millisecond),
	)

	for attempt := 0; attempt < 12; attempt++ {
		d := g.backoffDelay(attempt)
		assert.LessOrEqual(t, d, 40*time.Millisecond)
		assert.GreaterOrEqual(t, d, 10*time.Millisecond)
	}
}

func TestTransientClassification(t *testing.T) {
	base := errors.New("boom")
	assert.False(t, IsTransient(base))
	assert.True(t, IsTransient(Transient(base)))
	assert.ErrorIs(t, Transient(base), base)
	assert.Nil(t, Transient(nil))
}
