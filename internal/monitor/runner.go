// Package monitor drives the poll loop: every tracked token is
// periodically reconciled, persisted, scored, cached and run through
// the alert rules.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tokenwatch/internal/addr"
	"tokenwatch/internal/cache"
	"tokenwatch/internal/domain"
	"tokenwatch/internal/logging"
	"tokenwatch/internal/observability"
	"tokenwatch/internal/provider"
	"tokenwatch/internal/scoring"
	"tokenwatch/internal/storage"
)

// Reconciler produces one canonical bundle per token.
type Reconciler interface {
	Reconcile(ctx context.Context, address string) (*storage.Canonical, error)
}

// WinRater reports a deployer wallet's historical token win rate,
// negative when unknown.
type WinRater interface {
	WinRate(ctx context.Context, wallet string) float64
}

// SnapshotEvaluator runs alert rules against a scored snapshot.
type SnapshotEvaluator interface {
	Evaluate(ctx context.Context, snap *domain.ScoredSnapshot) error
}

// Config holds the poll loop schedule.
type Config struct {
	PollInterval time.Duration
	Workers      int
	Seeds        []string
}

// Deps wires the runner to the rest of the pipeline. History is the
// full price timeseries store; nil disables the history append (the
// gateway still commits the latest samples).
type Deps struct {
	Reconciler Reconciler
	Gateway    storage.Gateway
	History    storage.PriceSampleStore
	Scores     storage.ScoreStore
	Analyzer   WinRater
	Evaluator  SnapshotEvaluator

	Weights        scoring.Weights
	TotalProviders int
	CacheConfig    cache.Config

	// Feed delivers newly launched tokens to the tracked set.
	Feed <-chan provider.LaunchEvent
}

// Runner owns the tracked-token set and the per-cycle worker pool. A
// token's cycle either commits its full canonical snapshot or leaves
// the stores untouched; failed cycles retry on the next tick.
type Runner struct {
	cfg  Config
	deps Deps
	log  zerolog.Logger

	cache *cache.Cache

	mu      sync.RWMutex
	tracked map[string]struct{}

	now func() time.Time
}

// NewRunner creates a runner. Invalid seed addresses are skipped with
// a warning.
func NewRunner(cfg Config, deps Deps) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}

	r := &Runner{
		cfg:     cfg,
		deps:    deps,
		log:     logging.WithComponent("monitor"),
		tracked: make(map[string]struct{}),
		now:     time.Now,
	}
	r.cache = cache.New(r.process, deps.CacheConfig)

	for _, seed := range cfg.Seeds {
		if err := r.Track(seed); err != nil {
			r.log.Warn().Err(err).Str("token", seed).Msg("skipping invalid seed")
		}
	}
	return r
}

// Track adds a token to the tracked set.
func (r *Runner) Track(address string) error {
	if err := addr.Validate(address); err != nil {
		return fmt.Errorf("track %s: %w", address, err)
	}

	r.mu.Lock()
	r.tracked[address] = struct{}{}
	count := len(r.tracked)
	r.mu.Unlock()

	observability.DefaultMetrics.TrackedTokens.Set(float64(count))
	return nil
}

// Untrack removes a token from the tracked set and drops its cache
// entry.
func (r *Runner) Untrack(address string) {
	r.mu.Lock()
	delete(r.tracked, address)
	count := len(r.tracked)
	r.mu.Unlock()

	r.cache.Evict(address)
	observability.DefaultMetrics.TrackedTokens.Set(float64(count))
}

// Tracked returns the tracked addresses, sorted.
func (r *Runner) Tracked() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.tracked))
	for address := range r.tracked {
		out = append(out, address)
	}
	r.mu.RUnlock()

	sort.Strings(out)
	return out
}

// Snapshot serves a token's scored snapshot through the cache. The
// second return reports whether the snapshot is stale, served while a
// background refresh runs.
func (r *Runner) Snapshot(ctx context.Context, address string) (*domain.ScoredSnapshot, bool, error) {
	return r.cache.Get(ctx, address)
}

// Run drives poll cycles until ctx is cancelled. Launch feed events
// are folded into the tracked set between cycles.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-r.deps.Feed:
			if !ok {
				r.deps.Feed = nil
				continue
			}
			if err := r.Track(ev.Address); err != nil {
				r.log.Warn().Err(err).Str("token", ev.Address).Msg("launch feed event rejected")
				continue
			}
			r.log.Info().Str("token", ev.Address).Int64("slot", ev.Slot).Msg("tracking launched token")

		case <-ticker.C:
			r.RunCycle(ctx)
		}
	}
}

// RunCycle polls every tracked token once through the worker pool.
func (r *Runner) RunCycle(ctx context.Context) {
	tokens := r.Tracked()
	if len(tokens) == 0 {
		return
	}

	cycleID := uuid.NewString()
	start := r.now()
	log := r.log.With().Str("cycle_id", cycleID).Logger()

	jobs := make(chan string)
	var failed sync.Map
	var wg sync.WaitGroup

	for i := 0; i < r.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for address := range jobs {
				snap, err := r.process(ctx, address)
				if err != nil {
					failed.Store(address, err)
					log.Warn().Err(err).Str("token", address).Msg("cycle failed for token")
					continue
				}
				r.cache.Put(address, snap)
			}
		}()
	}

	for _, address := range tokens {
		select {
		case jobs <- address:
		case <-ctx.Done():
		}
	}
	close(jobs)
	wg.Wait()

	failures := 0
	failed.Range(func(_, _ any) bool { failures++; return true })

	status := "ok"
	if failures == len(tokens) {
		status = "failed"
	} else if failures > 0 {
		status = "degraded"
	}
	elapsed := r.now().Sub(start)
	observability.RecordCycle(status, elapsed.Seconds())

	log.Info().
		Int("tokens", len(tokens)).
		Int("failures", failures).
		Dur("elapsed", elapsed).
		Str("status", status).
		Msg("poll cycle finished")
}

// process runs the full pipeline for one token: reconcile, commit,
// append history, score, evaluate alerts. It doubles as the cache
// loader for on-demand refreshes.
func (r *Runner) process(ctx context.Context, address string) (*domain.ScoredSnapshot, error) {
	c, err := r.deps.Reconciler.Reconcile(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("reconcile %s: %w", address, err)
	}

	SortSamples(c.Samples)
	if err := ValidateSampleOrder(c.Samples); err != nil {
		return nil, fmt.Errorf("sample batch for %s: %w", address, err)
	}

	if err := r.deps.Gateway.CommitCanonical(ctx, c); err != nil {
		switch {
		case errors.Is(err, storage.ErrStaleWrite), errors.Is(err, storage.ErrOutOfOrder):
			// A newer snapshot already landed; serve this one without
			// persisting it.
			r.log.Debug().Err(err).Str("token", address).Msg("commit superseded")
		default:
			return nil, fmt.Errorf("commit %s: %w", address, err)
		}
	} else if r.deps.History != nil && len(c.Samples) > 0 {
		if err := r.deps.History.InsertBulk(ctx, c.Samples); err != nil {
			if !errors.Is(err, storage.ErrOutOfOrder) {
				return nil, fmt.Errorf("append history for %s: %w", address, err)
			}
			r.log.Debug().Err(err).Str("token", address).Msg("history append superseded")
		}
	}

	now := r.now().UnixMilli()
	scores := scoring.Score(scoring.Input{
		Token:           c.Token,
		Holders:         c.Holders,
		DeployerWinRate: r.deployerWinRate(ctx, c.Token),
		TotalProviders:  r.deps.TotalProviders,
	}, r.deps.Weights, now)

	if err := r.deps.Scores.Insert(ctx, &scores); err != nil {
		return nil, fmt.Errorf("store scores for %s: %w", address, err)
	}

	snap := &domain.ScoredSnapshot{
		Token:       c.Token,
		Scores:      scores,
		LatestPrice: latestSample(c.Samples),
	}

	if r.deps.Evaluator != nil {
		if err := r.deps.Evaluator.Evaluate(ctx, snap); err != nil {
			r.log.Error().Err(err).Str("token", address).Msg("alert evaluation failed")
		}
	}
	return snap, nil
}

// deployerWinRate resolves the deployer wallet from the provider
// metadata and looks up its track record. Unknown deployers map to a
// negative rate, which scores as neutral.
func (r *Runner) deployerWinRate(ctx context.Context, token *domain.Token) float64 {
	if r.deps.Analyzer == nil {
		return -1
	}
	for _, p := range token.Providers {
		ns, ok := token.Metadata[p]
		if !ok {
			continue
		}
		if creator, ok := ns["creator"].(string); ok && creator != "" {
			return r.deps.Analyzer.WinRate(ctx, creator)
		}
	}
	return -1
}

func latestSample(samples []*domain.PriceSample) *domain.PriceSample {
	var latest *domain.PriceSample
	for _, s := range samples {
		if latest == nil || s.Timestamp > latest.Timestamp {
			latest = s
		}
	}
	return latest
}
