package cache

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"tokenwatch/internal/domain"
	"tokenwatch/internal/logging"
	"tokenwatch/internal/observability"
)

// Loader rebuilds a snapshot from the underlying stores when the cache
// cannot serve it.
type Loader func(ctx context.Context, address string) (*domain.ScoredSnapshot, error)

// Config sets the cache freshness policy.
type Config struct {
	// FreshnessWindow is how long an entry is served without question.
	FreshnessWindow time.Duration

	// HardExpiryMultiplier scales the freshness window to the point
	// where an entry may no longer be served at all.
	HardExpiryMultiplier int

	// Shards is the number of lock shards. Defaults to 16.
	Shards int
}

// Cache is a sharded snapshot cache with a two-tier TTL. Entries
// within the freshness window are served directly. Stale entries (past
// freshness, before hard expiry) are served immediately while one
// background refresh runs; a failed refresh keeps the stale value.
// Hard-expired entries block on a refresh and are evicted when it
// fails.
type Cache struct {
	shards     []*shard
	loader     Loader
	freshFor   time.Duration
	hardExpiry time.Duration
	group      singleflight.Group
	log        zerolog.Logger

	// now is swappable for tests.
	now func() time.Time
}

type entry struct {
	value    *domain.ScoredSnapshot
	storedAt time.Time
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// New creates a cache backed by the given loader.
func New(loader Loader, cfg Config) *Cache {
	shardCount := cfg.Shards
	if shardCount <= 0 {
		shardCount = 16
	}
	multiplier := cfg.HardExpiryMultiplier
	if multiplier <= 1 {
		multiplier = 2
	}

	shards := make([]*shard, shardCount)
	for i := range shards {
		shards[i] = &shard{entries: make(map[string]entry)}
	}

	return &Cache{
		shards:     shards,
		loader:     loader,
		freshFor:   cfg.FreshnessWindow,
		hardExpiry: cfg.FreshnessWindow * time.Duration(multiplier),
		log:        logging.WithComponent("cache"),
		now:        time.Now,
	}
}

func (c *Cache) shardFor(address string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(address))
	return c.shards[h.Sum32()%uint32(len(c.shards))]
}

// Put stores a freshly reconciled snapshot.
func (c *Cache) Put(address string, snap *domain.ScoredSnapshot) {
	s := c.shardFor(address)
	s.mu.Lock()
	s.entries[address] = entry{value: snap, storedAt: c.now()}
	s.mu.Unlock()

	observability.SetCacheEntries(c.Len())
}

// Evict drops an entry.
func (c *Cache) Evict(address string) {
	s := c.shardFor(address)
	s.mu.Lock()
	delete(s.entries, address)
	s.mu.Unlock()

	observability.SetCacheEntries(c.Len())
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	total := 0
	for _, s := range c.shards {
		s.mu.RLock()
		total += len(s.entries)
		s.mu.RUnlock()
	}
	return total
}

// Get serves a snapshot according to the freshness policy. The second
// return reports whether the value is stale: served from an entry past
// its freshness window while the background refresh runs.
func (c *Cache) Get(ctx context.Context, address string) (*domain.ScoredSnapshot, bool, error) {
	s := c.shardFor(address)
	s.mu.RLock()
	e, ok := s.entries[address]
	s.mu.RUnlock()

	if !ok {
		observability.RecordCacheRead("miss")
		snap, err := c.refresh(ctx, address)
		return snap, false, err
	}

	age := c.now().Sub(e.storedAt)
	switch {
	case age <= c.freshFor:
		observability.RecordCacheRead("hit_fresh")
		return e.value, false, nil

	case age <= c.hardExpiry:
		observability.RecordCacheRead("hit_stale")
		c.refreshAsync(address)
		return e.value, true, nil

	default:
		observability.RecordCacheRead("expired")
		snap, err := c.refresh(ctx, address)
		if err != nil {
			c.Evict(address)
			return nil, false, fmt.Errorf("refresh hard-expired entry %s: %w", address, err)
		}
		return snap, false, nil
	}
}

// refresh loads synchronously, collapsed across concurrent callers.
func (c *Cache) refresh(ctx context.Context, address string) (*domain.ScoredSnapshot, error) {
	v, err, _ := c.group.Do(address, func() (any, error) {
		snap, err := c.loader(ctx, address)
		if err != nil {
			observability.RecordCacheRefresh("blocking", "error")
			return nil, err
		}
		c.Put(address, snap)
		observability.RecordCacheRefresh("blocking", "ok")
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.ScoredSnapshot), nil
}

// refreshAsync starts one background refresh for a stale entry. The
// stale value keeps being served; a failure here only logs.
func (c *Cache) refreshAsync(address string) {
	go func() {
		_, err, shared := c.group.Do(address, func() (any, error) {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			snap, err := c.loader(ctx, address)
			if err != nil {
				observability.RecordCacheRefresh("background", "error")
				return nil, err
			}
			c.Put(address, snap)
			observability.RecordCacheRefresh("background", "ok")
			return snap, nil
		})
		if err != nil && !shared {
			c.log.Warn().
				Err(err).
				Str("token", address).
				Msg("background refresh failed, serving stale")
		}
	}()
}
