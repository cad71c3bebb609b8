package memory

import (
	"context"
	"sort"
	"sync"

	"tokenwatch/internal/domain"
	"tokenwatch/internal/storage"
)

type sourceKey struct {
	address string
	source  string
}

// PriceSampleStore is an in-memory implementation of
// storage.PriceSampleStore. It enforces strictly increasing timestamps
// per (token, source) stream.
type PriceSampleStore struct {
	mu      sync.RWMutex
	byToken map[string][]*domain.PriceSample
	lastTS  map[sourceKey]int64
}

// NewPriceSampleStore creates a new in-memory price sample store.
func NewPriceSampleStore() *PriceSampleStore {
	return &PriceSampleStore{
		byToken: make(map[string][]*domain.PriceSample),
		lastTS:  make(map[sourceKey]int64),
	}
}

var _ storage.PriceSampleStore = (*PriceSampleStore)(nil)

// InsertBulk appends samples. The whole batch is validated against the
// per-(token, source) ordering invariant before anything is stored, so
// a failed batch leaves the store unchanged.
func (s *PriceSampleStore) InsertBulk(_ context.Context, samples []*domain.PriceSample) error {
	if len(samples) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate first; lastTS within the batch advances too.
	pending := make(map[sourceKey]int64, len(samples))
	for _, sample := range samples {
		if sample == nil || sample.TokenAddress == "" || sample.Source == "" {
			return storage.ErrInvalidInput
		}
		key := sourceKey{sample.TokenAddress, sample.Source}
		last, ok := pending[key]
		if !ok {
			last = s.lastTS[key]
		}
		if sample.Timestamp <= last {
			return storage.ErrOutOfOrder
		}
		pending[key] = sample.Timestamp
	}

	for _, sample := range samples {
		sampleCopy := *sample
		s.byToken[sample.TokenAddress] = append(s.byToken[sample.TokenAddress], &sampleCopy)
	}
	for key, ts := range pending {
		s.lastTS[key] = ts
	}
	return nil
}

// GetByTimeRange retrieves samples within [start, end], ordered by
// timestamp ASC.
func (s *PriceSampleStore) GetByTimeRange(_ context.Context, address string, start, end int64) ([]*domain.PriceSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.PriceSample
	for _, sample := range s.byToken[address] {
		if sample.Timestamp >= start && sample.Timestamp <= end {
			sampleCopy := *sample
			out = append(out, &sampleCopy)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out, nil
}

// GetLatest retrieves the newest sample across sources.
func (s *PriceSampleStore) GetLatest(_ context.Context, address string) (*domain.PriceSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	samples := s.byToken[address]
	if len(samples) == 0 {
		return nil, storage.ErrNotFound
	}

	latest := samples[0]
	for _, sample := range samples[1:] {
		if sample.Timestamp > latest.Timestamp {
			latest = sample
		}
	}
	latestCopy := *latest
	return &latestCopy, nil
}
