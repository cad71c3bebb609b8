package memory

import (
	"context"
	"sort"
	"sync"

	"tokenwatch/internal/domain"
	"tokenwatch/internal/storage"
)

// ScoreStore is an in-memory implementation of storage.ScoreStore.
type ScoreStore struct {
	mu      sync.RWMutex
	byToken map[string][]*domain.Scores
}

// NewScoreStore creates a new in-memory score store.
func NewScoreStore() *ScoreStore {
	return &ScoreStore{byToken: make(map[string][]*domain.Scores)}
}

var _ storage.ScoreStore = (*ScoreStore)(nil)

// Insert appends one score row.
func (s *ScoreStore) Insert(_ context.Context, row *domain.Scores) error {
	if row == nil || row.TokenAddress == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rowCopy := *row
	s.byToken[row.TokenAddress] = append(s.byToken[row.TokenAddress], &rowCopy)
	return nil
}

// GetByTimeRange retrieves scores within [start, end], ordered by
// ComputedAt ASC.
func (s *ScoreStore) GetByTimeRange(_ context.Context, address string, start, end int64) ([]*domain.Scores, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Scores
	for _, row := range s.byToken[address] {
		if row.ComputedAt >= start && row.ComputedAt <= end {
			rowCopy := *row
			out = append(out, &rowCopy)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ComputedAt < out[j].ComputedAt })
	return out, nil
}
