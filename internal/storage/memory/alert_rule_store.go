package memory

import (
	"context"
	"sort"
	"sync"

	"tokenwatch/internal/domain"
	"tokenwatch/internal/storage"
)

// AlertRuleStore is an in-memory implementation of storage.AlertRuleStore.
type AlertRuleStore struct {
	mu    sync.RWMutex
	rules map[string]*domain.AlertRule // keyed by rule ID
}

// NewAlertRuleStore creates a new in-memory alert rule store.
func NewAlertRuleStore() *AlertRuleStore {
	return &AlertRuleStore{rules: make(map[string]*domain.AlertRule)}
}

var _ storage.AlertRuleStore = (*AlertRuleStore)(nil)

// Upsert inserts or replaces a rule keyed by ID.
func (s *AlertRuleStore) Upsert(_ context.Context, r *domain.AlertRule) error {
	if r == nil || r.ID == "" || r.TokenAddress == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ruleCopy := *r
	s.rules[r.ID] = &ruleCopy
	return nil
}

// Delete removes a rule. Returns ErrNotFound if not exists.
func (s *AlertRuleStore) Delete(_ context.Context, ruleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[ruleID]; !ok {
		return storage.ErrNotFound
	}
	delete(s.rules, ruleID)
	return nil
}

// ListActiveForToken retrieves active rules watching a token, ordered
// by rule ID for deterministic evaluation.
func (s *AlertRuleStore) ListActiveForToken(_ context.Context, address string) ([]*domain.AlertRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.AlertRule
	for _, r := range s.rules {
		if r.TokenAddress != address || !r.IsActive {
			continue
		}
		ruleCopy := *r
		out = append(out, &ruleCopy)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// RecordTrigger updates a rule's LastTriggered timestamp.
func (s *AlertRuleStore) RecordTrigger(_ context.Context, ruleID string, triggeredAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rules[ruleID]
	if !ok {
		return storage.ErrNotFound
	}
	r.LastTriggered = triggeredAt
	return nil
}
