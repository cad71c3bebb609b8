package memory

import (
	"context"
	"sort"
	"sync"

	"tokenwatch/internal/domain"
	"tokenwatch/internal/storage"
)

// TokenStore is an in-memory implementation of storage.TokenStore.
type TokenStore struct {
	mu     sync.RWMutex
	tokens map[string]*domain.Token // keyed by address
}

// NewTokenStore creates a new in-memory token store.
func NewTokenStore() *TokenStore {
	return &TokenStore{tokens: make(map[string]*domain.Token)}
}

var _ storage.TokenStore = (*TokenStore)(nil)

// Upsert inserts or refreshes a token. Returns ErrStaleWrite when the
// stored row carries a newer UpdatedAt.
func (s *TokenStore) Upsert(_ context.Context, t *domain.Token) error {
	if t == nil || t.Address == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.tokens[t.Address]; ok {
		if existing.UpdatedAt > t.UpdatedAt {
			return storage.ErrStaleWrite
		}
		tokenCopy := *t
		tokenCopy.CreatedAt = existing.CreatedAt
		s.tokens[t.Address] = &tokenCopy
		return nil
	}

	tokenCopy := *t
	s.tokens[t.Address] = &tokenCopy
	return nil
}

// GetByAddress retrieves a token. Returns ErrNotFound if not exists.
func (s *TokenStore) GetByAddress(_ context.Context, address string) (*domain.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tokens[address]
	if !ok {
		return nil, storage.ErrNotFound
	}

	tokenCopy := *t
	return &tokenCopy, nil
}

// ListAddresses returns all known token addresses, sorted for
// deterministic iteration.
func (s *TokenStore) ListAddresses(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	addrs := make([]string, 0, len(s.tokens))
	for addr := range s.tokens {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)
	return addrs, nil
}
