package memory

import (
	"context"
	"sync"

	"tokenwatch/internal/domain"
	"tokenwatch/internal/storage"
)

// WalletAnalysisStore is an in-memory implementation of
// storage.WalletAnalysisStore.
type WalletAnalysisStore struct {
	mu      sync.RWMutex
	wallets map[string]*domain.WalletAnalysis
}

// NewWalletAnalysisStore creates a new in-memory wallet analysis store.
func NewWalletAnalysisStore() *WalletAnalysisStore {
	return &WalletAnalysisStore{wallets: make(map[string]*domain.WalletAnalysis)}
}

var _ storage.WalletAnalysisStore = (*WalletAnalysisStore)(nil)

// Upsert inserts or replaces the analysis for a wallet.
func (s *WalletAnalysisStore) Upsert(_ context.Context, a *domain.WalletAnalysis) error {
	if a == nil || a.WalletAddress == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	analysisCopy := *a
	s.wallets[a.WalletAddress] = &analysisCopy
	return nil
}

// GetByWallet retrieves the analysis. Returns ErrNotFound if not exists.
func (s *WalletAnalysisStore) GetByWallet(_ context.Context, wallet string) (*domain.WalletAnalysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.wallets[wallet]
	if !ok {
		return nil, storage.ErrNotFound
	}
	analysisCopy := *a
	return &analysisCopy, nil
}
