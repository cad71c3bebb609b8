package memory

import (
	"context"
	"sort"
	"sync"

	"tokenwatch/internal/domain"
	"tokenwatch/internal/storage"
)

// HolderSnapshotStore is an in-memory implementation of
// storage.HolderSnapshotStore.
type HolderSnapshotStore struct {
	mu      sync.RWMutex
	byToken map[string]map[string]*domain.HolderSnapshot // address -> wallet -> snapshot
}

// NewHolderSnapshotStore creates a new in-memory holder store.
func NewHolderSnapshotStore() *HolderSnapshotStore {
	return &HolderSnapshotStore{
		byToken: make(map[string]map[string]*domain.HolderSnapshot),
	}
}

var _ storage.HolderSnapshotStore = (*HolderSnapshotStore)(nil)

// ReplaceForToken replaces the holder set for a token. FirstSeen is
// preserved for wallets that were already present.
func (s *HolderSnapshotStore) ReplaceForToken(_ context.Context, address string, holders []*domain.HolderSnapshot) error {
	if address == "" {
		return storage.ErrInvalidInput
	}
	for _, h := range holders {
		if h == nil || h.WalletAddress == "" || h.Balance < 0 {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.byToken[address]
	next := make(map[string]*domain.HolderSnapshot, len(holders))
	for _, h := range holders {
		holderCopy := *h
		holderCopy.TokenAddress = address
		if prev, ok := existing[h.WalletAddress]; ok && prev.FirstSeen > 0 {
			holderCopy.FirstSeen = prev.FirstSeen
		}
		next[h.WalletAddress] = &holderCopy
	}
	s.byToken[address] = next
	return nil
}

// GetByToken retrieves all holder snapshots for a token, ordered by
// balance DESC (wallet ASC on ties, for determinism).
func (s *HolderSnapshotStore) GetByToken(_ context.Context, address string) ([]*domain.HolderSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	holders := s.byToken[address]
	out := make([]*domain.HolderSnapshot, 0, len(holders))
	for _, h := range holders {
		holderCopy := *h
		out = append(out, &holderCopy)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Balance != out[j].Balance {
			return out[i].Balance > out[j].Balance
		}
		return out[i].WalletAddress < out[j].WalletAddress
	})
	return out, nil
}
