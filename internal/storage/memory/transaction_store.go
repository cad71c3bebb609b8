package memory

import (
	"context"
	"sort"
	"sync"

	"tokenwatch/internal/domain"
	"tokenwatch/internal/storage"
)

// TransactionStore is an in-memory implementation of
// storage.TransactionStore. Transactions are immutable once recorded.
type TransactionStore struct {
	mu       sync.RWMutex
	byHash   map[string]*domain.TransactionRecord
	byToken  map[string][]*domain.TransactionRecord
	byWallet map[string][]*domain.TransactionRecord
}

// NewTransactionStore creates a new in-memory transaction store.
func NewTransactionStore() *TransactionStore {
	return &TransactionStore{
		byHash:   make(map[string]*domain.TransactionRecord),
		byToken:  make(map[string][]*domain.TransactionRecord),
		byWallet: make(map[string][]*domain.TransactionRecord),
	}
}

var _ storage.TransactionStore = (*TransactionStore)(nil)

// InsertBulk appends transactions, silently skipping hashes already
// recorded. Providers routinely re-report recent history, so duplicates
// are expected rather than errors.
func (s *TransactionStore) InsertBulk(_ context.Context, txs []*domain.TransactionRecord) error {
	for _, tx := range txs {
		if tx == nil || tx.TxHash == "" || tx.TokenAddress == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tx := range txs {
		if _, ok := s.byHash[tx.TxHash]; ok {
			continue
		}
		txCopy := *tx
		s.byHash[tx.TxHash] = &txCopy
		s.byToken[tx.TokenAddress] = append(s.byToken[tx.TokenAddress], &txCopy)
		if tx.FromAddress != "" {
			s.byWallet[tx.FromAddress] = append(s.byWallet[tx.FromAddress], &txCopy)
		}
		if tx.ToAddress != "" && tx.ToAddress != tx.FromAddress {
			s.byWallet[tx.ToAddress] = append(s.byWallet[tx.ToAddress], &txCopy)
		}
	}
	return nil
}

// GetByToken retrieves transactions for a token, ordered by timestamp ASC.
func (s *TransactionStore) GetByToken(_ context.Context, address string) ([]*domain.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedCopies(s.byToken[address]), nil
}

// GetByWallet retrieves transactions touching a wallet, ordered by
// timestamp ASC.
func (s *TransactionStore) GetByWallet(_ context.Context, wallet string) ([]*domain.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedCopies(s.byWallet[wallet]), nil
}

func sortedCopies(txs []*domain.TransactionRecord) []*domain.TransactionRecord {
	out := make([]*domain.TransactionRecord, 0, len(txs))
	for _, tx := range txs {
		txCopy := *tx
		out = append(out, &txCopy)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return out[i].TxHash < out[j].TxHash
	})
	return out
}
