package memory

import (
	"context"
	"sync"

	"tokenwatch/internal/storage"
)

// Gateway commits a canonical bundle against the in-memory stores.
// Commits are serialized and fully validated before the first write, so
// a failed commit leaves every store unchanged.
type Gateway struct {
	mu sync.Mutex

	tokens       *TokenStore
	samples      *PriceSampleStore
	holders      *HolderSnapshotStore
	transactions *TransactionStore
}

// NewGateway creates a gateway over the given in-memory stores.
func NewGateway(tokens *TokenStore, samples *PriceSampleStore, holders *HolderSnapshotStore, transactions *TransactionStore) *Gateway {
	return &Gateway{
		tokens:       tokens,
		samples:      samples,
		holders:      holders,
		transactions: transactions,
	}
}

var _ storage.Gateway = (*Gateway)(nil)

// CommitCanonical applies a reconcile cycle's output. The token upsert
// and all derived rows land together or not at all.
func (g *Gateway) CommitCanonical(ctx context.Context, c *storage.Canonical) error {
	if c == nil || c.Token == nil || c.Token.Address == "" {
		return storage.ErrInvalidInput
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	existing, err := g.tokens.GetByAddress(ctx, c.Token.Address)
	if err == nil && existing.UpdatedAt > c.Token.UpdatedAt {
		return storage.ErrStaleWrite
	}
	for _, h := range c.Holders {
		if h == nil || h.WalletAddress == "" || h.Balance < 0 {
			return storage.ErrInvalidInput
		}
	}
	for _, tx := range c.Transactions {
		if tx == nil || tx.TxHash == "" || tx.TokenAddress == "" {
			return storage.ErrInvalidInput
		}
	}

	// InsertBulk validates the whole batch before writing, so it is the
	// last call that can fail.
	if err := g.samples.InsertBulk(ctx, c.Samples); err != nil {
		return err
	}
	if err := g.tokens.Upsert(ctx, c.Token); err != nil {
		return err
	}
	if err := g.holders.ReplaceForToken(ctx, c.Token.Address, c.Holders); err != nil {
		return err
	}
	return g.transactions.InsertBulk(ctx, c.Transactions)
}
