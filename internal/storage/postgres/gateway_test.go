package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokenwatch/internal/domain"
	"tokenwatch/internal/storage"
)

func canonicalFixture(updatedAt int64) *storage.Canonical {
	return &storage.Canonical{
		Token: &domain.Token{
			Address:   "tok",
			Symbol:    "TST",
			CreatedAt: 1000,
			UpdatedAt: updatedAt,
		},
		Samples: []*domain.PriceSample{
			{TokenAddress: "tok", Source: "birdeye", PriceUSD: 1.0, Timestamp: updatedAt},
		},
		Holders: []*domain.HolderSnapshot{
			{TokenAddress: "tok", WalletAddress: "w1", Balance: 100, Percentage: 60, FirstSeen: updatedAt, LastUpdated: updatedAt},
			{TokenAddress: "tok", WalletAddress: "w2", Balance: 50, Percentage: 30, FirstSeen: updatedAt, LastUpdated: updatedAt},
		},
		Transactions: []*domain.TransactionRecord{
			{TokenAddress: "tok", TxHash: "h1", FromAddress: "w1", ToAddress: "w2", Amount: 10, Timestamp: updatedAt},
		},
	}
}

func TestGateway_CommitCanonical(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	gw := NewGateway(pool)
	ctx := context.Background()

	require.NoError(t, gw.CommitCanonical(ctx, canonicalFixture(2000)))

	tok, err := NewTokenStore(pool).GetByAddress(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, "TST", tok.Symbol)

	holders, err := NewHolderSnapshotStore(pool).GetByToken(ctx, "tok")
	require.NoError(t, err)
	require.Len(t, holders, 2)
	assert.Equal(t, "w1", holders[0].WalletAddress)

	txs, err := NewTransactionStore(pool).GetByToken(ctx, "tok")
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestGateway_StaleCommitRollsBackEverything(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	gw := NewGateway(pool)
	ctx := context.Background()

	require.NoError(t, gw.CommitCanonical(ctx, canonicalFixture(2000)))

	stale := canonicalFixture(1500)
	stale.Transactions[0].TxHash = "h2"
	err := gw.CommitCanonical(ctx, stale)
	require.ErrorIs(t, err, storage.ErrStaleWrite)

	// The stale cycle's transaction must not have landed.
	txs, err := NewTransactionStore(pool).GetByToken(ctx, "tok")
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "h1", txs[0].TxHash)
}

func TestGateway_OutOfOrderSampleRollsBackToken(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	gw := NewGateway(pool)
	ctx := context.Background()

	require.NoError(t, gw.CommitCanonical(ctx, canonicalFixture(2000)))

	bad := canonicalFixture(3000)
	bad.Samples[0].Timestamp = 1500 // regresses the birdeye stream
	bad.Transactions[0].TxHash = "h3"
	err := gw.CommitCanonical(ctx, bad)
	require.ErrorIs(t, err, storage.ErrOutOfOrder)

	tok, err := NewTokenStore(pool).GetByAddress(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, int64(2000), tok.UpdatedAt)
}

func TestGateway_HolderReplacementPreservesFirstSeen(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	gw := NewGateway(pool)
	ctx := context.Background()

	require.NoError(t, gw.CommitCanonical(ctx, canonicalFixture(2000)))

	next := canonicalFixture(5000)
	next.Holders = []*domain.HolderSnapshot{
		{TokenAddress: "tok", WalletAddress: "w1", Balance: 80, Percentage: 40, FirstSeen: 5000, LastUpdated: 5000},
		{TokenAddress: "tok", WalletAddress: "w9", Balance: 120, Percentage: 55, FirstSeen: 5000, LastUpdated: 5000},
	}
	next.Transactions = nil
	require.NoError(t, gw.CommitCanonical(ctx, next))

	holders, err := NewHolderSnapshotStore(pool).GetByToken(ctx, "tok")
	require.NoError(t, err)
	require.Len(t, holders, 2)
	assert.Equal(t, "w9", holders[0].WalletAddress)
	assert.Equal(t, "w1", holders[1].WalletAddress)
	assert.Equal(t, int64(2000), holders[1].FirstSeen, "first_seen survives replacement")
}
