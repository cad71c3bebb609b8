package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokenwatch/internal/domain"
	"tokenwatch/internal/storage"
)

func TestTokenStore_UpsertAndGet(t *testing.T) {
	store := NewTokenStore()
	ctx := context.Background()

	tok := &domain.Token{
		Address:   "So11111111111111111111111111111111111111112",
		Symbol:    "WSOL",
		Decimals:  9,
		CreatedAt: 1000,
		UpdatedAt: 1000,
	}
	require.NoError(t, store.Upsert(ctx, tok))

	got, err := store.GetByAddress(ctx, tok.Address)
	require.NoError(t, err)
	assert.Equal(t, "WSOL", got.Symbol)

	// Mutating the returned copy must not affect the store.
	got.Symbol = "mutated"
	again, err := store.GetByAddress(ctx, tok.Address)
	require.NoError(t, err)
	assert.Equal(t, "WSOL", again.Symbol)
}

func TestTokenStore_StaleWriteRejected(t *testing.T) {
	store := NewTokenStore()
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, &domain.Token{Address: "tok", UpdatedAt: 2000}))

	err := store.Upsert(ctx, &domain.Token{Address: "tok", UpdatedAt: 1500})
	assert.ErrorIs(t, err, storage.ErrStaleWrite)

	// Equal timestamp is not stale.
	assert.NoError(t, store.Upsert(ctx, &domain.Token{Address: "tok", UpdatedAt: 2000}))
}

func TestTokenStore_UpsertPreservesCreatedAt(t *testing.T) {
	store := NewTokenStore()
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, &domain.Token{Address: "tok", CreatedAt: 100, UpdatedAt: 100}))
	require.NoError(t, store.Upsert(ctx, &domain.Token{Address: "tok", CreatedAt: 999, UpdatedAt: 200}))

	got, err := store.GetByAddress(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.CreatedAt)
	assert.Equal(t, int64(200), got.UpdatedAt)
}

func TestTokenStore_GetMissing(t *testing.T) {
	store := NewTokenStore()

	_, err := store.GetByAddress(context.Background(), "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPriceSampleStore_OrderingPerSourceStream(t *testing.T) {
	store := NewPriceSampleStore()
	ctx := context.Background()

	require.NoError(t, store.InsertBulk(ctx, []*domain.PriceSample{
		{TokenAddress: "tok", Source: "birdeye", PriceUSD: 1.0, Timestamp: 1000},
		{TokenAddress: "tok", Source: "birdeye", PriceUSD: 1.1, Timestamp: 2000},
	}))

	// Same timestamp on a different source stream is fine.
	require.NoError(t, store.InsertBulk(ctx, []*domain.PriceSample{
		{TokenAddress: "tok", Source: "solscan", PriceUSD: 1.05, Timestamp: 2000},
	}))

	// Non-advancing timestamp on an existing stream fails the batch.
	err := store.InsertBulk(ctx, []*domain.PriceSample{
		{TokenAddress: "tok", Source: "birdeye", PriceUSD: 1.2, Timestamp: 2000},
	})
	assert.ErrorIs(t, err, storage.ErrOutOfOrder)
}

func TestPriceSampleStore_FailedBatchLeavesStoreUnchanged(t *testing.T) {
	store := NewPriceSampleStore()
	ctx := context.Background()

	require.NoError(t, store.InsertBulk(ctx, []*domain.PriceSample{
		{TokenAddress: "tok", Source: "birdeye", PriceUSD: 1.0, Timestamp: 1000},
	}))

	err := store.InsertBulk(ctx, []*domain.PriceSample{
		{TokenAddress: "tok", Source: "birdeye", PriceUSD: 1.1, Timestamp: 2000},
		{TokenAddress: "tok", Source: "birdeye", PriceUSD: 1.2, Timestamp: 1500}, // regresses within batch
	})
	require.ErrorIs(t, err, storage.ErrOutOfOrder)

	samples, err := store.GetByTimeRange(ctx, "tok", 0, 10_000)
	require.NoError(t, err)
	assert.Len(t, samples, 1)
}

func TestPriceSampleStore_GetLatestAcrossSources(t *testing.T) {
	store := NewPriceSampleStore()
	ctx := context.Background()

	require.NoError(t, store.InsertBulk(ctx, []*domain.PriceSample{
		{TokenAddress: "tok", Source: "birdeye", PriceUSD: 1.0, Timestamp: 1000},
		{TokenAddress: "tok", Source: "solscan", PriceUSD: 2.0, Timestamp: 3000},
		{TokenAddress: "tok", Source: "birdeye", PriceUSD: 1.5, Timestamp: 2000},
	}))

	latest, err := store.GetLatest(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, 2.0, latest.PriceUSD)
	assert.Equal(t, "solscan", latest.Source)

	_, err = store.GetLatest(ctx, "other")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestHolderStore_ReplacePreservesFirstSeen(t *testing.T) {
	store := NewHolderSnapshotStore()
	ctx := context.Background()

	require.NoError(t, store.ReplaceForToken(ctx, "tok", []*domain.HolderSnapshot{
		{WalletAddress: "w1", Balance: 100, FirstSeen: 1000, LastUpdated: 1000},
		{WalletAddress: "w2", Balance: 50, FirstSeen: 1000, LastUpdated: 1000},
	}))

	// w1 survives with a new balance, w2 drops out, w3 appears.
	require.NoError(t, store.ReplaceForToken(ctx, "tok", []*domain.HolderSnapshot{
		{WalletAddress: "w1", Balance: 80, FirstSeen: 5000, LastUpdated: 5000},
		{WalletAddress: "w3", Balance: 120, FirstSeen: 5000, LastUpdated: 5000},
	}))

	holders, err := store.GetByToken(ctx, "tok")
	require.NoError(t, err)
	require.Len(t, holders, 2)

	// Ordered by balance DESC.
	assert.Equal(t, "w3", holders[0].WalletAddress)
	assert.Equal(t, int64(5000), holders[0].FirstSeen)
	assert.Equal(t, "w1", holders[1].WalletAddress)
	assert.Equal(t, int64(1000), holders[1].FirstSeen, "FirstSeen survives replacement")
}

func TestHolderStore_NegativeBalanceRejected(t *testing.T) {
	store := NewHolderSnapshotStore()

	err := store.ReplaceForToken(context.Background(), "tok", []*domain.HolderSnapshot{
		{WalletAddress: "w1", Balance: -1},
	})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestTransactionStore_DuplicateHashesSkipped(t *testing.T) {
	store := NewTransactionStore()
	ctx := context.Background()

	require.NoError(t, store.InsertBulk(ctx, []*domain.TransactionRecord{
		{TokenAddress: "tok", TxHash: "h1", FromAddress: "a", ToAddress: "b", Timestamp: 1000},
		{TokenAddress: "tok", TxHash: "h2", FromAddress: "b", ToAddress: "c", Timestamp: 2000},
	}))
	require.NoError(t, store.InsertBulk(ctx, []*domain.TransactionRecord{
		{TokenAddress: "tok", TxHash: "h1", FromAddress: "a", ToAddress: "b", Timestamp: 1000},
		{TokenAddress: "tok", TxHash: "h3", FromAddress: "c", ToAddress: "a", Timestamp: 3000},
	}))

	txs, err := store.GetByToken(ctx, "tok")
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, "h1", txs[0].TxHash)
	assert.Equal(t, "h3", txs[2].TxHash)
}

func TestTransactionStore_GetByWallet(t *testing.T) {
	store := NewTransactionStore()
	ctx := context.Background()

	require.NoError(t, store.InsertBulk(ctx, []*domain.TransactionRecord{
		{TokenAddress: "tok", TxHash: "h1", FromAddress: "a", ToAddress: "b", Timestamp: 2000},
		{TokenAddress: "tok", TxHash: "h2", FromAddress: "b", ToAddress: "c", Timestamp: 1000},
		{TokenAddress: "tok", TxHash: "h3", FromAddress: "c", ToAddress: "d", Timestamp: 3000},
	}))

	txs, err := store.GetByWallet(ctx, "b")
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "h2", txs[0].TxHash, "ordered by timestamp ASC")
	assert.Equal(t, "h1", txs[1].TxHash)
}

func TestAlertRuleStore_ListActiveForToken(t *testing.T) {
	store := NewAlertRuleStore()
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, &domain.AlertRule{ID: "r2", TokenAddress: "tok", IsActive: true}))
	require.NoError(t, store.Upsert(ctx, &domain.AlertRule{ID: "r1", TokenAddress: "tok", IsActive: true}))
	require.NoError(t, store.Upsert(ctx, &domain.AlertRule{ID: "r3", TokenAddress: "tok", IsActive: false}))
	require.NoError(t, store.Upsert(ctx, &domain.AlertRule{ID: "r4", TokenAddress: "other", IsActive: true}))

	rules, err := store.ListActiveForToken(ctx, "tok")
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "r1", rules[0].ID)
	assert.Equal(t, "r2", rules[1].ID)
}

func TestAlertRuleStore_RecordTrigger(t *testing.T) {
	store := NewAlertRuleStore()
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, &domain.AlertRule{ID: "r1", TokenAddress: "tok", IsActive: true}))
	require.NoError(t, store.RecordTrigger(ctx, "r1", 7777))

	rules, err := store.ListActiveForToken(ctx, "tok")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, int64(7777), rules[0].LastTriggered)

	assert.ErrorIs(t, store.RecordTrigger(ctx, "missing", 1), storage.ErrNotFound)
	assert.ErrorIs(t, store.Delete(ctx, "missing"), storage.ErrNotFound)
}

func TestScoreStore_TimeRange(t *testing.T) {
	store := NewScoreStore()
	ctx := context.Background()

	for _, ts := range []int64{1000, 3000, 2000} {
		require.NoError(t, store.Insert(ctx, &domain.Scores{TokenAddress: "tok", Confidence: float64(ts), ComputedAt: ts}))
	}

	scores, err := store.GetByTimeRange(ctx, "tok", 1500, 3000)
	require.NoError(t, err)
	require.Len(t, scores, 2)
	assert.Equal(t, int64(2000), scores[0].ComputedAt)
	assert.Equal(t, int64(3000), scores[1].ComputedAt)
}

func TestGateway_CommitCanonical(t *testing.T) {
	tokens := NewTokenStore()
	samples := NewPriceSampleStore()
	holders := NewHolderSnapshotStore()
	transactions := NewTransactionStore()
	gw := NewGateway(tokens, samples, holders, transactions)
	ctx := context.Background()

	err := gw.CommitCanonical(ctx, &storage.Canonical{
		Token: &domain.Token{Address: "tok", Symbol: "TST", UpdatedAt: 1000},
		Samples: []*domain.PriceSample{
			{TokenAddress: "tok", Source: "birdeye", PriceUSD: 1.0, Timestamp: 1000},
		},
		Holders: []*domain.HolderSnapshot{
			{WalletAddress: "w1", Balance: 100, FirstSeen: 1000, LastUpdated: 1000},
		},
		Transactions: []*domain.TransactionRecord{
			{TokenAddress: "tok", TxHash: "h1", Timestamp: 1000},
		},
	})
	require.NoError(t, err)

	tok, err := tokens.GetByAddress(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, "TST", tok.Symbol)

	hs, err := holders.GetByToken(ctx, "tok")
	require.NoError(t, err)
	assert.Len(t, hs, 1)
}

func TestGateway_FailedCommitLeavesStoresUntouched(t *testing.T) {
	tokens := NewTokenStore()
	samples := NewPriceSampleStore()
	holders := NewHolderSnapshotStore()
	transactions := NewTransactionStore()
	gw := NewGateway(tokens, samples, holders, transactions)
	ctx := context.Background()

	require.NoError(t, gw.CommitCanonical(ctx, &storage.Canonical{
		Token: &domain.Token{Address: "tok", UpdatedAt: 2000},
		Samples: []*domain.PriceSample{
			{TokenAddress: "tok", Source: "birdeye", PriceUSD: 1.0, Timestamp: 2000},
		},
	}))

	// Stale token: the sample batch must not land either.
	err := gw.CommitCanonical(ctx, &storage.Canonical{
		Token: &domain.Token{Address: "tok", UpdatedAt: 1000},
		Samples: []*domain.PriceSample{
			{TokenAddress: "tok", Source: "birdeye", PriceUSD: 2.0, Timestamp: 3000},
		},
	})
	require.ErrorIs(t, err, storage.ErrStaleWrite)

	got, err := samples.GetByTimeRange(ctx, "tok", 0, 10_000)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	// Out-of-order samples: the token must not advance either.
	err = gw.CommitCanonical(ctx, &storage.Canonical{
		Token: &domain.Token{Address: "tok", Symbol: "NEW", UpdatedAt: 4000},
		Samples: []*domain.PriceSample{
			{TokenAddress: "tok", Source: "birdeye", PriceUSD: 3.0, Timestamp: 1500},
		},
	})
	require.ErrorIs(t, err, storage.ErrOutOfOrder)

	tok, err := tokens.GetByAddress(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, int64(2000), tok.UpdatedAt)
	assert.Empty(t, tok.Symbol)
}
