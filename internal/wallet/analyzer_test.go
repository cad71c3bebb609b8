package wallet

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokenwatch/internal/domain"
	"tokenwatch/internal/storage/memory"
)

func newTestAnalyzer(t *testing.T) (*Analyzer, *memory.TransactionStore, *memory.PriceSampleStore, *memory.WalletAnalysisStore) {
	t.Helper()

	txs := memory.NewTransactionStore()
	prices := memory.NewPriceSampleStore()
	analyses := memory.NewWalletAnalysisStore()

	a := NewAnalyzer(txs, prices, analyses)
	a.now = func() time.Time { return time.UnixMilli(10_000) }
	return a, txs, prices, analyses
}

func TestAnalyzer_EmptyWallet(t *testing.T) {
	a, _, _, _ := newTestAnalyzer(t)

	analysis, err := a.Analyze(context.Background(), "w1")
	require.NoError(t, err)
	assert.Zero(t, analysis.TransactionCount)
	assert.Zero(t, analysis.TokenCount)
	assert.Equal(t, -1.0, analysis.TokenWinRate, "no history means unknown")
}

func TestAnalyzer_WinRateFromPriceHistory(t *testing.T) {
	a, txs, prices, _ := newTestAnalyzer(t)
	ctx := context.Background()

	// Wallet buys into two tokens; winner's price rises, loser's falls.
	require.NoError(t, txs.InsertBulk(ctx, []*domain.TransactionRecord{
		{TokenAddress: "winner", TxHash: "h1", FromAddress: "x", ToAddress: "w1", Amount: 10, Timestamp: 1000},
		{TokenAddress: "loser", TxHash: "h2", FromAddress: "x", ToAddress: "w1", Amount: 5, Timestamp: 1000},
	}))
	require.NoError(t, prices.InsertBulk(ctx, []*domain.PriceSample{
		{TokenAddress: "winner", Source: "birdeye", PriceUSD: 1.0, Timestamp: 1500},
		{TokenAddress: "winner", Source: "birdeye", PriceUSD: 2.0, Timestamp: 2500},
		{TokenAddress: "loser", Source: "birdeye", PriceUSD: 1.0, Timestamp: 1500},
		{TokenAddress: "loser", Source: "birdeye", PriceUSD: 0.5, Timestamp: 2500},
	}))

	analysis, err := a.Analyze(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, 2, analysis.TokenCount)
	assert.Equal(t, 0.5, analysis.TokenWinRate)
	// 10 * 2.0 + 5 * 0.5 held at the latest prices.
	assert.InDelta(t, 22.5, analysis.TotalValueUSD, 1e-9)
	assert.Equal(t, int64(1000), analysis.FirstTransaction)
}

func TestAnalyzer_TokensWithoutHistoryAreUndecided(t *testing.T) {
	a, txs, prices, _ := newTestAnalyzer(t)
	ctx := context.Background()

	require.NoError(t, txs.InsertBulk(ctx, []*domain.TransactionRecord{
		{TokenAddress: "quiet", TxHash: "h1", FromAddress: "x", ToAddress: "w1", Amount: 10, Timestamp: 1000},
		{TokenAddress: "winner", TxHash: "h2", FromAddress: "x", ToAddress: "w1", Amount: 1, Timestamp: 1000},
	}))
	// Only one sample for "quiet": not enough to decide an outcome.
	require.NoError(t, prices.InsertBulk(ctx, []*domain.PriceSample{
		{TokenAddress: "quiet", Source: "birdeye", PriceUSD: 1.0, Timestamp: 1500},
		{TokenAddress: "winner", Source: "birdeye", PriceUSD: 1.0, Timestamp: 1500},
		{TokenAddress: "winner", Source: "birdeye", PriceUSD: 3.0, Timestamp: 2500},
	}))

	analysis, err := a.Analyze(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, 1.0, analysis.TokenWinRate, "undecided tokens are excluded")
	assert.Equal(t, 1, analysis.Payload["tokens_decided"])
}

func TestAnalyzer_NetPositionIgnoresSoldTokens(t *testing.T) {
	a, txs, prices, _ := newTestAnalyzer(t)
	ctx := context.Background()

	require.NoError(t, txs.InsertBulk(ctx, []*domain.TransactionRecord{
		{TokenAddress: "tok", TxHash: "h1", FromAddress: "x", ToAddress: "w1", Amount: 10, Timestamp: 1000},
		{TokenAddress: "tok", TxHash: "h2", FromAddress: "w1", ToAddress: "y", Amount: 10, Timestamp: 2000},
	}))
	require.NoError(t, prices.InsertBulk(ctx, []*domain.PriceSample{
		{TokenAddress: "tok", Source: "birdeye", PriceUSD: 5.0, Timestamp: 2500},
	}))

	analysis, err := a.Analyze(ctx, "w1")
	require.NoError(t, err)
	assert.Zero(t, analysis.TotalValueUSD, "fully exited position holds no value")
	assert.Equal(t, 2, analysis.TransactionCount)
}

func TestAnalyzer_RefreshPersists(t *testing.T) {
	a, txs, _, analyses := newTestAnalyzer(t)
	ctx := context.Background()

	require.NoError(t, txs.InsertBulk(ctx, []*domain.TransactionRecord{
		{TokenAddress: "tok", TxHash: "h1", FromAddress: "x", ToAddress: "w1", Amount: 10, Timestamp: 1000},
	}))

	_, err := a.Refresh(ctx, "w1")
	require.NoError(t, err)

	stored, err := analyses.GetByWallet(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.TokenCount)

	assert.Equal(t, -1.0, a.WinRate(ctx, "unknown-wallet"))
	assert.Equal(t, stored.TokenWinRate, a.WinRate(ctx, "w1"))
}

func TestAnalyzer_WinRateRebuildsWhenNothingStored(t *testing.T) {
	a, txs, prices, analyses := newTestAnalyzer(t)
	ctx := context.Background()

	require.NoError(t, txs.InsertBulk(ctx, []*domain.TransactionRecord{
		{TokenAddress: "winner", TxHash: "h1", FromAddress: "x", ToAddress: "w1", Amount: 10, Timestamp: 1000},
	}))
	require.NoError(t, prices.InsertBulk(ctx, []*domain.PriceSample{
		{TokenAddress: "winner", Source: "birdeye", PriceUSD: 1.0, Timestamp: 1500},
		{TokenAddress: "winner", Source: "birdeye", PriceUSD: 2.0, Timestamp: 2500},
	}))

	// No Refresh was ever called; the lookup rebuilds from history.
	assert.Equal(t, 1.0, a.WinRate(ctx, "w1"))

	stored, err := analyses.GetByWallet(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, 1.0, stored.TokenWinRate, "rebuilt analysis persisted")
}

func TestAnalyzer_WinRateRebuildsAfterTTL(t *testing.T) {
	a, txs, prices, _ := newTestAnalyzer(t)
	ctx := context.Background()

	now := time.UnixMilli(10_000)
	a.now = func() time.Time { return now }

	require.NoError(t, txs.InsertBulk(ctx, []*domain.TransactionRecord{
		{TokenAddress: "winner", TxHash: "h1", FromAddress: "x", ToAddress: "w1", Amount: 10, Timestamp: 1000},
	}))
	require.NoError(t, prices.InsertBulk(ctx, []*domain.PriceSample{
		{TokenAddress: "winner", Source: "birdeye", PriceUSD: 1.0, Timestamp: 1500},
		{TokenAddress: "winner", Source: "birdeye", PriceUSD: 2.0, Timestamp: 2500},
	}))
	require.Equal(t, 1.0, a.WinRate(ctx, "w1"))

	// A losing token lands afterwards. The stored analysis is served
	// while it is fresh and only rebuilt once it ages out.
	require.NoError(t, txs.InsertBulk(ctx, []*domain.TransactionRecord{
		{TokenAddress: "loser", TxHash: "h2", FromAddress: "x", ToAddress: "w1", Amount: 5, Timestamp: 3000},
	}))
	require.NoError(t, prices.InsertBulk(ctx, []*domain.PriceSample{
		{TokenAddress: "loser", Source: "birdeye", PriceUSD: 1.0, Timestamp: 3500},
		{TokenAddress: "loser", Source: "birdeye", PriceUSD: 0.5, Timestamp: 4500},
	}))
	assert.Equal(t, 1.0, a.WinRate(ctx, "w1"), "stored analysis served within the TTL")

	now = now.Add(analysisTTL + time.Second)
	assert.Equal(t, 0.5, a.WinRate(ctx, "w1"), "aged-out analysis rebuilt from the full history")
}
