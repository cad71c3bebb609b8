package wallet

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"tokenwatch/internal/domain"
	"tokenwatch/internal/logging"
	"tokenwatch/internal/storage"
)

// Analyzer rebuilds wallet aggregates from the recorded transaction
// and price history. Analyses are recomputed on demand, not maintained
// incrementally, so a rebuild always reflects the full history known
// at that moment.
type Analyzer struct {
	transactions storage.TransactionStore
	prices       storage.PriceSampleStore
	analyses     storage.WalletAnalysisStore
	log          zerolog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewAnalyzer creates an analyzer over the given stores.
func NewAnalyzer(transactions storage.TransactionStore, prices storage.PriceSampleStore, analyses storage.WalletAnalysisStore) *Analyzer {
	return &Analyzer{
		transactions: transactions,
		prices:       prices,
		analyses:     analyses,
		log:          logging.WithComponent("wallet_analyzer"),
		now:          time.Now,
	}
}

// Refresh rebuilds and persists the analysis for one wallet.
func (a *Analyzer) Refresh(ctx context.Context, wallet string) (*domain.WalletAnalysis, error) {
	analysis, err := a.Analyze(ctx, wallet)
	if err != nil {
		return nil, err
	}
	if err := a.analyses.Upsert(ctx, analysis); err != nil {
		return nil, fmt.Errorf("persist wallet analysis: %w", err)
	}
	return analysis, nil
}

// analysisTTL bounds how long a stored analysis is served before the
// next WinRate lookup rebuilds it from the transaction history.
const analysisTTL = 5 * time.Minute

// WinRate returns a wallet's token win rate, -1 when nothing is known
// about it. Missing or aged-out analyses are rebuilt and persisted on
// the way.
func (a *Analyzer) WinRate(ctx context.Context, wallet string) float64 {
	if wallet == "" {
		return -1
	}

	stored, err := a.analyses.GetByWallet(ctx, wallet)
	switch {
	case err == nil:
		if a.now().UnixMilli()-stored.CreatedAt < analysisTTL.Milliseconds() {
			return stored.TokenWinRate
		}
	case !errors.Is(err, storage.ErrNotFound):
		a.log.Warn().Err(err).Str("wallet", wallet).Msg("win rate lookup failed")
		return -1
	}

	rebuilt, err := a.Refresh(ctx, wallet)
	if err != nil {
		a.log.Warn().Err(err).Str("wallet", wallet).Msg("analysis rebuild failed")
		if stored != nil {
			return stored.TokenWinRate
		}
		return -1
	}
	return rebuilt.TokenWinRate
}

// Analyze computes the aggregate without persisting it.
func (a *Analyzer) Analyze(ctx context.Context, wallet string) (*domain.WalletAnalysis, error) {
	txs, err := a.transactions.GetByWallet(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("load wallet transactions: %w", err)
	}

	now := a.now().UnixMilli()
	analysis := &domain.WalletAnalysis{
		WalletAddress:    wallet,
		TransactionCount: len(txs),
		TokenWinRate:     -1,
		Payload:          map[string]any{},
		CreatedAt:        now,
	}
	if len(txs) == 0 {
		return analysis, nil
	}

	analysis.FirstTransaction = txs[0].Timestamp
	analysis.LastTransaction = txs[len(txs)-1].Timestamp

	// Net position and first touch per token.
	type position struct {
		net        float64
		firstTouch int64
	}
	positions := make(map[string]*position)
	for _, tx := range txs {
		pos, ok := positions[tx.TokenAddress]
		if !ok {
			pos = &position{firstTouch: tx.Timestamp}
			positions[tx.TokenAddress] = pos
		}
		if tx.ToAddress == wallet {
			pos.net += tx.Amount
		}
		if tx.FromAddress == wallet {
			pos.net -= tx.Amount
		}
	}
	analysis.TokenCount = len(positions)

	tokens := make([]string, 0, len(positions))
	for token := range positions {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)

	wins, decided := 0, 0
	for _, token := range tokens {
		pos := positions[token]

		if pos.net > 0 {
			latest, err := a.prices.GetLatest(ctx, token)
			if err == nil {
				analysis.TotalValueUSD += pos.net * latest.PriceUSD
			} else if !errors.Is(err, storage.ErrNotFound) {
				return nil, fmt.Errorf("load latest price for %s: %w", token, err)
			}
		}

		outcome, known := a.tokenOutcome(ctx, token, pos.firstTouch, now)
		if !known {
			continue
		}
		decided++
		if outcome {
			wins++
		}
	}
	if decided > 0 {
		analysis.TokenWinRate = float64(wins) / float64(decided)
	}
	analysis.Payload["tokens_decided"] = decided
	analysis.Payload["tokens_won"] = wins

	return analysis, nil
}

// tokenOutcome reports whether a token's price rose after the wallet
// first touched it. Tokens without enough price history are undecided
// and excluded from the win rate.
func (a *Analyzer) tokenOutcome(ctx context.Context, token string, since, until int64) (won, known bool) {
	samples, err := a.prices.GetByTimeRange(ctx, token, since, until)
	if err != nil {
		a.log.Warn().Err(err).Str("token", token).Msg("price history lookup failed")
		return false, false
	}
	if len(samples) < 2 {
		return false, false
	}
	return samples[len(samples)-1].PriceUSD > samples[0].PriceUSD, true
}
