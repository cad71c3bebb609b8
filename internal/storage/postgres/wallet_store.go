package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"tokenwatch/internal/domain"
	"tokenwatch/internal/storage"
)

// WalletAnalysisStore implements storage.WalletAnalysisStore using
// PostgreSQL.
type WalletAnalysisStore struct {
	pool *Pool
}

// NewWalletAnalysisStore creates a new WalletAnalysisStore.
func NewWalletAnalysisStore(pool *Pool) *WalletAnalysisStore {
	return &WalletAnalysisStore{pool: pool}
}

// Compile-time interface check.
var _ storage.WalletAnalysisStore = (*WalletAnalysisStore)(nil)

// Upsert inserts or replaces the analysis for a wallet.
func (s *WalletAnalysisStore) Upsert(ctx context.Context, a *domain.WalletAnalysis) error {
	if a == nil || a.WalletAddress == "" {
		return storage.ErrInvalidInput
	}

	payload, err := json.Marshal(a.Payload)
	if err != nil {
		return fmt.Errorf("marshal wallet payload: %w", err)
	}

	query := `
		INSERT INTO wallet_analyses (
			wallet_address, token_count, total_value_usd, transaction_count,
			first_transaction, last_transaction, token_win_rate, payload, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (wallet_address) DO UPDATE SET
			token_count = EXCLUDED.token_count,
			total_value_usd = EXCLUDED.total_value_usd,
			transaction_count = EXCLUDED.transaction_count,
			first_transaction = EXCLUDED.first_transaction,
			last_transaction = EXCLUDED.last_transaction,
			token_win_rate = EXCLUDED.token_win_rate,
			payload = EXCLUDED.payload,
			created_at = EXCLUDED.created_at
	`

	_, err = s.pool.Exec(ctx, query,
		a.WalletAddress,
		a.TokenCount,
		a.TotalValueUSD,
		a.TransactionCount,
		a.FirstTransaction,
		a.LastTransaction,
		a.TokenWinRate,
		payload,
		a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert wallet analysis: %w", err)
	}
	return nil
}

// GetByWallet retrieves the analysis. Returns ErrNotFound if not exists.
func (s *WalletAnalysisStore) GetByWallet(ctx context.Context, wallet string) (*domain.WalletAnalysis, error) {
	query := `
		SELECT wallet_address, token_count, total_value_usd, transaction_count,
		       first_transaction, last_transaction, token_win_rate, payload, created_at
		FROM wallet_analyses
		WHERE wallet_address = $1
	`

	var a domain.WalletAnalysis
	var payload []byte

	err := s.pool.QueryRow(ctx, query, wallet).Scan(
		&a.WalletAddress,
		&a.TokenCount,
		&a.TotalValueUSD,
		&a.TransactionCount,
		&a.FirstTransaction,
		&a.LastTransaction,
		&a.TokenWinRate,
		&payload,
		&a.CreatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get wallet analysis: %w", err)
	}

	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &a.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal wallet payload: %w", err)
		}
	}
	return &a, nil
}
