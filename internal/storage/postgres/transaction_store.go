package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"tokenwatch/internal/domain"
	"tokenwatch/internal/storage"
)

// TransactionStore implements storage.TransactionStore using PostgreSQL.
type TransactionStore struct {
	pool *Pool
}

// NewTransactionStore creates a new TransactionStore.
func NewTransactionStore(pool *Pool) *TransactionStore {
	return &TransactionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TransactionStore = (*TransactionStore)(nil)

// InsertBulk adds transactions atomically, silently skipping tx hashes
// already recorded.
func (s *TransactionStore) InsertBulk(ctx context.Context, txs []*domain.TransactionRecord) error {
	if len(txs) == 0 {
		return nil
	}
	for _, tr := range txs {
		if tr == nil || tr.TxHash == "" || tr.TokenAddress == "" {
			return storage.ErrInvalidInput
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, tr := range txs {
		if _, err := tx.Exec(ctx, insertTransactionQuery, transactionArgs(tr)...); err != nil {
			return fmt.Errorf("insert transaction in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

const insertTransactionQuery = `
	INSERT INTO transactions (
		token_address, tx_hash, from_address, to_address, amount, timestamp, block_number
	) VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (tx_hash) DO NOTHING
`

func transactionArgs(tr *domain.TransactionRecord) []any {
	return []any{
		tr.TokenAddress,
		tr.TxHash,
		tr.FromAddress,
		tr.ToAddress,
		tr.Amount,
		tr.Timestamp,
		tr.BlockNumber,
	}
}

// GetByToken retrieves all transactions for a token, ordered by
// timestamp ASC.
func (s *TransactionStore) GetByToken(ctx context.Context, address string) ([]*domain.TransactionRecord, error) {
	query := `
		SELECT token_address, tx_hash, from_address, to_address, amount, timestamp, block_number
		FROM transactions
		WHERE token_address = $1
		ORDER BY timestamp ASC, tx_hash ASC
	`

	rows, err := s.pool.Query(ctx, query, address)
	if err != nil {
		return nil, fmt.Errorf("get transactions by token: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// GetByWallet retrieves all transactions touching a wallet, ordered by
// timestamp ASC.
func (s *TransactionStore) GetByWallet(ctx context.Context, wallet string) ([]*domain.TransactionRecord, error) {
	query := `
		SELECT token_address, tx_hash, from_address, to_address, amount, timestamp, block_number
		FROM transactions
		WHERE from_address = $1 OR to_address = $1
		ORDER BY timestamp ASC, tx_hash ASC
	`

	rows, err := s.pool.Query(ctx, query, wallet)
	if err != nil {
		return nil, fmt.Errorf("get transactions by wallet: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// scanTransactions scans multiple rows into a slice of TransactionRecord.
func scanTransactions(rows pgx.Rows) ([]*domain.TransactionRecord, error) {
	var txs []*domain.TransactionRecord

	for rows.Next() {
		var tr domain.TransactionRecord
		err := rows.Scan(
			&tr.TokenAddress,
			&tr.TxHash,
			&tr.FromAddress,
			&tr.ToAddress,
			&tr.Amount,
			&tr.Timestamp,
			&tr.BlockNumber,
		)
		if err != nil {
			return nil, fmt.Errorf("scan transaction row: %w", err)
		}
		txs = append(txs, &tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transaction rows: %w", err)
	}
	return txs, nil
}
