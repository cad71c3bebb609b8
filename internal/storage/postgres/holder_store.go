package postgres

import (
	"context"
	"fmt"

	"tokenwatch/internal/domain"
	"tokenwatch/internal/storage"
)

// HolderSnapshotStore implements storage.HolderSnapshotStore using
// PostgreSQL.
type HolderSnapshotStore struct {
	pool *Pool
}

// NewHolderSnapshotStore creates a new HolderSnapshotStore.
func NewHolderSnapshotStore(pool *Pool) *HolderSnapshotStore {
	return &HolderSnapshotStore{pool: pool}
}

// Compile-time interface check.
var _ storage.HolderSnapshotStore = (*HolderSnapshotStore)(nil)

// ReplaceForToken replaces the holder set for a token in one
// transaction. Wallets that were already present keep their first_seen.
func (s *HolderSnapshotStore) ReplaceForToken(ctx context.Context, address string, holders []*domain.HolderSnapshot) error {
	if address == "" {
		return storage.ErrInvalidInput
	}
	for _, h := range holders {
		if h == nil || h.WalletAddress == "" || h.Balance < 0 {
			return storage.ErrInvalidInput
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	wallets := make([]string, 0, len(holders))
	for _, h := range holders {
		wallets = append(wallets, h.WalletAddress)
	}

	deleteQuery := `
		DELETE FROM holder_snapshots
		WHERE token_address = $1 AND wallet_address <> ALL($2)
	`
	if _, err := tx.Exec(ctx, deleteQuery, address, wallets); err != nil {
		return fmt.Errorf("delete stale holders: %w", err)
	}

	upsertQuery := `
		INSERT INTO holder_snapshots (
			token_address, wallet_address, balance, percentage, first_seen, last_updated
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (token_address, wallet_address) DO UPDATE SET
			balance = EXCLUDED.balance,
			percentage = EXCLUDED.percentage,
			last_updated = EXCLUDED.last_updated
	`
	for _, h := range holders {
		_, err := tx.Exec(ctx, upsertQuery,
			address,
			h.WalletAddress,
			h.Balance,
			h.Percentage,
			h.FirstSeen,
			h.LastUpdated,
		)
		if err != nil {
			return fmt.Errorf("upsert holder snapshot: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByToken retrieves all holder snapshots for a token, ordered by
// balance DESC.
func (s *HolderSnapshotStore) GetByToken(ctx context.Context, address string) ([]*domain.HolderSnapshot, error) {
	query := `
		SELECT token_address, wallet_address, balance, percentage, first_seen, last_updated
		FROM holder_snapshots
		WHERE token_address = $1
		ORDER BY balance DESC, wallet_address ASC
	`

	rows, err := s.pool.Query(ctx, query, address)
	if err != nil {
		return nil, fmt.Errorf("get holders by token: %w", err)
	}
	defer rows.Close()

	var holders []*domain.HolderSnapshot
	for rows.Next() {
		var h domain.HolderSnapshot
		err := rows.Scan(
			&h.TokenAddress,
			&h.WalletAddress,
			&h.Balance,
			&h.Percentage,
			&h.FirstSeen,
			&h.LastUpdated,
		)
		if err != nil {
			return nil, fmt.Errorf("scan holder snapshot row: %w", err)
		}
		holders = append(holders, &h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate holder snapshot rows: %w", err)
	}
	return holders, nil
}
