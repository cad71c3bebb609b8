package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"tokenwatch/internal/domain"
	"tokenwatch/internal/storage"
)

// TokenStore implements storage.TokenStore using PostgreSQL.
type TokenStore struct {
	pool *Pool
}

// NewTokenStore creates a new TokenStore.
func NewTokenStore(pool *Pool) *TokenStore {
	return &TokenStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TokenStore = (*TokenStore)(nil)

// Upsert inserts or refreshes a token keyed by address. The conditional
// update keeps created_at and rejects writes older than the stored row
// with ErrStaleWrite.
func (s *TokenStore) Upsert(ctx context.Context, t *domain.Token) error {
	if t == nil || t.Address == "" {
		return storage.ErrInvalidInput
	}

	metadata, err := json.Marshal(t.Metadata)
	if err != nil {
		return fmt.Errorf("marshal token metadata: %w", err)
	}

	query := `
		INSERT INTO tokens (
			address, name, symbol, decimals, total_supply, holder_count,
			is_verified, metadata, partial, providers, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (address) DO UPDATE SET
			name = EXCLUDED.name,
			symbol = EXCLUDED.symbol,
			decimals = EXCLUDED.decimals,
			total_supply = EXCLUDED.total_supply,
			holder_count = EXCLUDED.holder_count,
			is_verified = EXCLUDED.is_verified,
			metadata = EXCLUDED.metadata,
			partial = EXCLUDED.partial,
			providers = EXCLUDED.providers,
			updated_at = EXCLUDED.updated_at
		WHERE tokens.updated_at <= EXCLUDED.updated_at
	`

	tag, err := s.pool.Exec(ctx, query,
		t.Address,
		t.Name,
		t.Symbol,
		t.Decimals,
		t.TotalSupply,
		t.HolderCount,
		t.IsVerified,
		metadata,
		t.Partial,
		t.Providers,
		t.CreatedAt,
		t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrStaleWrite
	}
	return nil
}

// GetByAddress retrieves a token. Returns ErrNotFound if not exists.
func (s *TokenStore) GetByAddress(ctx context.Context, address string) (*domain.Token, error) {
	query := `
		SELECT address, name, symbol, decimals, total_supply, holder_count,
		       is_verified, metadata, partial, providers, created_at, updated_at
		FROM tokens
		WHERE address = $1
	`

	row := s.pool.QueryRow(ctx, query, address)
	t, err := scanToken(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get token by address: %w", err)
	}
	return t, nil
}

// ListAddresses returns all known token addresses, ordered for
// deterministic iteration.
func (s *TokenStore) ListAddresses(ctx context.Context) ([]string, error) {
	query := `SELECT address FROM tokens ORDER BY address ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list token addresses: %w", err)
	}
	defer rows.Close()

	var addrs []string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, fmt.Errorf("scan token address: %w", err)
		}
		addrs = append(addrs, addr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate token address rows: %w", err)
	}
	return addrs, nil
}

// scanToken scans a single row into Token.
func scanToken(row pgx.Row) (*domain.Token, error) {
	var t domain.Token
	var metadata []byte

	err := row.Scan(
		&t.Address,
		&t.Name,
		&t.Symbol,
		&t.Decimals,
		&t.TotalSupply,
		&t.HolderCount,
		&t.IsVerified,
		&metadata,
		&t.Partial,
		&t.Providers,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &t.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal token metadata: %w", err)
		}
	}
	return &t, nil
}
