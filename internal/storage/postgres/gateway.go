package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"tokenwatch/internal/domain"
	"tokenwatch/internal/observability"
	"tokenwatch/internal/storage"
)

// Gateway commits a canonical bundle in a single PostgreSQL
// transaction: the token upsert, the holder set, the transaction batch
// and the per-source latest price rows land together or not at all.
// Full price history lives in ClickHouse and is appended separately
// after the commit succeeds.
type Gateway struct {
	pool *Pool
}

// NewGateway creates a gateway over the connection pool.
func NewGateway(pool *Pool) *Gateway {
	return &Gateway{pool: pool}
}

// Compile-time interface check.
var _ storage.Gateway = (*Gateway)(nil)

// CommitCanonical applies a reconcile cycle's output.
func (g *Gateway) CommitCanonical(ctx context.Context, c *storage.Canonical) (err error) {
	start := time.Now()
	defer func() {
		observability.RecordDBQuery("postgres", "commit_canonical", time.Since(start).Seconds(), err)
	}()

	if c == nil || c.Token == nil || c.Token.Address == "" {
		return storage.ErrInvalidInput
	}

	tx, err := g.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := upsertTokenTx(ctx, tx, c.Token); err != nil {
		return err
	}
	if err := replaceHoldersTx(ctx, tx, c.Token.Address, c.Holders); err != nil {
		return err
	}
	for _, tr := range c.Transactions {
		if tr == nil || tr.TxHash == "" || tr.TokenAddress == "" {
			return storage.ErrInvalidInput
		}
		if _, err := tx.Exec(ctx, insertTransactionQuery, transactionArgs(tr)...); err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
	}
	if err := upsertLatestPricesTx(ctx, tx, c.Samples); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func upsertTokenTx(ctx context.Context, tx pgx.Tx, t *domain.Token) error {
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

	tag, err := tx.Exec(ctx, query,
		t.Address, t.Name, t.Symbol, t.Decimals, t.TotalSupply,
		t.HolderCount, t.IsVerified, metadata, t.Partial, t.Providers,
		t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrStaleWrite
	}
	return nil
}

func replaceHoldersTx(ctx context.Context, tx pgx.Tx, address string, holders []*domain.HolderSnapshot) error {
	for _, h := range holders {
		if h == nil || h.WalletAddress == "" || h.Balance < 0 {
			return storage.ErrInvalidInput
		}
	}

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
			address, h.WalletAddress, h.Balance, h.Percentage, h.FirstSeen, h.LastUpdated,
		)
		if err != nil {
			return fmt.Errorf("upsert holder snapshot: %w", err)
		}
	}
	return nil
}

// upsertLatestPricesTx advances the per-(token, source) latest price
// row. A sample that does not advance its stream's timestamp fails the
// commit with ErrOutOfOrder.
func upsertLatestPricesTx(ctx context.Context, tx pgx.Tx, samples []*domain.PriceSample) error {
	query := `
		INSERT INTO latest_prices (
			token_address, source, price_usd, volume_24h, market_cap, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (token_address, source) DO UPDATE SET
			price_usd = EXCLUDED.price_usd,
			volume_24h = EXCLUDED.volume_24h,
			market_cap = EXCLUDED.market_cap,
			timestamp = EXCLUDED.timestamp
		WHERE latest_prices.timestamp < EXCLUDED.timestamp
	`

	for _, sample := range samples {
		if sample == nil || sample.TokenAddress == "" || sample.Source == "" {
			return storage.ErrInvalidInput
		}
		tag, err := tx.Exec(ctx, query,
			sample.TokenAddress, sample.Source, sample.PriceUSD,
			sample.Volume24h, sample.MarketCap, sample.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("upsert latest price: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return storage.ErrOutOfOrder
		}
	}
	return nil
}
