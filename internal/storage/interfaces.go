package storage

import (
	"context"

	"tokenwatch/internal/domain"
)

// TokenStore provides access to canonical token records.
type TokenStore interface {
	// Upsert inserts or refreshes a token keyed by address. Returns
	// ErrStaleWrite if the stored row has a newer UpdatedAt.
	Upsert(ctx context.Context, t *domain.Token) error

	// GetByAddress retrieves a token. Returns ErrNotFound if not exists.
	GetByAddress(ctx context.Context, address string) (*domain.Token, error)

	// ListAddresses returns all known token addresses.
	ListAddresses(ctx context.Context) ([]string, error)
}

// PriceSampleStore provides access to the price sample timeseries.
type PriceSampleStore interface {
	// InsertBulk appends samples. A sample that does not advance its
	// (token, source) stream fails the batch with ErrOutOfOrder.
	InsertBulk(ctx context.Context, samples []*domain.PriceSample) error

	// GetByTimeRange retrieves samples for a token within [start, end]
	// (inclusive, milliseconds), ordered by timestamp ASC.
	GetByTimeRange(ctx context.Context, address string, start, end int64) ([]*domain.PriceSample, error)

	// GetLatest retrieves the newest sample for a token across all
	// sources. Returns ErrNotFound if none exist.
	GetLatest(ctx context.Context, address string) (*domain.PriceSample, error)
}

// HolderSnapshotStore provides access to per-token holder sets.
type HolderSnapshotStore interface {
	// ReplaceForToken replaces the holder set for a token, preserving
	// FirstSeen for wallets already present.
	ReplaceForToken(ctx context.Context, address string, holders []*domain.HolderSnapshot) error

	// GetByToken retrieves all holder snapshots for a token, ordered by
	// balance DESC.
	GetByToken(ctx context.Context, address string) ([]*domain.HolderSnapshot, error)
}

// TransactionStore provides access to immutable transaction records.
type TransactionStore interface {
	// InsertBulk appends transactions, silently skipping tx hashes that
	// are already recorded.
	InsertBulk(ctx context.Context, txs []*domain.TransactionRecord) error

	// GetByToken retrieves all transactions for a token, ordered by
	// timestamp ASC.
	GetByToken(ctx context.Context, address string) ([]*domain.TransactionRecord, error)

	// GetByWallet retrieves all transactions touching a wallet, ordered
	// by timestamp ASC.
	GetByWallet(ctx context.Context, wallet string) ([]*domain.TransactionRecord, error)
}

// WalletAnalysisStore provides access to derived wallet aggregates.
type WalletAnalysisStore interface {
	// Upsert inserts or replaces the analysis for a wallet.
	Upsert(ctx context.Context, a *domain.WalletAnalysis) error

	// GetByWallet retrieves the analysis. Returns ErrNotFound if not exists.
	GetByWallet(ctx context.Context, wallet string) (*domain.WalletAnalysis, error)
}

// AlertRuleStore provides access to user alert rules. The evaluator
// only calls ListActiveForToken and RecordTrigger; rule CRUD belongs to
// the user-facing layer.
type AlertRuleStore interface {
	// Upsert inserts or replaces a rule keyed by ID.
	Upsert(ctx context.Context, r *domain.AlertRule) error

	// Delete removes a rule. Returns ErrNotFound if not exists.
	Delete(ctx context.Context, ruleID string) error

	// ListActiveForToken retrieves active rules watching a token.
	ListActiveForToken(ctx context.Context, address string) ([]*domain.AlertRule, error)

	// RecordTrigger updates a rule's LastTriggered timestamp.
	RecordTrigger(ctx context.Context, ruleID string, triggeredAt int64) error
}

// ScoreStore provides access to historical score rows.
type ScoreStore interface {
	// Insert appends one score row.
	Insert(ctx context.Context, s *domain.Scores) error

	// GetByTimeRange retrieves scores for a token within [start, end]
	// (inclusive, milliseconds), ordered by computed_at ASC.
	GetByTimeRange(ctx context.Context, address string, start, end int64) ([]*domain.Scores, error)
}

// Canonical bundles everything one reconcile cycle commits.
type Canonical struct {
	Token        *domain.Token
	Samples      []*domain.PriceSample
	Holders      []*domain.HolderSnapshot
	Transactions []*domain.TransactionRecord
}

// Gateway is the transactional boundary for canonical commits: either
// the token upsert and its derived rows land together, or nothing does.
type Gateway interface {
	CommitCanonical(ctx context.Context, c *Canonical) error
}
