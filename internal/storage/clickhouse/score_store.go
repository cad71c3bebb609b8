package clickhouse

import (
	"context"
	"fmt"
	"time"

	"tokenwatch/internal/domain"
	"tokenwatch/internal/observability"
	"tokenwatch/internal/storage"
)

// ScoreStore implements storage.ScoreStore using ClickHouse.
type ScoreStore struct {
	conn *Conn
}

// NewScoreStore creates a new ScoreStore.
func NewScoreStore(conn *Conn) *ScoreStore {
	return &ScoreStore{conn: conn}
}

// Compile-time interface check.
var _ storage.ScoreStore = (*ScoreStore)(nil)

// Insert appends one score row.
func (s *ScoreStore) Insert(ctx context.Context, row *domain.Scores) (err error) {
	if row == nil || row.TokenAddress == "" {
		return storage.ErrInvalidInput
	}

	start := time.Now()
	defer func() {
		observability.RecordDBQuery("clickhouse", "score_insert", time.Since(start).Seconds(), err)
	}()

	query := `
		INSERT INTO scores (
			token_address, deployer, distribution, confidence, computed_at_ms
		) VALUES (?, ?, ?, ?, ?)
	`

	err = s.conn.Exec(ctx, query,
		row.TokenAddress, row.Deployer, row.Distribution,
		row.Confidence, uint64(row.ComputedAt),
	)
	if err != nil {
		return fmt.Errorf("insert score row: %w", err)
	}
	return nil
}

// GetByTimeRange retrieves scores for a token within [start, end]
// (inclusive), ordered by computed_at ASC.
func (s *ScoreStore) GetByTimeRange(ctx context.Context, address string, start, end int64) ([]*domain.Scores, error) {
	query := `
		SELECT token_address, deployer, distribution, confidence, computed_at_ms
		FROM scores
		WHERE token_address = ? AND computed_at_ms >= ? AND computed_at_ms <= ?
		ORDER BY computed_at_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, address, uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query scores by time range: %w", err)
	}
	defer rows.Close()

	var scores []*domain.Scores
	for rows.Next() {
		var row domain.Scores
		var computedAt uint64

		err := rows.Scan(
			&row.TokenAddress, &row.Deployer, &row.Distribution,
			&row.Confidence, &computedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan score row: %w", err)
		}

		row.ComputedAt = int64(computedAt)
		scores = append(scores, &row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate score rows: %w", err)
	}
	return scores, nil
}
