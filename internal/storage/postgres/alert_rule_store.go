package postgres

import (
	"context"
	"fmt"

	"tokenwatch/internal/domain"
	"tokenwatch/internal/storage"
)

// AlertRuleStore implements storage.AlertRuleStore using PostgreSQL.
type AlertRuleStore struct {
	pool *Pool
}

// NewAlertRuleStore creates a new AlertRuleStore.
func NewAlertRuleStore(pool *Pool) *AlertRuleStore {
	return &AlertRuleStore{pool: pool}
}

// Compile-time interface check.
var _ storage.AlertRuleStore = (*AlertRuleStore)(nil)

// Upsert inserts or replaces a rule keyed by ID.
func (s *AlertRuleStore) Upsert(ctx context.Context, r *domain.AlertRule) error {
	if r == nil || r.ID == "" || r.TokenAddress == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO alert_rules (
			id, token_address, metric, op, threshold, is_active,
			channel, target, created_at, last_triggered
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			token_address = EXCLUDED.token_address,
			metric = EXCLUDED.metric,
			op = EXCLUDED.op,
			threshold = EXCLUDED.threshold,
			is_active = EXCLUDED.is_active,
			channel = EXCLUDED.channel,
			target = EXCLUDED.target,
			last_triggered = EXCLUDED.last_triggered
	`

	_, err := s.pool.Exec(ctx, query,
		r.ID,
		r.TokenAddress,
		string(r.Metric),
		string(r.Op),
		r.Threshold,
		r.IsActive,
		string(r.Channel),
		r.Target,
		r.CreatedAt,
		r.LastTriggered,
	)
	if err != nil {
		return fmt.Errorf("upsert alert rule: %w", err)
	}
	return nil
}

// Delete removes a rule. Returns ErrNotFound if not exists.
func (s *AlertRuleStore) Delete(ctx context.Context, ruleID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM alert_rules WHERE id = $1`, ruleID)
	if err != nil {
		return fmt.Errorf("delete alert rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListActiveForToken retrieves active rules watching a token, ordered
// by ID for deterministic evaluation.
func (s *AlertRuleStore) ListActiveForToken(ctx context.Context, address string) ([]*domain.AlertRule, error) {
	query := `
		SELECT id, token_address, metric, op, threshold, is_active,
		       channel, target, created_at, last_triggered
		FROM alert_rules
		WHERE token_address = $1 AND is_active
		ORDER BY id ASC
	`

	rows, err := s.pool.Query(ctx, query, address)
	if err != nil {
		return nil, fmt.Errorf("list active alert rules: %w", err)
	}
	defer rows.Close()

	var rules []*domain.AlertRule
	for rows.Next() {
		var r domain.AlertRule
		var metric, op, channel string

		err := rows.Scan(
			&r.ID,
			&r.TokenAddress,
			&metric,
			&op,
			&r.Threshold,
			&r.IsActive,
			&channel,
			&r.Target,
			&r.CreatedAt,
			&r.LastTriggered,
		)
		if err != nil {
			return nil, fmt.Errorf("scan alert rule row: %w", err)
		}
		r.Metric = domain.MetricType(metric)
		r.Op = domain.Operator(op)
		r.Channel = domain.ChannelType(channel)
		rules = append(rules, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alert rule rows: %w", err)
	}
	return rules, nil
}

// RecordTrigger updates a rule's last_triggered timestamp.
func (s *AlertRuleStore) RecordTrigger(ctx context.Context, ruleID string, triggeredAt int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE alert_rules SET last_triggered = $2 WHERE id = $1`,
		ruleID, triggeredAt,
	)
	if err != nil {
		return fmt.Errorf("record alert trigger: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}
