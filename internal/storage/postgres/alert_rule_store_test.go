package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokenwatch/internal/domain"
	"tokenwatch/internal/storage"
)

func TestAlertRuleStore_RoundTrip(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewAlertRuleStore(pool)
	ctx := context.Background()

	rule := &domain.AlertRule{
		ID:           "r1",
		TokenAddress: "tok",
		Metric:       domain.MetricPrice,
		Op:           domain.OpGreater,
		Threshold:    1.5,
		IsActive:     true,
		Channel:      domain.ChannelWebhook,
		Target:       "https://hooks.example.com/abc",
		CreatedAt:    1000,
	}
	require.NoError(t, store.Upsert(ctx, rule))
	require.NoError(t, store.Upsert(ctx, &domain.AlertRule{
		ID: "r2", TokenAddress: "tok", Metric: domain.MetricHolders,
		Op: domain.OpLess, Threshold: 10, IsActive: false,
		Channel: domain.ChannelTelegram, Target: "chat-1", CreatedAt: 1000,
	}))

	rules, err := store.ListActiveForToken(ctx, "tok")
	require.NoError(t, err)
	require.Len(t, rules, 1, "inactive rules are filtered out")
	assert.Equal(t, domain.MetricPrice, rules[0].Metric)
	assert.Equal(t, domain.OpGreater, rules[0].Op)
	assert.Equal(t, domain.ChannelWebhook, rules[0].Channel)
}

func TestAlertRuleStore_RecordTriggerAndDelete(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewAlertRuleStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, &domain.AlertRule{
		ID: "r1", TokenAddress: "tok", Metric: domain.MetricConfidence,
		Op: domain.OpGreater, Threshold: 80, IsActive: true,
		Channel: domain.ChannelWebhook, Target: "https://hooks.example.com/abc",
		CreatedAt: 1000,
	}))

	require.NoError(t, store.RecordTrigger(ctx, "r1", 7777))

	rules, err := store.ListActiveForToken(ctx, "tok")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, int64(7777), rules[0].LastTriggered)

	assert.ErrorIs(t, store.RecordTrigger(ctx, "missing", 1), storage.ErrNotFound)

	require.NoError(t, store.Delete(ctx, "r1"))
	assert.ErrorIs(t, store.Delete(ctx, "r1"), storage.ErrNotFound)
}
