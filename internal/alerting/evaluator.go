// Package alerting evaluates user alert rules against scored snapshots
// and delivers fired events to notification channels.
package alerting

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tokenwatch/internal/domain"
	"tokenwatch/internal/logging"
	"tokenwatch/internal/observability"
	"tokenwatch/internal/storage"
)

// EventSink receives fired alert events. Enqueue reports whether the
// event was accepted; a full sink drops the event.
type EventSink interface {
	Enqueue(ev *domain.AlertEvent) bool
}

// Evaluator runs active rules against each token's scored snapshot.
//
// Every rule is an edge-triggered state machine: the condition turning
// true while the rule is armed fires exactly one event and moves the
// rule to fired; the condition turning false re-arms it. A rule that
// re-arms inside the cooldown window consumes its next edge silently.
type Evaluator struct {
	rules    storage.AlertRuleStore
	sink     EventSink
	cooldown time.Duration
	log      zerolog.Logger

	mu    sync.Mutex
	fired map[string]bool // rule ID -> fired state

	now func() time.Time
}

// NewEvaluator creates an evaluator over the given rule store and sink.
func NewEvaluator(rules storage.AlertRuleStore, sink EventSink, cooldown time.Duration) *Evaluator {
	return &Evaluator{
		rules:    rules,
		sink:     sink,
		cooldown: cooldown,
		log:      logging.WithComponent("alert_evaluator"),
		fired:    make(map[string]bool),
		now:      time.Now,
	}
}

// Evaluate runs all active rules for the snapshot's token. Snapshots
// for one token must be evaluated sequentially; different tokens may
// evaluate concurrently.
func (e *Evaluator) Evaluate(ctx context.Context, snap *domain.ScoredSnapshot) error {
	if snap == nil || snap.Token == nil {
		return nil
	}

	rules, err := e.rules.ListActiveForToken(ctx, snap.Token.Address)
	if err != nil {
		return err
	}

	for _, rule := range rules {
		e.evaluateRule(ctx, rule, snap)
	}
	return nil
}

func (e *Evaluator) evaluateRule(ctx context.Context, rule *domain.AlertRule, snap *domain.ScoredSnapshot) {
	if !rule.IsActive {
		observability.RecordAlertSuppressed("inactive")
		return
	}

	value, ok := snap.Metric(rule.Metric)
	if !ok {
		observability.RecordAlertSuppressed("no_metric")
		return
	}

	matched := rule.Matches(value)

	e.mu.Lock()
	wasFired := e.fired[rule.ID]
	if !matched {
		e.fired[rule.ID] = false
	}
	firing := matched && !wasFired
	if firing {
		e.fired[rule.ID] = true
	}
	e.mu.Unlock()

	if !matched {
		return
	}
	if !firing {
		observability.RecordAlertSuppressed("held")
		return
	}

	now := e.now().UnixMilli()
	if rule.LastTriggered > 0 && e.cooldown > 0 && now-rule.LastTriggered < e.cooldown.Milliseconds() {
		// The edge is consumed but the notification is withheld.
		observability.RecordAlertSuppressed("cooldown")
		return
	}

	if err := e.rules.RecordTrigger(ctx, rule.ID, now); err != nil {
		e.log.Error().Err(err).Str("rule_id", rule.ID).Msg("record trigger failed")
	}

	ev := &domain.AlertEvent{
		EventID:       uuid.NewString(),
		RuleID:        rule.ID,
		TokenAddress:  rule.TokenAddress,
		Metric:        rule.Metric,
		Op:            rule.Op,
		Threshold:     rule.Threshold,
		ObservedValue: value,
		Channel:       rule.Channel,
		Target:        rule.Target,
		Timestamp:     now,
	}

	observability.RecordAlertFired()
	e.log.Info().
		Str("rule_id", rule.ID).
		Str("token", rule.TokenAddress).
		Str("metric", string(rule.Metric)).
		Float64("observed", value).
		Float64("threshold", rule.Threshold).
		Msg("alert fired")

	if !e.sink.Enqueue(ev) {
		e.log.Warn().Str("rule_id", rule.ID).Str("channel", string(rule.Channel)).Msg("event dropped, channel queue full")
	}
}
