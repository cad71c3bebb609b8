// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Provider metrics
	ProviderCalls   *prometheus.CounterVec
	ProviderLatency *prometheus.HistogramVec

	// Governor metrics
	GovernorOutcomes *prometheus.CounterVec
	GovernorRetries  *prometheus.CounterVec

	// Reconciler metrics
	ReconcileRuns    *prometheus.CounterVec
	PartialSnapshots prometheus.Counter

	// Cache metrics
	CacheReads     *prometheus.CounterVec
	CacheRefreshes *prometheus.CounterVec
	CacheEntries   prometheus.Gauge

	// Poll cycle metrics
	CyclesTotal   *prometheus.CounterVec
	CycleDuration prometheus.Histogram
	TrackedTokens prometheus.Gauge

	// Alerting metrics
	AlertsFired       prometheus.Counter
	AlertsSuppressed  *prometheus.CounterVec
	DispatchOutcomes  *prometheus.CounterVec
	DispatchQueueSize *prometheus.GaugeVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "tokenwatch"
	}

	return &Metrics{
		ProviderCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "calls_total",
			Help:      "Total number of provider calls by provider and status",
		}, []string{"provider", "status"}),
		ProviderLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "call_latency_seconds",
			Help:      "Provider call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),

		GovernorOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "governor",
			Name:      "outcomes_total",
			Help:      "Governed call outcomes by provider and classification",
		}, []string{"provider", "outcome"}),
		GovernorRetries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "governor",
			Name:      "retries_total",
			Help:      "Total number of retried provider calls",
		}, []string{"provider"}),

		ReconcileRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconciler",
			Name:      "runs_total",
			Help:      "Reconcile runs by status",
		}, []string{"status"}),
		PartialSnapshots: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconciler",
			Name:      "partial_snapshots_total",
			Help:      "Canonical snapshots built from a subset of providers",
		}),

		CacheReads: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "reads_total",
			Help:      "Cache reads by result (fresh, stale, miss, expired)",
		}, []string{"result"}),
		CacheRefreshes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "refreshes_total",
			Help:      "Cache refreshes by trigger and status",
		}, []string{"trigger", "status"}),
		CacheEntries: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Current number of cache entries",
		}),

		CyclesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "cycles_total",
			Help:      "Poll cycles by status",
		}, []string{"status"}),
		CycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "cycle_duration_seconds",
			Help:      "Poll cycle duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		TrackedTokens: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "tracked_tokens",
			Help:      "Current number of tracked tokens",
		}),

		AlertsFired: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerting",
			Name:      "fired_total",
			Help:      "Total number of alert rule firings",
		}),
		AlertsSuppressed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerting",
			Name:      "suppressed_total",
			Help:      "Evaluations suppressed by reason (held, cooldown, inactive, no_metric)",
		}, []string{"reason"}),
		DispatchOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "outcomes_total",
			Help:      "Notification dispatch outcomes by channel and status",
		}, []string{"channel", "status"}),
		DispatchQueueSize: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "queue_size",
			Help:      "Pending notifications per channel",
		}, []string{"channel"}),

		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordProviderCall records one provider call outcome and latency.
func RecordProviderCall(provider, status string, seconds float64) {
	DefaultMetrics.ProviderCalls.WithLabelValues(provider, status).Inc()
	DefaultMetrics.ProviderLatency.WithLabelValues(provider).Observe(seconds)
}

// RecordGovernorOutcome records the classification of one governed call.
func RecordGovernorOutcome(provider, outcome string) {
	DefaultMetrics.GovernorOutcomes.WithLabelValues(provider, outcome).Inc()
}

// RecordGovernorRetry increments the retry counter for a provider.
func RecordGovernorRetry(provider string) {
	DefaultMetrics.GovernorRetries.WithLabelValues(provider).Inc()
}

// RecordReconcile records one reconcile run.
func RecordReconcile(status string, partial bool) {
	DefaultMetrics.ReconcileRuns.WithLabelValues(status).Inc()
	if partial {
		DefaultMetrics.PartialSnapshots.Inc()
	}
}

// RecordCacheRead records one cache read result.
func RecordCacheRead(result string) {
	DefaultMetrics.CacheReads.WithLabelValues(result).Inc()
}

// RecordCacheRefresh records one cache refresh attempt.
func RecordCacheRefresh(trigger, status string) {
	DefaultMetrics.CacheRefreshes.WithLabelValues(trigger, status).Inc()
}

// SetCacheEntries records the current number of cache entries.
func SetCacheEntries(n int) {
	DefaultMetrics.CacheEntries.Set(float64(n))
}

// RecordCycle records one poll cycle.
func RecordCycle(status string, seconds float64) {
	DefaultMetrics.CyclesTotal.WithLabelValues(status).Inc()
	DefaultMetrics.CycleDuration.Observe(seconds)
}

// RecordAlertFired increments the alert firing counter.
func RecordAlertFired() {
	DefaultMetrics.AlertsFired.Inc()
}

// RecordAlertSuppressed records a skipped or held evaluation.
func RecordAlertSuppressed(reason string) {
	DefaultMetrics.AlertsSuppressed.WithLabelValues(reason).Inc()
}

// RecordDispatch records one notification delivery outcome.
func RecordDispatch(channel, status string) {
	DefaultMetrics.DispatchOutcomes.WithLabelValues(channel, status).Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
