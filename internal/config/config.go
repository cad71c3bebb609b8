// Package config provides configuration loading and validation for the
// tokenwatch daemon: provider endpoints and rate limits, retry and
// deadline budgets, cache windows, scoring weights, poll scheduling and
// notification channels.
package config

import (
	"time"
)

// Config is the complete daemon configuration.
type Config struct {
	Environment string `mapstructure:"environment" validate:"required,oneof=development staging production"`
	Debug       bool   `mapstructure:"debug"`

	Log        LogConfig        `mapstructure:"log"`
	Providers  []ProviderConfig `mapstructure:"providers" validate:"min=1,dive"`
	Governor   GovernorConfig   `mapstructure:"governor"`
	Reconciler ReconcilerConfig `mapstructure:"reconciler"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Scoring    ScoringConfig    `mapstructure:"scoring"`
	Monitor    MonitorConfig    `mapstructure:"monitor"`
	Dispatch   DispatchConfig   `mapstructure:"dispatch"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSONOutput bool   `mapstructure:"json_output"`
}

// ProviderConfig holds one upstream provider's endpoint and rate limit.
// Provider priority for reconciliation is the order of appearance in
// the providers list.
type ProviderConfig struct {
	ID          string        `mapstructure:"id" validate:"required"`
	BaseURL     string        `mapstructure:"base_url" validate:"required,url"`
	WSURL       string        `mapstructure:"ws_url"`
	APIKey      string        `mapstructure:"api_key"`
	RPS         float64       `mapstructure:"rps" validate:"gt=0"`
	Burst       int           `mapstructure:"burst" validate:"gt=0"`
	WaitTimeout time.Duration `mapstructure:"wait_timeout"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// GovernorConfig holds the retry policy applied to provider calls.
type GovernorConfig struct {
	MaxRetries  int           `mapstructure:"max_retries" validate:"min=0,max=10"`
	BackoffBase time.Duration `mapstructure:"backoff_base"`
	BackoffMax  time.Duration `mapstructure:"backoff_max"`
}

// ReconcilerConfig bounds the fan-out to all providers.
type ReconcilerConfig struct {
	Deadline time.Duration `mapstructure:"deadline"`
}

// CacheConfig holds the two-tier TTL settings.
type CacheConfig struct {
	FreshnessWindow      time.Duration `mapstructure:"freshness_window"`
	HardExpiryMultiplier int           `mapstructure:"hard_expiry_multiplier" validate:"min=2"`
	Shards               int           `mapstructure:"shards" validate:"min=1"`
}

// ScoringConfig holds the weight table and scoring knobs.
type ScoringConfig struct {
	TopK                   int     `mapstructure:"top_k" validate:"min=1"`
	WeightDistribution     float64 `mapstructure:"weight_distribution"`
	WeightDeployer         float64 `mapstructure:"weight_deployer"`
	WeightHolderCount      float64 `mapstructure:"weight_holder_count"`
	WeightCompleteness     float64 `mapstructure:"weight_completeness"`
	MissingProviderPenalty float64 `mapstructure:"missing_provider_penalty"`
}

// MonitorConfig holds poll loop scheduling.
type MonitorConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Workers      int           `mapstructure:"workers" validate:"min=1"`
	Seeds        []string      `mapstructure:"seeds"`
}

// DispatchConfig holds per-channel notification retry policy.
type DispatchConfig struct {
	WebhookRetries   int           `mapstructure:"webhook_retries" validate:"min=1"`
	TelegramRetries  int           `mapstructure:"telegram_retries" validate:"min=1"`
	RetryBackoff     time.Duration `mapstructure:"retry_backoff"`
	TelegramBotToken string        `mapstructure:"telegram_bot_token"`
	QueueSize        int           `mapstructure:"queue_size" validate:"min=1"`
	Cooldown         time.Duration `mapstructure:"cooldown"`
}

// DatabaseConfig holds store DSNs. Empty DSNs fall back to in-memory
// stores, which is the default for local runs and tests.
type DatabaseConfig struct {
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	ClickhouseDSN string `mapstructure:"clickhouse_dsn"`
}

// MetricsConfig holds the Prometheus endpoint address.
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// GetDefault returns the configuration defaults documented in the
// deployment notes. Provider entries must still be supplied.
func GetDefault() *Config {
	return &Config{
		Environment: "development",
		Log: LogConfig{
			Level: "info",
		},
		Governor: GovernorConfig{
			MaxRetries:  3,
			BackoffBase: 500 * time.Millisecond,
			BackoffMax:  10 * time.Second,
		},
		Reconciler: ReconcilerConfig{
			Deadline: 15 * time.Second,
		},
		Cache: CacheConfig{
			FreshnessWindow:      60 * time.Second,
			HardExpiryMultiplier: 10,
			Shards:               16,
		},
		Scoring: ScoringConfig{
			TopK:                   10,
			WeightDistribution:     0.35,
			WeightDeployer:         0.25,
			WeightHolderCount:      0.20,
			WeightCompleteness:     0.20,
			MissingProviderPenalty: 15,
		},
		Monitor: MonitorConfig{
			PollInterval: 45 * time.Second,
			Workers:      8,
		},
		Dispatch: DispatchConfig{
			WebhookRetries:  3,
			TelegramRetries: 3,
			RetryBackoff:    2 * time.Second,
			QueueSize:       256,
			Cooldown:        5 * time.Minute,
		},
		Metrics: MetricsConfig{
			ListenAddr: ":9090",
		},
	}
}
