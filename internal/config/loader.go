package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Loader handles configuration loading from file and environment.
type Loader struct {
	validator *validator.Validate
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{validator: validator.New()}
}

// Load loads configuration with priority: environment variables over
// config file over defaults.
func Load(path string) (*Config, error) {
	return NewLoader().LoadConfig(path)
}

// LoadConfig loads and validates the configuration. path may be empty,
// in which case only the default search paths are consulted.
func (l *Loader) LoadConfig(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("tokenwatch")
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/tokenwatch")
	}

	v.SetEnvPrefix("TOKENWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine when no explicit path was given;
		// env + defaults still apply.
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := GetDefault()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	l.applyProviderDefaults(cfg)

	if err := l.validator.Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// applyProviderDefaults fills per-provider zero values with the
// documented defaults so a minimal config stays short.
func (l *Loader) applyProviderDefaults(cfg *Config) {
	for i := range cfg.Providers {
		p := &cfg.Providers[i]
		if p.RPS == 0 {
			p.RPS = 10
		}
		if p.Burst == 0 {
			p.Burst = int(p.RPS)
			if p.Burst < 1 {
				p.Burst = 1
			}
		}
		if p.WaitTimeout == 0 {
			p.WaitTimeout = 5 * time.Second
		}
		if p.Timeout == 0 {
			p.Timeout = 10 * time.Second
		}
	}
}

// ProviderPriority returns provider IDs in reconciliation priority
// order (order of appearance in the providers list).
func (c *Config) ProviderPriority() []string {
	ids := make([]string, len(c.Providers))
	for i, p := range c.Providers {
		ids[i] = p.ID
	}
	return ids
}
