// Package config loads node configuration from defaults, an optional
// config file, DRIVE_ environment variables and command line flags.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/blockberries/drive/dpp/isolation"
	"github.com/blockberries/drive/ratelimit"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "DRIVE"

// Config is the node configuration.
type Config struct {
	// ListenAddr is where the consensus-facing gRPC service listens.
	ListenAddr string `mapstructure:"listen-addr" validate:"required"`
	// MetricsAddr is where /metrics is served. Empty disables the server.
	MetricsAddr string `mapstructure:"metrics-addr" validate:"omitempty,hostname_port"`
	// UpdateStateAddr is the address of the remote state service.
	UpdateStateAddr string `mapstructure:"update-state-addr" validate:"required,hostname_port"`
	// DataDir holds the identity database. Empty keeps it in memory.
	DataDir           string `mapstructure:"data-dir"`
	ContractCacheSize int    `mapstructure:"contract-cache-size" validate:"gt=0"`
	LogLevel          string `mapstructure:"log-level" validate:"oneof=trace debug info warn error"`
	LogFormat         string `mapstructure:"log-format" validate:"oneof=json console"`

	RateLimiter RateLimiterConfig `mapstructure:"rate-limiter"`
	Isolation   IsolationConfig   `mapstructure:"isolation"`
}

// RateLimiterConfig enables and sizes the per-submitter quota.
type RateLimiterConfig struct {
	Enabled          bool `mapstructure:"enabled"`
	ratelimit.Config `mapstructure:",squash"`
}

// IsolationConfig runs the protocol engine in the sandbox.
type IsolationConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	MemoryLimitMB uint64        `mapstructure:"memory-limit-mb" validate:"gt=0"`
	Timeout       time.Duration `mapstructure:"timeout" validate:"gt=0"`
	MaxSessions   int64         `mapstructure:"max-sessions" validate:"gte=0"`
}

// Options returns the sandbox options described by c.
func (c IsolationConfig) Options() isolation.Options {
	opts := isolation.DefaultOptions()
	opts.MemoryLimitBytes = c.MemoryLimitMB << 20
	opts.Timeout = c.Timeout
	opts.MaxSessions = c.MaxSessions
	return opts
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	isolated := isolation.DefaultOptions()
	return Config{
		ListenAddr:        "127.0.0.1:26658",
		MetricsAddr:       "127.0.0.1:9090",
		UpdateStateAddr:   "127.0.0.1:26670",
		DataDir:           "",
		ContractCacheSize: 500,
		LogLevel:          "info",
		LogFormat:         "json",
		RateLimiter: RateLimiterConfig{
			Enabled: true,
			Config:  ratelimit.DefaultConfig(),
		},
		Isolation: IsolationConfig{
			Enabled:       true,
			MemoryLimitMB: isolated.MemoryLimitBytes >> 20,
			Timeout:       isolated.Timeout,
			MaxSessions:   isolated.MaxSessions,
		},
	}
}

var configValidator = validator.New()

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.RateLimiter.Enabled {
		if err := c.RateLimiter.Config.Validate(); err != nil {
			return err
		}
	}
	if c.Isolation.Enabled {
		if err := c.Isolation.Options().Validate(); err != nil {
			return fmt.Errorf("invalid isolation config: %w", err)
		}
	}
	return nil
}
