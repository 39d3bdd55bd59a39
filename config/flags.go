package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Flag names. Each maps to the config key of the same setting.
const (
	flagConfigFile        = "config"
	flagListenAddr        = "listen-addr"
	flagMetricsAddr       = "metrics-addr"
	flagUpdateStateAddr   = "update-state-addr"
	flagDataDir           = "data-dir"
	flagContractCacheSize = "contract-cache-size"
	flagLogLevel          = "log-level"
	flagLogFormat         = "log-format"
	// rate limiter
	flagRateLimiterEnabled      = "rate-limiter-enabled"
	flagRateLimiterQuota        = "rate-limiter-quota"
	flagRateLimiterWindowSize   = "rate-limiter-window-size"
	flagRateLimiterBanThreshold = "rate-limiter-ban-threshold"
	flagRateLimiterBanWindows   = "rate-limiter-ban-windows"
	flagRateLimiterBannedKey    = "rate-limiter-banned-key"
	flagRateLimiterUserTagKey   = "rate-limiter-user-tag-key"
	// isolation
	flagIsolationEnabled     = "isolation-enabled"
	flagIsolationMemoryLimit = "isolation-memory-limit-mb"
	flagIsolationTimeout     = "isolation-timeout"
	flagIsolationMaxSessions = "isolation-max-sessions"
)

// flagKeys maps flag names to config keys.
var flagKeys = map[string]string{
	flagListenAddr:              "listen-addr",
	flagMetricsAddr:             "metrics-addr",
	flagUpdateStateAddr:         "update-state-addr",
	flagDataDir:                 "data-dir",
	flagContractCacheSize:       "contract-cache-size",
	flagLogLevel:                "log-level",
	flagLogFormat:               "log-format",
	flagRateLimiterEnabled:      "rate-limiter.enabled",
	flagRateLimiterQuota:        "rate-limiter.quota",
	flagRateLimiterWindowSize:   "rate-limiter.window-size",
	flagRateLimiterBanThreshold: "rate-limiter.ban-threshold",
	flagRateLimiterBanWindows:   "rate-limiter.ban-windows",
	flagRateLimiterBannedKey:    "rate-limiter.banned-key",
	flagRateLimiterUserTagKey:   "rate-limiter.user-tag-key",
	flagIsolationEnabled:        "isolation.enabled",
	flagIsolationMemoryLimit:    "isolation.memory-limit-mb",
	flagIsolationTimeout:        "isolation.timeout",
	flagIsolationMaxSessions:    "isolation.max-sessions",
}

// InitializeFlags adds every setting to flags, with the values of
// defaults as flag defaults.
func InitializeFlags(flags *pflag.FlagSet, defaults Config) {
	flags.String(flagConfigFile, "", "path to a config file (yaml, toml or json)")
	flags.String(flagListenAddr, defaults.ListenAddr, "address the consensus gRPC service listens on")
	flags.String(flagMetricsAddr, defaults.MetricsAddr, "address /metrics is served on, empty to disable")
	flags.String(flagUpdateStateAddr, defaults.UpdateStateAddr, "address of the remote state service")
	flags.String(flagDataDir, defaults.DataDir, "directory of the identity database, empty for in-memory")
	flags.Int(flagContractCacheSize, defaults.ContractCacheSize, "number of data contracts kept in the cache")
	flags.String(flagLogLevel, defaults.LogLevel, "log level (trace, debug, info, warn, error)")
	flags.String(flagLogFormat, defaults.LogFormat, "log format (json, console)")

	flags.Bool(flagRateLimiterEnabled, defaults.RateLimiter.Enabled, "enable the per-submitter rate limiter")
	flags.Uint32(flagRateLimiterQuota, defaults.RateLimiter.Quota, "transactions a submitter may send per window")
	flags.Uint64(flagRateLimiterWindowSize, defaults.RateLimiter.WindowSize, "blocks per rate limiter window")
	flags.Uint32(flagRateLimiterBanThreshold, defaults.RateLimiter.BanThreshold, "exceeded windows before a submitter is banned")
	flags.Uint64(flagRateLimiterBanWindows, defaults.RateLimiter.BanWindows, "ban length in windows")
	flags.String(flagRateLimiterBannedKey, defaults.RateLimiter.BannedKey, "tag key listing banned submitters")
	flags.String(flagRateLimiterUserTagKey, defaults.RateLimiter.UserTagKey, "tag key carrying the submitter of a transaction")

	flags.Bool(flagIsolationEnabled, defaults.Isolation.Enabled, "run the protocol engine in the isolated sandbox")
	flags.Uint64(flagIsolationMemoryLimit, defaults.Isolation.MemoryLimitMB, "sandbox memory limit per call in MiB")
	flags.Duration(flagIsolationTimeout, defaults.Isolation.Timeout, "sandbox timeout per call")
	flags.Int64(flagIsolationMaxSessions, defaults.Isolation.MaxSessions, "concurrent sandbox sessions, 0 for unbounded")
}

// Load resolves the configuration from v and flags. Flags take
// precedence over the environment, which takes precedence over the
// config file and the defaults.
func Load(v *viper.Viper, flags *pflag.FlagSet) (Config, error) {
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			flag := flags.Lookup(name)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return Config{}, fmt.Errorf("could not bind flag %s: %w", name, err)
			}
		}
		if file, err := flags.GetString(flagConfigFile); err == nil && file != "" {
			v.SetConfigFile(file)
		}
	}

	if v.ConfigFileUsed() != "" {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("could not read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("could not decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("listen-addr", c.ListenAddr)
	v.SetDefault("metrics-addr", c.MetricsAddr)
	v.SetDefault("update-state-addr", c.UpdateStateAddr)
	v.SetDefault("data-dir", c.DataDir)
	v.SetDefault("contract-cache-size", c.ContractCacheSize)
	v.SetDefault("log-level", c.LogLevel)
	v.SetDefault("log-format", c.LogFormat)

	v.SetDefault("rate-limiter.enabled", c.RateLimiter.Enabled)
	v.SetDefault("rate-limiter.quota", c.RateLimiter.Quota)
	v.SetDefault("rate-limiter.window-size", c.RateLimiter.WindowSize)
	v.SetDefault("rate-limiter.ban-threshold", c.RateLimiter.BanThreshold)
	v.SetDefault("rate-limiter.ban-windows", c.RateLimiter.BanWindows)
	v.SetDefault("rate-limiter.banned-key", c.RateLimiter.BannedKey)
	v.SetDefault("rate-limiter.user-tag-key", c.RateLimiter.UserTagKey)

	v.SetDefault("isolation.enabled", c.Isolation.Enabled)
	v.SetDefault("isolation.memory-limit-mb", c.Isolation.MemoryLimitMB)
	v.SetDefault("isolation.timeout", c.Isolation.Timeout)
	v.SetDefault("isolation.max-sessions", c.Isolation.MaxSessions)
}
