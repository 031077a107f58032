package config

import "time"

// Default values for configuration fields.
const (
	// DefaultDatabase is the default SQLite database path.
	DefaultDatabase = "replica.db"

	// DefaultLogLevel is the default log level.
	DefaultLogLevel = "info"

	// DefaultLogFormat is the default log format.
	DefaultLogFormat = "text"

	// DefaultLogMaxSizeMB is the default rotation size of the log file.
	DefaultLogMaxSizeMB = 100

	// DefaultLogMaxBackups is the default number of rotated log files kept.
	DefaultLogMaxBackups = 3

	// DefaultRemoteTimeout is the default per-request timeout.
	DefaultRemoteTimeout = 60 * time.Second

	// DefaultPageSize is the default number of items per page.
	DefaultPageSize = 100

	// DefaultConcurrency is the default number of concurrent cycles.
	DefaultConcurrency = 4

	// DefaultInterval is the default pause between daemon sync runs.
	DefaultInterval = 5 * time.Minute

	// DefaultMetricsAddr is the default listen address of the metrics server.
	DefaultMetricsAddr = ":9090"
)

// Default returns a configuration with every default applied and no
// entity types.
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

// setDefaults applies default values to unset configuration fields.
// This modifies the config in-place and should be called after parsing
// the configuration and before validation.
func setDefaults(cfg *Config) {
	if cfg.Database == "" {
		cfg.Database = DefaultDatabase
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLogFormat
	}
	if cfg.Logging.MaxSizeMB == 0 {
		cfg.Logging.MaxSizeMB = DefaultLogMaxSizeMB
	}
	if cfg.Logging.MaxBackups == 0 {
		cfg.Logging.MaxBackups = DefaultLogMaxBackups
	}

	// Remote defaults
	if cfg.Remote.Kind == "" {
		cfg.Remote.Kind = RemoteHTTP
		if cfg.Remote.Dir != "" && cfg.Remote.BaseURL == "" {
			cfg.Remote.Kind = RemoteDir
		}
	}
	if cfg.Remote.Timeout == 0 {
		cfg.Remote.Timeout = DefaultRemoteTimeout
	}
	if cfg.Remote.PageSize == 0 {
		cfg.Remote.PageSize = DefaultPageSize
	}

	// Sync defaults
	if cfg.Sync.Concurrency == 0 {
		cfg.Sync.Concurrency = DefaultConcurrency
	}
	if cfg.Sync.Interval == 0 {
		cfg.Sync.Interval = DefaultInterval
	}

	// Metrics defaults
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = DefaultMetricsAddr
	}
}
