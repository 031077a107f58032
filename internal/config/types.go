// Package config provides configuration loading and validation for the
// replica binary.
//
// A configuration file is YAML. Loading runs in four steps:
//  1. strict YAML decoding (unknown keys are rejected)
//  2. validation against the embedded CUE schema
//  3. defaults for unset fields
//  4. cross-field validation in Go
package config

import (
	"os"
	"time"

	"github.com/roach88/replica/internal/entity"
)

// Config is the complete replica configuration.
type Config struct {
	// Database is the path of the local SQLite database.
	Database string `yaml:"database"`

	Logging LoggingConfig `yaml:"logging"`
	Remote  RemoteConfig  `yaml:"remote"`
	Sync    SyncConfig    `yaml:"sync"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is text or json.
	Format string `yaml:"format"`

	// File, when set, receives logs instead of stderr and is rotated.
	File string `yaml:"file"`

	// MaxSizeMB is the size at which File is rotated.
	MaxSizeMB int `yaml:"max_size_mb"`

	// MaxBackups is the number of rotated files kept.
	MaxBackups int `yaml:"max_backups"`
}

// Remote source kinds.
const (
	RemoteHTTP = "http"
	RemoteDir  = "dir"
)

// RemoteConfig selects and configures the remote source.
type RemoteConfig struct {
	// Kind is http or dir. Inferred from the other fields when empty.
	Kind string `yaml:"kind"`

	// BaseURL is the API root for the http kind.
	BaseURL string `yaml:"base_url"`

	// Dir is the export root for the dir kind.
	Dir string `yaml:"dir"`

	// Timeout bounds a single HTTP request.
	Timeout time.Duration `yaml:"timeout"`

	// TokenEnv names the environment variable holding the bearer token.
	TokenEnv string `yaml:"token_env"`

	// PageSize is the number of items requested per page.
	PageSize int `yaml:"page_size"`
}

// Token returns the bearer token, or "" when none is configured.
func (r RemoteConfig) Token() string {
	if r.TokenEnv == "" {
		return ""
	}
	return os.Getenv(r.TokenEnv)
}

// SyncConfig configures what is synced and how often.
type SyncConfig struct {
	// EntityTypes lists the collections to sync.
	EntityTypes []string `yaml:"entity_types"`

	// Concurrency bounds how many cycles run at once.
	Concurrency int `yaml:"concurrency"`

	// Interval is the daemon's pause between sync runs.
	Interval time.Duration `yaml:"interval"`
}

// Types returns the configured entity types.
func (s SyncConfig) Types() ([]entity.Type, error) {
	return entity.ParseTypes(s.EntityTypes)
}

// MetricsConfig configures the Prometheus endpoint of the daemon.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}
