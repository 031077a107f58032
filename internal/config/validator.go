package config

import (
	"fmt"
)

// ValidateStructure performs the checks the schema cannot express:
// required fields that depend on other fields and duration ranges.
func ValidateStructure(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	if err := validateRemoteConfig(&cfg.Remote); err != nil {
		return fmt.Errorf("remote: %w", err)
	}

	if err := validateSyncConfig(&cfg.Sync); err != nil {
		return fmt.Errorf("sync: %w", err)
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		return fmt.Errorf("metrics: addr is required when enabled")
	}

	return nil
}

func validateRemoteConfig(rc *RemoteConfig) error {
	switch rc.Kind {
	case RemoteHTTP:
		if rc.BaseURL == "" {
			return fmt.Errorf("base_url is required for kind %q", rc.Kind)
		}
	case RemoteDir:
		if rc.Dir == "" {
			return fmt.Errorf("dir is required for kind %q", rc.Kind)
		}
	default:
		return fmt.Errorf("unknown kind %q", rc.Kind)
	}

	if rc.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", rc.Timeout)
	}

	return nil
}

func validateSyncConfig(sc *SyncConfig) error {
	if len(sc.EntityTypes) == 0 {
		return fmt.Errorf("entity_types cannot be empty")
	}
	if _, err := sc.Types(); err != nil {
		return fmt.Errorf("entity_types: %w", err)
	}

	if sc.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative, got %d", sc.Concurrency)
	}
	if sc.Interval < 0 {
		return fmt.Errorf("interval must not be negative, got %s", sc.Interval)
	}

	return nil
}
