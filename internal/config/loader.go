package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load reads, validates and defaults the configuration file at path.
// Relative database, log file and export paths are resolved against the
// directory of the file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	base := filepath.Dir(path)
	cfg.Database = resolve(base, cfg.Database)
	cfg.Logging.File = resolve(base, cfg.Logging.File)
	cfg.Remote.Dir = resolve(base, cfg.Remote.Dir)

	return cfg, nil
}

// Parse decodes a YAML document, validates it against the schema, applies
// defaults and runs the cross-field checks.
func Parse(data []byte) (*Config, error) {
	cfg, err := parseConfig(data)
	if err != nil {
		return nil, err
	}

	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}
	if err := validateSchema(doc); err != nil {
		return nil, err
	}

	setDefaults(cfg)

	if err := ValidateStructure(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseConfig decodes YAML into a Config, rejecting unknown keys. An empty
// document yields the zero Config.
func parseConfig(data []byte) (*Config, error) {
	var cfg Config

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &cfg, nil
}

func resolve(base, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}
