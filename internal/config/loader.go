// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hjson/hjson-go/v4"
	"gopkg.in/yaml.v3"
)

// Loader handles configuration file loading.
type Loader struct{}

// NewLoader creates a new config loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load reads and parses the configuration from the given path.
// Files ending in .yaml or .yml are parsed as YAML, everything else as HJSON.
func (l *Loader) Load(ctx context.Context, path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var raw map[string]interface{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	default:
		if err := hjson.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse hjson: %w", err)
		}
	}

	// Round-trip through JSON so both formats share the struct tags
	jsonData, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("convert to json: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(jsonData, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Relative paths in the file are relative to the file, not the cwd
	base := filepath.Dir(path)
	if cfg.DataDir != "" && !filepath.IsAbs(cfg.DataDir) {
		cfg.DataDir = filepath.Join(base, cfg.DataDir)
	}
	if cfg.Store.Path != "" && !filepath.IsAbs(cfg.Store.Path) {
		cfg.Store.Path = filepath.Join(base, cfg.Store.Path)
	}

	return &cfg, nil
}

// LoadWithDefaults loads config with default values applied.
func (l *Loader) LoadWithDefaults(ctx context.Context, path string) (*Config, error) {
	cfg, err := l.Load(ctx, path)
	if err != nil {
		return nil, err
	}

	ApplyDefaults(cfg)
	return cfg, nil
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// FindConfig searches for a config file in the current directory.
func (l *Loader) FindConfig() (string, error) {
	candidates := []string{
		"instancehub.hjson",
		"instancehub.json",
		"instancehub.yaml",
		"instancehub.yml",
	}

	for _, name := range candidates {
		path := filepath.Join(".", name)
		if _, err := os.Stat(path); err == nil {
			abs, err := filepath.Abs(path)
			if err != nil {
				return path, nil
			}
			return abs, nil
		}
	}

	return "", fmt.Errorf("config file not found (looked for %s)", strings.Join(candidates, ", "))
}

// ApplyDefaults sets default values for missing config fields.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 7733
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}

	if cfg.DataDir == "" {
		cfg.DataDir = ".instancehub"
	}

	if cfg.Store.Backend == "" {
		cfg.Store.Backend = StoreFile
	}
	if cfg.Store.Path == "" {
		if cfg.Store.Backend == StoreSQLite {
			cfg.Store.Path = filepath.Join(cfg.DataDir, "hub.db")
		} else {
			cfg.Store.Path = filepath.Join(cfg.DataDir, "hub.json")
		}
	}

	if len(cfg.Shell.Command) == 0 {
		cfg.Shell.Command = DefaultShell()
	}

	if cfg.Console.Encoding == "" {
		cfg.Console.Encoding = DefaultEncoding()
	}
	if cfg.Console.AlarmPatterns == nil {
		cfg.Console.AlarmPatterns = []string{"error", "traceback"}
	}
	if cfg.Console.BlinkInterval == "" {
		cfg.Console.BlinkInterval = "500ms"
	}

	if cfg.Events.History.MaxEvents == 0 {
		cfg.Events.History.MaxEvents = 10000
	}
	if cfg.Events.History.MaxAge == "" {
		cfg.Events.History.MaxAge = "1h"
	}
	if cfg.Events.History.MaxPerInstance == 0 {
		cfg.Events.History.MaxPerInstance = 1000
	}

	if cfg.Monitor.Debounce == "" {
		cfg.Monitor.Debounce = "100ms"
	}
}
