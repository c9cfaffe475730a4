// Package config loads runtime configuration for the darkgrid service from
// an optional YAML file with environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// TelemetryConfig tunes the OpenTelemetry exporters.
type TelemetryConfig struct {
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
	Traces   bool   `yaml:"traces"`
	Metrics  bool   `yaml:"metrics"`
}

// Config captures runtime configuration for the darkgrid service.
type Config struct {
	Listen           string          `yaml:"listen"`
	DatabaseDSN      string          `yaml:"database"`
	Env              string          `yaml:"env"`
	DevMode          bool            `yaml:"dev_mode"`
	LogFile          string          `yaml:"log_file"`
	Seed             uint32          `yaml:"seed"`
	RulesetVersion   string          `yaml:"ruleset_version"`
	ActionsPerMinute float64         `yaml:"actions_rate_per_minute"`
	ActionsRateBurst int             `yaml:"actions_rate_burst"`
	ShutdownGrace    Duration        `yaml:"shutdown_grace"`
	Telemetry        TelemetryConfig `yaml:"telemetry"`
}

// Default returns the development configuration.
func Default() Config {
	return Config{
		Listen:           ":8080",
		DatabaseDSN:      "darkgrid.db",
		Env:              "dev",
		DevMode:          true,
		Seed:             1337,
		RulesetVersion:   "season1",
		ActionsPerMinute: 120,
		ActionsRateBurst: 10,
		ShutdownGrace:    Duration{10 * time.Second},
	}
}

// Load reads the YAML file at path when non-empty, then applies environment
// overrides (DARKGRID_*).
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}
	applyEnv(&cfg)
	if strings.TrimSpace(cfg.Listen) == "" {
		return cfg, fmt.Errorf("listen address is required")
	}
	if strings.TrimSpace(cfg.DatabaseDSN) == "" {
		return cfg, fmt.Errorf("database dsn is required")
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("DARKGRID_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("DARKGRID_DB_DSN"); v != "" {
		cfg.DatabaseDSN = v
	}
	if v := os.Getenv("DARKGRID_ENV"); v != "" {
		cfg.Env = v
	}
	if v := os.Getenv("DARKGRID_DEV_MODE"); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			cfg.DevMode = parsed
		}
	}
	if v := os.Getenv("DARKGRID_LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	if v := os.Getenv("DARKGRID_SEED"); v != "" {
		if parsed, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.Seed = uint32(parsed)
		}
	}
	if v := os.Getenv("DARKGRID_RULESET_VERSION"); v != "" {
		cfg.RulesetVersion = v
	}
	if v := os.Getenv("DARKGRID_OTEL_ENDPOINT"); v != "" {
		cfg.Telemetry.Endpoint = v
		cfg.Telemetry.Traces = true
	}
}
