// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

// Package config holds the application settings. Consumers either
// construct a Config in Go code, or place a storyforge.yaml next to
// their project and call LoadConfig.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all engine settings.
type Config struct {
	// Project scopes persisted graphs and bundles (default "default").
	Project string `yaml:"project"`

	// DatabasePath is the SQLite file location
	// (default ".storyforge/storyforge.db").
	DatabasePath string `yaml:"database_path"`

	// OutputDir is where synthesized artifact files are written
	// (default "artifacts").
	OutputDir string `yaml:"output_dir"`

	// TaxonomyPath overrides the embedded service taxonomy with a YAML
	// file. If empty, the embedded default is used.
	TaxonomyPath string `yaml:"taxonomy_path"`

	// Language is the default free-text language token used when a
	// synthesis call does not name one (default "javascript").
	Language string `yaml:"language"`

	// Oracle configures the generation oracle.
	Oracle OracleConfig `yaml:"oracle"`

	// Verbose enables debug logging.
	Verbose bool `yaml:"verbose"`
}

// OracleConfig selects and bounds the generation oracle. Provider
// "none" disables the oracle entirely; every artifact then comes from
// the template renderer.
type OracleConfig struct {
	// Provider is one of "anthropic", "gemini", or "none"
	// (default "anthropic").
	Provider string `yaml:"provider"`

	// Model overrides the provider's default model.
	Model string `yaml:"model"`

	// APIKeyEnv names the environment variable holding the API key.
	// Defaults to ANTHROPIC_API_KEY or GEMINI_API_KEY per provider.
	APIKeyEnv string `yaml:"api_key_env"`

	// TimeoutSeconds bounds each oracle call (default 30).
	TimeoutSeconds int `yaml:"timeout_seconds"`

	// MaxTokens bounds each completion (default 4096).
	MaxTokens int `yaml:"max_tokens"`
}

// Timeout returns the oracle call deadline as a duration.
func (o OracleConfig) Timeout() time.Duration {
	return time.Duration(o.TimeoutSeconds) * time.Second
}

// APIKey reads the provider key from the configured environment
// variable.
func (o OracleConfig) APIKey() string {
	return os.Getenv(o.APIKeyEnv)
}

func (c *Config) applyDefaults() {
	if c.Project == "" {
		c.Project = "default"
	}
	if c.DatabasePath == "" {
		c.DatabasePath = ".storyforge/storyforge.db"
	}
	if c.OutputDir == "" {
		c.OutputDir = "artifacts"
	}
	if c.Language == "" {
		c.Language = "javascript"
	}
	if c.Oracle.Provider == "" {
		c.Oracle.Provider = "anthropic"
	}
	if c.Oracle.APIKeyEnv == "" {
		switch c.Oracle.Provider {
		case "gemini":
			c.Oracle.APIKeyEnv = "GEMINI_API_KEY"
		default:
			c.Oracle.APIKeyEnv = "ANTHROPIC_API_KEY"
		}
	}
	if c.Oracle.TimeoutSeconds == 0 {
		c.Oracle.TimeoutSeconds = 30
	}
	if c.Oracle.MaxTokens == 0 {
		c.Oracle.MaxTokens = 4096
	}
}

// Validate rejects settings that cannot be acted on.
func (c *Config) Validate() error {
	switch c.Oracle.Provider {
	case "anthropic", "gemini", "none":
	default:
		return fmt.Errorf("unknown oracle provider %q", c.Oracle.Provider)
	}
	if c.Oracle.TimeoutSeconds < 0 {
		return fmt.Errorf("oracle timeout_seconds must be positive, got %d", c.Oracle.TimeoutSeconds)
	}
	return nil
}

// Default returns the configuration used when no file is present.
func Default() Config {
	var cfg Config
	cfg.applyDefaults()
	return cfg
}

// LoadConfig reads a YAML configuration file, applies defaults, and
// validates the result.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config file: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
