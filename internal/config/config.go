// Package config provides configuration for driftwatch.
// Configuration is loaded from (highest to lowest priority):
// 1. Environment variables (DRIFTWATCH_*)
// 2. Tool config (<workgraph dir>/.driftwatch/config.yaml)
// 3. Defaults
//
// The classifier thresholds and the hardening vocabulary live here rather
// than as constants: keyword drift detection is a tunable heuristic, and
// the red/yellow boundaries are policy, not protocol.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all driftwatch configuration.
type Config struct {
	// Output controls the default output format (text, json).
	Output string `yaml:"output" json:"output"`

	// Verbose enables debug logging.
	Verbose bool `yaml:"verbose" json:"verbose"`

	// Rules tunes the diff classifier and scorer.
	Rules RulesConfig `yaml:"rules" json:"rules"`

	// MonitorInterval is the monitor poll interval in seconds.
	MonitorInterval int `yaml:"monitor_interval" json:"monitor_interval"`

	// RedirectInterval is the redirector poll interval in seconds.
	RedirectInterval int `yaml:"redirect_interval" json:"redirect_interval"`

	// DebounceMillis is the quiet period after a filesystem event before
	// the monitor re-checks (monitor --on-change).
	DebounceMillis int `yaml:"debounce_millis" json:"debounce_millis"`
}

// RulesConfig tunes drift classification.
type RulesConfig struct {
	// HardeningTerms is the signal vocabulary scanned in added lines when a
	// core-mode contract is active. Case-insensitive substring match.
	HardeningTerms []string `yaml:"hardening_terms" json:"hardening_terms"`

	// ScopeLowBelow and ScopeMediumBelow bound the out-of-scope fraction
	// for low and medium severity; anything at or above ScopeMediumBelow
	// is high.
	ScopeLowBelow    float64 `yaml:"scope_low_below" json:"scope_low_below"`
	ScopeMediumBelow float64 `yaml:"scope_medium_below" json:"scope_medium_below"`

	// ChurnHighRatio is the budget overage ratio above which a churn
	// finding is high severity instead of medium.
	ChurnHighRatio float64 `yaml:"churn_high_ratio" json:"churn_high_ratio"`

	// DependencyManifests lists filenames treated as dependency manifests
	// or lockfiles for dependency-drift detection.
	DependencyManifests []string `yaml:"dependency_manifests" json:"dependency_manifests"`
}

// ConfigFileName is the tool config file under the .driftwatch directory.
const ConfigFileName = "config.yaml"

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Output:           "text",
		Verbose:          false,
		MonitorInterval:  30,
		RedirectInterval: 5,
		DebounceMillis:   750,
		Rules: RulesConfig{
			HardeningTerms: []string{
				"fallback",
				"retry",
				"backoff",
				"timeout",
				"graceful",
				"guardrail",
				"defensive",
				"best effort",
				"silently",
				"swallow",
				"except exception",
				"catch (",
			},
			ScopeLowBelow:    0.2,
			ScopeMediumBelow: 0.5,
			ChurnHighRatio:   1.5,
			DependencyManifests: []string{
				"package.json",
				"package-lock.json",
				"pnpm-lock.yaml",
				"yarn.lock",
				"bun.lockb",
				"Cargo.toml",
				"Cargo.lock",
				"go.mod",
				"go.sum",
				"requirements.txt",
				"requirements-dev.txt",
				"pyproject.toml",
				"Pipfile",
				"Pipfile.lock",
				"poetry.lock",
				"Gemfile",
				"Gemfile.lock",
			},
		},
	}
}

// Load loads configuration for the tool directory (typically
// <wgdir>/.driftwatch). Missing files are not an error; a malformed file is.
func Load(toolDir string) (*Config, error) {
	cfg := Default()

	path := filepath.Join(toolDir, ConfigFileName)
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Defaults only.
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("DRIFTWATCH_OUTPUT")); v != "" {
		cfg.Output = v
	}
	if v := strings.TrimSpace(os.Getenv("DRIFTWATCH_VERBOSE")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Verbose = b
		}
	}
	if v := strings.TrimSpace(os.Getenv("DRIFTWATCH_MONITOR_INTERVAL")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MonitorInterval = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("DRIFTWATCH_REDIRECT_INTERVAL")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RedirectInterval = n
		}
	}
}

func (c *Config) validate() error {
	if c.Rules.ScopeLowBelow <= 0 || c.Rules.ScopeMediumBelow <= c.Rules.ScopeLowBelow {
		return fmt.Errorf("scope severity bounds must satisfy 0 < low < medium, got %v/%v",
			c.Rules.ScopeLowBelow, c.Rules.ScopeMediumBelow)
	}
	if c.Rules.ChurnHighRatio < 1 {
		return fmt.Errorf("churn_high_ratio must be >= 1, got %v", c.Rules.ChurnHighRatio)
	}
	if c.MonitorInterval <= 0 || c.RedirectInterval <= 0 {
		return fmt.Errorf("poll intervals must be positive")
	}
	return nil
}
