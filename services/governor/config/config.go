// Copyright (C) 2025 Vertice Code (dev@vertice-code.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads and validates the governor configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration with human-readable YAML parsing ("30s").
type Duration time.Duration

// UnmarshalYAML parses a duration string like "1s" or "500ms".
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// RetryConfig configures backoff and retry decisions.
type RetryConfig struct {
	BaseDelay Duration `yaml:"base_delay"`
	MaxDelay  Duration `yaml:"max_delay"`
	ExpBase   float64  `yaml:"exp_base" validate:"omitempty,gte=1"`
	Jitter    bool     `yaml:"jitter"`
}

// BreakerConfig configures the recovery circuit breaker.
type BreakerConfig struct {
	FailureThreshold int      `yaml:"failure_threshold" validate:"omitempty,gte=1"`
	SuccessThreshold int      `yaml:"success_threshold" validate:"omitempty,gte=1"`
	Timeout          Duration `yaml:"timeout"`
}

// RecoveryConfig configures the recovery engine.
type RecoveryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts" validate:"omitempty,gte=1,lte=10"`
	HistoryLimit int           `yaml:"history_limit" validate:"omitempty,gte=1"`
	Retry        RetryConfig   `yaml:"retry"`
	Breaker      BreakerConfig `yaml:"breaker"`
}

// OracleConfig configures the reasoning oracle client.
type OracleConfig struct {
	APIKey            string   `yaml:"api_key"`
	BaseURL           string   `yaml:"base_url" validate:"omitempty,url"`
	Model             string   `yaml:"model"`
	Temperature       float32  `yaml:"temperature" validate:"omitempty,gte=0,lte=2"`
	MaxTokens         int      `yaml:"max_tokens" validate:"omitempty,gte=1"`
	Timeout           Duration `yaml:"timeout"`
	RequestsPerMinute int      `yaml:"requests_per_minute" validate:"omitempty,gte=1"`
}

// TelemetryConfig configures tracing and metrics exporters.
type TelemetryConfig struct {
	TraceExporter  string `yaml:"trace_exporter" validate:"omitempty,oneof=otlp stdout none"`
	MetricExporter string `yaml:"metric_exporter" validate:"omitempty,oneof=prometheus stdout none"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
}

// Config is the root governor configuration.
type Config struct {
	// FailSafeDisabled turns off default-deny on evaluation errors.
	FailSafeDisabled bool `yaml:"fail_safe_disabled"`

	// PermissionsFile is the role/capability YAML file.
	PermissionsFile string `yaml:"permissions_file"`

	// StorePath is the learned-fix store directory. Empty disables
	// persistence.
	StorePath string `yaml:"store_path"`

	Recovery  RecoveryConfig  `yaml:"recovery"`
	Oracle    OracleConfig    `yaml:"oracle"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Recovery: RecoveryConfig{
			MaxAttempts:  3,
			HistoryLimit: 100,
			Retry: RetryConfig{
				BaseDelay: Duration(1 * time.Second),
				MaxDelay:  Duration(30 * time.Second),
				ExpBase:   2.0,
				Jitter:    true,
			},
			Breaker: BreakerConfig{
				FailureThreshold: 5,
				SuccessThreshold: 2,
				Timeout:          Duration(60 * time.Second),
			},
		},
		Oracle: OracleConfig{
			Model:             "gpt-4o-mini",
			Temperature:       0.2,
			MaxTokens:         512,
			Timeout:           Duration(30 * time.Second),
			RequestsPerMinute: 30,
		},
		Telemetry: TelemetryConfig{
			TraceExporter:  "none",
			MetricExporter: "none",
		},
	}
}

// Load reads, merges, and validates a configuration file over defaults.
//
// Inputs:
//   - path: The YAML file. Empty returns the defaults unchanged.
//
// Outputs:
//   - *Config: The validated configuration.
//   - error: Non-nil on read, parse, or validation failure.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}
