// Copyright (C) 2025 Vertice Code (dev@vertice-code.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/JuanCS-Dev/vertice-code/services/governor/config"
	"github.com/JuanCS-Dev/vertice-code/services/governor/events"
	"github.com/JuanCS-Dev/vertice-code/services/governor/governance"
	"github.com/JuanCS-Dev/vertice-code/services/governor/llm"
	"github.com/JuanCS-Dev/vertice-code/services/governor/permissions"
	"github.com/JuanCS-Dev/vertice-code/services/governor/recovery"
	"github.com/JuanCS-Dev/vertice-code/services/governor/store"
	"github.com/JuanCS-Dev/vertice-code/services/governor/telemetry"
)

var (
	flagConfig  string
	flagVerbose bool
	flagLogJSON bool
)

var rootCmd = &cobra.Command{
	Use:   "vertice",
	Short: "Execution governance and resilience control plane for coding agents",
	Long: `vertice gates risky agent actions behind concurrent policy and counsel
evaluation, and recovers failed actions with categorized retries, circuit
breaking, and oracle-assisted diagnosis.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "path to config YAML (default: built-in defaults)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&flagLogJSON, "log-json", false, "force JSON log output")
}

// setupLogging installs the process-wide slog default. Terminals get the
// text handler; pipes and --log-json get JSON.
func setupLogging() {
	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if !flagLogJSON && isatty.IsTerminal(os.Stderr.Fd()) {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}

// app bundles the wired control plane for a command invocation.
type app struct {
	cfg      *config.Config
	pipeline *governance.Pipeline
	engine   *recovery.Engine
	emitter  *events.Emitter
	registry *permissions.Registry

	shutdownFuncs []func(context.Context) error
}

// shutdown releases every component in reverse construction order.
func (a *app) shutdown(ctx context.Context) {
	for i := len(a.shutdownFuncs) - 1; i >= 0; i-- {
		if err := a.shutdownFuncs[i](ctx); err != nil {
			slog.Warn("Shutdown step failed", slog.String("error", err.Error()))
		}
	}
}

// buildApp wires configuration, telemetry, permissions, evaluators, the
// governance pipeline, and the recovery engine.
//
// The oracle is optional: without an API key the engine still runs, it just
// produces no diagnosis.
func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}

	telCfg := telemetry.DefaultConfig()
	if cfg.Telemetry.TraceExporter != "" {
		telCfg.TraceExporter = cfg.Telemetry.TraceExporter
	}
	if cfg.Telemetry.MetricExporter != "" {
		telCfg.MetricExporter = cfg.Telemetry.MetricExporter
	}
	if cfg.Telemetry.OTLPEndpoint != "" {
		telCfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	}
	telCfg.OTLPInsecure = cfg.Telemetry.OTLPInsecure

	telShutdown, err := telemetry.Init(ctx, telCfg)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	a.shutdownFuncs = append(a.shutdownFuncs, telShutdown)

	a.registry = permissions.NewRegistry()
	a.registry.Grant(governance.RolePolicyEvaluator, governance.PermEvaluateAction)
	a.registry.Grant(governance.RoleCounselEvaluator, governance.PermProvideCounsel)
	if cfg.PermissionsFile != "" {
		if err := a.registry.LoadFile(cfg.PermissionsFile); err != nil {
			return nil, fmt.Errorf("load permissions: %w", err)
		}
		closeWatch, err := a.registry.Watch(cfg.PermissionsFile)
		if err != nil {
			slog.Warn("Permissions hot reload unavailable", slog.String("error", err.Error()))
		} else {
			a.shutdownFuncs = append(a.shutdownFuncs, func(context.Context) error { return closeWatch() })
		}
	}

	a.emitter = events.NewEmitter()

	metrics, err := governance.NewMetrics()
	if err != nil {
		return nil, fmt.Errorf("init governance metrics: %w", err)
	}

	pipeline, err := governance.NewPipeline(
		governance.PipelineConfig{DisableFailSafe: cfg.FailSafeDisabled},
		governance.NewRulePolicy(governance.DefaultRulePolicyConfig()),
		governance.NewKeywordCounsel(),
		a.registry,
		governance.WithEmitter(a.emitter),
		governance.WithMetrics(metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}
	a.pipeline = pipeline

	oracle, err := buildOracle(cfg)
	if err != nil {
		return nil, err
	}

	engCfg := recovery.DefaultEngineConfig()
	if cfg.Recovery.MaxAttempts > 0 {
		engCfg.MaxAttempts = cfg.Recovery.MaxAttempts
	}
	if cfg.Recovery.HistoryLimit > 0 {
		engCfg.HistoryLimit = cfg.Recovery.HistoryLimit
	}
	if d := cfg.Recovery.Retry.BaseDelay.Std(); d > 0 {
		engCfg.Retry.BaseDelay = d
	}
	if d := cfg.Recovery.Retry.MaxDelay.Std(); d > 0 {
		engCfg.Retry.MaxDelay = d
	}
	if cfg.Recovery.Retry.ExpBase > 0 {
		engCfg.Retry.ExpBase = cfg.Recovery.Retry.ExpBase
	}
	engCfg.Retry.Jitter = cfg.Recovery.Retry.Jitter
	if cfg.Recovery.Breaker.FailureThreshold > 0 {
		engCfg.Breaker.FailureThreshold = cfg.Recovery.Breaker.FailureThreshold
	}
	if cfg.Recovery.Breaker.SuccessThreshold > 0 {
		engCfg.Breaker.SuccessThreshold = cfg.Recovery.Breaker.SuccessThreshold
	}
	if d := cfg.Recovery.Breaker.Timeout.Std(); d > 0 {
		engCfg.Breaker.Timeout = d
	}

	engineOpts := []recovery.EngineOption{}
	if cfg.StorePath != "" {
		fixStore, err := store.Open(store.Config{Path: cfg.StorePath})
		if err != nil {
			return nil, fmt.Errorf("open fix store: %w", err)
		}
		a.shutdownFuncs = append(a.shutdownFuncs, func(context.Context) error { return fixStore.Close() })
		engineOpts = append(engineOpts, recovery.WithFixStore(fixStore))
	}

	engine, err := recovery.NewEngine(engCfg, oracle, engineOpts...)
	if err != nil {
		return nil, fmt.Errorf("build recovery engine: %w", err)
	}
	a.engine = engine

	return a, nil
}

// buildOracle creates the reasoning oracle, or a silent stand-in when no
// API key is configured.
func buildOracle(cfg *config.Config) (recovery.ReasoningOracle, error) {
	oracle, err := llm.NewOracle(llm.Config{
		APIKey:            cfg.Oracle.APIKey,
		BaseURL:           cfg.Oracle.BaseURL,
		Model:             cfg.Oracle.Model,
		Temperature:       cfg.Oracle.Temperature,
		MaxTokens:         cfg.Oracle.MaxTokens,
		Timeout:           cfg.Oracle.Timeout.Std(),
		RequestsPerMinute: cfg.Oracle.RequestsPerMinute,
	})
	if err != nil {
		slog.Warn("Reasoning oracle unavailable, recovery runs without diagnosis",
			slog.String("error", err.Error()),
		)
		return noOracle{}, nil
	}
	return oracle, nil
}

// metricsHandler returns the Prometheus scrape handler, or nil when the
// Prometheus exporter is not active.
func metricsHandler() http.Handler {
	return telemetry.MetricsHandler()
}

// noOracle satisfies the oracle interface when no provider is configured.
// Every call fails; the recovery engine absorbs the failure.
type noOracle struct{}

func (noOracle) Generate(context.Context, string, string) (string, error) {
	return "", fmt.Errorf("no reasoning oracle configured")
}
