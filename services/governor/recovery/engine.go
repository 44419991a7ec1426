// Copyright (C) 2025 Vertice Code (dev@vertice-code.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package recovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope for recovery spans.
const tracerName = "github.com/JuanCS-Dev/vertice-code/services/governor/recovery"

// ReasoningOracle produces a free-form diagnosis for a failed action.
//
// Implementations wrap an LLM provider. Any failure from the oracle is
// absorbed by the engine as "diagnosis unavailable" and never propagated.
type ReasoningOracle interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// FixStore persists learned fixes across engine instances.
//
// A nil store keeps learned fixes in memory only.
type FixStore interface {
	// Fixes returns previously successful fixes for the exact error text.
	Fixes(errorText string) ([]string, error)

	// AppendFix records a fix that led to a successful recovery.
	AppendFix(errorText, fix string) error
}

// EngineConfig configures a RecoveryEngine.
type EngineConfig struct {
	// MaxAttempts is the hard recovery iteration ceiling (default: 3).
	MaxAttempts int

	// HistoryLimit bounds the in-memory outcome history (default: 100).
	HistoryLimit int

	// Retry configures the backoff and retry policy.
	Retry RetryPolicyConfig

	// Breaker configures the circuit breaker.
	Breaker CircuitBreakerConfig
}

// DefaultEngineConfig returns sensible defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxAttempts:  3,
		HistoryLimit: 100,
		Retry:        DefaultRetryPolicyConfig(),
		Breaker:      DefaultCircuitBreakerConfig(),
	}
}

// Engine diagnoses failed agent actions and proposes bounded retries.
//
// The engine owns one long-lived RetryPolicy and CircuitBreaker whose state
// persists across attempts. Recovery contexts and results are transient per
// attempt; outcomes are archived into a bounded history that feeds the
// learned-fix memory.
//
// Thread Safety: The engine's counters assume recovery attempts are
// sequential per instance. Statistics reads may be concurrent.
type Engine struct {
	config  EngineConfig
	oracle  ReasoningOracle
	retry   *RetryPolicy
	breaker *CircuitBreaker
	store   FixStore
	logger  *slog.Logger
	tracer  trace.Tracer

	stats recoveryStats
}

// NewEngine creates a recovery engine.
//
// Inputs:
//   - config: Engine configuration. Zero values are replaced with defaults.
//   - oracle: The reasoning oracle used for diagnosis. Must not be nil.
//   - opts: Optional dependencies (logger, fix store).
//
// Outputs:
//   - *Engine: Ready to use engine.
//   - error: Non-nil if oracle is nil.
func NewEngine(config EngineConfig, oracle ReasoningOracle, opts ...EngineOption) (*Engine, error) {
	if oracle == nil {
		return nil, errors.New("reasoning oracle must not be nil")
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultEngineConfig().MaxAttempts
	}
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = DefaultEngineConfig().HistoryLimit
	}

	e := &Engine{
		config:  config,
		oracle:  oracle,
		retry:   NewRetryPolicy(config.Retry),
		breaker: NewCircuitBreaker(config.Breaker),
		logger:  slog.Default(),
		tracer:  otel.Tracer(tracerName),
	}
	e.stats.init(config.HistoryLimit)

	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// EngineOption configures optional engine dependencies.
type EngineOption func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithFixStore sets a persistent learned-fix store.
func WithFixStore(store FixStore) EngineOption {
	return func(e *Engine) {
		e.store = store
	}
}

// Breaker exposes the engine's circuit breaker, for callers that need to
// reset it after operator intervention.
func (e *Engine) Breaker() *CircuitBreaker {
	return e.breaker
}

// Policy exposes the engine's retry policy.
func (e *Engine) Policy() *RetryPolicy {
	return e.retry
}

// DetermineStrategy selects a recovery strategy for a categorized failure.
//
// A previously successful fix recorded for this exact error text wins over
// the category table: the engine prefers replaying what worked before.
// Unmapped categories retry while attempts remain, then escalate.
func (e *Engine) DetermineStrategy(category ErrorCategory, rc *RecoveryContext) RecoveryStrategy {
	if e.hasLearnedFix(rc.ErrorText) {
		return StrategyRetryModified
	}

	switch category {
	case CategorySyntax, CategoryTimeout, CategoryTypeError, CategoryValueError:
		return StrategyRetryModified
	case CategoryPermission:
		return StrategySuggestPermission
	case CategoryNotFound, CategoryNetwork:
		return StrategyRetryAlternative
	case CategoryCommandNotFound:
		return StrategySuggestInstall
	}

	if rc.AttemptNumber < rc.MaxAttempts {
		return StrategyRetryModified
	}
	return StrategyEscalate
}

// diagnosisSystemPrompt frames the oracle as a debugging assistant that
// answers with a diagnosis line and a labeled JSON correction.
const diagnosisSystemPrompt = `You are a debugging assistant for a coding agent.
A tool call failed. Explain the most likely root cause in one or two sentences,
then, if a corrected call could succeed, emit exactly one line of the form:

Correction: {"action": "<tool name>", "args": {...}}

If no corrected call can help, omit the Correction line entirely.`

// maxPreviousActions caps how many prior actions are sent to the oracle.
const maxPreviousActions = 3

// DiagnoseError asks the reasoning oracle why the action failed.
//
// Inputs:
//   - ctx: Context for cancellation.
//   - rc: The failure being diagnosed.
//
// Outputs:
//   - string: The diagnosis text. "diagnosis unavailable" when the oracle
//     fails; oracle failures are absorbed, never propagated.
//   - *Correction: The corrected call, or nil when none was parsable.
func (e *Engine) DiagnoseError(ctx context.Context, rc *RecoveryContext) (string, *Correction) {
	reply, err := e.oracle.Generate(ctx, diagnosisSystemPrompt, buildDiagnosisPrompt(rc))
	if err != nil {
		e.logger.Warn("Reasoning oracle failed, continuing without diagnosis",
			slog.String("correlation_id", rc.CorrelationID),
			slog.String("error", err.Error()),
		)
		return "diagnosis unavailable", nil
	}

	correction, ok := ExtractCorrection(reply)
	if !ok {
		return strings.TrimSpace(reply), nil
	}
	return strings.TrimSpace(reply), correction
}

// buildDiagnosisPrompt renders the failure context for the oracle.
func buildDiagnosisPrompt(rc *RecoveryContext) string {
	var b strings.Builder

	fmt.Fprintf(&b, "User intent: %s\n", rc.UserIntent)
	fmt.Fprintf(&b, "Failed action: %s\n", rc.FailedAction)
	if len(rc.FailedArgs) > 0 {
		if args, err := json.Marshal(rc.FailedArgs); err == nil {
			fmt.Fprintf(&b, "Arguments: %s\n", args)
		}
	}
	fmt.Fprintf(&b, "Error (%s): %s\n", rc.Category, rc.ErrorText)
	fmt.Fprintf(&b, "Attempt %d of %d\n", rc.AttemptNumber, rc.MaxAttempts)

	if len(rc.PreviousActions) > 0 {
		prev := rc.PreviousActions
		if len(prev) > maxPreviousActions {
			prev = prev[len(prev)-maxPreviousActions:]
		}
		fmt.Fprintf(&b, "Recent actions: %s\n", strings.Join(prev, ", "))
	}

	return b.String()
}

// AttemptRecovery runs one diagnosis-driven recovery attempt.
//
// Description:
//
//	The attempt ceiling is enforced first: at or beyond MaxAttempts the
//	result is a failure with an escalation reason and the oracle is never
//	consulted. ESCALATE and ABORT strategies short-circuit the same way.
//	Otherwise the oracle is asked for a diagnosis; a parsable correction
//	yields Success=true with Recovered=false, because the caller must
//	replay the corrected call itself.
//
// Inputs:
//
//	ctx - Context for cancellation of the oracle call.
//	rc - The failure context. Category is filled from ErrorText if unset.
//
// Outputs:
//
//	*RecoveryResult - Always non-nil; escalations are results, not errors.
func (e *Engine) AttemptRecovery(ctx context.Context, rc *RecoveryContext) *RecoveryResult {
	if rc.Category == "" {
		rc.Category = CategorizeError(rc.ErrorText)
	}

	if rc.AttemptNumber >= rc.MaxAttempts {
		return &RecoveryResult{
			AttemptsUsed:     rc.AttemptNumber,
			FinalError:       rc.ErrorText,
			EscalationReason: fmt.Sprintf("max recovery attempts reached (%d)", rc.MaxAttempts),
		}
	}

	strategy := e.DetermineStrategy(rc.Category, rc)
	rc.Strategy = strategy

	switch strategy {
	case StrategyEscalate, StrategyAbort:
		return &RecoveryResult{
			AttemptsUsed:     rc.AttemptNumber,
			FinalError:       rc.ErrorText,
			EscalationReason: fmt.Sprintf("strategy %s selected for %s error", strategy, rc.Category),
		}
	}

	diagnosis, correction := e.DiagnoseError(ctx, rc)
	rc.Diagnosis = diagnosis

	if correction == nil {
		return &RecoveryResult{
			AttemptsUsed:     rc.AttemptNumber,
			FinalError:       rc.ErrorText,
			EscalationReason: "oracle produced no parsable correction",
		}
	}

	rc.SuggestedFix = correctionFixText(correction)

	e.logger.Info("Recovery correction proposed",
		slog.String("correlation_id", rc.CorrelationID),
		slog.String("category", rc.Category.String()),
		slog.String("strategy", strategy.String()),
		slog.String("corrected_action", correction.Action),
		slog.Int("attempt", rc.AttemptNumber),
	)

	return &RecoveryResult{
		Success:         true,
		Recovered:       false,
		AttemptsUsed:    rc.AttemptNumber,
		CorrectedAction: correction.Action,
		CorrectedArgs:   correction.Args,
	}
}

// AttemptRecoveryWithBackoff is the resilience-gated recovery entry point.
//
// Description:
//
//	Gates are applied in order: circuit breaker (a denial returns
//	immediately with no diagnosis), retry policy (permanent-looking causes
//	are rejected without diagnosis), then a cancellable backoff suspension
//	for attempts after the first. The outcome is reported to the circuit
//	breaker - success iff a correction was produced - unless the context
//	was cancelled, in which case no breaker bookkeeping happens at all.
//
//	This method never panics or returns an error: every internal failure
//	is converted into a failed RecoveryResult.
//
// Inputs:
//
//	ctx - Context for cancellation. The engine imposes no global timeout;
//	any overall deadline belongs to the caller.
//	rc - The failure context.
//	cause - The original failure, used for the retry decision. When nil,
//	rc.ErrorText is used.
//
// Outputs:
//
//	*RecoveryResult - Always non-nil.
func (e *Engine) AttemptRecoveryWithBackoff(ctx context.Context, rc *RecoveryContext, cause error) (result *RecoveryResult) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Recovery attempt panicked",
				slog.String("correlation_id", rc.CorrelationID),
				slog.Any("panic", r),
			)
			result = &RecoveryResult{
				AttemptsUsed:     rc.AttemptNumber,
				FinalError:       fmt.Sprintf("internal recovery failure: %v", r),
				EscalationReason: "recovery engine internal error",
			}
		}
	}()

	ctx, span := e.tracer.Start(ctx, "recovery.AttemptRecoveryWithBackoff",
		trace.WithAttributes(
			attribute.Int("recovery.attempt", rc.AttemptNumber),
			attribute.String("recovery.category", rc.Category.String()),
		))
	defer span.End()

	if allowed, reason := e.breaker.ShouldAllowRecovery(); !allowed {
		span.SetAttributes(attribute.String("recovery.denied_by", "circuit_breaker"))
		return &RecoveryResult{
			AttemptsUsed:     rc.AttemptNumber,
			FinalError:       rc.ErrorText,
			EscalationReason: reason,
		}
	}

	if cause == nil {
		cause = errors.New(rc.ErrorText)
	}
	if !e.retry.ShouldRetry(rc.AttemptNumber, rc.MaxAttempts, cause) {
		span.SetAttributes(attribute.String("recovery.denied_by", "retry_policy"))
		// A policy rejection is a definitive failed outcome: repeated
		// rejections must still trip the breaker.
		e.breaker.RecordFailure()
		return &RecoveryResult{
			AttemptsUsed:     rc.AttemptNumber,
			FinalError:       rc.ErrorText,
			EscalationReason: "retry policy rejected the error as not retryable",
		}
	}

	if rc.AttemptNumber > 1 {
		delay := e.retry.GetDelay(rc.AttemptNumber - 1)
		e.logger.Debug("Backing off before recovery attempt",
			slog.String("correlation_id", rc.CorrelationID),
			slog.Int("attempt", rc.AttemptNumber),
			slog.Duration("delay", delay),
		)
		select {
		case <-ctx.Done():
			// Cancellation records nothing on the breaker.
			return &RecoveryResult{
				AttemptsUsed:     rc.AttemptNumber,
				FinalError:       ctx.Err().Error(),
				EscalationReason: "recovery cancelled during backoff",
			}
		case <-time.After(delay):
		}
	}

	result = e.AttemptRecovery(ctx, rc)

	// A cancelled oracle call is not a definitive outcome; the breaker
	// only learns from real successes and failures.
	if ctx.Err() != nil && !result.Success {
		return result
	}

	if result.Success {
		e.breaker.RecordSuccess()
	} else {
		e.breaker.RecordFailure()
	}

	return result
}

// correctionFixText renders a correction as the fix text stored in the
// learned-fix memory.
func correctionFixText(c *Correction) string {
	if len(c.Args) == 0 {
		return c.Action
	}
	args, err := json.Marshal(c.Args)
	if err != nil {
		return c.Action
	}
	return fmt.Sprintf("%s %s", c.Action, args)
}

// hasLearnedFix reports whether a successful fix is on record for the
// exact error text, consulting memory first and the store second.
func (e *Engine) hasLearnedFix(errorText string) bool {
	if e.stats.hasFix(errorText) {
		return true
	}
	if e.store == nil {
		return false
	}
	fixes, err := e.store.Fixes(errorText)
	if err != nil {
		e.logger.Warn("Learned-fix store read failed", slog.String("error", err.Error()))
		return false
	}
	return len(fixes) > 0
}
