// Copyright (C) 2025 Vertice Code (dev@vertice-code.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package recovery

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// scriptedOracle returns a canned reply and counts calls.
type scriptedOracle struct {
	reply string
	err   error
	calls int
}

func (o *scriptedOracle) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	o.calls++
	if o.err != nil {
		return "", o.err
	}
	return o.reply, nil
}

// panicOracle panics on every call.
type panicOracle struct{}

func (panicOracle) Generate(context.Context, string, string) (string, error) {
	panic("oracle exploded")
}

// memFixStore is an in-memory FixStore for tests.
type memFixStore struct {
	fixes   map[string][]string
	readErr error
}

func (s *memFixStore) Fixes(errorText string) ([]string, error) {
	if s.readErr != nil {
		return nil, s.readErr
	}
	return s.fixes[errorText], nil
}

func (s *memFixStore) AppendFix(errorText, fix string) error {
	if s.fixes == nil {
		s.fixes = make(map[string][]string)
	}
	s.fixes[errorText] = append(s.fixes[errorText], fix)
	return nil
}

func newTestEngine(t *testing.T, oracle ReasoningOracle, opts ...EngineOption) *Engine {
	t.Helper()
	e, err := NewEngine(EngineConfig{
		Retry: RetryPolicyConfig{
			BaseDelay: time.Millisecond,
			MaxDelay:  5 * time.Millisecond,
			ExpBase:   2.0,
		},
	}, oracle, opts...)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func TestNewEngine_RequiresOracle(t *testing.T) {
	if _, err := NewEngine(EngineConfig{}, nil); err == nil {
		t.Error("NewEngine(nil oracle) = nil error, want error")
	}
}

func TestEngine_DetermineStrategy(t *testing.T) {
	e := newTestEngine(t, &scriptedOracle{})

	tests := []struct {
		category ErrorCategory
		want     RecoveryStrategy
	}{
		{CategorySyntax, StrategyRetryModified},
		{CategoryTimeout, StrategyRetryModified},
		{CategoryTypeError, StrategyRetryModified},
		{CategoryValueError, StrategyRetryModified},
		{CategoryPermission, StrategySuggestPermission},
		{CategoryNotFound, StrategyRetryAlternative},
		{CategoryNetwork, StrategyRetryAlternative},
		{CategoryCommandNotFound, StrategySuggestInstall},
	}

	for _, tt := range tests {
		rc := &RecoveryContext{ErrorText: "e", AttemptNumber: 1, MaxAttempts: 3}
		if got := e.DetermineStrategy(tt.category, rc); got != tt.want {
			t.Errorf("DetermineStrategy(%v) = %v, want %v", tt.category, got, tt.want)
		}
	}
}

func TestEngine_DetermineStrategy_UnknownCategory(t *testing.T) {
	e := newTestEngine(t, &scriptedOracle{})

	rc := &RecoveryContext{ErrorText: "e", AttemptNumber: 1, MaxAttempts: 3}
	if got := e.DetermineStrategy(CategoryUnknown, rc); got != StrategyRetryModified {
		t.Errorf("DetermineStrategy(unknown, attempts left) = %v, want %v", got, StrategyRetryModified)
	}

	rc = &RecoveryContext{ErrorText: "e", AttemptNumber: 3, MaxAttempts: 3}
	if got := e.DetermineStrategy(CategoryUnknown, rc); got != StrategyEscalate {
		t.Errorf("DetermineStrategy(unknown, exhausted) = %v, want %v", got, StrategyEscalate)
	}
}

// A remembered fix overrides the category table: even a permission error
// becomes a modified retry when this exact error was fixed before.
func TestEngine_DetermineStrategy_LearnedFixOverride(t *testing.T) {
	e := newTestEngine(t, &scriptedOracle{})

	rc := &RecoveryContext{
		ErrorText:     "permission denied: /etc/app.conf",
		Category:      CategoryPermission,
		AttemptNumber: 1,
		MaxAttempts:   3,
		SuggestedFix:  "chmod_file {\"mode\":\"0644\"}",
	}
	e.RecordRecoveryOutcome(rc, true)

	got := e.DetermineStrategy(CategoryPermission, &RecoveryContext{
		ErrorText:     "permission denied: /etc/app.conf",
		AttemptNumber: 1,
		MaxAttempts:   3,
	})
	if got != StrategyRetryModified {
		t.Errorf("DetermineStrategy with learned fix = %v, want %v", got, StrategyRetryModified)
	}
}

func TestEngine_DetermineStrategy_LearnedFixFromStore(t *testing.T) {
	store := &memFixStore{fixes: map[string][]string{
		"dial tcp: connection refused": {"retry_alternative_host"},
	}}
	e := newTestEngine(t, &scriptedOracle{}, WithFixStore(store))

	got := e.DetermineStrategy(CategoryNetwork, &RecoveryContext{
		ErrorText:     "dial tcp: connection refused",
		AttemptNumber: 1,
		MaxAttempts:   3,
	})
	if got != StrategyRetryModified {
		t.Errorf("DetermineStrategy with stored fix = %v, want %v", got, StrategyRetryModified)
	}
}

func TestEngine_DiagnoseError_AbsorbsOracleFailure(t *testing.T) {
	oracle := &scriptedOracle{err: errors.New("api quota exhausted")}
	e := newTestEngine(t, oracle)

	diagnosis, correction := e.DiagnoseError(context.Background(), &RecoveryContext{
		ErrorText: "boom", AttemptNumber: 1, MaxAttempts: 3,
	})
	if diagnosis != "diagnosis unavailable" {
		t.Errorf("diagnosis = %q, want %q", diagnosis, "diagnosis unavailable")
	}
	if correction != nil {
		t.Errorf("correction = %+v, want nil", correction)
	}
}

func TestEngine_AttemptRecovery_CeilingSkipsOracle(t *testing.T) {
	oracle := &scriptedOracle{reply: `Correction: {"action": "x"}`}
	e := newTestEngine(t, oracle)

	result := e.AttemptRecovery(context.Background(), &RecoveryContext{
		ErrorText:     "timeout",
		AttemptNumber: 3,
		MaxAttempts:   3,
	})

	if result.Success {
		t.Error("Success = true at ceiling, want false")
	}
	if !strings.Contains(result.EscalationReason, "max recovery attempts") {
		t.Errorf("EscalationReason = %q, want mention of max attempts", result.EscalationReason)
	}
	if oracle.calls != 0 {
		t.Errorf("oracle calls = %d, want 0", oracle.calls)
	}
}

func TestEngine_AttemptRecovery_CorrectionProposed(t *testing.T) {
	oracle := &scriptedOracle{reply: `Diagnosis: relative path.
Correction: {"action": "read_file", "args": {"path": "/abs/x"}}`}
	e := newTestEngine(t, oracle)

	rc := &RecoveryContext{
		ErrorText:     "no such file or directory: x",
		AttemptNumber: 1,
		MaxAttempts:   3,
	}
	result := e.AttemptRecovery(context.Background(), rc)

	if !result.Success {
		t.Fatalf("Success = false, want true (reason: %s)", result.EscalationReason)
	}
	if result.Recovered {
		t.Error("Recovered = true, want false: the caller replays the correction")
	}
	if result.CorrectedAction != "read_file" {
		t.Errorf("CorrectedAction = %q, want read_file", result.CorrectedAction)
	}
	if rc.Category != CategoryNotFound {
		t.Errorf("Category = %v, want %v", rc.Category, CategoryNotFound)
	}
	if rc.Strategy != StrategyRetryAlternative {
		t.Errorf("Strategy = %v, want %v", rc.Strategy, StrategyRetryAlternative)
	}
	if rc.SuggestedFix == "" {
		t.Error("SuggestedFix not set on the context")
	}
	if rc.Diagnosis == "" {
		t.Error("Diagnosis not set on the context")
	}
}

func TestEngine_AttemptRecovery_NoParsableCorrection(t *testing.T) {
	oracle := &scriptedOracle{reply: "The disk is simply full; nothing to correct."}
	e := newTestEngine(t, oracle)

	result := e.AttemptRecovery(context.Background(), &RecoveryContext{
		ErrorText:     "write failed",
		AttemptNumber: 1,
		MaxAttempts:   3,
	})

	if result.Success {
		t.Error("Success = true, want false without a correction")
	}
	if !strings.Contains(result.EscalationReason, "no parsable correction") {
		t.Errorf("EscalationReason = %q, want mention of parsable correction", result.EscalationReason)
	}
}

func TestEngine_AttemptRecoveryWithBackoff_CircuitOpenDenies(t *testing.T) {
	oracle := &scriptedOracle{reply: `Correction: {"action": "x"}`}
	e, err := NewEngine(EngineConfig{
		Breaker: CircuitBreakerConfig{FailureThreshold: 1, Timeout: time.Hour},
	}, oracle)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	e.Breaker().RecordFailure()

	result := e.AttemptRecoveryWithBackoff(context.Background(), &RecoveryContext{
		ErrorText:     "timeout",
		AttemptNumber: 1,
		MaxAttempts:   3,
	}, errors.New("timeout"))

	if result.Success {
		t.Error("Success = true while circuit open, want false")
	}
	if !strings.Contains(result.EscalationReason, "circuit breaker open") {
		t.Errorf("EscalationReason = %q, want circuit breaker denial", result.EscalationReason)
	}
	if oracle.calls != 0 {
		t.Errorf("oracle calls = %d, want 0", oracle.calls)
	}
	// A denial is not an outcome: the failure count must not grow.
	if snap := e.Breaker().Snapshot(); snap.FailureCount != 1 {
		t.Errorf("FailureCount = %d, want 1", snap.FailureCount)
	}
}

// Five straight non-retryable causes must trip the breaker even though the
// oracle is never consulted; the sixth call is denied by the open circuit.
func TestEngine_AttemptRecoveryWithBackoff_RejectionsTripBreaker(t *testing.T) {
	oracle := &scriptedOracle{reply: `Correction: {"action": "x"}`}
	e, err := NewEngine(EngineConfig{
		Breaker: CircuitBreakerConfig{FailureThreshold: 5, Timeout: time.Hour},
	}, oracle)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	cause := errors.New("401 unauthorized")
	for i := 0; i < 5; i++ {
		result := e.AttemptRecoveryWithBackoff(context.Background(), &RecoveryContext{
			ErrorText:     cause.Error(),
			AttemptNumber: 1,
			MaxAttempts:   3,
		}, cause)
		if result.Success {
			t.Fatalf("attempt %d: Success = true, want rejection", i+1)
		}
		if !strings.Contains(result.EscalationReason, "retry policy rejected") {
			t.Fatalf("attempt %d: EscalationReason = %q", i+1, result.EscalationReason)
		}
	}

	if got := e.Breaker().State(); got != CircuitOpen {
		t.Fatalf("breaker state after 5 rejections = %v, want %v", got, CircuitOpen)
	}

	result := e.AttemptRecoveryWithBackoff(context.Background(), &RecoveryContext{
		ErrorText:     cause.Error(),
		AttemptNumber: 1,
		MaxAttempts:   3,
	}, cause)
	if !strings.Contains(result.EscalationReason, "circuit breaker open") {
		t.Errorf("EscalationReason = %q, want circuit breaker denial", result.EscalationReason)
	}
	if oracle.calls != 0 {
		t.Errorf("oracle calls = %d, want 0", oracle.calls)
	}
}

func TestEngine_AttemptRecoveryWithBackoff_CancelledDuringBackoff(t *testing.T) {
	oracle := &scriptedOracle{reply: `Correction: {"action": "x"}`}
	// A long base delay keeps the backoff pending so the cancelled context
	// always wins the select.
	e, err := NewEngine(EngineConfig{
		Retry: RetryPolicyConfig{BaseDelay: time.Minute, MaxDelay: time.Minute},
	}, oracle)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := e.AttemptRecoveryWithBackoff(ctx, &RecoveryContext{
		ErrorText:     "timeout",
		AttemptNumber: 2, // triggers the backoff suspension
		MaxAttempts:   3,
	}, errors.New("timeout"))

	if result.Success {
		t.Error("Success = true after cancellation, want false")
	}
	if !strings.Contains(result.EscalationReason, "cancelled during backoff") {
		t.Errorf("EscalationReason = %q, want backoff cancellation", result.EscalationReason)
	}
	if oracle.calls != 0 {
		t.Errorf("oracle calls = %d, want 0", oracle.calls)
	}
	// Cancellation leaves the breaker untouched.
	if snap := e.Breaker().Snapshot(); snap.FailureCount != 0 {
		t.Errorf("FailureCount = %d, want 0", snap.FailureCount)
	}
}

func TestEngine_AttemptRecoveryWithBackoff_OutcomeReachesBreaker(t *testing.T) {
	t.Run("success decays failure count", func(t *testing.T) {
		oracle := &scriptedOracle{reply: `Correction: {"action": "x"}`}
		e := newTestEngine(t, oracle)

		e.Breaker().RecordFailure()

		result := e.AttemptRecoveryWithBackoff(context.Background(), &RecoveryContext{
			ErrorText:     "timeout",
			AttemptNumber: 1,
			MaxAttempts:   3,
		}, errors.New("timeout"))
		if !result.Success {
			t.Fatalf("Success = false: %s", result.EscalationReason)
		}
		if snap := e.Breaker().Snapshot(); snap.FailureCount != 0 {
			t.Errorf("FailureCount = %d, want 0 after decay", snap.FailureCount)
		}
	})

	t.Run("failure increments failure count", func(t *testing.T) {
		oracle := &scriptedOracle{reply: "no correction here"}
		e := newTestEngine(t, oracle)

		result := e.AttemptRecoveryWithBackoff(context.Background(), &RecoveryContext{
			ErrorText:     "timeout",
			AttemptNumber: 1,
			MaxAttempts:   3,
		}, errors.New("timeout"))
		if result.Success {
			t.Fatal("Success = true, want false")
		}
		if snap := e.Breaker().Snapshot(); snap.FailureCount != 1 {
			t.Errorf("FailureCount = %d, want 1", snap.FailureCount)
		}
	})
}

// The recovery boundary never panics, whatever the oracle does.
func TestEngine_AttemptRecoveryWithBackoff_OraclePanicContained(t *testing.T) {
	e := newTestEngine(t, panicOracle{})

	result := e.AttemptRecoveryWithBackoff(context.Background(), &RecoveryContext{
		ErrorText:     "timeout",
		AttemptNumber: 1,
		MaxAttempts:   3,
	}, errors.New("timeout"))

	if result == nil {
		t.Fatal("result = nil, want failed result")
	}
	if result.Success {
		t.Error("Success = true after panic, want false")
	}
	if !strings.Contains(result.EscalationReason, "internal error") {
		t.Errorf("EscalationReason = %q, want internal error", result.EscalationReason)
	}
}

func TestEngine_Statistics(t *testing.T) {
	store := &memFixStore{}
	e := newTestEngine(t, &scriptedOracle{}, WithFixStore(store))

	e.RecordRecoveryOutcome(&RecoveryContext{
		ErrorText:     "timeout",
		Category:      CategoryTimeout,
		AttemptNumber: 1,
		SuggestedFix:  "retry_request",
	}, true)
	e.RecordRecoveryOutcome(&RecoveryContext{
		ErrorText:     "timeout",
		Category:      CategoryTimeout,
		AttemptNumber: 2,
	}, false)
	e.RecordRecoveryOutcome(&RecoveryContext{
		ErrorText:     "permission denied",
		Category:      CategoryPermission,
		AttemptNumber: 1,
	}, false)

	stats := e.GetStatistics()

	if stats.TotalOutcomes != 3 {
		t.Errorf("TotalOutcomes = %d, want 3", stats.TotalOutcomes)
	}
	if stats.TotalSuccesses != 1 {
		t.Errorf("TotalSuccesses = %d, want 1", stats.TotalSuccesses)
	}
	if want := 1.0 / 3.0; stats.SuccessRate != want {
		t.Errorf("SuccessRate = %v, want %v", stats.SuccessRate, want)
	}
	if stats.LearnedFixCount != 1 {
		t.Errorf("LearnedFixCount = %d, want 1", stats.LearnedFixCount)
	}
	if len(stats.TopErrors) != 2 {
		t.Fatalf("TopErrors = %v, want 2 entries", stats.TopErrors)
	}
	if stats.TopErrors[0].ErrorText != "timeout" || stats.TopErrors[0].Count != 2 {
		t.Errorf("TopErrors[0] = %+v, want timeout x2", stats.TopErrors[0])
	}
	if stats.CircuitBreaker.State != "closed" {
		t.Errorf("CircuitBreaker.State = %q, want closed", stats.CircuitBreaker.State)
	}

	// The successful fix must have reached the persistent store too.
	if got := store.fixes["timeout"]; len(got) != 1 || got[0] != "retry_request" {
		t.Errorf("store fixes = %v, want [retry_request]", got)
	}
}

func TestEngine_Statistics_HistoryBounded(t *testing.T) {
	e, err := NewEngine(EngineConfig{HistoryLimit: 5}, &scriptedOracle{})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	for i := 0; i < 20; i++ {
		e.RecordRecoveryOutcome(&RecoveryContext{ErrorText: "e", AttemptNumber: 1}, false)
	}

	e.stats.mu.Lock()
	n := len(e.stats.history)
	e.stats.mu.Unlock()
	if n != 5 {
		t.Errorf("history length = %d, want 5", n)
	}
	if stats := e.GetStatistics(); stats.TotalOutcomes != 20 {
		t.Errorf("TotalOutcomes = %d, want 20 (totals outlive the bounded history)", stats.TotalOutcomes)
	}
}
