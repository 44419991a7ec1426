// Copyright (C) 2025 Vertice Code (dev@vertice-code.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package recovery diagnoses failed agent actions and decides how to retry
// them without cascading failure.
//
// The engine categorizes error text, selects a recovery strategy, consults
// a reasoning oracle for a diagnosis and corrected call, and bounds the
// whole process with a retry policy and a circuit breaker.
//
// Thread Safety:
//
//	A RecoveryEngine assumes its bookkeeping is mutated sequentially: one
//	recovery attempt completes before the next starts. Concurrent recovery
//	across independent failure streams needs one engine per stream or
//	external mutual exclusion.
package recovery

// ErrorCategory classifies a failure by its error text.
type ErrorCategory string

const (
	// CategorySyntax is a syntax or parse failure in generated code.
	CategorySyntax ErrorCategory = "SYNTAX"
	// CategoryPermission is a denied filesystem or capability access.
	CategoryPermission ErrorCategory = "PERMISSION"
	// CategoryNotFound is a missing file, path, or resource.
	CategoryNotFound ErrorCategory = "NOT_FOUND"
	// CategoryCommandNotFound is a missing executable.
	CategoryCommandNotFound ErrorCategory = "COMMAND_NOT_FOUND"
	// CategoryTimeout is an operation that exceeded its time budget.
	CategoryTimeout ErrorCategory = "TIMEOUT"
	// CategoryTypeError is a type mismatch reported by a runtime.
	CategoryTypeError ErrorCategory = "TYPE_ERROR"
	// CategoryValueError is an invalid value reported by a runtime.
	CategoryValueError ErrorCategory = "VALUE_ERROR"
	// CategoryNetwork is a connectivity failure.
	CategoryNetwork ErrorCategory = "NETWORK"
	// CategoryUnknown is anything the patterns do not cover.
	CategoryUnknown ErrorCategory = "UNKNOWN"
)

// String returns the category name.
func (c ErrorCategory) String() string {
	return string(c)
}

// RecoveryStrategy is the selected approach for recovering from a failure.
type RecoveryStrategy string

const (
	// StrategyRetryModified retries the same action with corrected arguments.
	StrategyRetryModified RecoveryStrategy = "RETRY_MODIFIED"
	// StrategyRetryAlternative retries with a different action.
	StrategyRetryAlternative RecoveryStrategy = "RETRY_ALTERNATIVE"
	// StrategySuggestPermission surfaces a permission change to the user.
	StrategySuggestPermission RecoveryStrategy = "SUGGEST_PERMISSION"
	// StrategySuggestInstall surfaces a missing dependency to the user.
	StrategySuggestInstall RecoveryStrategy = "SUGGEST_INSTALL"
	// StrategyEscalate hands the failure back to the caller.
	StrategyEscalate RecoveryStrategy = "ESCALATE"
	// StrategyAbort stops recovery entirely.
	StrategyAbort RecoveryStrategy = "ABORT"
)

// String returns the strategy name.
func (s RecoveryStrategy) String() string {
	return string(s)
}

// RecoveryContext carries everything the engine knows about one failure.
//
// A context is transient, created per failure. AttemptNumber never exceeds
// MaxAttempts; the engine escalates instead.
type RecoveryContext struct {
	// AttemptNumber is the current attempt (1-based).
	AttemptNumber int `json:"attempt_number"`

	// MaxAttempts is the hard iteration ceiling.
	MaxAttempts int `json:"max_attempts"`

	// ErrorText is the raw failure text being diagnosed.
	ErrorText string `json:"error_text"`

	// Category is the classified error category.
	Category ErrorCategory `json:"category"`

	// FailedAction is the tool or action that failed.
	FailedAction string `json:"failed_action"`

	// FailedArgs are the arguments of the failed call.
	FailedArgs map[string]any `json:"failed_args,omitempty"`

	// PreviousActions lists recent actions for oracle context.
	PreviousActions []string `json:"previous_actions,omitempty"`

	// UserIntent is what the user originally asked for.
	UserIntent string `json:"user_intent,omitempty"`

	// CorrelationID links the failure to its governance trace.
	CorrelationID string `json:"correlation_id,omitempty"`

	// Diagnosis is the oracle's explanation, filled in by DiagnoseError.
	Diagnosis string `json:"diagnosis,omitempty"`

	// SuggestedFix is the oracle's suggested fix text, if any.
	SuggestedFix string `json:"suggested_fix,omitempty"`

	// Strategy is the selected recovery strategy, if determined.
	Strategy RecoveryStrategy `json:"strategy,omitempty"`
}

// RecoveryResult is the structured outcome of a recovery attempt.
//
// Recovery escalations are always results, never raised errors.
type RecoveryResult struct {
	// Success indicates the engine produced a corrected call to replay.
	Success bool `json:"success"`

	// Recovered indicates the original action itself was re-run and
	// succeeded. The engine only proposes corrections, so this is false
	// until the caller replays the corrected call.
	Recovered bool `json:"recovered"`

	// AttemptsUsed is the number of attempts consumed so far.
	AttemptsUsed int `json:"attempts_used"`

	// CorrectedAction is the action to replay, when Success is true.
	CorrectedAction string `json:"corrected_action,omitempty"`

	// CorrectedArgs are the arguments for the corrected call.
	CorrectedArgs map[string]any `json:"corrected_args,omitempty"`

	// FinalError is the failure text when recovery did not succeed.
	FinalError string `json:"final_error,omitempty"`

	// EscalationReason explains why the failure is being handed back.
	EscalationReason string `json:"escalation_reason,omitempty"`
}
