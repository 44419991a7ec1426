// Copyright (C) 2025 Vertice Code (dev@vertice-code.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package governor

import "time"

// EvaluationVerdict is one evaluator's decision about a task.
type EvaluationVerdict struct {
	// Evaluator names the evaluator that produced this verdict.
	Evaluator string `json:"evaluator"`

	// Approved is the evaluator's decision.
	Approved bool `json:"approved"`

	// Reason explains a denial, or notes degraded evaluation.
	Reason string `json:"reason,omitempty"`

	// TrustScore is the evaluator's confidence in the agent (0-1).
	TrustScore float64 `json:"trust_score"`

	// Timestamp is when the verdict was produced.
	Timestamp time.Time `json:"timestamp"`
}

// CounselVerdict is the advisory evaluator's output. It is recorded on the
// trace but never blocks the gated action.
type CounselVerdict struct {
	// Triggered is true when counsel was actually consulted.
	Triggered bool `json:"triggered"`

	// CounselType classifies the advice (e.g. "ethical_dilemma").
	CounselType string `json:"counsel_type,omitempty"`

	// Confidence is the counsel's confidence in its advice (0-1).
	Confidence float64 `json:"confidence,omitempty"`

	// RequiresProfessional signals that a human should review the action.
	RequiresProfessional bool `json:"requires_professional,omitempty"`

	// Preview is a truncated excerpt of the counsel text.
	Preview string `json:"preview,omitempty"`
}

// GovernanceTrace records one pre-execution check. A fresh trace is created
// per call and returned to the caller; the pipeline does not persist it.
type GovernanceTrace struct {
	// CorrelationID is the opaque token threading this check through
	// concurrent sub-operations and into external observability tooling.
	CorrelationID string `json:"correlation_id"`

	// StartedAt is when the check began.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the check finished.
	CompletedAt time.Time `json:"completed_at"`

	// GovernanceCheck is the blocking policy evaluator's verdict.
	GovernanceCheck *EvaluationVerdict `json:"governance_check,omitempty"`

	// CounselCheck is the advisory counsel evaluator's verdict.
	CounselCheck *CounselVerdict `json:"counsel_check,omitempty"`

	// Approved is the aggregated decision.
	Approved bool `json:"approved"`
}
