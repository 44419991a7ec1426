// Copyright (C) 2025 Vertice Code (dev@vertice-code.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package governance runs the pre-execution gate for risky agent actions.
//
// The pipeline evaluates a blocking policy check and an advisory counsel
// check concurrently, each in an isolated copy of the task context, and
// aggregates them under a fail-safe default-deny.
//
// Thread Safety:
//
//	All exported types in this package are safe for concurrent use.
package governance

import (
	"context"

	"github.com/JuanCS-Dev/vertice-code/services/governor"
)

// Evaluator role and capability identifiers used for registry checks.
const (
	// RolePolicyEvaluator is the capability role of the policy evaluator.
	RolePolicyEvaluator = "policy_evaluator"

	// RoleCounselEvaluator is the capability role of the counsel evaluator.
	RoleCounselEvaluator = "counsel_evaluator"

	// PermEvaluateAction is the capability to evaluate agent actions.
	PermEvaluateAction = "action:evaluate"

	// PermProvideCounsel is the capability to provide advisory counsel.
	PermProvideCounsel = "counsel:provide"
)

// PolicyDecision is the blocking policy evaluator's output.
type PolicyDecision struct {
	// Approved is the policy decision.
	Approved bool

	// Reasoning explains the decision.
	Reasoning string

	// TrustScore is the evaluator's confidence in the agent (0-1).
	TrustScore float64
}

// PolicyEvaluator is the blocking gate: its denial blocks the whole call.
type PolicyEvaluator interface {
	// Evaluate judges an agent action. The evalCtx map is the evaluator's
	// private copy; mutations are never observed by other evaluators.
	Evaluate(ctx context.Context, agentID, actionType, content string, evalCtx map[string]any) (*PolicyDecision, error)
}

// CounselDecision is the advisory counsel evaluator's output.
type CounselDecision struct {
	// CounselType classifies the advice (e.g. "ethical_dilemma").
	CounselType string

	// Confidence is the counsel's confidence in its advice (0-1).
	Confidence float64

	// RequiresProfessional signals that a human should review the action.
	RequiresProfessional bool

	// CounselText is the full advice text.
	CounselText string
}

// CounselEvaluator is advisory-only: its failure is logged and ignored,
// and its verdict never blocks the gated action.
type CounselEvaluator interface {
	// ShouldTriggerCounsel is a cheap heuristic deciding whether the
	// suspending ProvideCounsel call is worth making at all.
	ShouldTriggerCounsel(requestText string) (bool, string)

	// ProvideCounsel produces advice for a high-risk action.
	ProvideCounsel(ctx context.Context, description string, riskLevel governor.RiskLevel, agentID string, evalCtx map[string]any) (*CounselDecision, error)
}

// PermissionRegistry looks up static per-role capability sets.
type PermissionRegistry interface {
	// Enforce returns an error wrapping governor.ErrPermissionDenied when
	// the role lacks the capability.
	Enforce(roleID, permission string) error
}
