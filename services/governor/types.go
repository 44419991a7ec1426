// Copyright (C) 2025 Vertice Code (dev@vertice-code.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package governor provides the execution governance and resilience control
// plane for the Vertice Code agent.
//
// The control plane decides whether a risky agent action is allowed to start
// (parallel policy/advisory evaluation under a fail-safe default-deny) and
// how a failed action is diagnosed and retried without cascading failure
// (categorization, bounded retry with backoff, circuit breaking).
//
// Thread Safety:
//
//	All exported types in this package are designed for concurrent use
//	unless noted otherwise.
package governor

import (
	"context"
	"time"
)

// RiskLevel classifies how dangerous a proposed agent action is.
//
// Higher levels trigger additional advisory evaluation before execution.
type RiskLevel string

const (
	// RiskLow is for read-only or trivially reversible actions.
	RiskLow RiskLevel = "LOW"

	// RiskMedium is for actions with contained side effects.
	RiskMedium RiskLevel = "MEDIUM"

	// RiskHigh is for actions that modify state outside the workspace.
	RiskHigh RiskLevel = "HIGH"

	// RiskCritical is for destructive or irreversible actions.
	RiskCritical RiskLevel = "CRITICAL"
)

// String returns the risk level as a string.
func (r RiskLevel) String() string {
	return string(r)
}

// Valid reports whether the risk level is one of the defined values.
func (r RiskLevel) Valid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return true
	}
	return false
}

// Task is a unit of agent work submitted to the governance pipeline.
//
// The Context map carries caller-supplied key/value pairs that are copied
// (never shared) into each evaluator. It must be acyclic; the pipeline
// rejects tasks whose context contains reference cycles.
type Task struct {
	// RequestText is the user-facing description of the action.
	RequestText string `json:"request_text"`

	// Context holds additional key/value context for evaluators.
	Context map[string]any `json:"context,omitempty"`

	// CorrelationID threads one logical operation across concurrent
	// sub-operations. Assigned by the pipeline when empty.
	CorrelationID string `json:"correlation_id,omitempty"`
}

// Response is the outcome of executing a governed task.
type Response struct {
	// Success indicates whether the worker completed without error.
	Success bool `json:"success"`

	// Reasoning is the worker's explanation of what it did, or the
	// governance denial reason when the task was blocked.
	Reasoning string `json:"reasoning,omitempty"`

	// Error holds the failure description when Success is false.
	Error string `json:"error,omitempty"`

	// Data holds worker-specific output.
	Data map[string]any `json:"data,omitempty"`

	// CorrelationID links the response to its governance trace.
	CorrelationID string `json:"correlation_id,omitempty"`

	// Trace is the governance trace for the call, attached so no context
	// is lost when a worker fails.
	Trace *GovernanceTrace `json:"trace,omitempty"`

	// CompletedAt is when the response was produced.
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

// Worker executes an approved task.
//
// Implementations are the governed tool surface (file edits, shell commands,
// git operations). The pipeline never invokes a worker for a denied task.
type Worker interface {
	// Execute runs the task. A non-nil error is converted by the pipeline
	// into a failure Response; it never escapes to the caller.
	Execute(ctx context.Context, task *Task) (*Response, error)
}

// WorkerFunc adapts a function to the Worker interface.
type WorkerFunc func(ctx context.Context, task *Task) (*Response, error)

// Execute implements Worker.
func (f WorkerFunc) Execute(ctx context.Context, task *Task) (*Response, error) {
	return f(ctx, task)
}
