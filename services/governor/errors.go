// Copyright (C) 2025 Vertice Code (dev@vertice-code.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package governor

import "errors"

// Sentinel errors for the governance control plane.
var (
	// ErrNilTask indicates a nil task was submitted.
	ErrNilTask = errors.New("task must not be nil")

	// ErrEmptyAgentID indicates the agent identifier was empty.
	ErrEmptyAgentID = errors.New("agent id must not be empty")

	// ErrInvalidRiskLevel indicates a risk level outside the defined enum.
	ErrInvalidRiskLevel = errors.New("invalid risk level")

	// ErrCircularContext indicates the task context map contains a
	// reference cycle or exceeds the maximum nesting depth.
	ErrCircularContext = errors.New("task context contains a reference cycle")

	// ErrPermissionDenied indicates a role lacks a required capability.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrCircuitOpen indicates the circuit breaker rejected an operation.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrNilContext indicates a nil context.Context was passed.
	ErrNilContext = errors.New("context must not be nil")
)
