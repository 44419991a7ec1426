// Copyright (C) 2025 Vertice Code (dev@vertice-code.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package events provides event types and handling for the governance
// control plane.
//
// Events allow external systems to observe governance decisions and
// recovery outcomes without coupling to the pipeline implementation.
//
// Thread Safety:
//
//	All types in this package are designed for concurrent use.
package events

import "time"

// Type identifies the kind of event.
type Type string

const (
	// TypeEscalation is emitted when counsel flags an action for human
	// review. Escalations never block the action itself.
	TypeEscalation Type = "escalation"

	// TypeDenial is emitted when the governance pipeline blocks an action.
	TypeDenial Type = "denial"

	// TypeRecoveryExhausted is emitted when recovery runs out of attempts.
	TypeRecoveryExhausted Type = "recovery_exhausted"

	// TypeCircuitOpened is emitted when the recovery circuit breaker opens.
	TypeCircuitOpened Type = "circuit_opened"
)

// Event represents a governance event.
//
// Thread Safety: Event structs should be treated as immutable after
// creation.
type Event struct {
	// ID is a unique identifier for this event.
	ID string `json:"id"`

	// Type identifies the kind of event.
	Type Type `json:"type"`

	// CorrelationID links the event to a governance trace.
	CorrelationID string `json:"correlation_id,omitempty"`

	// AgentID identifies the agent whose action produced the event.
	AgentID string `json:"agent_id,omitempty"`

	// Message is a human-readable description.
	Message string `json:"message,omitempty"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`
}

// Handler is a function that processes events.
type Handler func(event Event)
