// Copyright (C) 2025 Vertice Code (dev@vertice-code.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package recovery

import (
	"fmt"
	"sync"
	"time"
)

// CircuitState represents the circuit breaker state.
type CircuitState int

const (
	// CircuitClosed is normal operation - recovery attempts pass through.
	CircuitClosed CircuitState = iota
	// CircuitOpen means too many failures - recovery attempts are rejected.
	CircuitOpen
	// CircuitHalfOpen is testing recovery - probing attempts allowed.
	CircuitHalfOpen
)

// String returns a human-readable state name.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the state as its string name.
func (s CircuitState) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// CircuitBreakerConfig configures the circuit breaker behavior.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of failures before opening (default: 5).
	FailureThreshold int

	// SuccessThreshold is successes needed to close from half-open (default: 2).
	SuccessThreshold int

	// Timeout is how long to stay open before probing recovery (default: 60s).
	Timeout time.Duration
}

// DefaultCircuitBreakerConfig returns sensible defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          60 * time.Second,
	}
}

// CircuitSnapshot is a point-in-time view of the circuit breaker.
type CircuitSnapshot struct {
	State           string    `json:"state"`
	FailureCount    int       `json:"failure_count"`
	SuccessCount    int       `json:"success_count"`
	LastFailureTime time.Time `json:"last_failure_time,omitzero"`
}

// CircuitBreaker protects the recovery path from cascading failures.
//
// The circuit breaker pattern blocks recovery attempts after repeated
// failures. It has three states:
//
//   - Closed: Normal operation, attempts pass through. Each success decays
//     the failure count by one, so a flaky-but-recovering dependency heals
//     the breaker slowly instead of tripping it on the next blip.
//   - Open: After FailureThreshold failures, attempts are rejected until
//     Timeout has elapsed since the last failure.
//   - Half-Open: Probing. Successes accumulate toward SuccessThreshold and
//     close the breaker; any failure reopens it immediately.
//
// Thread Safety: Safe for concurrent use.
type CircuitBreaker struct {
	config CircuitBreakerConfig

	mu              sync.Mutex
	state           CircuitState
	failureCount    int
	successCount    int
	lastFailureTime time.Time
}

// NewCircuitBreaker creates a new circuit breaker in the closed state.
//
// Inputs:
//   - config: Circuit breaker configuration. Zero-value thresholds are
//     replaced with defaults.
//
// Outputs:
//   - *CircuitBreaker: Ready to use circuit breaker.
//
// Thread Safety: The returned circuit breaker is safe for concurrent use.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	def := DefaultCircuitBreakerConfig()
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = def.FailureThreshold
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = def.SuccessThreshold
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	return &CircuitBreaker{
		config: config,
		state:  CircuitClosed,
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// ShouldAllowRecovery checks whether a recovery attempt may proceed.
//
// Outputs:
//   - bool: True if the attempt should proceed.
//   - string: Denial reason when blocked, empty otherwise.
//
// While open, the first check after Timeout has elapsed since the last
// failure transitions the breaker to half-open and allows the probing
// attempt. Earlier checks are denied with the remaining wait.
func (cb *CircuitBreaker) ShouldAllowRecovery() (bool, string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return true, ""

	case CircuitOpen:
		elapsed := time.Since(cb.lastFailureTime)
		if elapsed >= cb.config.Timeout {
			cb.state = CircuitHalfOpen
			return true, ""
		}
		remaining := cb.config.Timeout - elapsed
		return false, fmt.Sprintf("circuit breaker open, retry in %s", remaining.Round(time.Second))

	case CircuitHalfOpen:
		return true, ""
	}

	return false, "circuit breaker in unknown state"
}

// RecordSuccess records a successful recovery attempt.
//
// In half-open, SuccessThreshold consecutive successes close the breaker
// and zero both counters. In closed, the failure count decays by one
// (floor zero) so transient bursts heal over time.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.config.SuccessThreshold {
			cb.state = CircuitClosed
			cb.failureCount = 0
			cb.successCount = 0
		}
	case CircuitClosed:
		if cb.failureCount > 0 {
			cb.failureCount--
		}
	}
}

// RecordFailure records a failed recovery attempt.
//
// In closed, reaching FailureThreshold opens the breaker. In half-open,
// any failure reopens it immediately.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++
	cb.successCount = 0
	cb.lastFailureTime = time.Now()

	switch cb.state {
	case CircuitClosed:
		if cb.failureCount >= cb.config.FailureThreshold {
			cb.state = CircuitOpen
		}
	case CircuitHalfOpen:
		cb.state = CircuitOpen
	}
}

// Reset forces the breaker back to closed and zeros all bookkeeping.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = CircuitClosed
	cb.failureCount = 0
	cb.successCount = 0
	cb.lastFailureTime = time.Time{}
}

// Snapshot returns the current breaker state for statistics reporting.
func (cb *CircuitBreaker) Snapshot() CircuitSnapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return CircuitSnapshot{
		State:           cb.state.String(),
		FailureCount:    cb.failureCount,
		SuccessCount:    cb.successCount,
		LastFailureTime: cb.lastFailureTime,
	}
}
