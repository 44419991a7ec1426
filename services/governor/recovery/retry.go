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
	"math"
	"math/rand"
	"strings"
	"time"
)

// RetryPolicyConfig configures backoff and retry decisions.
type RetryPolicyConfig struct {
	// BaseDelay is the delay before the first retry. Default: 1s.
	BaseDelay time.Duration

	// MaxDelay caps the computed backoff. Default: 30s.
	MaxDelay time.Duration

	// ExpBase is the exponential growth factor. Default: 2.0.
	ExpBase float64

	// Jitter adds up to 25% random extra delay when true. Jitter only
	// grows the delay, never shrinks it.
	Jitter bool
}

// DefaultRetryPolicyConfig returns sensible defaults for retry behavior.
func DefaultRetryPolicyConfig() RetryPolicyConfig {
	return RetryPolicyConfig{
		BaseDelay: 1 * time.Second,
		MaxDelay:  30 * time.Second,
		ExpBase:   2.0,
		Jitter:    true,
	}
}

// jitterFraction is the maximum additive jitter as a fraction of the delay.
const jitterFraction = 0.25

// transientPatterns mark errors expected to succeed on retry.
var transientPatterns = []string{
	"timeout",
	"timed out",
	"connection",
	"temporary",
	"temporarily",
	"unavailable",
	"rate limit",
	"too many requests",
	"429",
	"500",
	"502",
	"503",
	"504",
}

// permanentPatterns mark errors that will not succeed on retry.
var permanentPatterns = []string{
	"not found",
	"404",
	"401",
	"403",
	"unauthorized",
	"forbidden",
	"malformed",
	"syntax error",
	"invalid syntax",
}

// RetryPolicy is a pure decision function over attempt counters and error
// text: how long to back off, and whether retrying is worthwhile at all.
//
// Thread Safety: Safe for concurrent use; the policy holds no mutable state.
type RetryPolicy struct {
	config RetryPolicyConfig
}

// NewRetryPolicy creates a retry policy. Zero-value config fields are
// replaced with defaults.
func NewRetryPolicy(config RetryPolicyConfig) *RetryPolicy {
	def := DefaultRetryPolicyConfig()
	if config.BaseDelay <= 0 {
		config.BaseDelay = def.BaseDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = def.MaxDelay
	}
	if config.ExpBase < 1.0 {
		config.ExpBase = def.ExpBase
	}
	return &RetryPolicy{config: config}
}

// GetDelay computes the backoff delay before attempt n (1-based).
//
// The delay is min(base * expBase^(n-1), maxDelay). With jitter enabled,
// up to 25% of the delay is added on top; jitter never reduces the delay.
func (p *RetryPolicy) GetDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := float64(p.config.BaseDelay) * math.Pow(p.config.ExpBase, float64(attempt-1))
	if delay > float64(p.config.MaxDelay) {
		delay = float64(p.config.MaxDelay)
	}

	if p.config.Jitter {
		delay += delay * jitterFraction * rand.Float64()
	}

	return time.Duration(delay)
}

// ShouldRetry decides whether a failed attempt is worth retrying.
//
// Inputs:
//   - attempt: The attempt number that just failed (1-based).
//   - maxAttempts: The hard attempt ceiling.
//   - err: The failure. May be nil.
//
// Outputs:
//   - bool: True if another attempt should be made.
//
// The decision order is: attempt ceiling, cancellation/termination class,
// transient text patterns (retry), permanent text patterns (give up), and
// finally an optimistic default of retrying unknown errors.
func (p *RetryPolicy) ShouldRetry(attempt, maxAttempts int, err error) bool {
	if attempt >= maxAttempts {
		return false
	}
	if err == nil {
		return false
	}

	// Cancellation is a caller decision, never retried.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	text := strings.ToLower(err.Error())
	if strings.Contains(text, "interrupt") || strings.Contains(text, "killed") {
		return false
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(text, pattern) {
			return true
		}
	}
	for _, pattern := range permanentPatterns {
		if strings.Contains(text, pattern) {
			return false
		}
	}

	// Unknown errors are retried optimistically, favoring availability.
	return true
}
