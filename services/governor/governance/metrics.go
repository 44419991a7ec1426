// Copyright (C) 2025 Vertice Code (dev@vertice-code.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package governance

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope for governance metrics.
const meterName = "github.com/JuanCS-Dev/vertice-code/services/governor/governance"

// Metrics contains pre-defined metrics for the governance pipeline.
//
// All metrics use the "governor_" prefix for consistent naming.
//
// Thread Safety: Safe for concurrent use after creation.
type Metrics struct {
	// DecisionsTotal counts pre-execution checks by decision and risk level.
	DecisionsTotal metric.Int64Counter

	// CheckDuration records pre-execution check duration in seconds.
	CheckDuration metric.Float64Histogram

	// WorkerExecutionsTotal counts governed worker runs by agent and status.
	WorkerExecutionsTotal metric.Int64Counter

	// EscalationsTotal counts counsel escalations by agent.
	EscalationsTotal metric.Int64Counter
}

// NewMetrics creates governance metrics on the global meter provider.
//
// Outputs:
//   - *Metrics: Ready to use metrics.
//   - error: Non-nil if any instrument fails to register.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.DecisionsTotal, err = meter.Int64Counter(
		"governor_decisions_total",
		metric.WithDescription("Total pre-execution governance decisions"),
	)
	if err != nil {
		return nil, fmt.Errorf("create decisions counter: %w", err)
	}

	m.CheckDuration, err = meter.Float64Histogram(
		"governor_check_duration_seconds",
		metric.WithDescription("Pre-execution check duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create check duration histogram: %w", err)
	}

	m.WorkerExecutionsTotal, err = meter.Int64Counter(
		"governor_worker_executions_total",
		metric.WithDescription("Total governed worker executions"),
	)
	if err != nil {
		return nil, fmt.Errorf("create worker executions counter: %w", err)
	}

	m.EscalationsTotal, err = meter.Int64Counter(
		"governor_escalations_total",
		metric.WithDescription("Total counsel escalations recorded"),
	)
	if err != nil {
		return nil, fmt.Errorf("create escalations counter: %w", err)
	}

	return m, nil
}
