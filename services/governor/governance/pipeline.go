// Copyright (C) 2025 Vertice Code (dev@vertice-code.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package governance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/JuanCS-Dev/vertice-code/services/governor"
	"github.com/JuanCS-Dev/vertice-code/services/governor/events"
)

// tracerName is the instrumentation scope for governance spans.
const tracerName = "github.com/JuanCS-Dev/vertice-code/services/governor/governance"

// counselPreviewLimit caps the counsel text excerpt stored on the trace.
const counselPreviewLimit = 200

// defaultActionType is used when the task context carries no action type.
const defaultActionType = "execute"

// PipelineConfig configures the governance pipeline.
type PipelineConfig struct {
	// DisableFailSafe turns off the default-deny conversion of unexpected
	// evaluation errors. With fail-safe disabled, such errors are logged
	// and the action is allowed (degraded mode).
	DisableFailSafe bool
}

// Pipeline gates risky agent actions behind concurrent policy and counsel
// evaluation, then wraps worker execution with post-hoc metrics.
//
// The policy evaluator can block the whole call; the counsel evaluator is
// advisory-only. Each evaluator runs against its own copy of the task
// context, so neither observes the other's mutations.
//
// Thread Safety: Safe for concurrent use.
type Pipeline struct {
	config      PipelineConfig
	policy      PolicyEvaluator
	counsel     CounselEvaluator
	permissions PermissionRegistry
	emitter     *events.Emitter
	metrics     *Metrics
	logger      *slog.Logger
	tracer      trace.Tracer
}

// PipelineOption configures optional pipeline dependencies.
type PipelineOption func(*Pipeline)

// WithPipelineLogger sets the structured logger.
func WithPipelineLogger(logger *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithEmitter sets the governance event emitter.
func WithEmitter(emitter *events.Emitter) PipelineOption {
	return func(p *Pipeline) {
		p.emitter = emitter
	}
}

// WithMetrics sets the governance metrics.
func WithMetrics(m *Metrics) PipelineOption {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// NewPipeline creates a governance pipeline.
//
// Inputs:
//   - config: Pipeline configuration.
//   - policy: The blocking policy evaluator. Must not be nil.
//   - counsel: The advisory counsel evaluator. Must not be nil.
//   - permissions: The capability registry. Must not be nil.
//   - opts: Optional dependencies (logger, emitter, metrics).
//
// Outputs:
//   - *Pipeline: Ready to use pipeline.
//   - error: Non-nil when a required dependency is nil. Dependencies are
//     validated here, at construction, not at call time.
func NewPipeline(
	config PipelineConfig,
	policy PolicyEvaluator,
	counsel CounselEvaluator,
	permissions PermissionRegistry,
	opts ...PipelineOption,
) (*Pipeline, error) {
	if policy == nil {
		return nil, fmt.Errorf("policy evaluator must not be nil")
	}
	if counsel == nil {
		return nil, fmt.Errorf("counsel evaluator must not be nil")
	}
	if permissions == nil {
		return nil, fmt.Errorf("permission registry must not be nil")
	}

	p := &Pipeline{
		config:      config,
		policy:      policy,
		counsel:     counsel,
		permissions: permissions,
		logger:      slog.Default(),
		tracer:      otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// PreExecutionCheck decides whether an agent action may start.
//
// Description:
//
//	Validates the inputs, issues a fresh correlation id, then runs the
//	policy and counsel evaluators concurrently, each against its own
//	copy of the task context. The policy verdict decides the outcome;
//	counsel is recorded on the trace but never blocks. Unexpected
//	evaluator failures are converted under fail-safe into a denial.
//
// Inputs:
//
//	ctx - Context for cancellation of the evaluator calls.
//	task - The task to gate. Must be non-nil with an acyclic context map.
//	agentID - The requesting agent. Must be non-empty.
//	riskLevel - The action's risk classification.
//
// Outputs:
//
//	*GovernanceTrace - The per-call trace, returned to the caller and not
//	persisted by the pipeline. Nil only when error is non-nil.
//	error - Non-nil only for invalid arguments, raised synchronously
//	before any concurrent work starts. Never retried.
func (p *Pipeline) PreExecutionCheck(
	ctx context.Context,
	task *governor.Task,
	agentID string,
	riskLevel governor.RiskLevel,
) (gt *governor.GovernanceTrace, err error) {
	if ctx == nil {
		return nil, governor.ErrNilContext
	}
	if task == nil {
		return nil, governor.ErrNilTask
	}
	if agentID == "" {
		return nil, governor.ErrEmptyAgentID
	}
	if !riskLevel.Valid() {
		return nil, fmt.Errorf("%w: %q", governor.ErrInvalidRiskLevel, riskLevel)
	}
	if cerr := validateContext(task.Context); cerr != nil {
		return nil, cerr
	}

	correlationID := task.CorrelationID
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	start := time.Now()
	gt = &governor.GovernanceTrace{
		CorrelationID: correlationID,
		StartedAt:     start,
	}

	// The boundary contract: nothing past validation may escape.
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Pre-execution check panicked",
				slog.String("correlation_id", correlationID),
				slog.Any("panic", r),
			)
			gt.Approved = false
			gt.GovernanceCheck = &governor.EvaluationVerdict{
				Evaluator: RolePolicyEvaluator,
				Approved:  false,
				Reason:    "internal governance failure (fail-safe denial)",
				Timestamp: time.Now(),
			}
			gt.CompletedAt = time.Now()
			err = nil
		}
	}()

	ctx, span := p.tracer.Start(ctx, "governance.PreExecutionCheck",
		trace.WithAttributes(
			attribute.String("governor.correlation_id", correlationID),
			attribute.String("governor.agent_id", agentID),
			attribute.String("governor.risk_level", riskLevel.String()),
		))
	defer span.End()

	actionType := defaultActionType
	if at, ok := task.Context["action_type"].(string); ok && at != "" {
		actionType = at
	}

	var (
		policyVerdict  *governor.EvaluationVerdict
		policyErr      error
		counselVerdict *governor.CounselVerdict
		counselErr     error
	)

	// Two isolated evaluations; the group is only a join point, never a
	// shared failure domain. Each closure captures its own outcome.
	var g errgroup.Group

	g.Go(func() error {
		defer func() {
			if r := recover(); r != nil {
				policyErr = fmt.Errorf("policy evaluator panicked: %v", r)
			}
		}()
		policyVerdict, policyErr = p.runPolicyCheck(ctx, task, agentID, actionType, correlationID)
		return nil
	})

	g.Go(func() error {
		defer func() {
			if r := recover(); r != nil {
				counselErr = fmt.Errorf("counsel evaluator panicked: %v", r)
			}
		}()
		counselVerdict, counselErr = p.runCounselCheck(ctx, task, agentID, riskLevel, correlationID)
		return nil
	})

	_ = g.Wait()

	if policyErr != nil {
		policyVerdict = p.failSafeVerdict(correlationID, policyErr)
	}
	gt.GovernanceCheck = policyVerdict
	gt.Approved = policyVerdict.Approved

	if counselErr != nil {
		// Advisory only: log and carry on with an untriggered verdict.
		p.logger.Warn("Counsel evaluation failed, ignoring",
			slog.String("correlation_id", correlationID),
			slog.String("error", counselErr.Error()),
		)
		counselVerdict = &governor.CounselVerdict{Triggered: false}
	}
	gt.CounselCheck = counselVerdict

	if counselVerdict.RequiresProfessional {
		p.recordEscalation(ctx, agentID, correlationID, counselVerdict)
	}

	gt.CompletedAt = time.Now()

	if p.metrics != nil {
		decision := "denied"
		if gt.Approved {
			decision = "approved"
		}
		p.metrics.DecisionsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("decision", decision),
			attribute.String("risk_level", riskLevel.String()),
		))
		p.metrics.CheckDuration.Record(ctx, time.Since(start).Seconds())
	}

	return gt, nil
}

// runPolicyCheck performs the blocking policy evaluation against a private
// copy of the task context. A capability denial becomes a local blocked
// verdict, never an error.
func (p *Pipeline) runPolicyCheck(
	ctx context.Context,
	task *governor.Task,
	agentID, actionType, correlationID string,
) (*governor.EvaluationVerdict, error) {
	if err := p.permissions.Enforce(RolePolicyEvaluator, PermEvaluateAction); err != nil {
		return &governor.EvaluationVerdict{
			Evaluator: RolePolicyEvaluator,
			Approved:  false,
			Reason:    fmt.Sprintf("policy evaluator blocked: %v", err),
			Timestamp: time.Now(),
		}, nil
	}

	evalCtx := copyContext(task.Context)
	evalCtx["correlation_id"] = correlationID

	decision, err := p.policy.Evaluate(ctx, agentID, actionType, task.RequestText, evalCtx)
	if err != nil {
		return nil, err
	}
	if decision == nil {
		return nil, fmt.Errorf("policy evaluator returned no decision")
	}

	return &governor.EvaluationVerdict{
		Evaluator:  RolePolicyEvaluator,
		Approved:   decision.Approved,
		Reason:     decision.Reasoning,
		TrustScore: decision.TrustScore,
		Timestamp:  time.Now(),
	}, nil
}

// runCounselCheck performs the advisory evaluation. Counsel is consulted
// only for HIGH and CRITICAL risk, and only when the cheap heuristic
// agrees; every other path short-circuits to an untriggered verdict.
func (p *Pipeline) runCounselCheck(
	ctx context.Context,
	task *governor.Task,
	agentID string,
	riskLevel governor.RiskLevel,
	correlationID string,
) (*governor.CounselVerdict, error) {
	if err := p.permissions.Enforce(RoleCounselEvaluator, PermProvideCounsel); err != nil {
		p.logger.Debug("Counsel evaluator blocked by capability check",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
		return &governor.CounselVerdict{Triggered: false}, nil
	}

	if riskLevel != governor.RiskHigh && riskLevel != governor.RiskCritical {
		return &governor.CounselVerdict{Triggered: false}, nil
	}

	triggered, reason := p.counsel.ShouldTriggerCounsel(task.RequestText)
	if !triggered {
		return &governor.CounselVerdict{Triggered: false}, nil
	}

	p.logger.Debug("Counsel triggered",
		slog.String("correlation_id", correlationID),
		slog.String("reason", reason),
	)

	evalCtx := copyContext(task.Context)
	evalCtx["correlation_id"] = correlationID

	decision, err := p.counsel.ProvideCounsel(ctx, task.RequestText, riskLevel, agentID, evalCtx)
	if err != nil {
		return nil, err
	}
	if decision == nil {
		return &governor.CounselVerdict{Triggered: false}, nil
	}

	preview := decision.CounselText
	if len(preview) > counselPreviewLimit {
		preview = preview[:counselPreviewLimit]
	}

	return &governor.CounselVerdict{
		Triggered:            true,
		CounselType:          decision.CounselType,
		Confidence:           decision.Confidence,
		RequiresProfessional: decision.RequiresProfessional,
		Preview:              preview,
	}, nil
}

// failSafeVerdict converts an unexpected policy failure into a verdict
// according to the fail-safe setting.
func (p *Pipeline) failSafeVerdict(correlationID string, cause error) *governor.EvaluationVerdict {
	if p.config.DisableFailSafe {
		p.logger.Warn("Policy evaluation failed, allowing in degraded mode",
			slog.String("correlation_id", correlationID),
			slog.String("error", cause.Error()),
		)
		return &governor.EvaluationVerdict{
			Evaluator: RolePolicyEvaluator,
			Approved:  true,
			Reason:    "policy evaluation failed, fail-safe disabled",
			Timestamp: time.Now(),
		}
	}

	p.logger.Error("Policy evaluation failed, denying under fail-safe",
		slog.String("correlation_id", correlationID),
		slog.String("error", cause.Error()),
	)
	return &governor.EvaluationVerdict{
		Evaluator: RolePolicyEvaluator,
		Approved:  false,
		Reason:    fmt.Sprintf("policy evaluation failed (fail-safe denial): %v", cause),
		Timestamp: time.Now(),
	}
}

// recordEscalation records a non-blocking escalation for human review.
func (p *Pipeline) recordEscalation(ctx context.Context, agentID, correlationID string, verdict *governor.CounselVerdict) {
	p.logger.Info("Counsel escalation recorded",
		slog.String("correlation_id", correlationID),
		slog.String("agent_id", agentID),
		slog.String("counsel_type", verdict.CounselType),
	)
	if p.emitter != nil {
		p.emitter.Emit(events.Event{
			Type:          events.TypeEscalation,
			CorrelationID: correlationID,
			AgentID:       agentID,
			Message:       fmt.Sprintf("counsel (%s) requires professional review", verdict.CounselType),
		})
	}
	if p.metrics != nil {
		p.metrics.EscalationsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("agent_id", agentID),
		))
	}
}

// ExecuteWithGovernance runs a worker behind the pre-execution gate.
//
// Description:
//
//	On denial the worker is never invoked and the failure response carries
//	the governance trace. On approval the worker runs; its errors and
//	panics are caught and converted into a failure response that still
//	carries the trace. A detached metrics update is scheduled after every
//	execution; it never delays the response and its failures are
//	swallowed.
//
// Inputs:
//
//	ctx - Context for the check and the worker.
//	worker - The worker to execute. Must not be nil.
//	task - The task to run.
//	agentID - The requesting agent.
//	riskLevel - The action's risk classification.
//
// Outputs:
//
//	*governor.Response - Always non-nil; this boundary never raises.
func (p *Pipeline) ExecuteWithGovernance(
	ctx context.Context,
	worker governor.Worker,
	task *governor.Task,
	agentID string,
	riskLevel governor.RiskLevel,
) *governor.Response {
	if worker == nil {
		return &governor.Response{
			Success:     false,
			Error:       "worker must not be nil",
			CompletedAt: time.Now(),
		}
	}

	gt, err := p.PreExecutionCheck(ctx, task, agentID, riskLevel)
	if err != nil {
		return &governor.Response{
			Success:     false,
			Error:       err.Error(),
			CompletedAt: time.Now(),
		}
	}

	if !gt.Approved {
		reason := "governance denied the action"
		if gt.GovernanceCheck != nil && gt.GovernanceCheck.Reason != "" {
			reason = gt.GovernanceCheck.Reason
		}
		if p.emitter != nil {
			p.emitter.Emit(events.Event{
				Type:          events.TypeDenial,
				CorrelationID: gt.CorrelationID,
				AgentID:       agentID,
				Message:       reason,
			})
		}
		return &governor.Response{
			Success:       false,
			Error:         reason,
			Reasoning:     reason,
			CorrelationID: gt.CorrelationID,
			Trace:         gt,
			CompletedAt:   time.Now(),
		}
	}

	resp := p.runWorker(ctx, worker, task)
	resp.CorrelationID = gt.CorrelationID
	resp.Trace = gt
	resp.CompletedAt = time.Now()

	// Fire-and-forget: the per-agent counters must never delay the
	// response, and their failures never surface.
	bgCtx := context.WithoutCancel(ctx)
	go p.recordWorkerOutcome(bgCtx, agentID, resp.Success)

	return resp
}

// runWorker executes the worker with a panic boundary.
func (p *Pipeline) runWorker(ctx context.Context, worker governor.Worker, task *governor.Task) (resp *governor.Response) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Worker panicked", slog.Any("panic", r))
			resp = &governor.Response{
				Success: false,
				Error:   fmt.Sprintf("worker panicked: %v", r),
			}
		}
	}()

	resp, err := worker.Execute(ctx, task)
	if err != nil {
		return &governor.Response{
			Success: false,
			Error:   err.Error(),
		}
	}
	if resp == nil {
		return &governor.Response{
			Success: false,
			Error:   "worker returned no response",
		}
	}
	return resp
}

// recordWorkerOutcome updates per-agent execution counters. It runs
// detached from the caller's path; every failure mode is contained here.
func (p *Pipeline) recordWorkerOutcome(ctx context.Context, agentID string, success bool) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Debug("Metrics update panicked", slog.Any("panic", r))
		}
	}()

	if p.metrics == nil {
		return
	}
	status := "failure"
	if success {
		status = "success"
	}
	p.metrics.WorkerExecutionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("agent_id", agentID),
		attribute.String("status", status),
	))
}
