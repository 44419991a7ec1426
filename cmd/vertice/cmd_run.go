// Copyright (C) 2025 Vertice Code (dev@vertice-code.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JuanCS-Dev/vertice-code/services/governor"
	"github.com/JuanCS-Dev/vertice-code/services/governor/events"
	"github.com/JuanCS-Dev/vertice-code/services/governor/recovery"
)

var (
	runAgent string
	runRisk  string
	runStats bool
)

var runCmd = &cobra.Command{
	Use:   "run -- <command> [args...]",
	Short: "Execute a command under governance with automatic recovery",
	Long: `Runs a command behind the governance gate. If the command fails, the
recovery engine categorizes the error, consults the oracle for a diagnosis,
and replays corrected invocations within the attempt ceiling.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runAgent, "agent", "cli", "requesting agent id")
	runCmd.Flags().StringVar(&runRisk, "risk", "MEDIUM", "risk level: LOW, MEDIUM, HIGH, CRITICAL")
	runCmd.Flags().BoolVar(&runStats, "stats", false, "print recovery statistics after the run")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.shutdown(ctx)

	task := &governor.Task{
		RequestText: strings.Join(args, " "),
		Context:     map[string]any{"action_type": "shell"},
	}

	worker := governor.WorkerFunc(func(ctx context.Context, task *governor.Task) (*governor.Response, error) {
		return runWithRecovery(ctx, a, args)
	})

	resp := a.pipeline.ExecuteWithGovernance(ctx, worker, task, runAgent, governor.RiskLevel(strings.ToUpper(runRisk)))

	if runStats {
		enc := json.NewEncoder(os.Stderr)
		enc.SetIndent("", "  ")
		_ = enc.Encode(a.engine.GetStatistics())
	}

	if !resp.Success {
		return fmt.Errorf("%s", resp.Error)
	}
	return nil
}

// runWithRecovery executes the command, driving the recovery engine on
// failure until it succeeds, the engine gives up, or the ceiling is hit.
func runWithRecovery(ctx context.Context, a *app, args []string) (*governor.Response, error) {
	maxAttempts := a.cfg.Recovery.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = recovery.DefaultEngineConfig().MaxAttempts
	}

	current := args
	var previous []string
	var lastRC *recovery.RecoveryContext

	for attempt := 1; ; attempt++ {
		runErr := execOnce(ctx, current)
		if runErr == nil {
			if lastRC != nil {
				// A corrected replay worked: remember the fix.
				a.engine.RecordRecoveryOutcome(lastRC, true)
			}
			return &governor.Response{
				Success:   true,
				Reasoning: fmt.Sprintf("command succeeded on attempt %d", attempt),
			}, nil
		}
		previous = append(previous, strings.Join(current, " "))

		rc := buildRecoveryContext(attempt, maxAttempts, runErr, current, previous)
		result := a.engine.AttemptRecoveryWithBackoff(ctx, rc, runErr)

		if !result.Success {
			a.engine.RecordRecoveryOutcome(rc, false)
			a.emitter.Emit(events.Event{
				Type:          events.TypeRecoveryExhausted,
				CorrelationID: rc.CorrelationID,
				AgentID:       runAgent,
				Message:       result.EscalationReason,
			})
			if a.engine.Breaker().State() == recovery.CircuitOpen {
				a.emitter.Emit(events.Event{
					Type:    events.TypeCircuitOpened,
					AgentID: runAgent,
					Message: "recovery circuit breaker opened",
				})
			}
			return &governor.Response{
				Success:   false,
				Error:     runErr.Error(),
				Reasoning: result.EscalationReason,
			}, nil
		}
		lastRC = rc

		if result.CorrectedAction != "" {
			next := []string{result.CorrectedAction}
			if cl, ok := result.CorrectedArgs["command_line"].(string); ok && cl != "" {
				next = strings.Fields(cl)
			}
			slog.Info("Replaying corrected command",
				slog.Int("attempt", attempt+1),
				slog.String("command", strings.Join(next, " ")),
			)
			current = next
		}
	}
}

// execOnce runs one command invocation, inheriting stdio.
func execOnce(ctx context.Context, args []string) error {
	c := exec.CommandContext(ctx, args[0], args[1:]...)
	c.Stdin = os.Stdin
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	return c.Run()
}

// buildRecoveryContext assembles the engine input for one failed attempt.
func buildRecoveryContext(attempt, maxAttempts int, cause error, args, previous []string) *recovery.RecoveryContext {
	history := previous
	if len(history) > 3 {
		history = history[len(history)-3:]
	}
	return &recovery.RecoveryContext{
		AttemptNumber:   attempt,
		MaxAttempts:     maxAttempts,
		ErrorText:       cause.Error(),
		Category:        recovery.CategorizeError(cause.Error()),
		FailedAction:    args[0],
		FailedArgs:      map[string]any{"command_line": strings.Join(args, " ")},
		PreviousActions: history,
		UserIntent:      "run shell command",
	}
}
