// Copyright (C) 2025 Vertice Code (dev@vertice-code.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JuanCS-Dev/vertice-code/services/governor"
)

var (
	checkAgent string
	checkRisk  string
)

var checkCmd = &cobra.Command{
	Use:   "check <request text>",
	Short: "Run the governance pre-execution check for a request",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkAgent, "agent", "cli", "requesting agent id")
	checkCmd.Flags().StringVar(&checkRisk, "risk", "MEDIUM", "risk level: LOW, MEDIUM, HIGH, CRITICAL")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.shutdown(ctx)

	task := &governor.Task{
		RequestText: strings.Join(args, " "),
		Context:     map[string]any{"action_type": "check"},
	}

	trace, err := a.pipeline.PreExecutionCheck(ctx, task, checkAgent, governor.RiskLevel(strings.ToUpper(checkRisk)))
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(trace); err != nil {
		return err
	}

	if !trace.Approved {
		return fmt.Errorf("denied: %s", trace.GovernanceCheck.Reason)
	}
	return nil
}
