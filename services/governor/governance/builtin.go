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
	"strings"

	"github.com/JuanCS-Dev/vertice-code/services/governor"
)

// RulePolicyConfig configures the built-in rule-based policy evaluator.
type RulePolicyConfig struct {
	// BlockedCommands are substrings that deny shell-style content.
	BlockedCommands []string

	// BlockedPaths are path fragments that deny file-touching content.
	BlockedPaths []string
}

// DefaultRulePolicyConfig returns the stock deny lists.
func DefaultRulePolicyConfig() RulePolicyConfig {
	return RulePolicyConfig{
		BlockedCommands: []string{
			"rm -rf /",
			"mkfs",
			"dd if=",
			"> /dev/",
			"chmod 777",
			"git push --force",
			":(){ :|:& };:",
		},
		BlockedPaths: []string{
			".git/",
			".env",
			"credentials",
			"secrets",
			"id_rsa",
		},
	}
}

// RulePolicy is a static rule-based policy evaluator for local use without
// an external policy service. Content matching a deny list is blocked;
// everything else is approved with a trust score scaled by risk hints.
//
// Thread Safety: Safe for concurrent use; the deny lists are immutable
// after construction.
type RulePolicy struct {
	config RulePolicyConfig
}

// NewRulePolicy creates a rule-based policy evaluator.
func NewRulePolicy(config RulePolicyConfig) *RulePolicy {
	if len(config.BlockedCommands) == 0 && len(config.BlockedPaths) == 0 {
		config = DefaultRulePolicyConfig()
	}
	return &RulePolicy{config: config}
}

// Evaluate implements PolicyEvaluator.
func (p *RulePolicy) Evaluate(ctx context.Context, agentID, actionType, content string, evalCtx map[string]any) (*PolicyDecision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lower := strings.ToLower(content)
	for _, blocked := range p.config.BlockedCommands {
		if strings.Contains(lower, strings.ToLower(blocked)) {
			return &PolicyDecision{
				Approved:   false,
				Reasoning:  fmt.Sprintf("content matches blocked command pattern %q", blocked),
				TrustScore: 0.1,
			}, nil
		}
	}
	for _, blocked := range p.config.BlockedPaths {
		if strings.Contains(lower, strings.ToLower(blocked)) {
			return &PolicyDecision{
				Approved:   false,
				Reasoning:  fmt.Sprintf("content touches blocked path %q", blocked),
				TrustScore: 0.2,
			}, nil
		}
	}

	return &PolicyDecision{
		Approved:   true,
		Reasoning:  fmt.Sprintf("no policy rule matched for %s", actionType),
		TrustScore: 0.9,
	}, nil
}

// counselKeywords trigger the advisory evaluation.
var counselKeywords = []string{
	"delete all",
	"wipe",
	"drop table",
	"production",
	"credentials",
	"bypass",
	"irreversible",
	"force push",
}

// professionalKeywords additionally flag the action for human review.
var professionalKeywords = []string{
	"production",
	"credentials",
	"irreversible",
}

// KeywordCounsel is a heuristic counsel evaluator for local use. It never
// blocks anything; it only annotates the trace and may flag an action for
// human review.
//
// Thread Safety: Safe for concurrent use.
type KeywordCounsel struct{}

// NewKeywordCounsel creates the heuristic counsel evaluator.
func NewKeywordCounsel() *KeywordCounsel {
	return &KeywordCounsel{}
}

// ShouldTriggerCounsel implements CounselEvaluator.
func (c *KeywordCounsel) ShouldTriggerCounsel(requestText string) (bool, string) {
	lower := strings.ToLower(requestText)
	for _, kw := range counselKeywords {
		if strings.Contains(lower, kw) {
			return true, fmt.Sprintf("request mentions %q", kw)
		}
	}
	return false, ""
}

// ProvideCounsel implements CounselEvaluator.
func (c *KeywordCounsel) ProvideCounsel(ctx context.Context, description string, riskLevel governor.RiskLevel, agentID string, evalCtx map[string]any) (*CounselDecision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lower := strings.ToLower(description)
	requiresProfessional := false
	for _, kw := range professionalKeywords {
		if strings.Contains(lower, kw) {
			requiresProfessional = true
			break
		}
	}

	return &CounselDecision{
		CounselType:          "risk_review",
		Confidence:           0.6,
		RequiresProfessional: requiresProfessional,
		CounselText: fmt.Sprintf(
			"Agent %s proposes a %s-risk action: %s. Review side effects before approving future runs.",
			agentID, riskLevel, description,
		),
	}, nil
}
