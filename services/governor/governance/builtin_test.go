// Copyright (C) 2025 Vertice Code (dev@vertice-code.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package governance

import (
	"context"
	"testing"

	"github.com/JuanCS-Dev/vertice-code/services/governor"
)

func TestRulePolicy_Evaluate(t *testing.T) {
	p := NewRulePolicy(DefaultRulePolicyConfig())

	tests := []struct {
		name     string
		content  string
		approved bool
	}{
		{"benign command", "ls -la /tmp", true},
		{"benign build", "go build ./...", true},
		{"recursive root delete", "rm -rf / --no-preserve-root", false},
		{"case insensitive", "RM -RF / ", false},
		{"mkfs", "mkfs.ext4 /dev/sda1", false},
		{"dd to device", "dd if=/dev/zero of=/dev/sda", false},
		{"device redirect", "echo x > /dev/sda", false},
		{"world writable", "chmod 777 /etc", false},
		{"force push", "git push --force origin main", false},
		{"env file", "cat .env", false},
		{"ssh key", "cat ~/.ssh/id_rsa", false},
		{"secrets path", "grep -r password ./secrets/", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision, err := p.Evaluate(context.Background(), "agent", "shell", tt.content, nil)
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if decision.Approved != tt.approved {
				t.Errorf("Approved = %v, want %v (reason: %s)", decision.Approved, tt.approved, decision.Reasoning)
			}
			if decision.Reasoning == "" {
				t.Error("Reasoning is empty")
			}
		})
	}
}

func TestRulePolicy_EmptyConfigUsesDefaults(t *testing.T) {
	p := NewRulePolicy(RulePolicyConfig{})

	decision, err := p.Evaluate(context.Background(), "agent", "shell", "mkfs /dev/sdb", nil)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if decision.Approved {
		t.Error("Approved = true, want default deny lists to apply")
	}
}

func TestKeywordCounsel_ShouldTriggerCounsel(t *testing.T) {
	c := NewKeywordCounsel()

	tests := []struct {
		text string
		want bool
	}{
		{"delete all user records from the table", true},
		{"wipe the staging volume", true},
		{"deploy to production", true},
		{"rotate the credentials file", true},
		{"Force Push the rebased branch", true},
		{"rename a local variable", false},
		{"add a unit test", false},
	}

	for _, tt := range tests {
		got, reason := c.ShouldTriggerCounsel(tt.text)
		if got != tt.want {
			t.Errorf("ShouldTriggerCounsel(%q) = %v, want %v", tt.text, got, tt.want)
		}
		if got && reason == "" {
			t.Errorf("ShouldTriggerCounsel(%q) returned no reason", tt.text)
		}
	}
}

func TestKeywordCounsel_ProvideCounsel(t *testing.T) {
	c := NewKeywordCounsel()

	decision, err := c.ProvideCounsel(context.Background(), "deploy to production", governor.RiskHigh, "agent-1", nil)
	if err != nil {
		t.Fatalf("ProvideCounsel: %v", err)
	}
	if !decision.RequiresProfessional {
		t.Error("RequiresProfessional = false for a production action, want true")
	}
	if decision.CounselText == "" {
		t.Error("CounselText is empty")
	}

	decision, err = c.ProvideCounsel(context.Background(), "wipe the scratch dir", governor.RiskHigh, "agent-1", nil)
	if err != nil {
		t.Fatalf("ProvideCounsel: %v", err)
	}
	if decision.RequiresProfessional {
		t.Error("RequiresProfessional = true for a scratch wipe, want false")
	}
}
