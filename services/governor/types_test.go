// Copyright (C) 2025 Vertice Code (dev@vertice-code.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package governor

import (
	"encoding/json"
	"testing"
	"time"
)

func TestRiskLevel_Valid(t *testing.T) {
	tests := []struct {
		level RiskLevel
		want  bool
	}{
		{RiskLow, true},
		{RiskMedium, true},
		{RiskHigh, true},
		{RiskCritical, true},
		{RiskLevel("low"), false}, // case matters on the wire
		{RiskLevel("EXTREME"), false},
		{RiskLevel(""), false},
	}

	for _, tt := range tests {
		if got := tt.level.Valid(); got != tt.want {
			t.Errorf("RiskLevel(%q).Valid() = %v, want %v", tt.level, got, tt.want)
		}
	}
}

// A trace serialized for audit storage must survive a round trip with its
// identifiers and verdicts intact.
func TestGovernanceTrace_JSONRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	original := GovernanceTrace{
		CorrelationID: "corr-42",
		StartedAt:     now,
		CompletedAt:   now.Add(30 * time.Millisecond),
		Approved:      true,
		GovernanceCheck: &EvaluationVerdict{
			Evaluator:  "policy_evaluator",
			Approved:   true,
			Reason:     "no rule matched",
			TrustScore: 0.9,
			Timestamp:  now,
		},
		CounselCheck: &CounselVerdict{
			Triggered:            true,
			CounselType:          "risk_review",
			Confidence:           0.6,
			RequiresProfessional: true,
			Preview:              "review before approving",
		},
	}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded GovernanceTrace
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if decoded.CorrelationID != original.CorrelationID {
		t.Errorf("CorrelationID = %q, want %q", decoded.CorrelationID, original.CorrelationID)
	}
	if decoded.GovernanceCheck == nil || decoded.GovernanceCheck.TrustScore != 0.9 {
		t.Errorf("GovernanceCheck = %+v, want trust score 0.9", decoded.GovernanceCheck)
	}
	if decoded.CounselCheck == nil || !decoded.CounselCheck.RequiresProfessional {
		t.Errorf("CounselCheck = %+v, want professional flag preserved", decoded.CounselCheck)
	}
	if !decoded.StartedAt.Equal(original.StartedAt) {
		t.Errorf("StartedAt = %v, want %v", decoded.StartedAt, original.StartedAt)
	}
}
