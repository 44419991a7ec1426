// Copyright (C) 2025 Vertice Code (dev@vertice-code.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package recovery

import (
	"encoding/json"
	"testing"
)

func TestRecoveryContext_JSONRoundTrip(t *testing.T) {
	in := RecoveryContext{
		AttemptNumber:   2,
		MaxAttempts:     3,
		ErrorText:       "permission denied: /etc/hosts",
		Category:        CategoryPermission,
		FailedAction:    "write_file",
		FailedArgs:      map[string]any{"path": "/etc/hosts"},
		PreviousActions: []string{"read_file /etc/hosts"},
		UserIntent:      "update hosts entry",
		CorrelationID:   "corr-42",
		Diagnosis:       "target file is root-owned",
		SuggestedFix:    "write to a staging path and suggest sudo mv",
		Strategy:        StrategySuggestPermission,
	}

	raw, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var out RecoveryContext
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if out.AttemptNumber != in.AttemptNumber || out.MaxAttempts != in.MaxAttempts {
		t.Errorf("attempt counters changed: got %d/%d", out.AttemptNumber, out.MaxAttempts)
	}
	if out.Category != CategoryPermission {
		t.Errorf("Category = %q, want %q", out.Category, CategoryPermission)
	}
	if out.Strategy != StrategySuggestPermission {
		t.Errorf("Strategy = %q, want %q", out.Strategy, StrategySuggestPermission)
	}
	if out.CorrelationID != in.CorrelationID {
		t.Errorf("CorrelationID = %q, want %q", out.CorrelationID, in.CorrelationID)
	}
	if out.SuggestedFix != in.SuggestedFix || out.Diagnosis != in.Diagnosis {
		t.Errorf("oracle fields changed: %q / %q", out.Diagnosis, out.SuggestedFix)
	}
}
