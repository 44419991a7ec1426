// Copyright (C) 2025 Vertice Code (dev@vertice-code.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package recovery

import "testing"

func TestExtractCorrection_LabeledObject(t *testing.T) {
	text := `Diagnosis: the path was relative, so the read failed.
Correction: {"action": "read_file", "args": {"path": "/abs/config.yaml"}}`

	c, ok := ExtractCorrection(text)
	if !ok {
		t.Fatal("ExtractCorrection() = not found, want found")
	}
	if c.Action != "read_file" {
		t.Errorf("Action = %q, want %q", c.Action, "read_file")
	}
	if got := c.Args["path"]; got != "/abs/config.yaml" {
		t.Errorf("Args[path] = %v, want /abs/config.yaml", got)
	}
}

func TestExtractCorrection_CaseInsensitiveLabel(t *testing.T) {
	text := `CORRECTION: {"action": "retry_build"}`

	c, ok := ExtractCorrection(text)
	if !ok || c.Action != "retry_build" {
		t.Errorf("ExtractCorrection() = (%v, %v), want retry_build", c, ok)
	}
}

func TestExtractCorrection_BareObject(t *testing.T) {
	text := `The fix is simple: {"action": "install_package", "args": {"name": "jq"}}`

	c, ok := ExtractCorrection(text)
	if !ok {
		t.Fatal("ExtractCorrection() = not found, want found")
	}
	if c.Action != "install_package" {
		t.Errorf("Action = %q, want %q", c.Action, "install_package")
	}
}

func TestExtractCorrection_PrefixedKeys(t *testing.T) {
	text := `{"corrected_action": "run_tests", "corrected_args": {"pkg": "./..."}}`

	c, ok := ExtractCorrection(text)
	if !ok {
		t.Fatal("ExtractCorrection() = not found, want found")
	}
	if c.Action != "run_tests" {
		t.Errorf("Action = %q, want %q", c.Action, "run_tests")
	}
	if got := c.Args["pkg"]; got != "./..." {
		t.Errorf("Args[pkg] = %v, want ./...", got)
	}
}

func TestExtractCorrection_NestedCorrectionKey(t *testing.T) {
	text := `{"diagnosis": "missing flag", "correction": {"action": "rerun", "args": {"flag": "-v"}}}`

	c, ok := ExtractCorrection(text)
	if !ok {
		t.Fatal("ExtractCorrection() = not found, want found")
	}
	if c.Action != "rerun" {
		t.Errorf("Action = %q, want %q", c.Action, "rerun")
	}
}

// The first object may be unusable; the scan must move on to the next.
func TestExtractCorrection_SkipsNonCorrectionObjects(t *testing.T) {
	text := `Context: {"severity": "high"} and the fix {"action": "chmod_file", "args": {"mode": "0644"}}`

	c, ok := ExtractCorrection(text)
	if !ok {
		t.Fatal("ExtractCorrection() = not found, want found")
	}
	if c.Action != "chmod_file" {
		t.Errorf("Action = %q, want %q", c.Action, "chmod_file")
	}
}

// Braces inside JSON strings must not break the balance scan.
func TestExtractCorrection_BracesInsideStrings(t *testing.T) {
	text := `Correction: {"action": "write_file", "args": {"content": "func main() { fmt.Println(\"}\") }"}}`

	c, ok := ExtractCorrection(text)
	if !ok {
		t.Fatal("ExtractCorrection() = not found, want found")
	}
	if c.Action != "write_file" {
		t.Errorf("Action = %q, want %q", c.Action, "write_file")
	}
}

func TestExtractCorrection_NoCorrection(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"plain prose", "I could not determine a fix for this error."},
		{"empty", ""},
		{"truncated json", `Correction: {"action": "read_file", "args": {"path": "/ab`},
		{"object without action", `{"diagnosis": "unclear", "confidence": 0.2}`},
		{"empty action", `{"action": ""}`},
		{"unbalanced brace", "the set {1, 2, 3 is open"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if c, ok := ExtractCorrection(tt.text); ok {
				t.Errorf("ExtractCorrection(%q) = %+v, want none", tt.text, c)
			}
		})
	}
}

// A truncated labeled object must not prevent the whole-text scan from
// finding a later complete object.
func TestExtractCorrection_FallsBackPastTruncatedLabel(t *testing.T) {
	text := `Correction: {"action": "broken
Final answer: {"action": "retry_clean", "args": {}}`

	c, ok := ExtractCorrection(text)
	if !ok {
		t.Fatal("ExtractCorrection() = not found, want found")
	}
	if c.Action != "retry_clean" {
		t.Errorf("Action = %q, want %q", c.Action, "retry_clean")
	}
}
