// Copyright (C) 2025 Vertice Code (dev@vertice-code.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package recovery

import "testing"

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name string
		text string
		want ErrorCategory
	}{
		{"bash command not found", "bash: gti: command not found", CategoryCommandNotFound},
		{"windows not recognized", "'gti' is not recognized as an internal or external command", CategoryCommandNotFound},
		{"command plus not found", "command 'foo' not found in PATH", CategoryCommandNotFound},
		{"permission denied", "open /etc/shadow: permission denied", CategoryPermission},
		{"access denied", "Access Denied for user root", CategoryPermission},
		{"eacces", "EACCES: cannot write", CategoryPermission},
		{"not permitted", "operation not permitted", CategoryPermission},
		{"syntax error", "SyntaxError: invalid syntax at line 12", CategorySyntax},
		{"parse error", "parse error near unexpected token", CategorySyntax},
		{"timeout", "request timeout after 30s", CategoryTimeout},
		{"timed out", "dial tcp: i/o timed out", CategoryTimeout},
		{"deadline", "context deadline exceeded", CategoryTimeout},
		{"python type error", "TypeError: unsupported operand type(s)", CategoryTypeError},
		{"type error spaced", "type error: cannot convert", CategoryTypeError},
		{"python value error", "ValueError: invalid literal for int()", CategoryValueError},
		{"file not found", "no such file or directory", CategoryNotFound},
		{"enoent", "ENOENT: stat failed", CategoryNotFound},
		{"http 404", "GET /missing returned 404", CategoryNotFound},
		{"does not exist", "table users does not exist", CategoryNotFound},
		{"connection refused", "dial tcp 127.0.0.1:8080: connect: connection refused", CategoryNetwork},
		{"network unreachable", "network is unreachable", CategoryNetwork},
		{"dns", "dns lookup failed for host", CategoryNetwork},
		{"unknown", "something inexplicable happened", CategoryUnknown},
		{"empty", "", CategoryUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CategorizeError(tt.text); got != tt.want {
				t.Errorf("CategorizeError(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

// Ordering cases: text matching several buckets must land in the more
// specific one.
func TestCategorizeError_Precedence(t *testing.T) {
	tests := []struct {
		name string
		text string
		want ErrorCategory
	}{
		// "command not found" also contains "not found".
		{"command beats not found", "zsh: command not found: kubctl", CategoryCommandNotFound},
		// Mentions a type but is really a missing file.
		{"type prose without error word", "no such file: type definitions missing", CategoryNotFound},
		// Syntax outranks the not-found bucket.
		{"syntax beats not found", "syntax error: label not found", CategorySyntax},
		// Timeout outranks network.
		{"timeout beats connection", "connection timeout to upstream", CategoryTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CategorizeError(tt.text); got != tt.want {
				t.Errorf("CategorizeError(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}
