// Copyright (C) 2025 Vertice Code (dev@vertice-code.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package recovery

import "strings"

// CategorizeError classifies raw error text into an ErrorCategory.
//
// The match is ordered: a missing command ("command not found", "is not
// recognized") takes precedence over the generic NOT_FOUND bucket, and the
// type/value buckets require the literal word "error" alongside the type
// keyword so that ordinary prose mentioning "type" or "value" does not
// over-match. Unmatched text is CategoryUnknown.
//
// Classification is best-effort, not exhaustive.
func CategorizeError(text string) ErrorCategory {
	lower := strings.ToLower(text)

	switch {
	case isCommandNotFound(lower):
		return CategoryCommandNotFound

	case strings.Contains(lower, "permission denied"),
		strings.Contains(lower, "access denied"),
		strings.Contains(lower, "operation not permitted"),
		strings.Contains(lower, "eacces"):
		return CategoryPermission

	case strings.Contains(lower, "syntax error"),
		strings.Contains(lower, "invalid syntax"),
		strings.Contains(lower, "parse error"),
		strings.Contains(lower, "unexpected token"):
		return CategorySyntax

	case strings.Contains(lower, "timeout"),
		strings.Contains(lower, "timed out"),
		strings.Contains(lower, "deadline exceeded"):
		return CategoryTimeout

	case strings.Contains(lower, "typeerror"),
		strings.Contains(lower, "type error"),
		strings.Contains(lower, "type mismatch") && strings.Contains(lower, "error"):
		return CategoryTypeError

	case strings.Contains(lower, "valueerror"),
		strings.Contains(lower, "value error"),
		strings.Contains(lower, "invalid value") && strings.Contains(lower, "error"):
		return CategoryValueError

	case strings.Contains(lower, "not found"),
		strings.Contains(lower, "no such file"),
		strings.Contains(lower, "does not exist"),
		strings.Contains(lower, "enoent"),
		strings.Contains(lower, "404"):
		return CategoryNotFound

	case strings.Contains(lower, "connection"),
		strings.Contains(lower, "network"),
		strings.Contains(lower, "unreachable"),
		strings.Contains(lower, "refused"),
		strings.Contains(lower, "dns"):
		return CategoryNetwork
	}

	return CategoryUnknown
}

// isCommandNotFound reports whether the text describes a missing executable
// rather than a missing file or resource.
func isCommandNotFound(lower string) bool {
	if strings.Contains(lower, "command not found") {
		return true
	}
	// Windows shells report "'foo' is not recognized as an internal or
	// external command".
	if strings.Contains(lower, "not recognized") && strings.Contains(lower, "command") {
		return true
	}
	if strings.Contains(lower, "not found") && strings.Contains(lower, "command") {
		return true
	}
	return false
}
