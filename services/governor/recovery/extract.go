// Copyright (C) 2025 Vertice Code (dev@vertice-code.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package recovery

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Correction is a corrected call extracted from an oracle diagnosis.
type Correction struct {
	// Action is the tool or action to replay.
	Action string `json:"action"`

	// Args are the corrected arguments.
	Args map[string]any `json:"args,omitempty"`
}

// correctionLabelPattern matches a "Correction:" label ahead of a JSON
// object, allowing markdown fences and flexible whitespace.
var correctionLabelPattern = regexp.MustCompile(`(?i)correction\s*:`)

// correctionPayload is the tolerant wire shape of an oracle correction.
// Both plain and prefixed key spellings are accepted.
type correctionPayload struct {
	Action          string         `json:"action"`
	Args            map[string]any `json:"args"`
	CorrectedAction string         `json:"corrected_action"`
	CorrectedArgs   map[string]any `json:"corrected_args"`

	// Correction allows one level of nesting, for replies shaped like
	// {"diagnosis": "...", "correction": {"action": ...}}.
	Correction *correctionPayload `json:"correction"`
}

// ExtractCorrection parses oracle reply text for a corrected call.
//
// Description:
//
//	Oracle replies are free-form text that usually, but not always,
//	contain a labeled JSON object:
//
//	  Diagnosis: the path was relative.
//	  Correction: {"action": "read_file", "args": {"path": "/abs/x"}}
//
//	The parser first looks for a "Correction:" label and decodes the
//	balanced-brace object that follows it. Failing that, it scans the
//	whole reply for balanced objects and takes the first that decodes to
//	a correction with a non-empty action. Truncated JSON, multiple
//	objects, or no JSON at all yield (nil, false), never an error.
//
// Inputs:
//
//	text - The raw oracle reply.
//
// Outputs:
//
//	*Correction - The corrected call, or nil.
//	bool - True if a correction was found.
//
// Thread Safety: This function is safe for concurrent use.
func ExtractCorrection(text string) (*Correction, bool) {
	if loc := correctionLabelPattern.FindStringIndex(text); loc != nil {
		if c := decodeFirstObject(text[loc[1]:]); c != nil {
			return c, true
		}
	}

	if c := decodeFirstObject(text); c != nil {
		return c, true
	}

	return nil, false
}

// decodeFirstObject scans text for balanced-brace objects and returns the
// first that decodes into a usable correction.
func decodeFirstObject(text string) *Correction {
	for offset := 0; offset < len(text); {
		start := strings.IndexByte(text[offset:], '{')
		if start < 0 {
			return nil
		}
		start += offset

		raw, end := balancedObject(text[start:])
		if raw == "" {
			// No close from this start. A later start can still balance
			// when this one died inside an unterminated string, so keep
			// scanning.
			offset = start + 1
			continue
		}

		var payload correctionPayload
		if err := json.Unmarshal([]byte(raw), &payload); err == nil {
			if c := payload.toCorrection(); c != nil {
				return c
			}
		}

		offset = start + end
	}
	return nil
}

// toCorrection normalizes the tolerant payload into a Correction, or nil
// if no action was present under either key spelling.
func (p correctionPayload) toCorrection() *Correction {
	action := p.Action
	args := p.Args
	if action == "" {
		action = p.CorrectedAction
		args = p.CorrectedArgs
	}
	if action == "" && p.Correction != nil {
		return p.Correction.toCorrection()
	}
	if action == "" {
		return nil
	}
	return &Correction{Action: action, Args: args}
}

// balancedObject returns the shortest balanced {...} prefix of text and the
// index just past it. It is string- and escape-aware so braces inside JSON
// strings do not miscount. Returns ("", 0) when the object never closes.
func balancedObject(text string) (string, int) {
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(text); i++ {
		ch := text[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[:i+1], i + 1
			}
		}
	}

	return "", 0
}
