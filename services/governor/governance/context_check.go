// Copyright (C) 2025 Vertice Code (dev@vertice-code.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package governance

import (
	"fmt"
	"reflect"

	"github.com/JuanCS-Dev/vertice-code/services/governor"
)

// maxContextDepth caps the recursive descent through the task context.
// Contexts deeper than this are rejected the same way as cycles.
const maxContextDepth = 32

// validateContext checks the task context map for reference cycles.
//
// Maps and slices in Go can contain themselves through `any`; a cyclic
// context would hang the per-evaluator deep copy. The walk keeps a
// per-branch visited set of map/slice identities and is depth-capped.
func validateContext(m map[string]any) error {
	seen := make(map[uintptr]bool)
	for key, value := range m {
		if err := walkValue(reflect.ValueOf(value), seen, 0); err != nil {
			return fmt.Errorf("context key %q: %w", key, err)
		}
	}
	return nil
}

func walkValue(v reflect.Value, seen map[uintptr]bool, depth int) error {
	if depth > maxContextDepth {
		return fmt.Errorf("nesting exceeds depth %d: %w", maxContextDepth, governor.ErrCircularContext)
	}

	switch v.Kind() {
	case reflect.Invalid:
		return nil

	case reflect.Interface, reflect.Pointer:
		if v.IsNil() {
			return nil
		}
		return walkValue(v.Elem(), seen, depth+1)

	case reflect.Map:
		ptr := v.Pointer()
		if seen[ptr] {
			return governor.ErrCircularContext
		}
		seen[ptr] = true
		defer delete(seen, ptr)

		iter := v.MapRange()
		for iter.Next() {
			if err := walkValue(iter.Value(), seen, depth+1); err != nil {
				return err
			}
		}
		return nil

	case reflect.Slice:
		ptr := v.Pointer()
		if seen[ptr] {
			return governor.ErrCircularContext
		}
		seen[ptr] = true
		defer delete(seen, ptr)

		for i := 0; i < v.Len(); i++ {
			if err := walkValue(v.Index(i), seen, depth+1); err != nil {
				return err
			}
		}
		return nil

	case reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if err := walkValue(v.Index(i), seen, depth+1); err != nil {
				return err
			}
		}
		return nil
	}

	// Scalars and structs-by-value cannot close a cycle.
	return nil
}

// copyContext deep-copies a task context so each evaluator gets a private
// view. Call validateContext first; the copy assumes an acyclic input.
func copyContext(m map[string]any) map[string]any {
	if m == nil {
		return make(map[string]any)
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = copyValue(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = copyValue(inner)
		}
		return out
	default:
		return v
	}
}
