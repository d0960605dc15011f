package docstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
)

// ErrFieldType is returned when an operator meets a field of the wrong type.
var ErrFieldType = errors.New("field has unexpected type")

// Patch maps top-level field names to new values or field operators.
type Patch map[string]any

// FieldOp transforms the current value of a field.
type FieldOp interface {
	apply(current any, exists bool) (any, error)
}

type arrayUnion struct{ values []any }
type arrayRemove struct{ values []any }
type increment struct{ delta float64 }

// ArrayUnion appends each value not already present in the array field,
// creating the array when the field is missing.
func ArrayUnion(values ...any) FieldOp { return arrayUnion{values: normalizeAll(values)} }

// ArrayRemove removes every occurrence of each value from the array field.
func ArrayRemove(values ...any) FieldOp { return arrayRemove{values: normalizeAll(values)} }

// Increment adds delta to a numeric field; a missing field counts as zero.
func Increment(delta int) FieldOp { return increment{delta: float64(delta)} }

func (p Patch) apply(fields map[string]any) error {
	for name, v := range p {
		op, ok := v.(FieldOp)
		if !ok {
			fields[name] = normalize(v)
			continue
		}
		current, exists := fields[name]
		next, err := op.apply(current, exists)
		if err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
		fields[name] = next
	}
	return nil
}

func (op arrayUnion) apply(current any, exists bool) (any, error) {
	arr, err := asArray(current, exists)
	if err != nil {
		return nil, err
	}
	for _, v := range op.values {
		if !containsValue(arr, v) {
			arr = append(arr, v)
		}
	}
	return arr, nil
}

func (op arrayRemove) apply(current any, exists bool) (any, error) {
	arr, err := asArray(current, exists)
	if err != nil {
		return nil, err
	}
	kept := make([]any, 0, len(arr))
	for _, el := range arr {
		if !containsValue(op.values, el) {
			kept = append(kept, el)
		}
	}
	return kept, nil
}

func (op increment) apply(current any, exists bool) (any, error) {
	if !exists || current == nil {
		return op.delta, nil
	}
	n, ok := current.(float64)
	if !ok {
		return nil, fmt.Errorf("increment %T: %w", current, ErrFieldType)
	}
	return n + op.delta, nil
}

func asArray(current any, exists bool) ([]any, error) {
	if !exists || current == nil {
		return []any{}, nil
	}
	arr, ok := current.([]any)
	if !ok {
		return nil, fmt.Errorf("array operator on %T: %w", current, ErrFieldType)
	}
	return arr, nil
}

func containsValue(arr []any, v any) bool {
	for _, el := range arr {
		if reflect.DeepEqual(el, v) {
			return true
		}
	}
	return false
}

// normalize round-trips v through JSON so comparisons against decoded
// document values line up (ints become float64, structs become maps).
func normalize(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}

func normalizeAll(values []any) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = normalize(v)
	}
	return out
}
