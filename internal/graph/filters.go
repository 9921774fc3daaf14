package graph

import (
	"fmt"
	"reflect"

	"github.com/engramlabs/engram/internal/memory"
)

// Filter keys with special semantics. Every other key matches by object
// containment: the stored bag must hold exactly the filtered value.
const (
	filterParticipants    = "participants"
	filterParticipantsAll = "participants_contains_all"
)

// validatePropertyFilter rejects filter shapes before any edge is examined,
// so a malformed filter is a validation error even on an empty graph.
func validatePropertyFilter(filter map[string]any) error {
	for key, want := range filter {
		switch key {
		case filterParticipants:
			if _, ok := want.(string); !ok {
				return &memory.ValidationError{Field: key, Message: "expects a string participant name"}
			}
		case filterParticipantsAll:
			if _, err := stringList(want); err != nil {
				return &memory.ValidationError{Field: key, Message: err.Error()}
			}
		}
	}
	return nil
}

// matchProperties reports whether an edge property bag satisfies a filter
// that already passed validatePropertyFilter:
//
//   - "participants" with a string value: array membership, the stored
//     participants list contains that string
//   - "participants_contains_all" with a list value: array containment,
//     every listed string is present
//   - any other key: the bag holds this exact value
func matchProperties(props memory.Properties, filter map[string]any) bool {
	for key, want := range filter {
		switch key {
		case filterParticipants:
			name, _ := want.(string)
			if !containsString(props.Participants(), name) {
				return false
			}
		case filterParticipantsAll:
			names, _ := stringList(want)
			have := props.Participants()
			for _, name := range names {
				if !containsString(have, name) {
					return false
				}
			}
		default:
			got, ok := props[key]
			if !ok || !jsonEqual(got, want) {
				return false
			}
		}
	}
	return true
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// stringList coerces a filter value into []string. JSON decoding hands the
// handler []any; direct Go callers may pass []string.
func stringList(v any) ([]string, error) {
	switch list := v.(type) {
	case []string:
		return list, nil
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expects a list of strings, got %T element", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expects a list of strings, got %T", v)
	}
}

// jsonEqual compares two values in their JSON-decoded shapes. Numbers arrive
// as float64 on both sides once they crossed a wire or the store, so deep
// equality is sufficient; a raw int from an in-process caller is widened
// first.
func jsonEqual(a, b any) bool {
	return reflect.DeepEqual(widen(a), widen(b))
}

func widen(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	default:
		return v
	}
}
