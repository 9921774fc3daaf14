package memory

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Properties is the free-form property bag attached to nodes, edges, and
// audit snapshots. Values survive a JSON round trip, so after loading from
// the store the concrete types are string, float64, bool, []any and
// map[string]any. Well-known keys get typed accessors that validate on read
// instead of trusting the caller.
type Properties map[string]any

// Well-known property keys.
const (
	PropEdgeType         = "edge_type"
	PropEntrenchment     = "entrenchment_level"
	PropImportance       = "importance"
	PropEmotionalValence = "emotional_valence"
	PropContextType      = "context_type"
	PropParticipants     = "participants"
	PropSuperseded       = "superseded"
	PropStatus           = "status"
)

// Importance levels recognized in edge properties. They set the floor of the
// decay memory strength, they do not change the formula itself.
const (
	ImportanceHigh   = "high"
	ImportanceMedium = "medium"
	ImportanceLow    = "low"
)

// Clone returns a deep-enough copy for single-level mutation. Nested maps and
// lists are shared; callers that merge only set top-level keys.
func (p Properties) Clone() Properties {
	if p == nil {
		return Properties{}
	}
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Merge overlays other onto a copy of p and returns the result. Keys in
// other win; p is never mutated.
func (p Properties) Merge(other Properties) Properties {
	out := p.Clone()
	for k, v := range other {
		out[k] = v
	}
	return out
}

// String returns the string value for key, or "" when absent or not a string.
func (p Properties) String(key string) string {
	s, _ := p[key].(string)
	return s
}

// Bool returns the boolean value for key; absent or mistyped is false.
func (p Properties) Bool(key string) bool {
	b, _ := p[key].(bool)
	return b
}

// EdgeType returns the declared edge type, defaulting to descriptive.
func (p Properties) EdgeType() string {
	if t := p.String(PropEdgeType); t != "" {
		return t
	}
	return EdgeTypeDescriptive
}

// IsConstitutive reports whether the bag marks an identity-defining edge.
func (p Properties) IsConstitutive() bool {
	return p.EdgeType() == EdgeTypeConstitutive
}

// Importance returns the importance level or "" when unset/unrecognized.
func (p Properties) Importance() string {
	switch v := p.String(PropImportance); v {
	case ImportanceHigh, ImportanceMedium, ImportanceLow:
		return v
	}
	return ""
}

// Participants returns the participants list when present and well-formed.
func (p Properties) Participants() []string {
	raw, ok := p[PropParticipants]
	if !ok {
		return nil
	}
	list, ok := raw.([]any)
	if !ok {
		// Already-typed slices appear when the bag never crossed JSON.
		if typed, ok := raw.([]string); ok {
			return typed
		}
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Superseded reports whether the edge has been superseded: either the
// boolean flag is set or a status string contains "superseded".
func (p Properties) Superseded() bool {
	if p.Bool(PropSuperseded) {
		return true
	}
	if status := p.String(PropStatus); status != "" {
		return strings.Contains(strings.ToLower(status), "superseded")
	}
	return false
}

// marshalProperties renders a bag for storage. nil persists as NULL.
func marshalProperties(p Properties) (any, error) {
	if p == nil {
		return nil, nil
	}
	buf, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal properties: %w", err)
	}
	return string(buf), nil
}

// unmarshalProperties parses a stored bag; empty input yields nil.
func unmarshalProperties(raw string) (Properties, error) {
	if raw == "" {
		return nil, nil
	}
	var p Properties
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("unmarshal properties: %w", err)
	}
	return p, nil
}

// marshalStringList and unmarshalStringList cover tag/source-id columns.
func marshalStringList(list []string) (string, error) {
	if list == nil {
		list = []string{}
	}
	buf, err := json.Marshal(list)
	if err != nil {
		return "", fmt.Errorf("marshal list: %w", err)
	}
	return string(buf), nil
}

func unmarshalStringList(raw string) []string {
	if raw == "" {
		return nil
	}
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil
	}
	return list
}

// marshalMetadata and unmarshalMetadata cover metadata columns, which share
// the JSON shape of Properties but skip the typed accessors.
func marshalMetadata(m map[string]any) (any, error) {
	if m == nil {
		return nil, nil
	}
	buf, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return string(buf), nil
}

func unmarshalMetadata(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil
	}
	return m
}
