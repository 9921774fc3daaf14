// Package policy enforces operator-defined guardrails on destructive graph
// operations using OPA (Open Policy Agent). Operators drop .rego files into
// the policies directory; deny rules there can veto an edge deletion before
// the built-in constitutive check even runs. With no policies directory the
// engine stays disabled and adds no cost to the delete path.
package policy

import (
	"strings"
	"time"
)

// Decision result constants.
const (
	ResultAllow = "allow"
	ResultDeny  = "deny"
)

// ActionDeleteEdge is the action name policies receive for edge deletions.
const ActionDeleteEdge = "delete_edge"

// Decision is the outcome of evaluating the loaded policies against an input.
type Decision struct {
	DecisionID  string    `json:"decisionId"` // UUID for correlating logs
	PolicyPath  string    `json:"policyPath"` // Rego package that was queried
	Result      string    `json:"result"`     // "allow" or "deny"
	Violations  []string  `json:"violations,omitempty"`
	Warnings    []string  `json:"warnings,omitempty"`
	Input       any       `json:"input"`
	EvaluatedAt time.Time `json:"evaluatedAt"`
}

// IsAllowed returns true if no deny rule fired.
func (d *Decision) IsAllowed() bool {
	return d.Result == ResultAllow
}

// IsDenied returns true if at least one deny rule fired.
func (d *Decision) IsDenied() bool {
	return d.Result == ResultDeny
}

// Denial converts a deny decision into an error the tool layer can surface.
// Allow decisions yield nil.
func (d *Decision) Denial() error {
	if !d.IsDenied() {
		return nil
	}
	return &DeniedError{DecisionID: d.DecisionID, Violations: d.Violations}
}

// DeniedError reports an action blocked by one or more deny rules.
type DeniedError struct {
	DecisionID string
	Violations []string
}

func (e *DeniedError) Error() string {
	if len(e.Violations) == 0 {
		return "blocked by policy"
	}
	return "blocked by policy: " + strings.Join(e.Violations, "; ")
}

// DeleteEdgeInput is the document policies receive in the `input` variable
// when an edge deletion is requested.
type DeleteEdgeInput struct {
	Action       string     `json:"action"`
	Edge         *EdgeInput `json:"edge"`
	ConsentGiven bool       `json:"consent_given"`
	Project      string     `json:"project"`
}

// EdgeInput describes the edge about to be deleted.
type EdgeInput struct {
	ID         string         `json:"id"`
	Relation   string         `json:"relation"`
	EdgeType   string         `json:"edge_type"`
	Properties map[string]any `json:"properties,omitempty"`
}
