/*
Copyright © 2025 Engram Labs
*/
package cmd

import (
	"context"
	"testing"

	"github.com/engramlabs/engram/internal/policy"
)

func starterEngine() *policy.Engine {
	return policy.NewEngineWithPolicies([]*policy.PolicyFile{{
		Path:    "default.rego",
		Name:    "default",
		Content: DefaultRegoPolicy,
	}})
}

func TestDefaultRegoPolicy_Compiles(t *testing.T) {
	if err := policy.ValidatePolicy(DefaultRegoPolicy); err != nil {
		t.Fatalf("ValidatePolicy() error = %v", err)
	}
}

func TestDefaultRegoPolicy_PinnedEdgeDeniedEvenWithConsent(t *testing.T) {
	engine := starterEngine()

	decision, err := engine.EvaluateDeleteEdge(context.Background(), &policy.EdgeInput{
		ID:         "e-1a2b3c4d",
		Relation:   "works_at",
		EdgeType:   "constitutive",
		Properties: map[string]any{"pinned": true},
	}, true, "default")
	if err != nil {
		t.Fatalf("EvaluateDeleteEdge() error = %v", err)
	}

	if !decision.IsDenied() {
		t.Errorf("Result = %v, want %v for pinned edge", decision.Result, policy.ResultDeny)
	}
}

func TestDefaultRegoPolicy_ConstitutiveConsent(t *testing.T) {
	engine := starterEngine()
	edge := &policy.EdgeInput{
		ID:       "e-1a2b3c4d",
		Relation: "works_at",
		EdgeType: "constitutive",
	}

	decision, err := engine.EvaluateDeleteEdge(context.Background(), edge, false, "default")
	if err != nil {
		t.Fatalf("EvaluateDeleteEdge() error = %v", err)
	}
	if !decision.IsDenied() {
		t.Errorf("Result = %v, want deny without consent", decision.Result)
	}

	decision, err = engine.EvaluateDeleteEdge(context.Background(), edge, true, "default")
	if err != nil {
		t.Fatalf("EvaluateDeleteEdge() error = %v", err)
	}
	if !decision.IsAllowed() {
		t.Errorf("Result = %v, want allow with consent", decision.Result)
	}
	if len(decision.Warnings) == 0 {
		t.Error("Warnings is empty, want a warning for a consented constitutive deletion")
	}
}

func TestDefaultRegoPolicy_DescriptiveEdgeAllowed(t *testing.T) {
	engine := starterEngine()

	decision, err := engine.EvaluateDeleteEdge(context.Background(), &policy.EdgeInput{
		ID:       "e-5e6f7a8b",
		Relation: "mentioned_with",
		EdgeType: "descriptive",
	}, false, "default")
	if err != nil {
		t.Fatalf("EvaluateDeleteEdge() error = %v", err)
	}

	if !decision.IsAllowed() {
		t.Errorf("Result = %v, want allow for descriptive edge", decision.Result)
	}
	if len(decision.Violations) != 0 {
		t.Errorf("Violations = %v, want empty", decision.Violations)
	}
}
