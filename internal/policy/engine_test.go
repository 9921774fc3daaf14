package policy

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/afero"
)

func TestEngine_Evaluate_NoPolicies(t *testing.T) {
	// When no policies are loaded, everything should be allowed
	engine := NewEngineWithPolicies(nil)

	if engine.Enabled() {
		t.Error("Enabled() = true, want false for empty engine")
	}

	decision, err := engine.EvaluateDeleteEdge(context.Background(), &EdgeInput{
		ID:       "e-1a2b3c4d",
		Relation: "USES",
		EdgeType: "descriptive",
	}, false, "default")
	if err != nil {
		t.Fatalf("EvaluateDeleteEdge() error = %v", err)
	}

	if decision.Result != ResultAllow {
		t.Errorf("Result = %v, want %v", decision.Result, ResultAllow)
	}
	if len(decision.Violations) != 0 {
		t.Errorf("Violations = %v, want empty", decision.Violations)
	}
	if decision.DecisionID == "" {
		t.Error("DecisionID is empty, want a UUID")
	}
}

func TestEngine_EvaluateDeleteEdge_DenyRule(t *testing.T) {
	policy := &PolicyFile{
		Name: "constitutive_consent",
		Path: "constitutive_consent.rego",
		Content: `package engram.policy

import rego.v1

deny contains msg if {
    input.action == "delete_edge"
    input.edge.edge_type == "constitutive"
    not input.consent_given
    msg := sprintf("constitutive edge %s requires recorded consent", [input.edge.id])
}
`,
	}

	engine := NewEngineWithPolicies([]*PolicyFile{policy})

	tests := []struct {
		name        string
		edge        *EdgeInput
		consent     bool
		wantResult  string
		wantViolate bool
	}{
		{
			name:        "deny constitutive edge without consent",
			edge:        &EdgeInput{ID: "e-1a2b3c4d", Relation: "VALUES", EdgeType: "constitutive"},
			consent:     false,
			wantResult:  ResultDeny,
			wantViolate: true,
		},
		{
			name:        "allow constitutive edge with consent",
			edge:        &EdgeInput{ID: "e-1a2b3c4d", Relation: "VALUES", EdgeType: "constitutive"},
			consent:     true,
			wantResult:  ResultAllow,
			wantViolate: false,
		},
		{
			name:        "allow descriptive edge",
			edge:        &EdgeInput{ID: "e-5e6f7a8b", Relation: "USES", EdgeType: "descriptive"},
			consent:     false,
			wantResult:  ResultAllow,
			wantViolate: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision, err := engine.EvaluateDeleteEdge(context.Background(), tt.edge, tt.consent, "default")
			if err != nil {
				t.Fatalf("EvaluateDeleteEdge() error = %v", err)
			}

			if decision.Result != tt.wantResult {
				t.Errorf("Result = %v, want %v", decision.Result, tt.wantResult)
			}

			hasViolations := len(decision.Violations) > 0
			if hasViolations != tt.wantViolate {
				t.Errorf("Has violations = %v, want %v. Violations: %v", hasViolations, tt.wantViolate, decision.Violations)
			}
		})
	}
}

func TestEngine_Evaluate_MultiplePolicies(t *testing.T) {
	retention := &PolicyFile{
		Name: "retention",
		Path: "retention.rego",
		Content: `package engram.policy

import rego.v1

deny contains msg if {
    input.edge.relation == "VALUES"
    msg := "VALUES edges are retained for identity continuity"
}
`,
	}

	frozen := &PolicyFile{
		Name: "frozen_projects",
		Path: "frozen_projects.rego",
		Content: `package engram.policy

import rego.v1

deny contains msg if {
    input.project == "production"
    msg := "production memories are frozen"
}
`,
	}

	engine := NewEngineWithPolicies([]*PolicyFile{retention, frozen})

	// Both rules fire: VALUES relation in the production project
	decision, err := engine.EvaluateDeleteEdge(context.Background(), &EdgeInput{
		ID:       "e-1a2b3c4d",
		Relation: "VALUES",
		EdgeType: "constitutive",
	}, true, "production")
	if err != nil {
		t.Fatalf("EvaluateDeleteEdge() error = %v", err)
	}

	if decision.Result != ResultDeny {
		t.Errorf("Result = %v, want %v", decision.Result, ResultDeny)
	}
	if len(decision.Violations) != 2 {
		t.Errorf("Violations count = %d, want 2. Got: %v", len(decision.Violations), decision.Violations)
	}
}

func TestEngine_WarnRulesDoNotBlock(t *testing.T) {
	policy := &PolicyFile{
		Name: "resolution_warning",
		Path: "resolution_warning.rego",
		Content: `package engram.policy

import rego.v1

warn contains msg if {
    input.edge.edge_type == "resolution"
    msg := "deleting a resolution edge reopens its dissonance"
}
`,
	}

	engine := NewEngineWithPolicies([]*PolicyFile{policy})

	decision, err := engine.EvaluateDeleteEdge(context.Background(), &EdgeInput{
		ID:       "e-9c0d1e2f",
		Relation: "SOLVES",
		EdgeType: "resolution",
	}, false, "default")
	if err != nil {
		t.Fatalf("EvaluateDeleteEdge() error = %v", err)
	}

	if decision.Result != ResultAllow {
		t.Errorf("Result = %v, want %v (warn rules must not block)", decision.Result, ResultAllow)
	}
	if len(decision.Warnings) != 1 {
		t.Errorf("Warnings count = %d, want 1. Got: %v", len(decision.Warnings), decision.Warnings)
	}
	if err := decision.Denial(); err != nil {
		t.Errorf("Denial() = %v, want nil for an allow decision", err)
	}
}

func TestEngine_Evaluate_PropertiesVisibleToPolicies(t *testing.T) {
	policy := &PolicyFile{
		Name: "participants",
		Path: "participants.rego",
		Content: `package engram.policy

import rego.v1

deny contains msg if {
    input.edge.properties.participants == "I/O"
    msg := "edges between I/O and the user are protected"
}
`,
	}

	engine := NewEngineWithPolicies([]*PolicyFile{policy})

	decision, err := engine.EvaluateDeleteEdge(context.Background(), &EdgeInput{
		ID:         "e-1a2b3c4d",
		Relation:   "LOVES",
		EdgeType:   "constitutive",
		Properties: map[string]any{"participants": "I/O"},
	}, true, "default")
	if err != nil {
		t.Fatalf("EvaluateDeleteEdge() error = %v", err)
	}

	if decision.Result != ResultDeny {
		t.Errorf("Result = %v, want %v", decision.Result, ResultDeny)
	}
}

func TestNewEngine_LoadsFromDirectory(t *testing.T) {
	fs := afero.NewMemMapFs()
	dir := "/home/user/.engram/policies"
	_ = fs.MkdirAll(dir, 0o755)
	_ = afero.WriteFile(fs, dir+"/retention.rego", []byte(`package engram.policy

import rego.v1

deny contains msg if {
    input.edge.relation == "VALUES"
    msg := "VALUES edges are retained"
}
`), 0o644)

	engine, err := NewEngine(EngineConfig{PoliciesDir: dir, Fs: fs})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	if !engine.Enabled() {
		t.Error("Enabled() = false, want true after loading a policy")
	}
	if got := engine.PolicyCount(); got != 1 {
		t.Errorf("PolicyCount() = %d, want 1", got)
	}
	if names := engine.PolicyNames(); len(names) != 1 || names[0] != "retention" {
		t.Errorf("PolicyNames() = %v, want [retention]", names)
	}

	decision, err := engine.EvaluateDeleteEdge(context.Background(), &EdgeInput{
		ID:       "e-1a2b3c4d",
		Relation: "VALUES",
		EdgeType: "constitutive",
	}, true, "default")
	if err != nil {
		t.Fatalf("EvaluateDeleteEdge() error = %v", err)
	}
	if decision.Result != ResultDeny {
		t.Errorf("Result = %v, want %v", decision.Result, ResultDeny)
	}
}

func TestNewEngine_MissingDirectoryDisablesEngine(t *testing.T) {
	engine, err := NewEngine(EngineConfig{
		PoliciesDir: "/home/user/.engram/policies",
		Fs:          afero.NewMemMapFs(),
	})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	if engine.Enabled() {
		t.Error("Enabled() = true, want false when the policies directory is missing")
	}

	decision, err := engine.EvaluateDeleteEdge(context.Background(), &EdgeInput{
		ID:       "e-1a2b3c4d",
		Relation: "VALUES",
		EdgeType: "constitutive",
	}, false, "default")
	if err != nil {
		t.Fatalf("EvaluateDeleteEdge() error = %v", err)
	}
	if decision.Result != ResultAllow {
		t.Errorf("Result = %v, want %v", decision.Result, ResultAllow)
	}
}

func TestDecision_Denial(t *testing.T) {
	policy := &PolicyFile{
		Name: "deny_all_deletes",
		Path: "deny_all_deletes.rego",
		Content: `package engram.policy

import rego.v1

deny contains msg if {
    input.action == "delete_edge"
    msg := "deletions are disabled"
}
`,
	}

	engine := NewEngineWithPolicies([]*PolicyFile{policy})

	decision, err := engine.EvaluateDeleteEdge(context.Background(), &EdgeInput{
		ID:       "e-1a2b3c4d",
		Relation: "USES",
		EdgeType: "descriptive",
	}, false, "default")
	if err != nil {
		t.Fatalf("EvaluateDeleteEdge() error = %v", err)
	}

	denial := decision.Denial()
	if denial == nil {
		t.Fatal("Denial() = nil, want *DeniedError for a deny decision")
	}

	var denied *DeniedError
	if !errors.As(denial, &denied) {
		t.Fatalf("Denial() = %T, want *DeniedError", denial)
	}
	if denied.DecisionID != decision.DecisionID {
		t.Errorf("DeniedError.DecisionID = %q, want %q", denied.DecisionID, decision.DecisionID)
	}
	if !strings.Contains(denial.Error(), "deletions are disabled") {
		t.Errorf("Error() = %q, want it to contain the violation message", denial.Error())
	}
	if !strings.Contains(denial.Error(), "blocked by policy") {
		t.Errorf("Error() = %q, want it to name the policy block", denial.Error())
	}
}

func TestValidatePolicy(t *testing.T) {
	valid := `package engram.policy

import rego.v1

deny contains msg if {
    input.project == "frozen"
    msg := "frozen"
}
`
	if err := ValidatePolicy(valid); err != nil {
		t.Errorf("ValidatePolicy(valid) = %v, want nil", err)
	}

	invalid := `package engram.policy

deny contains msg if {
`
	err := ValidatePolicy(invalid)
	if err == nil {
		t.Fatal("ValidatePolicy(invalid) = nil, want parse error")
	}
	if !strings.Contains(err.Error(), "invalid policy") {
		t.Errorf("error = %q, want it to mention invalid policy", err.Error())
	}
}
