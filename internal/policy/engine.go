package policy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/spf13/afero"
)

// DefaultPolicyPackage is the Rego package queried for deny and warn rules.
const DefaultPolicyPackage = "engram.policy"

// Engine wraps OPA for policy evaluation. It compiles the .rego files found
// in the policies directory and evaluates them against deletion requests.
// All evaluation happens locally without network calls.
type Engine struct {
	policies      []*PolicyFile
	policyPackage string
}

// EngineConfig holds configuration for creating an Engine.
type EngineConfig struct {
	// PoliciesDir is the directory containing .rego policy files.
	PoliciesDir string

	// PolicyPackage is the Rego package to query.
	// If empty, defaults to "engram.policy".
	PolicyPackage string

	// Fs is the filesystem to use for loading policies.
	// If nil, uses the OS filesystem.
	Fs afero.Fs
}

// NewEngine creates a policy engine from the .rego files under
// cfg.PoliciesDir. A missing directory is not an error; the returned engine
// is simply disabled and allows everything.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	if cfg.PolicyPackage == "" {
		cfg.PolicyPackage = DefaultPolicyPackage
	}

	loader := NewLoader(cfg.Fs, cfg.PoliciesDir)
	policies, err := loader.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("load policies: %w", err)
	}

	return &Engine{
		policies:      policies,
		policyPackage: cfg.PolicyPackage,
	}, nil
}

// NewEngineWithPolicies creates an engine with explicitly provided policies.
// This is useful for testing or when policies come from sources other than files.
func NewEngineWithPolicies(policies []*PolicyFile) *Engine {
	return &Engine{
		policies:      policies,
		policyPackage: DefaultPolicyPackage,
	}
}

// Enabled reports whether any policies are loaded. A disabled engine allows
// everything without invoking OPA.
func (e *Engine) Enabled() bool {
	return e != nil && len(e.policies) > 0
}

// PolicyCount returns the number of loaded policies.
func (e *Engine) PolicyCount() int {
	if e == nil {
		return 0
	}
	return len(e.policies)
}

// PolicyNames returns the names of all loaded policies.
func (e *Engine) PolicyNames() []string {
	names := make([]string, len(e.policies))
	for i, p := range e.policies {
		names[i] = p.Name
	}
	return names
}

// Policies returns the loaded policy files.
func (e *Engine) Policies() []*PolicyFile {
	return e.policies
}

// EvaluateDeleteEdge runs the loaded policies against a pending edge
// deletion. Policies see the standard input document:
//
//	{
//	  "action": "delete_edge",
//	  "edge": { "id": "...", "relation": "...", "edge_type": "...", "properties": {...} },
//	  "consent_given": true,
//	  "project": "..."
//	}
//
// A deny decision must block the deletion before the constitutive check runs.
func (e *Engine) EvaluateDeleteEdge(ctx context.Context, edge *EdgeInput, consentGiven bool, project string) (*Decision, error) {
	input := &DeleteEdgeInput{
		Action:       ActionDeleteEdge,
		Edge:         edge,
		ConsentGiven: consentGiven,
		Project:      project,
	}
	return e.Evaluate(ctx, input)
}

// Evaluate runs all loaded policies against the provided input.
//
// The function queries the "deny" and "warn" rules in the policy package.
// Any strings returned by "deny" rules become violations that block the
// action. Any strings returned by "warn" rules surface as warnings that are
// logged but never block.
func (e *Engine) Evaluate(ctx context.Context, input any) (*Decision, error) {
	decision := &Decision{
		DecisionID:  uuid.New().String(),
		PolicyPath:  e.policyPackage,
		Result:      ResultAllow,
		Input:       input,
		EvaluatedAt: time.Now().UTC(),
	}
	if len(e.policies) == 0 {
		return decision, nil
	}

	modules := make([]func(*rego.Rego), len(e.policies))
	for i, p := range e.policies {
		modules[i] = rego.Module(p.Path, p.Content)
	}

	violations, err := e.querySet(ctx, input, "deny", modules)
	if err != nil {
		return nil, fmt.Errorf("query deny rules: %w", err)
	}

	// Warn rules are optional, so an undefined rule is not an error.
	warnings, err := e.querySet(ctx, input, "warn", modules)
	if err != nil {
		warnings = nil
	}

	if len(violations) > 0 {
		decision.Result = ResultDeny
		decision.Violations = violations
	}
	decision.Warnings = warnings

	return decision, nil
}

// querySet queries a set-generating rule (like deny or warn) and returns all
// string values it produced.
func (e *Engine) querySet(ctx context.Context, input any, ruleName string, modules []func(*rego.Rego)) ([]string, error) {
	query := fmt.Sprintf("data.%s.%s", e.policyPackage, ruleName)

	opts := []func(*rego.Rego){
		rego.Query(query),
		rego.Input(input),
	}
	opts = append(opts, modules...)

	rs, err := rego.New(opts...).Eval(ctx)
	if err != nil {
		// A rule that no loaded policy defines evaluates to undefined, which is fine.
		if strings.Contains(err.Error(), "undefined") {
			return nil, nil
		}
		return nil, err
	}

	var results []string
	for _, result := range rs {
		for _, expr := range result.Expressions {
			set, ok := expr.Value.([]any)
			if !ok {
				continue
			}
			for _, item := range set {
				if s, ok := item.(string); ok {
					results = append(results, s)
				}
			}
		}
	}

	return results, nil
}

// ValidatePolicy checks if a policy has valid Rego syntax.
// Returns nil if valid, or an error describing the syntax problem.
func ValidatePolicy(content string) error {
	_, err := rego.New(
		rego.Query("data"),
		rego.Module("validation.rego", content),
	).PrepareForEval(context.Background())
	if err != nil {
		return fmt.Errorf("invalid policy: %w", err)
	}
	return nil
}
