/*
Copyright © 2025 Engram Labs
*/
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/engramlabs/engram/internal/config"
	"github.com/engramlabs/engram/internal/policy"
	"github.com/engramlabs/engram/internal/project"
	"github.com/engramlabs/engram/internal/ui"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// DefaultRegoPolicy is the starter policy written by `engram policy init`.
const DefaultRegoPolicy = `# Engram Starter Deletion Policy
# Deny rules here veto a delete_edge call before the built-in constitutive
# guard runs; warn rules surface advisory messages without blocking.
# Learn more: https://www.openpolicyagent.org/docs/latest/policy-language/

package engram.policy

import rego.v1

# ═══════════════════════════════════════════════════════════════════════════════
# HELPER FUNCTIONS
# ═══════════════════════════════════════════════════════════════════════════════

# Check if the edge carries identity-bearing structure
is_constitutive(edge) if edge.edge_type == "constitutive"

# Check if an operator pinned the edge (properties.pinned = true)
is_pinned(edge) if edge.properties.pinned == true

# ═══════════════════════════════════════════════════════════════════════════════
# PROTECTED EDGES - deletions that are always refused
# ═══════════════════════════════════════════════════════════════════════════════

# Pinned edges never go away, consent or not
deny contains msg if {
    input.action == "delete_edge"
    is_pinned(input.edge)
    msg := sprintf("BLOCKED: edge '%s' (%s) is pinned and cannot be deleted", [input.edge.id, input.edge.relation])
}

# Restates the consent requirement so the refusal lands in the audit trail
# with a policy decision id attached
deny contains msg if {
    input.action == "delete_edge"
    is_constitutive(input.edge)
    not input.consent_given
    msg := sprintf("BLOCKED: constitutive edge '%s' (%s) requires explicit consent", [input.edge.id, input.edge.relation])
}

# ═══════════════════════════════════════════════════════════════════════════════
# WARNINGS - Advisory messages that don't block execution
# ═══════════════════════════════════════════════════════════════════════════════

# A consented constitutive deletion still loses linked entity context
warn contains msg if {
    input.action == "delete_edge"
    is_constitutive(input.edge)
    input.consent_given
    msg := sprintf("WARNING: deleting constitutive edge '%s' (%s) with consent; the entity loses identity-bearing structure", [input.edge.id, input.edge.relation])
}
`

// policyCmd represents the policy parent command
var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Manage OPA deletion policies",
	Long: `Manage the Open Policy Agent (OPA) policies that guard edge deletions.

Policies are written in Rego and loaded from ~/.engram/policies/*.rego
(override with policies.path). Deny rules there veto a delete_edge call
before the built-in constitutive guard runs; warn rules surface advisory
messages without blocking anything.

Examples:
  engram policy init                          # Write the starter policy file
  engram policy list                          # List loaded policy files
  engram policy validate                      # Syntax-check every policy file
  engram policy test --edge-type constitutive # Dry-run a deletion`,
}

// policyInitCmd writes the starter policy file
var policyInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the starter policy file",
	Long: `Create the starter policy file default.rego in the policies directory.

The starter policy:
  • Blocks deletion of pinned edges (properties.pinned = true)
  • Restates the consent requirement for constitutive edges
  • Warns when a consented constitutive deletion goes through

Customize the file or add more .rego files alongside it.`,
	Args: cobra.NoArgs,
	RunE: runPolicyInit,
}

// policyListCmd lists loaded policies
var policyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List loaded policies",
	Long: `List all Rego policy files loaded from the policies directory.

Shows the name and path of each policy file.`,
	Args: cobra.NoArgs,
	RunE: runPolicyList,
}

// policyValidateCmd syntax-checks policy files
var policyValidateCmd = &cobra.Command{
	Use:   "validate [files...]",
	Short: "Syntax-check policy files",
	Long: `Compile policy files and report Rego syntax errors.

Without arguments, checks every .rego file in the policies directory.
With file arguments, checks the specified files instead.

Examples:
  engram policy validate                # Check the policies directory
  engram policy validate custom.rego    # Check a specific file`,
	RunE: runPolicyValidate,
}

// policyTestCmd dry-runs a hypothetical edge deletion
var policyTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Dry-run a deletion against the loaded policies",
	Long: `Evaluate a hypothetical edge deletion against the loaded policies.

Nothing is read from or written to the store; the edge is described
entirely by flags. Useful for checking what a policy change would block
before an agent hits it.

Examples:
  engram policy test                                  # Plain descriptive edge
  engram policy test --edge-type constitutive         # Blocked without consent
  engram policy test --edge-type constitutive --consent
  engram policy test --pinned --consent               # Pins override consent`,
	Args: cobra.NoArgs,
	RunE: runPolicyTest,
}

var (
	policyTestRelation string
	policyTestEdgeType string
	policyTestConsent  bool
	policyTestPinned   bool
	policyTestProject  string
)

func init() {
	rootCmd.AddCommand(policyCmd)

	policyCmd.AddCommand(policyInitCmd)
	policyCmd.AddCommand(policyListCmd)
	policyCmd.AddCommand(policyValidateCmd)
	policyCmd.AddCommand(policyTestCmd)

	policyTestCmd.Flags().StringVar(&policyTestRelation, "relation", "relates_to", "Relation of the hypothetical edge")
	policyTestCmd.Flags().StringVar(&policyTestEdgeType, "edge-type", "descriptive", "Edge type (descriptive or constitutive)")
	policyTestCmd.Flags().BoolVar(&policyTestConsent, "consent", false, "Evaluate with consent_given set")
	policyTestCmd.Flags().BoolVar(&policyTestPinned, "pinned", false, "Mark the hypothetical edge as pinned")
	policyTestCmd.Flags().StringVarP(&policyTestProject, "project", "p", "", "Project the deletion runs in")
}

func runPolicyInit(cmd *cobra.Command, args []string) error {
	policiesDir := config.PoliciesDir()
	if policiesDir == "" {
		return fmt.Errorf("resolve policies directory: home directory unknown; set policies.path in config")
	}
	defaultPath := filepath.Join(policiesDir, "default.rego")

	if _, err := os.Stat(defaultPath); err == nil {
		if isJSON() {
			return printJSON(map[string]any{"path": defaultPath, "status": "exists"})
		}
		cmd.Printf("Policy file already exists: %s\n", defaultPath)
		cmd.Println("Edit it in place or add more .rego files alongside it.")
		return nil
	}

	if err := os.MkdirAll(policiesDir, 0755); err != nil {
		return fmt.Errorf("create policies directory: %w", err)
	}
	if err := os.WriteFile(defaultPath, []byte(DefaultRegoPolicy), 0644); err != nil {
		return fmt.Errorf("write starter policy: %w", err)
	}

	if isJSON() {
		return printJSON(map[string]any{"created": defaultPath, "status": "success"})
	}

	cmd.Printf("✓ Created starter policy: %s\n", defaultPath)
	cmd.Println("\nThe starter policy:")
	cmd.Println("  • Blocks deletion of pinned edges (properties.pinned = true)")
	cmd.Println("  • Restates the consent requirement for constitutive edges")
	cmd.Println("  • Warns when a consented constitutive deletion goes through")
	cmd.Printf("\nCustomize the file or add more .rego files to %s\n", policiesDir)

	return nil
}

func runPolicyList(cmd *cobra.Command, args []string) error {
	policiesDir := config.PoliciesDir()
	loader := policy.NewLoader(afero.NewOsFs(), policiesDir)

	policies, err := loader.LoadAll()
	if err != nil {
		return fmt.Errorf("load policies: %w", err)
	}

	if isJSON() {
		type entry struct {
			Name string `json:"name"`
			Path string `json:"path"`
		}
		entries := make([]entry, 0, len(policies))
		for _, p := range policies {
			entries = append(entries, entry{Name: p.Name, Path: p.Path})
		}
		return printJSON(map[string]any{
			"policies_dir": policiesDir,
			"count":        len(policies),
			"policies":     entries,
		})
	}

	if len(policies) == 0 {
		cmd.Println("No policies loaded.")
		cmd.Println("Run 'engram policy init' to create the starter policy.")
		return nil
	}

	cmd.Printf("Policies directory: %s\n", policiesDir)
	cmd.Printf("Loaded %d policy file(s):\n\n", len(policies))

	for _, p := range policies {
		cmd.Printf("  • %s (%s)\n", p.Name, p.Path)
	}

	return nil
}

func runPolicyValidate(cmd *cobra.Command, args []string) error {
	type result struct {
		Path  string `json:"path"`
		Valid bool   `json:"valid"`
		Error string `json:"error,omitempty"`
	}

	var results []result
	if len(args) > 0 {
		for _, path := range args {
			content, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read policy %s: %w", path, err)
			}
			r := result{Path: path, Valid: true}
			if verr := policy.ValidatePolicy(string(content)); verr != nil {
				r.Valid = false
				r.Error = verr.Error()
			}
			results = append(results, r)
		}
	} else {
		policiesDir := config.PoliciesDir()
		loader := policy.NewLoader(afero.NewOsFs(), policiesDir)
		policies, err := loader.LoadAll()
		if err != nil {
			return fmt.Errorf("load policies: %w", err)
		}
		if len(policies) == 0 {
			if isJSON() {
				return printJSON(map[string]any{"checked": 0, "failed": 0, "results": []result{}})
			}
			cmd.Printf("No policy files found in %s\n", policiesDir)
			cmd.Println("Run 'engram policy init' to create the starter policy.")
			return nil
		}
		for _, p := range policies {
			r := result{Path: p.Path, Valid: true}
			if verr := policy.ValidatePolicy(p.Content); verr != nil {
				r.Valid = false
				r.Error = verr.Error()
			}
			results = append(results, r)
		}
	}

	failed := 0
	for _, r := range results {
		if !r.Valid {
			failed++
		}
	}

	if isJSON() {
		return printJSON(map[string]any{
			"checked": len(results),
			"failed":  failed,
			"results": results,
		})
	}

	for _, r := range results {
		if r.Valid {
			cmd.Printf("  ✓ %s\n", r.Path)
		} else {
			cmd.Printf("  ✗ %s: %s\n", r.Path, r.Error)
		}
	}

	if failed > 0 {
		return fmt.Errorf("policy validation failed: %d of %d file(s) invalid", failed, len(results))
	}

	cmd.Printf("\n✓ %d policy file(s) valid\n", len(results))
	return nil
}

func runPolicyTest(cmd *cobra.Command, args []string) error {
	engine, err := policy.NewEngine(policy.EngineConfig{PoliciesDir: config.PoliciesDir()})
	if err != nil {
		return fmt.Errorf("create policy engine: %w", err)
	}

	if engine.PolicyCount() == 0 {
		if isJSON() {
			return printJSON(map[string]any{
				"status":  "allow",
				"mode":    "dry-run",
				"message": "No policies loaded - only the built-in constitutive guard applies",
			})
		}
		cmd.Println("No policies loaded - only the built-in constitutive guard applies.")
		cmd.Println("Run 'engram policy init' to create the starter policy.")
		return nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	proj, err := project.Resolve(policyTestProject, cfg.Project.Default)
	if err != nil {
		return err
	}

	props := map[string]any{"edge_type": policyTestEdgeType}
	if policyTestPinned {
		props["pinned"] = true
	}
	edge := &policy.EdgeInput{
		ID:         "dry-run",
		Relation:   policyTestRelation,
		EdgeType:   policyTestEdgeType,
		Properties: props,
	}

	decision, err := engine.EvaluateDeleteEdge(cmd.Context(), edge, policyTestConsent, proj)
	if err != nil {
		return fmt.Errorf("evaluate policies: %w", err)
	}

	if isJSON() {
		return printJSON(map[string]any{
			"status":      decision.Result,
			"mode":        "dry-run",
			"decision_id": decision.DecisionID,
			"relation":    policyTestRelation,
			"edge_type":   policyTestEdgeType,
			"consent":     policyTestConsent,
			"project":     proj,
			"violations":  decision.Violations,
			"warnings":    decision.Warnings,
		})
	}

	cmd.Println(ui.RenderInfoPanel("Policy Dry-Run",
		fmt.Sprintf("delete_edge  relation %q, type %s, consent %v\nproject      %s\npolicies     %d file(s) loaded",
			policyTestRelation, policyTestEdgeType, policyTestConsent, proj, engine.PolicyCount())))
	cmd.Println()

	for _, w := range decision.Warnings {
		cmd.Printf("  ⚠ %s\n", w)
	}
	if len(decision.Warnings) > 0 {
		cmd.Println()
	}

	if decision.IsAllowed() {
		cmd.Println("✓ Deletion would be allowed")
		return nil
	}

	cmd.Println("✗ Deletion would be blocked:")
	for _, v := range decision.Violations {
		cmd.Printf("  %s\n", v)
	}

	return fmt.Errorf("dry-run: %d policy violation(s)", len(decision.Violations))
}
