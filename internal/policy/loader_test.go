package policy

import (
	"strings"
	"testing"

	"github.com/spf13/afero"
)

func TestLoader_LoadAll(t *testing.T) {
	fs := afero.NewMemMapFs()
	_ = fs.MkdirAll("/home/user/.engram/policies", 0o755)

	retentionRego := `package engram.policy

import rego.v1

deny contains msg if {
    input.edge.relation == "VALUES"
    msg := "VALUES edges are retained"
}
`
	frozenRego := `package engram.policy

import rego.v1

deny contains msg if {
    input.project == "production"
    msg := "production memories are frozen"
}
`

	_ = afero.WriteFile(fs, "/home/user/.engram/policies/retention.rego", []byte(retentionRego), 0o644)
	_ = afero.WriteFile(fs, "/home/user/.engram/policies/frozen_projects.rego", []byte(frozenRego), 0o644)
	// Non-rego files should be ignored
	_ = afero.WriteFile(fs, "/home/user/.engram/policies/README.md", []byte("# Policies"), 0o644)

	loader := NewLoader(fs, "/home/user/.engram/policies")

	policies, err := loader.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}

	if len(policies) != 2 {
		t.Errorf("LoadAll() returned %d policies, want 2", len(policies))
	}

	names := make(map[string]bool)
	for _, p := range policies {
		names[p.Name] = true
		if p.Content == "" {
			t.Errorf("Policy %s has empty content", p.Name)
		}
		if !strings.HasSuffix(p.Path, ".rego") {
			t.Errorf("Policy %s path = %q, want a .rego path", p.Name, p.Path)
		}
	}

	if !names["retention"] {
		t.Error("Expected retention policy to be loaded")
	}
	if !names["frozen_projects"] {
		t.Error("Expected frozen_projects policy to be loaded")
	}
}

func TestLoader_LoadAll_Subdirectories(t *testing.T) {
	fs := afero.NewMemMapFs()
	_ = fs.MkdirAll("/home/user/.engram/policies/retention", 0o755)
	_ = fs.MkdirAll("/home/user/.engram/policies/projects", 0o755)

	_ = afero.WriteFile(fs, "/home/user/.engram/policies/defaults.rego", []byte("package engram.policy"), 0o644)
	_ = afero.WriteFile(fs, "/home/user/.engram/policies/retention/constitutive.rego", []byte("package engram.policy"), 0o644)
	_ = afero.WriteFile(fs, "/home/user/.engram/policies/projects/frozen.rego", []byte("package engram.policy"), 0o644)

	loader := NewLoader(fs, "/home/user/.engram/policies")

	policies, err := loader.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}

	if len(policies) != 3 {
		t.Errorf("LoadAll() returned %d policies, want 3", len(policies))
	}
}

func TestLoader_LoadAll_EmptyDirectory(t *testing.T) {
	fs := afero.NewMemMapFs()
	_ = fs.MkdirAll("/home/user/.engram/policies", 0o755)

	loader := NewLoader(fs, "/home/user/.engram/policies")

	policies, err := loader.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}

	if len(policies) != 0 {
		t.Errorf("LoadAll() returned %d policies, want 0", len(policies))
	}
}

func TestLoader_LoadAll_NonExistentDirectory(t *testing.T) {
	fs := afero.NewMemMapFs()

	loader := NewLoader(fs, "/home/user/.engram/policies")

	policies, err := loader.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() error = %v, want nil for a missing directory", err)
	}
	if len(policies) != 0 {
		t.Errorf("LoadAll() returned %d policies, want 0", len(policies))
	}
}

func TestLoader_Exists(t *testing.T) {
	fs := afero.NewMemMapFs()

	loader := NewLoader(fs, "/home/user/.engram/policies")

	exists, err := loader.Exists()
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if exists {
		t.Error("Exists() = true, want false before the directory is created")
	}

	_ = fs.MkdirAll("/home/user/.engram/policies", 0o755)

	exists, err = loader.Exists()
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if !exists {
		t.Error("Exists() = false, want true after the directory is created")
	}
}
