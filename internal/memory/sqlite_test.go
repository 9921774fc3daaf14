package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/engramlabs/engram/internal/project"
)

func setupTestStore(t *testing.T) (*SQLiteStore, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "engram-test-*")
	if err != nil {
		t.Fatalf("create temp dir: %v", err)
	}

	store, err := Open(filepath.Join(tmpDir, "engram.db"))
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("open store: %v", err)
	}

	cleanup := func() {
		store.Close()
		os.RemoveAll(tmpDir)
	}

	return store, cleanup
}

func testCtx(proj string) context.Context {
	return project.WithProject(context.Background(), proj)
}

func TestOpenBootstrapsSchema(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	counts, err := store.CountTiers(testCtx("default"))
	if err != nil {
		t.Fatalf("count tiers: %v", err)
	}
	if counts.Nodes != 0 || counts.Edges != 0 || counts.Insights != 0 {
		t.Errorf("fresh database should be empty, got %+v", counts)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "engram-test-*")
	if err != nil {
		t.Fatalf("create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	dbPath := filepath.Join(tmpDir, "engram.db")
	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}

	ctx := testCtx("default")
	if _, _, err := store.UpsertNode(ctx, NodeUpsert{Label: "Person", Name: "Ada"}); err != nil {
		t.Fatalf("upsert node: %v", err)
	}
	store.Close()

	// Reopen: schema bootstrap and migrations must not disturb existing rows.
	store, err = Open(dbPath)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer store.Close()

	node, err := store.GetNodeByName(ctx, "Ada")
	if err != nil {
		t.Fatalf("get node after reopen: %v", err)
	}
	if node.Label != "Person" {
		t.Errorf("expected label 'Person', got %q", node.Label)
	}
}

func TestStoreRequiresProject(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	_, _, err := store.UpsertNode(context.Background(), NodeUpsert{Label: "Person", Name: "Ada"})
	if err == nil {
		t.Fatal("expected error when context carries no project")
	}
	if _, err := store.ListWorkingItems(context.Background(), 10); err == nil {
		t.Fatal("expected read error when context carries no project")
	}
}

func TestProjectIsolation(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	alpha := testCtx("alpha")
	beta := testCtx("beta")

	if _, _, err := store.UpsertNode(alpha, NodeUpsert{Label: "Person", Name: "Ada"}); err != nil {
		t.Fatalf("upsert in alpha: %v", err)
	}

	if _, err := store.GetNodeByName(beta, "Ada"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound in beta, got %v", err)
	}

	// Same name in two projects stays two independent nodes.
	idBeta, created, err := store.UpsertNode(beta, NodeUpsert{Label: "Concept", Name: "Ada"})
	if err != nil {
		t.Fatalf("upsert in beta: %v", err)
	}
	if !created {
		t.Error("expected a fresh node in beta")
	}
	nodeAlpha, err := store.GetNodeByName(alpha, "Ada")
	if err != nil {
		t.Fatalf("get alpha node: %v", err)
	}
	if nodeAlpha.ID == idBeta {
		t.Error("projects must not share node rows")
	}
	if nodeAlpha.Label != "Person" {
		t.Errorf("alpha node overwritten across projects: label %q", nodeAlpha.Label)
	}
}

func TestParseTime(t *testing.T) {
	if !parseTime("").IsZero() {
		t.Error("empty string should parse to zero time")
	}
	if !parseTime("not-a-date").IsZero() {
		t.Error("malformed string should parse to zero time")
	}
	got := parseTime("2026-01-15T10:30:00Z")
	want := time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}
