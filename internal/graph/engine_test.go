package graph

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramlabs/engram/internal/memory"
	"github.com/engramlabs/engram/internal/project"
	"github.com/engramlabs/engram/internal/scoring"
)

func setupEngine(t *testing.T) (*Engine, *memory.SQLiteStore, context.Context) {
	t.Helper()

	store, err := memory.Open(filepath.Join(t.TempDir(), "engram.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	eng := NewEngine(store, scoring.NewCalculator(nil))
	ctx := project.WithProject(context.Background(), "proj-engine")
	return eng, store, ctx
}

// seedNode creates a node and returns its id.
func seedNode(t *testing.T, ctx context.Context, eng *Engine, label, name string) string {
	t.Helper()
	res, err := eng.UpsertNode(ctx, label, name, nil, nil)
	if err != nil {
		t.Fatalf("seed node %s: %v", name, err)
	}
	return res.ID
}

func TestUpsertNodeRequiresName(t *testing.T) {
	eng, _, ctx := setupEngine(t)

	_, err := eng.UpsertNode(ctx, "Person", "   ", nil, nil)
	var verr *memory.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "name", verr.Field)
}

func TestUpsertEdgeValidation(t *testing.T) {
	eng, _, ctx := setupEngine(t)
	src := seedNode(t, ctx, eng, "Person", "I/O")
	dst := seedNode(t, ctx, eng, "Concept", "Go")

	var verr *memory.ValidationError

	_, err := eng.UpsertEdge(ctx, src, dst, "", 0.5, nil, "")
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "relation", verr.Field)

	_, err = eng.UpsertEdge(ctx, src, dst, "USES", 1.2, nil, "")
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "weight", verr.Field)

	_, err = eng.UpsertEdge(ctx, src, dst, "USES", 0.5, nil, "spatial")
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "memory_sector", verr.Field)
}

func TestUpsertEdgeRequiresEndpoints(t *testing.T) {
	eng, _, ctx := setupEngine(t)
	src := seedNode(t, ctx, eng, "Person", "I/O")

	_, err := eng.UpsertEdge(ctx, src, "n-deadbeef", "USES", 0.5, nil, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, memory.ErrNotFound))
}

func TestUpsertEdgeRejectsForeignEndpoint(t *testing.T) {
	eng, _, ctx := setupEngine(t)
	src := seedNode(t, ctx, eng, "Person", "I/O")

	// Same store, different tenant: the node exists but not for us.
	other := project.WithProject(context.Background(), "proj-other")
	foreign := seedNode(t, other, eng, "Concept", "Go")

	_, err := eng.UpsertEdge(ctx, src, foreign, "USES", 0.5, nil, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, memory.ErrNotFound))
}

func TestUpsertEdgeForcesConstitutiveEntrenchment(t *testing.T) {
	eng, store, ctx := setupEngine(t)
	src := seedNode(t, ctx, eng, "Person", "I/O")
	dst := seedNode(t, ctx, eng, "Value", "honesty")

	res, err := eng.UpsertEdge(ctx, src, dst, "VALUES", 0.9,
		memory.Properties{"edge_type": "constitutive"}, "")
	require.NoError(t, err)
	assert.True(t, res.Created)

	edge, err := store.GetEdgeByID(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, memory.EntrenchmentMaximal, edge.Properties.String("entrenchment_level"))
	assert.True(t, edge.Properties.IsConstitutive())
}

func TestUpsertEdgeDoesNotMutateCallerProperties(t *testing.T) {
	eng, _, ctx := setupEngine(t)
	src := seedNode(t, ctx, eng, "Person", "I/O")
	dst := seedNode(t, ctx, eng, "Value", "honesty")

	props := memory.Properties{"edge_type": "constitutive"}
	_, err := eng.UpsertEdge(ctx, src, dst, "VALUES", 0.9, props, "")
	require.NoError(t, err)
	_, forced := props["entrenchment_level"]
	assert.False(t, forced, "engine must clone before forcing entrenchment")
}

func TestUpsertEdgeClassifiesSector(t *testing.T) {
	eng, _, ctx := setupEngine(t)
	src := seedNode(t, ctx, eng, "Person", "I/O")
	dst := seedNode(t, ctx, eng, "Skill", "Go generics")

	res, err := eng.UpsertEdge(ctx, src, dst, "LEARNED", 0.8, nil, "")
	require.NoError(t, err)
	assert.Equal(t, memory.SectorProcedural, res.Sector)

	// Explicit sector wins over classification.
	res, err = eng.UpsertEdge(ctx, src, dst, "LEARNED", 0.8, nil, memory.SectorSemantic)
	require.NoError(t, err)
	assert.Equal(t, memory.SectorSemantic, res.Sector)
	assert.False(t, res.Created, "same composite key updates in place")
}

func TestUpsertEdgeReclassifiesOnUpdate(t *testing.T) {
	eng, store, ctx := setupEngine(t)
	src := seedNode(t, ctx, eng, "Person", "I/O")
	dst := seedNode(t, ctx, eng, "Concept", "deadlines")

	first, err := eng.UpsertEdge(ctx, src, dst, "DISCUSSED", 0.4, nil, "")
	require.NoError(t, err)
	assert.Equal(t, memory.SectorSemantic, first.Sector)

	second, err := eng.UpsertEdge(ctx, src, dst, "DISCUSSED", 0.4,
		memory.Properties{"emotional_valence": -0.6}, "")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, memory.SectorEmotional, second.Sector)

	edge, err := store.GetEdgeByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, memory.SectorEmotional, edge.MemorySector)
}

func TestUpsertEdgeByNames(t *testing.T) {
	eng, store, ctx := setupEngine(t)
	seedNode(t, ctx, eng, "Person", "I/O")

	res, err := eng.UpsertEdgeByNames(ctx, "I/O", "Go", "", "Language", "USES", 0.9, nil, "")
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.False(t, res.SourceNodeCreated, "existing source must be reused")
	assert.True(t, res.TargetNodeCreated)

	target, err := store.GetNodeByName(ctx, "Go")
	require.NoError(t, err)
	assert.Equal(t, "Language", target.Label)
	assert.Equal(t, res.TargetID, target.ID)

	// Defaults apply when no label was given for a fresh node.
	res2, err := eng.UpsertEdgeByNames(ctx, "I/O", "Rust", "", "", "AVOIDS", 0.3, nil, "")
	require.NoError(t, err)
	rust, err := store.GetNodeByName(ctx, "Rust")
	require.NoError(t, err)
	assert.Equal(t, "Entity", rust.Label)
	assert.True(t, res2.TargetNodeCreated)
}

func TestUpsertEdgeByNamesKeepsExistingNode(t *testing.T) {
	eng, store, ctx := setupEngine(t)
	_, err := eng.UpsertNode(ctx, "Person", "I/O", memory.Properties{"role": "assistant"}, nil)
	require.NoError(t, err)
	seedNode(t, ctx, eng, "Concept", "Go")

	_, err = eng.UpsertEdgeByNames(ctx, "I/O", "Go", "Robot", "", "USES", 0.9, nil, "")
	require.NoError(t, err)

	n, err := store.GetNodeByName(ctx, "I/O")
	require.NoError(t, err)
	assert.Equal(t, "Person", n.Label, "labels of existing nodes are never overwritten by edge writes")
	assert.Equal(t, "assistant", n.Properties.String("role"))
}

func TestGetNodeByIDOrName(t *testing.T) {
	eng, _, ctx := setupEngine(t)
	id := seedNode(t, ctx, eng, "Person", "I/O")

	byID, err := eng.GetNode(ctx, id)
	require.NoError(t, err)
	byName, err := eng.GetNode(ctx, "I/O")
	require.NoError(t, err)
	assert.Equal(t, byID.ID, byName.ID)

	_, err = eng.GetNode(ctx, "nobody")
	assert.True(t, errors.Is(err, memory.ErrNotFound))
}

func TestGetEdgeBumpsAccess(t *testing.T) {
	eng, store, ctx := setupEngine(t)
	src := seedNode(t, ctx, eng, "Person", "I/O")
	dst := seedNode(t, ctx, eng, "Concept", "Go")
	res, err := eng.UpsertEdge(ctx, src, dst, "USES", 0.9, nil, "")
	require.NoError(t, err)

	edge, err := eng.GetEdge(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), edge.AccessCount, "returned snapshot predates the bump")

	stored, err := store.GetEdgeByID(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.AccessCount)
	assert.False(t, stored.LastAccessed.IsZero())
}
