package graph

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramlabs/engram/internal/memory"
)

// fixture is a small persona graph shared by traversal and path tests:
//
//	Tullia --MENTORS--> I/O --USES--> Go --HAS_FEATURE--> Channels
//	                     |             `--COMPILES_TO--> Binaries
//	                     |--AVOIDS--> Rust          (emotional)
//	                     |--USED--> Python          (superseded)
//	                     `--VALUES--> honesty       (constitutive)
type fixture struct {
	eng   *Engine
	store *memory.SQLiteStore
	ctx   context.Context
	nodes map[string]string
	edges map[string]string
}

func buildGraph(t *testing.T) *fixture {
	t.Helper()
	eng, store, ctx := setupEngine(t)
	f := &fixture{eng: eng, store: store, ctx: ctx,
		nodes: map[string]string{}, edges: map[string]string{}}

	for _, n := range []struct{ label, name string }{
		{"Person", "I/O"},
		{"Language", "Go"},
		{"Feature", "Channels"},
		{"Language", "Rust"},
		{"Person", "Tullia"},
		{"Artifact", "Binaries"},
		{"Language", "Python"},
		{"Value", "honesty"},
	} {
		f.nodes[n.name] = seedNode(t, ctx, eng, n.label, n.name)
	}

	f.edge(t, "I/O", "Go", "USES", 0.9, nil)
	f.edge(t, "Go", "Channels", "HAS_FEATURE", 0.8, nil)
	f.edge(t, "Go", "Binaries", "COMPILES_TO", 0.6, nil)
	f.edge(t, "I/O", "Rust", "AVOIDS", 0.3, memory.Properties{"emotional_valence": -0.4})
	f.edge(t, "Tullia", "I/O", "MENTORS", 0.7, memory.Properties{"participants": []any{"Tullia", "I/O"}})
	f.edge(t, "I/O", "Python", "USED", 0.5, memory.Properties{"superseded": true})
	f.edge(t, "I/O", "honesty", "VALUES", 1.0, memory.Properties{"edge_type": "constitutive"})
	return f
}

func (f *fixture) edge(t *testing.T, src, dst, rel string, w float64, props memory.Properties) string {
	t.Helper()
	res, err := f.eng.UpsertEdge(f.ctx, f.nodes[src], f.nodes[dst], rel, w, props, "")
	if err != nil {
		t.Fatalf("edge %s -%s-> %s: %v", src, rel, dst, err)
	}
	f.edges[src+"-"+rel+"-"+dst] = res.ID
	return res.ID
}

func neighborNames(res *TraverseResult) []string {
	names := make([]string, 0, len(res.Neighbors))
	for _, n := range res.Neighbors {
		names = append(names, n.Node.Name)
	}
	sort.Strings(names)
	return names
}

func findNeighbor(t *testing.T, res *TraverseResult, name string) Neighbor {
	t.Helper()
	for _, n := range res.Neighbors {
		if n.Node.Name == name {
			return n
		}
	}
	t.Fatalf("neighbor %s not in result %v", name, neighborNames(res))
	return Neighbor{}
}

func TestNeighborsDefaultsToDepthOneBothDirections(t *testing.T) {
	f := buildGraph(t)

	res, err := f.eng.Neighbors(f.ctx, "I/O", TraverseOptions{})
	require.NoError(t, err)

	assert.Equal(t, "I/O", res.Start.Name)
	assert.Equal(t, []string{"Go", "Rust", "Tullia", "honesty"}, neighborNames(res))
	assert.Empty(t, res.QueryID, "no correlation id without IEF")

	tullia := findNeighbor(t, res, "Tullia")
	assert.Equal(t, memory.DirectionIncoming, tullia.Direction)
	assert.Equal(t, 1, tullia.Distance)

	goNode := findNeighbor(t, res, "Go")
	assert.Equal(t, memory.DirectionOutgoing, goNode.Direction)
	assert.Equal(t, "USES", goNode.Relation)
	assert.InDelta(t, 0.9, goNode.Weight, 1e-9)
}

func TestNeighborsDepthTwoOutgoing(t *testing.T) {
	f := buildGraph(t)

	res, err := f.eng.Neighbors(f.ctx, "I/O", TraverseOptions{
		Depth:     2,
		Direction: memory.DirectionOutgoing,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Binaries", "Channels", "Go", "Rust", "honesty"}, neighborNames(res))
	assert.Equal(t, 2, findNeighbor(t, res, "Channels").Distance)
	assert.Equal(t, 2, findNeighbor(t, res, "Binaries").Distance)
	assert.Equal(t, 1, findNeighbor(t, res, "Go").Distance)
}

func TestNeighborsIncomingOnly(t *testing.T) {
	f := buildGraph(t)

	res, err := f.eng.Neighbors(f.ctx, "I/O", TraverseOptions{Direction: memory.DirectionIncoming})
	require.NoError(t, err)
	assert.Equal(t, []string{"Tullia"}, neighborNames(res))
}

func TestNeighborsRelationFilter(t *testing.T) {
	f := buildGraph(t)

	res, err := f.eng.Neighbors(f.ctx, "I/O", TraverseOptions{Relation: "USES", Depth: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"Go"}, neighborNames(res),
		"relation filter applies at every hop, so the walk stops where USES stops")
}

func TestNeighborsShortestDistanceWins(t *testing.T) {
	f := buildGraph(t)
	f.edge(t, "I/O", "Channels", "KNOWS_OF", 0.2, nil)

	res, err := f.eng.Neighbors(f.ctx, "I/O", TraverseOptions{
		Depth:     2,
		Direction: memory.DirectionOutgoing,
	})
	require.NoError(t, err)

	ch := findNeighbor(t, res, "Channels")
	assert.Equal(t, 1, ch.Distance, "direct route beats the two-hop one")
	assert.Equal(t, "KNOWS_OF", ch.Relation)
}

func TestNeighborsMergesMutualEdges(t *testing.T) {
	f := buildGraph(t)
	// Go links back to its user with a weaker edge; the strong outgoing
	// record should represent the neighbor.
	f.edge(t, "Go", "I/O", "USED_BY", 0.4, nil)

	res, err := f.eng.Neighbors(f.ctx, "I/O", TraverseOptions{})
	require.NoError(t, err)

	goNode := findNeighbor(t, res, "Go")
	assert.Equal(t, "USES", goNode.Relation)
	assert.Equal(t, memory.DirectionOutgoing, goNode.Direction)
	assert.InDelta(t, 0.9, goNode.Weight, 1e-9)
}

func TestNeighborsCycleTermination(t *testing.T) {
	eng, _, ctx := setupEngine(t)
	a := seedNode(t, ctx, eng, "Concept", "alpha")
	b := seedNode(t, ctx, eng, "Concept", "beta")
	c := seedNode(t, ctx, eng, "Concept", "gamma")
	for _, e := range []struct {
		src, dst string
	}{{a, b}, {b, c}, {c, a}, {a, a}} {
		_, err := eng.UpsertEdge(ctx, e.src, e.dst, "LINKS", 0.5, nil, "")
		require.NoError(t, err)
	}

	res, err := eng.Neighbors(ctx, "alpha", TraverseOptions{
		Depth:     5,
		Direction: memory.DirectionOutgoing,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"beta", "gamma"}, neighborNames(res),
		"the start node never reappears through a cycle or self-loop")
}

func TestNeighborsSupersededVisibility(t *testing.T) {
	f := buildGraph(t)

	res, err := f.eng.Neighbors(f.ctx, "I/O", TraverseOptions{})
	require.NoError(t, err)
	assert.NotContains(t, neighborNames(res), "Python")

	res, err = f.eng.Neighbors(f.ctx, "I/O", TraverseOptions{IncludeSuperseded: true})
	require.NoError(t, err)
	assert.Contains(t, neighborNames(res), "Python")
}

func TestNeighborsSectorFilter(t *testing.T) {
	f := buildGraph(t)

	res, err := f.eng.Neighbors(f.ctx, "I/O", TraverseOptions{
		SectorFilter: []string{memory.SectorEmotional},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Rust"}, neighborNames(res))

	_, err = f.eng.Neighbors(f.ctx, "I/O", TraverseOptions{SectorFilter: []string{"spatial"}})
	var verr *memory.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "sector_filter", verr.Field)
}

func TestNeighborsPropertyFilter(t *testing.T) {
	f := buildGraph(t)

	res, err := f.eng.Neighbors(f.ctx, "I/O", TraverseOptions{
		PropertyFilter: map[string]any{"participants": "Tullia"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Tullia"}, neighborNames(res))

	// Shape errors surface before any edge is considered.
	_, err = f.eng.Neighbors(f.ctx, "I/O", TraverseOptions{
		PropertyFilter: map[string]any{"participants": 42},
	})
	var verr *memory.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "participants", verr.Field)
}

func TestNeighborsIEFScoring(t *testing.T) {
	f := buildGraph(t)

	res, err := f.eng.Neighbors(f.ctx, "I/O", TraverseOptions{UseIEF: true})
	require.NoError(t, err)
	require.NotEmpty(t, res.Neighbors)

	assert.True(t, strings.HasPrefix(res.QueryID, "q-"))
	for _, n := range res.Neighbors {
		require.NotNil(t, n.IEF)
		assert.Equal(t, res.QueryID, n.IEF.FeedbackRequest.QueryID)
	}

	// Fresh edges: relevance ~1, recency ~1, neutral similarity. That puts
	// the constitutive edge at 1.0 and descriptive ones at 0.875.
	assert.Equal(t, "honesty", res.Neighbors[0].Node.Name)
	assert.InDelta(t, 1.0, res.Neighbors[0].IEF.Score, 1e-3)
	assert.InDelta(t, 1.5, res.Neighbors[0].IEF.ConstitutiveWeight, 1e-9)
	assert.InDelta(t, 0.875, findNeighbor(t, res, "Go").IEF.Score, 1e-3)
}

func TestNeighborsBumpAccessStats(t *testing.T) {
	f := buildGraph(t)

	_, err := f.eng.Neighbors(f.ctx, "I/O", TraverseOptions{Direction: memory.DirectionOutgoing})
	require.NoError(t, err)

	edge, err := f.store.GetEdgeByID(f.ctx, f.edges["I/O-USES-Go"])
	require.NoError(t, err)
	assert.Equal(t, int64(1), edge.AccessCount)
	assert.False(t, edge.LastAccessed.IsZero())

	// The superseded edge was filtered out and must not be touched.
	hidden, err := f.store.GetEdgeByID(f.ctx, f.edges["I/O-USED-Python"])
	require.NoError(t, err)
	assert.Equal(t, int64(0), hidden.AccessCount)
}

func TestNeighborsValidation(t *testing.T) {
	f := buildGraph(t)

	var verr *memory.ValidationError

	_, err := f.eng.Neighbors(f.ctx, "I/O", TraverseOptions{Depth: 6})
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "depth", verr.Field)

	_, err = f.eng.Neighbors(f.ctx, "I/O", TraverseOptions{Direction: "sideways"})
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "direction", verr.Field)

	_, err = f.eng.Neighbors(f.ctx, "nobody", TraverseOptions{})
	assert.True(t, errors.Is(err, memory.ErrNotFound))
}
