package graph

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/engramlabs/engram/internal/memory"
	"github.com/engramlabs/engram/internal/scoring"
)

// maxTraverseDepth caps neighbor expansion. Path search has its own, larger
// cap.
const maxTraverseDepth = 5

// TraverseOptions configures a neighbor query. The zero value means depth 1,
// both directions, no filters, relevance-only scoring.
type TraverseOptions struct {
	Relation          string
	Depth             int
	Direction         memory.Direction
	IncludeSuperseded bool
	PropertyFilter    map[string]any
	SectorFilter      []string
	UseIEF            bool
	QueryEmbedding    []float32
	QueryID           string
}

// Neighbor is one traversal hit: the discovered node, the edge that reached
// it, how far out it sits, and its scores.
type Neighbor struct {
	Node       memory.Node        `json:"node"`
	EdgeID     string             `json:"edge_id"`
	Relation   string             `json:"relation"`
	Weight     float64            `json:"weight"`
	Properties memory.Properties  `json:"properties,omitempty"`
	Direction  memory.Direction   `json:"direction"`
	Sector     string             `json:"memory_sector"`
	Distance   int                `json:"distance"`
	Relevance  float64            `json:"relevance_score"`
	IEF        *scoring.Breakdown `json:"ief,omitempty"`
}

// TraverseResult bundles the resolved start node with its scored neighbors.
// QueryID is set when IEF scoring ran, for feedback correlation.
type TraverseResult struct {
	Start     memory.Node `json:"start_node"`
	Neighbors []Neighbor  `json:"neighbors"`
	QueryID   string      `json:"query_id,omitempty"`
}

// candidate is the best-known record for one discovered neighbor.
type candidate struct {
	edge      memory.Edge
	direction memory.Direction
	distance  int
}

// better reports whether a should replace b as the record for a neighbor:
// shorter distance wins, then higher edge weight, then relation and edge id
// for a deterministic pick.
func better(a, b candidate) bool {
	if a.distance != b.distance {
		return a.distance < b.distance
	}
	if a.edge.Weight != b.edge.Weight {
		return a.edge.Weight > b.edge.Weight
	}
	if a.edge.Relation != b.edge.Relation {
		return a.edge.Relation < b.edge.Relation
	}
	return a.edge.ID < b.edge.ID
}

// Neighbors expands the graph around the named node. Outgoing and incoming
// traversals run as separate expansions over directed edges; DirectionBoth
// merges the two. Every expansion carries its accumulated path and refuses
// to revisit a node on it, so cycles terminate naturally.
func (e *Engine) Neighbors(ctx context.Context, startName string, opts TraverseOptions) (*TraverseResult, error) {
	if opts.Depth == 0 {
		opts.Depth = 1
	}
	if opts.Depth < 1 || opts.Depth > maxTraverseDepth {
		return nil, &memory.ValidationError{Field: "depth", Message: fmt.Sprintf("%d outside [1,%d]", opts.Depth, maxTraverseDepth)}
	}
	switch opts.Direction {
	case "":
		opts.Direction = memory.DirectionBoth
	case memory.DirectionOutgoing, memory.DirectionIncoming, memory.DirectionBoth:
	default:
		return nil, &memory.ValidationError{Field: "direction", Message: fmt.Sprintf("%q is not outgoing, incoming, or both", opts.Direction)}
	}
	for _, s := range opts.SectorFilter {
		if !validSector(s) {
			return nil, &memory.ValidationError{Field: "sector_filter", Message: fmt.Sprintf("%q is not a known sector", s)}
		}
	}
	if err := validatePropertyFilter(opts.PropertyFilter); err != nil {
		return nil, err
	}

	start, err := e.store.GetNodeByName(ctx, startName)
	if err != nil {
		return nil, fmt.Errorf("start node %q: %w", startName, err)
	}

	best := make(map[string]candidate)
	if opts.Direction == memory.DirectionOutgoing || opts.Direction == memory.DirectionBoth {
		if err := e.expand(ctx, start.ID, memory.DirectionOutgoing, opts, best); err != nil {
			return nil, err
		}
	}
	if opts.Direction == memory.DirectionIncoming || opts.Direction == memory.DirectionBoth {
		if err := e.expand(ctx, start.ID, memory.DirectionIncoming, opts, best); err != nil {
			return nil, err
		}
	}

	picked := make(map[string]candidate, len(best))
	ids := make([]string, 0, len(best))
	for id, cand := range best {
		if !opts.IncludeSuperseded && cand.edge.Properties.Superseded() {
			continue
		}
		if len(opts.SectorFilter) > 0 && !containsString(opts.SectorFilter, cand.edge.MemorySector) {
			continue
		}
		if len(opts.PropertyFilter) > 0 && !matchProperties(cand.edge.Properties, opts.PropertyFilter) {
			continue
		}
		picked[id] = cand
		ids = append(ids, id)
	}

	nodes, err := e.store.GetNodesByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	nodeByID := make(map[string]memory.Node, len(nodes))
	for _, n := range nodes {
		nodeByID[n.ID] = n
	}

	now := time.Now().UTC()
	queryID := opts.QueryID
	var pending map[string]bool
	var embeddings map[int64][]float32
	if opts.UseIEF {
		if queryID == "" {
			queryID = scoring.NewQueryID()
		}
		pending = e.pendingReviews(ctx)
		embeddings = e.insightEmbeddings(ctx, nodes)
	}

	neighbors := make([]Neighbor, 0, len(picked))
	edgeIDs := make([]string, 0, len(picked))
	for id, cand := range picked {
		node, ok := nodeByID[id]
		if !ok {
			// Endpoint deleted between expansion and fetch.
			continue
		}
		n := Neighbor{
			Node:       node,
			EdgeID:     cand.edge.ID,
			Relation:   cand.edge.Relation,
			Weight:     cand.edge.Weight,
			Properties: cand.edge.Properties,
			Direction:  cand.direction,
			Sector:     cand.edge.MemorySector,
			Distance:   cand.distance,
			Relevance:  scoring.Relevance(cand.edge, now),
		}
		if opts.UseIEF {
			var edgeEmb []float32
			if node.VectorID != nil {
				edgeEmb = embeddings[*node.VectorID]
			}
			b := e.calc.Score(scoring.ScoreInput{
				Edge:           cand.edge,
				QueryEmbedding: opts.QueryEmbedding,
				EdgeEmbedding:  edgeEmb,
				PendingReview:  pending[cand.edge.ID],
				QueryID:        queryID,
				Now:            now,
			})
			n.IEF = &b
		}
		neighbors = append(neighbors, n)
		edgeIDs = append(edgeIDs, cand.edge.ID)
	}

	sort.SliceStable(neighbors, func(i, j int) bool {
		si, sj := neighbors[i].Relevance, neighbors[j].Relevance
		if opts.UseIEF {
			si, sj = neighbors[i].IEF.Score, neighbors[j].IEF.Score
		}
		if si != sj {
			return si > sj
		}
		if neighbors[i].Distance != neighbors[j].Distance {
			return neighbors[i].Distance < neighbors[j].Distance
		}
		return neighbors[i].Node.Name < neighbors[j].Node.Name
	})

	e.bumpAccess(ctx, edgeIDs)

	return &TraverseResult{Start: *start, Neighbors: neighbors, QueryID: queryID}, nil
}

// expand walks one direction breadth-first. Each frame carries the node path
// that reached it; an edge whose far end is already on the path is a cycle
// and is dropped. Edges per node are cached for the duration of one call so
// dense graphs do not re-query the same fan-out.
func (e *Engine) expand(ctx context.Context, startID string, dir memory.Direction, opts TraverseOptions, best map[string]candidate) error {
	type frame struct {
		nodeID string
		path   []string
	}

	edgeCache := make(map[string][]memory.Edge)
	queue := []frame{{nodeID: startID, path: []string{startID}}}
	for len(queue) > 0 {
		f := queue[0]
		queue = queue[1:]

		depth := len(f.path) // distance of the nodes this hop discovers
		if depth > opts.Depth {
			continue
		}

		edges, ok := edgeCache[f.nodeID]
		if !ok {
			var err error
			edges, err = e.store.EdgesTouching(ctx, f.nodeID, dir, opts.Relation)
			if err != nil {
				return err
			}
			edgeCache[f.nodeID] = edges
		}

		for _, edge := range edges {
			next := edge.TargetID
			if dir == memory.DirectionIncoming {
				next = edge.SourceID
			}
			if containsString(f.path, next) {
				continue
			}
			cand := candidate{edge: edge, direction: dir, distance: depth}
			if old, seen := best[next]; !seen || better(cand, old) {
				best[next] = cand
			}
			if depth < opts.Depth {
				path := make([]string, 0, len(f.path)+1)
				path = append(path, f.path...)
				path = append(path, next)
				queue = append(queue, frame{nodeID: next, path: path})
			}
		}
	}
	return nil
}

// pendingReviews loads the nuance-penalty set. A failure here degrades
// scoring, it does not fail the read.
func (e *Engine) pendingReviews(ctx context.Context) map[string]bool {
	pending, err := e.store.PendingReviewEdgeIDs(ctx)
	if err != nil {
		log.Printf("pending nuance reviews unavailable: %v", err)
		return nil
	}
	return pending
}

// insightEmbeddings resolves the insight vectors the discovered nodes point
// at, for the IEF similarity component. Missing vectors score neutral.
func (e *Engine) insightEmbeddings(ctx context.Context, nodes []memory.Node) map[int64][]float32 {
	var ids []int64
	seen := make(map[int64]bool)
	for _, n := range nodes {
		if n.VectorID != nil && !seen[*n.VectorID] {
			seen[*n.VectorID] = true
			ids = append(ids, *n.VectorID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	insights, err := e.store.GetInsightsByIDs(ctx, ids)
	if err != nil {
		log.Printf("insight embeddings unavailable: %v", err)
		return nil
	}
	out := make(map[int64][]float32, len(insights))
	for _, ins := range insights {
		out[ins.ID] = ins.Embedding
	}
	return out
}
