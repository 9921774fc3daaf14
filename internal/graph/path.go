package graph

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/engramlabs/engram/internal/memory"
	"github.com/engramlabs/engram/internal/scoring"
)

const (
	maxPathDepth      = 10
	defaultPathDepth  = 5
	maxPaths          = 10
	defaultPathBudget = time.Second
)

// ErrPathTimeout marks a path search that ran out of its statement budget.
// Callers report it as a timeout result, not a failure.
var ErrPathTimeout = errors.New("path search timed out")

// PathOptions configures a path search. Zero values mean depth 5, the 1 s
// budget, relevance-only scoring.
type PathOptions struct {
	MaxDepth       int
	UseIEF         bool
	QueryEmbedding []float32
	QueryID        string
	Budget         time.Duration
}

// PathStep is one hop of a found path, in traversal order.
type PathStep struct {
	EdgeID    string           `json:"edge_id"`
	From      string           `json:"from"`
	To        string           `json:"to"`
	Relation  string           `json:"relation"`
	Weight    float64          `json:"weight"`
	Direction memory.Direction `json:"direction"`
	Relevance float64          `json:"relevance_score"`
	IEF       float64          `json:"ief_score,omitempty"`
}

// Path is one route between the requested endpoints. PathRelevance is the
// product of per-edge relevance, so longer or weaker routes compound down.
type Path struct {
	Nodes         []string   `json:"nodes"`
	Steps         []PathStep `json:"steps"`
	Length        int        `json:"length"`
	TotalWeight   float64    `json:"total_weight"`
	PathRelevance float64    `json:"path_relevance"`
	PathIEF       float64    `json:"path_ief,omitempty"`
}

// PathResult reports every kept path, best first.
type PathResult struct {
	Found   bool   `json:"path_found"`
	Paths   []Path `json:"paths"`
	QueryID string `json:"query_id,omitempty"`
}

// rawStep and rawPath hold hops before node names are resolved.
type rawStep struct {
	edge memory.Edge
	dir  memory.Direction
}

type rawPath struct {
	nodeIDs []string
	steps   []rawStep
	weight  float64
}

// FindPaths searches for routes between two named nodes, extending partial
// paths one hop in either direction and rejecting extensions that revisit a
// node already on the path. The whole search runs under a statement budget;
// exceeding it returns ErrPathTimeout rather than partial silence.
func (e *Engine) FindPaths(ctx context.Context, startName, endName string, opts PathOptions) (*PathResult, error) {
	if opts.MaxDepth == 0 {
		opts.MaxDepth = defaultPathDepth
	}
	if opts.MaxDepth < 1 || opts.MaxDepth > maxPathDepth {
		return nil, &memory.ValidationError{Field: "max_depth", Message: fmt.Sprintf("%d outside [1,%d]", opts.MaxDepth, maxPathDepth)}
	}
	if opts.Budget <= 0 {
		opts.Budget = defaultPathBudget
	}

	start, err := e.store.GetNodeByName(ctx, startName)
	if err != nil {
		return nil, fmt.Errorf("start node %q: %w", startName, err)
	}
	end, err := e.store.GetNodeByName(ctx, endName)
	if err != nil {
		return nil, fmt.Errorf("end node %q: %w", endName, err)
	}

	queryID := opts.QueryID
	if opts.UseIEF && queryID == "" {
		queryID = scoring.NewQueryID()
	}

	if start.ID == end.ID {
		return &PathResult{
			Found:   true,
			Paths:   []Path{{Nodes: []string{start.Name}, Steps: []PathStep{}, PathRelevance: 1}},
			QueryID: queryID,
		}, nil
	}

	searchCtx, cancel := context.WithTimeout(ctx, opts.Budget)
	defer cancel()

	complete, err := e.searchPaths(searchCtx, start.ID, end.ID, opts.MaxDepth)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, ErrPathTimeout
		}
		return nil, err
	}

	sort.SliceStable(complete, func(i, j int) bool {
		if len(complete[i].steps) != len(complete[j].steps) {
			return len(complete[i].steps) < len(complete[j].steps)
		}
		if complete[i].weight != complete[j].weight {
			return complete[i].weight > complete[j].weight
		}
		return strings.Join(complete[i].nodeIDs, ",") < strings.Join(complete[j].nodeIDs, ",")
	})
	if len(complete) > maxPaths {
		complete = complete[:maxPaths]
	}

	paths, edgeIDs, err := e.buildPaths(ctx, complete, opts, queryID)
	if err != nil {
		return nil, err
	}
	e.bumpAccess(ctx, edgeIDs)

	return &PathResult{Found: len(paths) > 0, Paths: paths, QueryID: queryID}, nil
}

// searchPaths runs the breadth-first expansion. Frames are processed in
// length order, so once maxPaths routes exist and the frontier is past the
// longest kept length no later frame can displace a result.
func (e *Engine) searchPaths(ctx context.Context, startID, endID string, maxDepth int) ([]rawPath, error) {
	edgeCache := make(map[string][]memory.Edge)
	var complete []rawPath
	stopLen := 0

	queue := []rawPath{{nodeIDs: []string{startID}}}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		f := queue[0]
		queue = queue[1:]

		if len(f.steps) >= maxDepth {
			continue
		}
		if stopLen > 0 && len(f.steps)+1 > stopLen {
			break
		}

		frontier := f.nodeIDs[len(f.nodeIDs)-1]
		edges, ok := edgeCache[frontier]
		if !ok {
			var err error
			edges, err = e.store.EdgesTouching(ctx, frontier, memory.DirectionBoth, "")
			if err != nil {
				return nil, err
			}
			edgeCache[frontier] = edges
		}

		for _, edge := range edges {
			next, dir := edge.TargetID, memory.DirectionOutgoing
			if next == frontier {
				next, dir = edge.SourceID, memory.DirectionIncoming
			}
			if containsString(f.nodeIDs, next) {
				continue
			}

			extended := rawPath{
				nodeIDs: append(append([]string{}, f.nodeIDs...), next),
				steps:   append(append([]rawStep{}, f.steps...), rawStep{edge: edge, dir: dir}),
				weight:  f.weight + edge.Weight,
			}
			if next == endID {
				complete = append(complete, extended)
				if stopLen == 0 && len(complete) >= maxPaths {
					stopLen = len(extended.steps)
				}
				continue
			}
			queue = append(queue, extended)
		}
	}
	return complete, nil
}

// buildPaths resolves node names and scores each kept route.
func (e *Engine) buildPaths(ctx context.Context, complete []rawPath, opts PathOptions, queryID string) ([]Path, []string, error) {
	var nodeIDs []string
	seenNode := make(map[string]bool)
	for _, p := range complete {
		for _, id := range p.nodeIDs {
			if !seenNode[id] {
				seenNode[id] = true
				nodeIDs = append(nodeIDs, id)
			}
		}
	}
	nodes, err := e.store.GetNodesByIDs(ctx, nodeIDs)
	if err != nil {
		return nil, nil, err
	}
	nodeByID := make(map[string]memory.Node, len(nodes))
	for _, n := range nodes {
		nodeByID[n.ID] = n
	}

	now := time.Now().UTC()
	var pending map[string]bool
	var embeddings map[int64][]float32
	if opts.UseIEF {
		pending = e.pendingReviews(ctx)
		embeddings = e.insightEmbeddings(ctx, nodes)
	}

	paths := make([]Path, 0, len(complete))
	var edgeIDs []string
	seenEdge := make(map[string]bool)
	for _, raw := range complete {
		p := Path{
			Nodes:         make([]string, 0, len(raw.nodeIDs)),
			Steps:         make([]PathStep, 0, len(raw.steps)),
			Length:        len(raw.steps),
			TotalWeight:   raw.weight,
			PathRelevance: 1,
		}
		if opts.UseIEF {
			p.PathIEF = 1
		}
		for _, id := range raw.nodeIDs {
			p.Nodes = append(p.Nodes, nodeByID[id].Name)
		}
		for i, step := range raw.steps {
			rel := scoring.Relevance(step.edge, now)
			s := PathStep{
				EdgeID:    step.edge.ID,
				From:      p.Nodes[i],
				To:        p.Nodes[i+1],
				Relation:  step.edge.Relation,
				Weight:    step.edge.Weight,
				Direction: step.dir,
				Relevance: rel,
			}
			p.PathRelevance *= rel
			if opts.UseIEF {
				to := nodeByID[raw.nodeIDs[i+1]]
				var edgeEmb []float32
				if to.VectorID != nil {
					edgeEmb = embeddings[*to.VectorID]
				}
				b := e.calc.Score(scoring.ScoreInput{
					Edge:           step.edge,
					QueryEmbedding: opts.QueryEmbedding,
					EdgeEmbedding:  edgeEmb,
					PendingReview:  pending[step.edge.ID],
					QueryID:        queryID,
					Now:            now,
				})
				s.IEF = b.Score
				p.PathIEF *= b.Score
			}
			p.Steps = append(p.Steps, s)
			if !seenEdge[step.edge.ID] {
				seenEdge[step.edge.ID] = true
				edgeIDs = append(edgeIDs, step.edge.ID)
			}
		}
		paths = append(paths, p)
	}
	return paths, edgeIDs, nil
}
