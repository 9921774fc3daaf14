package retrieval

import (
	"context"
	"sort"

	"github.com/engramlabs/engram/internal/memory"
	"github.com/engramlabs/engram/internal/scoring"
)

// episodeScanLimit bounds how many recent episodes the semantic channel
// considers per query.
const episodeScanLimit = 500

// nodeNameLimit bounds the known-name inventory fed to entity extraction.
const nodeNameLimit = 500

// graphExpansionDepth is the neighbor radius of the graph channel.
const graphExpansionDepth = 2

// semanticHit pairs a fusable document with its cosine distance to the query.
type semanticHit struct {
	key      docKey
	distance float64
}

// semanticSearch ranks embedded insights, and embedded episodes when they
// participate, by cosine distance to the query embedding ascending. Without
// a query embedding the channel contributes nothing.
func (s *Service) semanticSearch(ctx context.Context, req *Request, episodes []memory.Episode) ([]rankedDoc, error) {
	if len(req.QueryEmbedding) == 0 {
		return nil, nil
	}

	var hits []semanticHit
	if req.includesSource(SourceInsight) {
		candidates, err := s.store.SemanticCandidates(ctx, req.tierFilter())
		if err != nil {
			return nil, err
		}
		for _, c := range candidates {
			hits = append(hits, semanticHit{
				key:      docKey{kind: SourceInsight, id: c.ID},
				distance: scoring.CosineDistance(req.QueryEmbedding, c.Embedding),
			})
		}
	}
	for _, ep := range episodes {
		if len(ep.Embedding) == 0 {
			continue
		}
		hits = append(hits, semanticHit{
			key:      docKey{kind: SourceEpisode, id: ep.ID},
			distance: scoring.CosineDistance(req.QueryEmbedding, ep.Embedding),
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].distance != hits[j].distance {
			return hits[i].distance < hits[j].distance
		}
		if hits[i].key.kind != hits[j].key.kind {
			return hits[i].key.kind < hits[j].key.kind
		}
		return hits[i].key.id < hits[j].key.id
	})
	if len(hits) > req.TopK {
		hits = hits[:req.TopK]
	}

	docs := make([]rankedDoc, len(hits))
	for i, h := range hits {
		docs[i] = rankedDoc{key: h.key, rank: i + 1}
	}
	return docs, nil
}

// keywordSearch runs the FTS channel over insight content. Ranks follow the
// store's bm25 ordering.
func (s *Service) keywordSearch(ctx context.Context, req *Request) ([]rankedDoc, error) {
	if !req.includesSource(SourceInsight) {
		return nil, nil
	}
	rows, err := s.store.SearchInsightsFTS(ctx, req.QueryText, req.TopK, req.tierFilter())
	if err != nil {
		return nil, err
	}
	docs := make([]rankedDoc, len(rows))
	for i, r := range rows {
		docs[i] = rankedDoc{key: docKey{kind: SourceInsight, id: r.ID}, rank: i + 1}
	}
	return docs, nil
}

// graphCandidate tracks the best discovery of one insight during expansion:
// shallowest depth, then strongest edge at that depth.
type graphCandidate struct {
	id     int64
	depth  int
	weight float64
}

// graphSearch expands the graph around every extracted entity that resolves
// to a node and follows neighbor vector_ids back to insight candidates. The
// synthetic rank orders candidates by traversal depth, then edge weight.
// Superseded edges never contribute; a sector filter restricts which edges
// are walked.
func (s *Service) graphSearch(ctx context.Context, req *Request, entities []string) ([]rankedDoc, error) {
	if !req.includesSource(SourceGraph) || len(entities) == 0 {
		return nil, nil
	}
	// An explicitly empty sector filter admits no edges at all.
	if req.SectorFilter != nil && len(req.SectorFilter) == 0 {
		return nil, nil
	}
	sectors := make(map[string]bool, len(req.SectorFilter))
	for _, sec := range req.SectorFilter {
		sectors[sec] = true
	}

	starts, err := s.store.GetNodesByNames(ctx, entities)
	if err != nil {
		return nil, err
	}
	if len(starts) == 0 {
		return nil, nil
	}

	seen := make(map[string]bool, len(starts))
	current := make([]string, 0, len(starts))
	for _, n := range starts {
		seen[n.ID] = true
		current = append(current, n.ID)
	}

	best := make(map[int64]graphCandidate)
	for depth := 1; depth <= graphExpansionDepth; depth++ {
		// One frontier level at a time: collect the strongest edge into
		// each unseen neighbor, then load those nodes in a single batch.
		found := make(map[string]float64)
		for _, nodeID := range current {
			edges, err := s.store.EdgesTouching(ctx, nodeID, memory.DirectionBoth, "")
			if err != nil {
				return nil, err
			}
			for _, e := range edges {
				if e.Properties.Superseded() {
					continue
				}
				if req.SectorFilter != nil && !sectors[e.MemorySector] {
					continue
				}
				next := e.TargetID
				if next == nodeID {
					next = e.SourceID
				}
				if seen[next] {
					continue
				}
				if w, ok := found[next]; !ok || e.Weight > w {
					found[next] = e.Weight
				}
			}
		}
		if len(found) == 0 {
			break
		}

		ids := make([]string, 0, len(found))
		for id := range found {
			ids = append(ids, id)
			seen[id] = true
		}
		neighbors, err := s.store.GetNodesByIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
		current = current[:0]
		for _, n := range neighbors {
			current = append(current, n.ID)
			if n.VectorID == nil {
				continue
			}
			cand := graphCandidate{id: *n.VectorID, depth: depth, weight: found[n.ID]}
			prev, ok := best[cand.id]
			if !ok || cand.depth < prev.depth ||
				(cand.depth == prev.depth && cand.weight > prev.weight) {
				best[cand.id] = cand
			}
		}
	}

	cands := make([]graphCandidate, 0, len(best))
	for _, c := range best {
		cands = append(cands, c)
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].depth != cands[j].depth {
			return cands[i].depth < cands[j].depth
		}
		if cands[i].weight != cands[j].weight {
			return cands[i].weight > cands[j].weight
		}
		return cands[i].id < cands[j].id
	})
	if len(cands) > req.TopK {
		cands = cands[:req.TopK]
	}

	docs := make([]rankedDoc, len(cands))
	for i, c := range cands {
		docs[i] = rankedDoc{key: docKey{kind: SourceInsight, id: c.id}, rank: i + 1}
	}
	return docs, nil
}
