package retrieval

import "sort"

// defaultRRFK is the reciprocal-rank-fusion constant from the literature;
// overridable through Config.RRFK.
const defaultRRFK = 60

// Source types a fused document can come from. These double as the accepted
// values of the source_type participation filter.
const (
	SourceInsight = "l2_insight"
	SourceEpisode = "episode_memory"
	SourceGraph   = "graph"
)

// Channel names used for rank attribution in fused results.
const (
	channelSemantic = "semantic"
	channelKeyword  = "keyword"
	channelGraph    = "graph"
)

// docKey identifies one fusable document across channels. Insights found by
// the graph channel share a key with the same insight found semantically, so
// their reciprocal ranks sum.
type docKey struct {
	kind string // SourceInsight or SourceEpisode
	id   int64
}

// rankedDoc is one channel hit: a document and its 1-based rank.
type rankedDoc struct {
	key  docKey
	rank int
}

// rankedList is one channel's weighted contribution to fusion.
type rankedList struct {
	channel string
	weight  float64
	docs    []rankedDoc
}

// fusedDoc accumulates a document's weighted reciprocal ranks.
type fusedDoc struct {
	key   docKey
	score float64
	ranks map[string]int // channel → rank there
}

// fuseRRF merges channel result lists with reciprocal rank fusion:
//
//	score(doc) = Σ_i w_i / (k + rank_i(doc))
//
// Documents absent from a channel contribute nothing for it. The output is
// ordered by score descending with a deterministic tiebreak on document
// identity, so equal-rank inputs fuse identically regardless of list order.
func fuseRRF(lists []rankedList, k int) []fusedDoc {
	if k <= 0 {
		k = defaultRRFK
	}
	byKey := make(map[docKey]*fusedDoc)
	for _, list := range lists {
		for _, d := range list.docs {
			f := byKey[d.key]
			if f == nil {
				f = &fusedDoc{key: d.key, ranks: make(map[string]int)}
				byKey[d.key] = f
			}
			f.score += list.weight / float64(k+d.rank)
			f.ranks[list.channel] = d.rank
		}
	}

	out := make([]fusedDoc, 0, len(byKey))
	for _, f := range byKey {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		if out[i].key.kind != out[j].key.kind {
			return out[i].key.kind < out[j].key.kind
		}
		return out[i].key.id < out[j].key.id
	})
	return out
}
