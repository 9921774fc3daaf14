package tiers

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/embedding"

	"github.com/engramlabs/engram/internal/memory"
	"github.com/engramlabs/engram/internal/scoring"
)

// recallScanLimit bounds how many recent episodes one recall considers.
const recallScanLimit = 500

// Episodes records query/reward/reflection tuples for analogical recall.
type Episodes struct {
	store    *memory.SQLiteStore
	embedder embedding.Embedder
}

// NewEpisodes creates the episode recorder.
func NewEpisodes(store *memory.SQLiteStore, embedder embedding.Embedder) *Episodes {
	return &Episodes{store: store, embedder: embedder}
}

// EpisodeRequest carries the store_episode tool parameters.
type EpisodeRequest struct {
	Query      string
	Reward     float64
	Reflection string
	Tags       []string
}

// EpisodeResult echoes the persisted tuple.
type EpisodeResult struct {
	ID              int64     `json:"id"`
	EmbeddingStatus string    `json:"embedding_status"`
	Query           string    `json:"query"`
	Reward          float64   `json:"reward"`
	CreatedAt       time.Time `json:"created_at"`
}

// Record validates the tuple, embeds its query and persists it.
func (e *Episodes) Record(ctx context.Context, req EpisodeRequest) (*EpisodeResult, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, &memory.ValidationError{Field: "query", Message: "must not be empty"}
	}
	if req.Reward < -1 || req.Reward > 1 {
		return nil, &memory.ValidationError{Field: "reward", Message: "must be within [-1, 1]"}
	}

	vecs, status, err := embedWithRetry(ctx, e.embedder, []string{req.Query})
	if err != nil {
		return nil, err
	}

	ep := &memory.Episode{
		Query:      req.Query,
		Reward:     req.Reward,
		Reflection: req.Reflection,
		Embedding:  vecs[0],
		Tags:       req.Tags,
	}
	id, err := e.store.InsertEpisode(ctx, ep)
	if err != nil {
		return nil, err
	}

	return &EpisodeResult{
		ID:              id,
		EmbeddingStatus: status,
		Query:           req.Query,
		Reward:          req.Reward,
		CreatedAt:       ep.CreatedAt,
	}, nil
}

// EpisodeMatch pairs an episode with its similarity to the probe query.
type EpisodeMatch struct {
	memory.Episode
	Similarity float64 `json:"similarity"`
}

// Recall ranks stored episodes by similarity to the probe query, dropping
// those under minSimilarity. Episodes without an embedding never match.
func (e *Episodes) Recall(ctx context.Context, query string, minSimilarity float64, limit int) ([]EpisodeMatch, error) {
	if strings.TrimSpace(query) == "" {
		return nil, &memory.ValidationError{Field: "query", Message: "must not be empty"}
	}

	vecs, _, err := embedWithRetry(ctx, e.embedder, []string{query})
	if err != nil {
		return nil, err
	}
	probe := vecs[0]

	eps, err := e.store.ListEpisodes(ctx, recallScanLimit)
	if err != nil {
		return nil, err
	}

	var out []EpisodeMatch
	for _, ep := range eps {
		if len(ep.Embedding) == 0 {
			continue
		}
		sim := scoring.Cosine(probe, ep.Embedding)
		if sim < minSimilarity {
			continue
		}
		out = append(out, EpisodeMatch{Episode: ep, Similarity: sim})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
