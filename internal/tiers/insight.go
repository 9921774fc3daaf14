/*
Package tiers implements the memory hierarchy above the store: compressed
L2 insights with a fidelity check, episodic recall tuples, the bounded L1
working buffer with importance-aware LRU eviction, and the append-only L0
dialogue log.
*/
package tiers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/engramlabs/engram/internal/memory"
	"github.com/engramlabs/engram/internal/scoring"
	"github.com/engramlabs/engram/internal/util"
)

const (
	defaultFidelityThreshold = 0.7
	defaultMemoryStrength    = 0.5
)

const summarizerSystemPrompt = `You compress raw memory fragments into one concise insight.
Reply with a single paragraph that keeps every load-bearing fact and drops filler. No preamble.`

// CompressorConfig tunes insight compression.
type CompressorConfig struct {
	// FidelityThreshold is the lowest acceptable similarity between an
	// insight and its sources before a fidelity_warning is attached.
	FidelityThreshold float64
	// Summarizer drafts the compression when no content is supplied.
	// Optional; without it source-only compression is rejected.
	Summarizer model.BaseChatModel
}

// DefaultCompressorConfig returns the stock threshold and no summarizer.
func DefaultCompressorConfig() CompressorConfig {
	return CompressorConfig{FidelityThreshold: defaultFidelityThreshold}
}

// Compressor distills source material into persisted L2 insights.
type Compressor struct {
	store    *memory.SQLiteStore
	embedder embedding.Embedder
	cfg      CompressorConfig

	mu sync.RWMutex // guards cfg.FidelityThreshold for hot reload
}

// NewCompressor creates a compressor. Zero config fields fall back to
// defaults.
func NewCompressor(store *memory.SQLiteStore, embedder embedding.Embedder, cfg CompressorConfig) *Compressor {
	if cfg.FidelityThreshold <= 0 {
		cfg.FidelityThreshold = defaultFidelityThreshold
	}
	return &Compressor{store: store, embedder: embedder, cfg: cfg}
}

// SetFidelityThreshold swaps the warning floor without restarting; config
// hot-reload calls this while serve runs. Non-positive values are ignored.
func (c *Compressor) SetFidelityThreshold(v float64) {
	if v <= 0 {
		return
	}
	c.mu.Lock()
	c.cfg.FidelityThreshold = v
	c.mu.Unlock()
}

func (c *Compressor) fidelityThreshold() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.FidelityThreshold
}

// CompressRequest carries the compress_to_l2_insight tool parameters.
type CompressRequest struct {
	Content        string
	SourceIDs      []string
	Tags           []string
	MemoryStrength *float64 // nil → 0.5
}

// CompressResult echoes what was persisted.
type CompressResult struct {
	ID              int64     `json:"id"`
	EmbeddingStatus string    `json:"embedding_status"`
	FidelityScore   float64   `json:"fidelity_score"`
	MemoryStrength  float64   `json:"memory_strength"`
	Timestamp       time.Time `json:"timestamp"`
}

// Compress embeds and persists one insight. When content is empty the
// configured summarizer drafts it from the resolved sources. A fidelity
// score below the threshold attaches a fidelity_warning to the persisted
// metadata; the call still succeeds.
func (c *Compressor) Compress(ctx context.Context, req CompressRequest) (*CompressResult, error) {
	strength := defaultMemoryStrength
	if req.MemoryStrength != nil {
		strength = *req.MemoryStrength
		if strength < 0 || strength > 1 {
			return nil, &memory.ValidationError{Field: "memory_strength", Message: "must be within [0, 1]"}
		}
	}

	sources := c.resolveSources(ctx, req.SourceIDs)

	content := strings.TrimSpace(req.Content)
	if content == "" {
		if len(sources) == 0 {
			return nil, &memory.ValidationError{Field: "content", Message: "must not be empty when no source ids resolve"}
		}
		if c.cfg.Summarizer == nil {
			return nil, &memory.ValidationError{Field: "content", Message: "no summarizer model configured; supply content explicitly"}
		}
		drafted, err := c.summarize(ctx, sources)
		if err != nil {
			return nil, err
		}
		content = drafted
	}

	texts := append([]string{content}, sources...)
	vecs, status, err := embedWithRetry(ctx, c.embedder, texts)
	if err != nil {
		return nil, err
	}

	fidelity := 1.0
	if len(vecs) > 1 {
		var sum float64
		for _, src := range vecs[1:] {
			sum += scoring.Cosine(vecs[0], src)
		}
		fidelity = sum / float64(len(vecs)-1)
	}

	threshold := c.fidelityThreshold()
	var meta map[string]any
	if fidelity < threshold {
		meta = map[string]any{
			"fidelity_warning": fmt.Sprintf("fidelity %.3f below threshold %.2f", fidelity, threshold),
		}
	}

	ins := &memory.Insight{
		Content:        content,
		Embedding:      vecs[0],
		SourceIDs:      req.SourceIDs,
		MemoryStrength: strength,
		Metadata:       meta,
		Tags:           req.Tags,
	}
	id, err := c.store.InsertInsight(ctx, ins)
	if err != nil {
		return nil, err
	}

	return &CompressResult{
		ID:              id,
		EmbeddingStatus: status,
		FidelityScore:   fidelity,
		MemoryStrength:  strength,
		Timestamp:       ins.CreatedAt,
	}, nil
}

// BackfillEmbeddings embeds insights persisted without a vector and stores
// the result. Returns the number updated; stops at the first provider
// failure.
func (c *Compressor) BackfillEmbeddings(ctx context.Context) (int, error) {
	pending, err := c.store.InsightsWithoutEmbeddings(ctx)
	if err != nil {
		return 0, err
	}
	for i, ins := range pending {
		if err := c.ReembedInsight(ctx, ins); err != nil {
			return i, err
		}
	}
	return len(pending), nil
}

// ReembedInsight embeds one stored insight and persists the vector. Callers
// that want per-insight progress drive the pending list themselves.
func (c *Compressor) ReembedInsight(ctx context.Context, ins memory.Insight) error {
	vecs, _, err := embedWithRetry(ctx, c.embedder, []string{ins.Content})
	if err != nil {
		return err
	}
	return c.store.UpdateInsightEmbedding(ctx, ins.ID, vecs[0])
}

// resolveSources maps source ids to their stored contents. Reading a
// working-memory source counts as an access and refreshes its recency.
// Ids that do not resolve are skipped rather than failing the compression.
func (c *Compressor) resolveSources(ctx context.Context, ids []string) []string {
	var out []string
	for _, id := range ids {
		switch {
		case strings.HasPrefix(id, util.WorkingPrefix):
			item, err := c.store.GetWorkingItem(ctx, id)
			if err != nil {
				if !errors.Is(err, memory.ErrNotFound) {
					log.Printf("resolve source %s: %v", id, err)
				}
				continue
			}
			out = append(out, item.Content)
			if err := c.store.TouchWorkingItem(ctx, id); err != nil {
				log.Printf("touch working item %s: %v", id, err)
			}
		case strings.HasPrefix(id, util.DialoguePrefix):
			entry, err := c.store.GetDialogueEntry(ctx, id)
			if err != nil {
				if !errors.Is(err, memory.ErrNotFound) {
					log.Printf("resolve source %s: %v", id, err)
				}
				continue
			}
			out = append(out, entry.Content)
		}
	}
	return out
}

func (c *Compressor) summarize(ctx context.Context, sources []string) (string, error) {
	msgs := []*schema.Message{
		schema.SystemMessage(summarizerSystemPrompt),
		schema.UserMessage(strings.Join(sources, "\n\n")),
	}
	resp, err := c.cfg.Summarizer.Generate(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("summarize sources: %w", err)
	}
	content := strings.TrimSpace(resp.Content)
	if content == "" {
		return "", fmt.Errorf("summarizer returned an empty compression")
	}
	return content, nil
}
