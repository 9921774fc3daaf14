package tiers

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramlabs/engram/internal/memory"
	"github.com/engramlabs/engram/internal/project"
)

func setupEpisodes(t *testing.T, emb *fakeEmbedder) (*Episodes, *memory.SQLiteStore, context.Context) {
	t.Helper()
	store, err := memory.Open(filepath.Join(t.TempDir(), "engram.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := project.WithProject(context.Background(), "proj-tiers")
	return NewEpisodes(store, emb), store, ctx
}

func TestEpisodeRecord(t *testing.T) {
	emb := &fakeEmbedder{fallback: []float64{0.6, 0.8}}
	eps, store, ctx := setupEpisodes(t, emb)

	res, err := eps.Record(ctx, EpisodeRequest{
		Query:      "why did the deploy fail",
		Reward:     0.7,
		Reflection: "checking the cache first would have saved an hour",
		Tags:       []string{"deploys"},
	})
	require.NoError(t, err)
	assert.Positive(t, res.ID)
	assert.Equal(t, EmbedStatusSuccess, res.EmbeddingStatus)
	assert.Equal(t, "why did the deploy fail", res.Query)
	assert.InDelta(t, 0.7, res.Reward, 1e-9)
	assert.False(t, res.CreatedAt.IsZero())

	stored, err := store.ListEpisodes(ctx, 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "checking the cache first would have saved an hour", stored[0].Reflection)
	assert.Equal(t, []float32{0.6, 0.8}, stored[0].Embedding)
	assert.Equal(t, []string{"deploys"}, stored[0].Tags)
}

func TestEpisodeRewardBounds(t *testing.T) {
	eps, _, ctx := setupEpisodes(t, &fakeEmbedder{fallback: []float64{1, 0}})

	for _, reward := range []float64{-1.2, 1.01} {
		_, err := eps.Record(ctx, EpisodeRequest{Query: "q", Reward: reward})
		var verr *memory.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "reward", verr.Field)
	}

	// Both ends of the range are legal.
	for _, reward := range []float64{-1, 1} {
		_, err := eps.Record(ctx, EpisodeRequest{Query: "edge reward", Reward: reward})
		assert.NoError(t, err)
	}
}

func TestEpisodeEmptyQuery(t *testing.T) {
	eps, _, ctx := setupEpisodes(t, &fakeEmbedder{fallback: []float64{1, 0}})

	_, err := eps.Record(ctx, EpisodeRequest{Query: "   "})
	var verr *memory.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "query", verr.Field)
}

func TestEpisodeRetryReportsStatus(t *testing.T) {
	slept := instantBackoff(t)
	emb := &fakeEmbedder{fallback: []float64{1, 0}, throttled: 1}
	eps, _, ctx := setupEpisodes(t, emb)

	res, err := eps.Record(ctx, EpisodeRequest{Query: "throttled once", Reward: 0.1})
	require.NoError(t, err)
	assert.Equal(t, EmbedStatusRetried, res.EmbeddingStatus)
	assert.Len(t, *slept, 1)
}

func TestEpisodeRecallRanksBySimilarity(t *testing.T) {
	emb := &fakeEmbedder{
		vecs: map[string][]float64{
			"deploy trouble":          {1, 0},
			"why did the deploy fail": {1, 0},
			"what is for lunch":       {0, 1},
			"deploy rollback steps":   {0.8, 0.6},
		},
	}
	eps, store, ctx := setupEpisodes(t, emb)

	for _, q := range []string{"why did the deploy fail", "what is for lunch", "deploy rollback steps"} {
		_, err := eps.Record(ctx, EpisodeRequest{Query: q, Reward: 0.5})
		require.NoError(t, err)
	}
	// An unembedded row never matches.
	_, err := store.InsertEpisode(ctx, &memory.Episode{Query: "legacy import", Reward: 0})
	require.NoError(t, err)

	matches, err := eps.Recall(ctx, "deploy trouble", 0.6, 10)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "why did the deploy fail", matches[0].Query)
	assert.Equal(t, "deploy rollback steps", matches[1].Query)
	assert.Greater(t, matches[0].Similarity, matches[1].Similarity)
}

func TestEpisodeRecallLimit(t *testing.T) {
	emb := &fakeEmbedder{fallback: []float64{1, 0}}
	eps, _, ctx := setupEpisodes(t, emb)

	for _, q := range []string{"first", "second", "third"} {
		_, err := eps.Record(ctx, EpisodeRequest{Query: q, Reward: 0})
		require.NoError(t, err)
	}

	matches, err := eps.Recall(ctx, "probe", 0, 2)
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}
