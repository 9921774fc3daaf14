package memory

import (
	"testing"
	"time"
)

func TestEpisodeRoundTrip(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := testCtx("default")

	id, err := store.InsertEpisode(ctx, &Episode{
		Query:      "how did we fix the flaky deploy",
		Reward:     0.75,
		Reflection: "pin the base image before anything else",
		Embedding:  []float32{0.2, 0.4},
		Tags:       []string{"deploys"},
	})
	if err != nil {
		t.Fatalf("insert episode: %v", err)
	}
	if id == 0 {
		t.Fatal("expected a row id")
	}

	episodes, err := store.ListEpisodes(ctx, 10)
	if err != nil {
		t.Fatalf("list episodes: %v", err)
	}
	if len(episodes) != 1 {
		t.Fatalf("expected 1 episode, got %d", len(episodes))
	}
	ep := episodes[0]
	if ep.Reward != 0.75 || ep.Reflection == "" {
		t.Errorf("episode fields wrong: %+v", ep)
	}
	if len(ep.Embedding) != 2 {
		t.Errorf("embedding not loaded, got %d dims", len(ep.Embedding))
	}
}

func TestDialogueFilters(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := testCtx("default")

	sessions := []string{"s1", "s1", "s2"}
	for i, session := range sessions {
		_, err := store.InsertDialogue(ctx, &DialogueEntry{
			SessionID: session,
			Speaker:   "user",
			Content:   "line",
			CreatedAt: time.Date(2026, 3, 1+i, 9, 0, 0, 0, time.UTC),
		})
		if err != nil {
			t.Fatalf("insert dialogue %d: %v", i, err)
		}
	}

	all, err := store.ListDialogue(ctx, DialogueFilter{})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 entries, got %d", len(all))
	}

	s1, err := store.ListDialogue(ctx, DialogueFilter{SessionID: "s1"})
	if err != nil {
		t.Fatalf("list s1: %v", err)
	}
	if len(s1) != 2 {
		t.Errorf("expected 2 entries for s1, got %d", len(s1))
	}

	ranged, err := store.ListDialogue(ctx, DialogueFilter{
		From: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 3, 2, 23, 59, 59, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("list ranged: %v", err)
	}
	if len(ranged) != 1 {
		t.Errorf("expected 1 entry in range, got %d", len(ranged))
	}

	limited, err := store.ListDialogue(ctx, DialogueFilter{Limit: 2})
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("expected limit of 2, got %d", len(limited))
	}
}
