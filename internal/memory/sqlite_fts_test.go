package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeFTSQuery(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "empty query returns empty",
			input:    "",
			expected: "",
		},
		{
			name:     "single word preserved",
			input:    "deadlock",
			expected: `"deadlock"`,
		},
		{
			name:     "stop words filtered",
			input:    "What is the deadlock",
			expected: `"deadlock"`,
		},
		{
			name:     "multiple content words use OR",
			input:    "mutex deadlock contention",
			expected: `"mutex" OR "deadlock" OR "contention"`,
		},
		{
			name:     "special characters escaped",
			input:    "retry(backoff: exponential)",
			expected: `"retry" OR "backoff" OR "exponential"`,
		},
		{
			name:     "FTS operators filtered",
			input:    "mutex AND deadlock OR race NOT benign",
			expected: `"mutex" OR "deadlock" OR "race" OR "benign"`,
		},
		{
			name:     "short words filtered",
			input:    "a b c deadlock",
			expected: `"deadlock"`,
		},
		{
			name:     "all stop words returns empty",
			input:    "what is the",
			expected: "",
		},
		{
			name:     "wildcards stripped",
			input:    "dead* lock*",
			expected: `"dead" OR "lock"`,
		},
		{
			name:     "handles quoted input",
			input:    `"mutex" "deadlock"`,
			expected: `"mutex" OR "deadlock"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeFTSQuery(tt.input))
		})
	}
}

func TestSearchInsightsFTS(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := testCtx("default")

	seed := []string{
		"The scheduler deadlocks when two workers grab locks in opposite order",
		"Switching to jittered exponential backoff cut retry storms",
		"Postgres connection pool exhaustion mimics a network partition",
	}
	for _, content := range seed {
		if _, err := store.InsertInsight(ctx, &Insight{Content: content, MemoryStrength: 0.5}); err != nil {
			t.Fatalf("insert insight: %v", err)
		}
	}

	results, err := store.SearchInsightsFTS(ctx, "scheduler deadlock", 10, TierFilter{})
	if err != nil {
		t.Fatalf("fts search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected at least one keyword hit")
	}
	assert.Contains(t, results[0].Content, "deadlock")

	// Stop-word-only queries return no results and no error.
	results, err = store.SearchInsightsFTS(ctx, "what is the", 10, TierFilter{})
	if err != nil {
		t.Fatalf("stop-word search: %v", err)
	}
	assert.Empty(t, results)
}

func TestSearchInsightsFTSProjectScoped(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	alpha := testCtx("alpha")
	beta := testCtx("beta")

	if _, err := store.InsertInsight(alpha, &Insight{Content: "alpha keeps secrets about deadlock hunting"}); err != nil {
		t.Fatalf("insert alpha insight: %v", err)
	}

	hits, err := store.SearchInsightsFTS(beta, "deadlock", 10, TierFilter{})
	if err != nil {
		t.Fatalf("beta search: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("keyword search leaked across projects: %v", hits)
	}

	hits, err = store.SearchInsightsFTS(alpha, "deadlock", 10, TierFilter{})
	if err != nil {
		t.Fatalf("alpha search: %v", err)
	}
	if len(hits) != 1 {
		t.Errorf("expected owner to find its insight, got %d hits", len(hits))
	}
}

func TestSearchInsightsFTSTagFilter(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := testCtx("default")

	if _, err := store.InsertInsight(ctx, &Insight{
		Content: "deadlock avoided by lock ordering",
		Tags:    []string{"concurrency"},
	}); err != nil {
		t.Fatalf("insert tagged: %v", err)
	}
	if _, err := store.InsertInsight(ctx, &Insight{
		Content: "deadlock in the CI pipeline",
		Tags:    []string{"infra"},
	}); err != nil {
		t.Fatalf("insert other: %v", err)
	}

	hits, err := store.SearchInsightsFTS(ctx, "deadlock", 10, TierFilter{Tags: []string{"concurrency"}})
	if err != nil {
		t.Fatalf("tag-filtered search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 tagged hit, got %d", len(hits))
	}
	assert.Contains(t, hits[0].Content, "lock ordering")
}
