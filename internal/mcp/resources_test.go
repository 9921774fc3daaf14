package mcp

import (
	"context"
	"encoding/json"
	"net/url"
	"testing"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDateRange(t *testing.T) {
	from, to, err := parseDateRange("")
	require.NoError(t, err)
	assert.True(t, from.IsZero())
	assert.True(t, to.IsZero())

	from, to, err = parseDateRange("2026-01-01:2026-01-31")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), from)
	// The upper bound covers the whole last day.
	assert.True(t, to.After(time.Date(2026, 1, 31, 23, 59, 59, 0, time.UTC)))
	assert.True(t, to.Before(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)))

	for _, bad := range []string{"2026-01-01", "jan:feb", "2026-01-01:tomorrow"} {
		_, _, err := parseDateRange(bad)
		assert.Error(t, err, bad)
	}
}

func TestQueryParamHelpers(t *testing.T) {
	vals := url.Values{}
	vals.Set("limit", "25")
	vals.Set("importance_min", "0.4")
	vals.Set("junk", "lots")

	n, err := queryInt(vals, "limit", 10)
	require.NoError(t, err)
	assert.Equal(t, 25, n)

	n, err = queryInt(vals, "absent", 10)
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	_, err = queryInt(vals, "junk", 10)
	assert.Error(t, err)

	f, err := queryFloat(vals, "importance_min", 0)
	require.NoError(t, err)
	assert.Equal(t, 0.4, f)

	_, err = queryFloat(vals, "junk", 0)
	assert.Error(t, err)
}

// readResource invokes a handler and returns the decoded body text.
func readResource(t *testing.T, h mcpsdk.ResourceHandler, uri string) string {
	t.Helper()
	res, err := h(context.Background(), nil, &mcpsdk.ReadResourceParams{URI: uri})
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)
	assert.Equal(t, uri, res.Contents[0].URI)
	assert.Equal(t, "application/json", res.Contents[0].MIMEType)
	return res.Contents[0].Text
}

func decodeArray(t *testing.T, text string) []map[string]any {
	t.Helper()
	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &rows))
	return rows
}

func TestInsightsResource(t *testing.T) {
	box, ctx := setupToolbox(t)

	_, err := box.Compress(ctx, CompressParams{
		Content:   "Standup moved to 09:30",
		SourceIDs: []string{"d-1"},
	})
	require.NoError(t, err)

	h := insightsResourceHandler(box)

	rows := decodeArray(t, readResource(t, h, "memory://l2-insights"))
	require.Len(t, rows, 1)
	assert.Equal(t, "Standup moved to 09:30", rows[0]["content"])

	// The keyword path serves FTS hits.
	rows = decodeArray(t, readResource(t, h, "memory://l2-insights?query=standup"))
	require.NotEmpty(t, rows)

	// Another project sees nothing.
	rows = decodeArray(t, readResource(t, h, "memory://l2-insights?project_id=other"))
	assert.Empty(t, rows)

	// A junk parameter serves the structured error object, not a protocol
	// failure.
	text := readResource(t, h, "memory://l2-insights?top_k=many")
	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &body))
	assert.Equal(t, CategoryValidation, body["error"])
	assert.Equal(t, "l2-insights", body["tool"])
}

func TestWorkingResource(t *testing.T) {
	box, ctx := setupToolbox(t)

	_, err := box.UpdateWorkingMemory(ctx, UpdateWorkingMemoryParams{Content: "rotate the pager"})
	require.NoError(t, err)

	rows := decodeArray(t, readResource(t, workingResourceHandler(box), "memory://working-memory"))
	require.Len(t, rows, 1)
	assert.Equal(t, "rotate the pager", rows[0]["content"])
}

func TestEpisodesResource(t *testing.T) {
	box, ctx := setupToolbox(t)

	_, err := box.StoreEpisode(ctx, StoreEpisodeParams{
		Query: "rollback procedure", Reward: 1, Reflection: "snapshot first",
	})
	require.NoError(t, err)

	h := episodesResourceHandler(box)

	rows := decodeArray(t, readResource(t, h, "memory://episode-memory"))
	require.Len(t, rows, 1)

	// Similarity recall with the canned embedder matches everything.
	rows = decodeArray(t, readResource(t, h, "memory://episode-memory?query=rollback&min_similarity=0.5"))
	require.Len(t, rows, 1)
}

func TestDialogueResource(t *testing.T) {
	box, ctx := setupToolbox(t)

	for _, turn := range []LogRawDialogueParams{
		{SessionID: "s-1", Speaker: "user", Content: "first"},
		{SessionID: "s-1", Speaker: "assistant", Content: "second"},
		{SessionID: "s-2", Speaker: "user", Content: "other session"},
	} {
		_, err := box.LogRawDialogue(ctx, turn)
		require.NoError(t, err)
	}

	h := dialogueResourceHandler(box)

	rows := decodeArray(t, readResource(t, h, "memory://l0-raw"))
	assert.Len(t, rows, 3)

	rows = decodeArray(t, readResource(t, h, "memory://l0-raw?session_id=s-1"))
	assert.Len(t, rows, 2)

	rows = decodeArray(t, readResource(t, h, "memory://l0-raw?session_id=s-1&limit=1"))
	assert.Len(t, rows, 1)

	text := readResource(t, h, "memory://l0-raw?date_range=yesterday")
	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &body))
	assert.Equal(t, CategoryValidation, body["error"])
}

func TestStaleResource(t *testing.T) {
	box, ctx := setupToolbox(t)

	// Overflow the buffer so one item lands on the stale shelf.
	for i := 0; i < 11; i++ {
		_, err := box.UpdateWorkingMemory(ctx, UpdateWorkingMemoryParams{
			Content: "note", Importance: fptr(0.3),
		})
		require.NoError(t, err)
	}

	rows := decodeArray(t, readResource(t, staleResourceHandler(box), "memory://stale-memory"))
	require.Len(t, rows, 1)

	rows = decodeArray(t, readResource(t, staleResourceHandler(box), "memory://stale-memory?importance_min=0.9"))
	assert.Empty(t, rows)
}
