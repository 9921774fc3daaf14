package tiers

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramlabs/engram/internal/memory"
	"github.com/engramlabs/engram/internal/project"
)

func setupDialogue(t *testing.T) (*Dialogue, context.Context) {
	t.Helper()
	store, err := memory.Open(filepath.Join(t.TempDir(), "engram.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := project.WithProject(context.Background(), "proj-tiers")
	return NewDialogue(store), ctx
}

func TestDialogueLogAndRecent(t *testing.T) {
	d, ctx := setupDialogue(t)

	first, err := d.Log(ctx, LogRequest{SessionID: "s-1", Speaker: "user", Content: "hello there"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(first.ID, "d-"))
	assert.False(t, first.CreatedAt.IsZero())

	_, err = d.Log(ctx, LogRequest{SessionID: "s-1", Speaker: "assistant", Content: "hi, what are we building today?"})
	require.NoError(t, err)
	_, err = d.Log(ctx, LogRequest{SessionID: "s-2", Speaker: "user", Content: "unrelated session"})
	require.NoError(t, err)

	turns, err := d.Recent(ctx, memory.DialogueFilter{SessionID: "s-1"})
	require.NoError(t, err)
	require.Len(t, turns, 2)
	for _, turn := range turns {
		assert.Equal(t, "s-1", turn.SessionID)
	}
}

func TestDialogueMetadataRoundTrip(t *testing.T) {
	d, ctx := setupDialogue(t)

	entry, err := d.Log(ctx, LogRequest{
		SessionID: "s-9",
		Speaker:   "user",
		Content:   "tag this turn",
		Metadata:  map[string]any{"channel": "cli"},
	})
	require.NoError(t, err)

	turns, err := d.Recent(ctx, memory.DialogueFilter{SessionID: "s-9"})
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, entry.ID, turns[0].ID)
	assert.Equal(t, "cli", turns[0].Metadata["channel"])
}

func TestDialogueValidation(t *testing.T) {
	d, ctx := setupDialogue(t)

	cases := []struct {
		name  string
		req   LogRequest
		field string
	}{
		{"missing session", LogRequest{Speaker: "user", Content: "x"}, "session_id"},
		{"missing speaker", LogRequest{SessionID: "s-1", Content: "x"}, "speaker"},
		{"missing content", LogRequest{SessionID: "s-1", Speaker: "user"}, "content"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := d.Log(ctx, tc.req)
			var verr *memory.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}
}
