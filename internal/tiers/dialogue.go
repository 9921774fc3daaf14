package tiers

import (
	"context"
	"strings"

	"github.com/engramlabs/engram/internal/memory"
)

// Dialogue appends to and reads the L0 raw-dialogue log.
type Dialogue struct {
	store *memory.SQLiteStore
}

// NewDialogue creates the L0 logger.
func NewDialogue(store *memory.SQLiteStore) *Dialogue {
	return &Dialogue{store: store}
}

// LogRequest carries the log_raw_dialogue tool parameters.
type LogRequest struct {
	SessionID string
	Speaker   string
	Content   string
	Metadata  map[string]any
}

// Log appends one dialogue turn. Rows are immutable once written.
func (d *Dialogue) Log(ctx context.Context, req LogRequest) (*memory.DialogueEntry, error) {
	if strings.TrimSpace(req.SessionID) == "" {
		return nil, &memory.ValidationError{Field: "session_id", Message: "must not be empty"}
	}
	if strings.TrimSpace(req.Speaker) == "" {
		return nil, &memory.ValidationError{Field: "speaker", Message: "must not be empty"}
	}
	if req.Content == "" {
		return nil, &memory.ValidationError{Field: "content", Message: "must not be empty"}
	}

	entry := &memory.DialogueEntry{
		SessionID: req.SessionID,
		Speaker:   req.Speaker,
		Content:   req.Content,
		Metadata:  req.Metadata,
	}
	if _, err := d.store.InsertDialogue(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Recent reads raw turns newest first, narrowed by the filter.
func (d *Dialogue) Recent(ctx context.Context, f memory.DialogueFilter) ([]memory.DialogueEntry, error) {
	return d.store.ListDialogue(ctx, f)
}
