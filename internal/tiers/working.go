package tiers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/engramlabs/engram/internal/memory"
)

// Tool-facing statuses for working-memory operations.
const (
	StatusSuccess  = "success"
	StatusNotFound = "not_found"
)

const (
	defaultCapacity          = 10
	defaultCriticalThreshold = 0.8
)

// WorkingConfig bounds the L1 buffer.
type WorkingConfig struct {
	Capacity          int     // live slots before eviction kicks in
	CriticalThreshold float64 // items above it are evicted only as a last resort
}

// DefaultWorkingConfig returns the stock 10-slot buffer with the 0.8
// critical threshold.
func DefaultWorkingConfig() WorkingConfig {
	return WorkingConfig{Capacity: defaultCapacity, CriticalThreshold: defaultCriticalThreshold}
}

// WorkingMemory manages the bounded L1 buffer over the store.
type WorkingMemory struct {
	store *memory.SQLiteStore
	cfg   WorkingConfig
}

// NewWorkingMemory creates the buffer manager. Zero config fields fall
// back to defaults.
func NewWorkingMemory(store *memory.SQLiteStore, cfg WorkingConfig) *WorkingMemory {
	if cfg.Capacity <= 0 {
		cfg.Capacity = defaultCapacity
	}
	if cfg.CriticalThreshold <= 0 {
		cfg.CriticalThreshold = defaultCriticalThreshold
	}
	return &WorkingMemory{store: store, cfg: cfg}
}

// UpdateResult reports one insert plus the eviction it may have forced.
type UpdateResult struct {
	Status     string `json:"status"`
	AddedID    string `json:"added_id"`
	EvictedID  string `json:"evicted_id,omitempty"`
	ArchivedID string `json:"archived_id,omitempty"`
}

// DeleteResult reports an idempotent hard delete.
type DeleteResult struct {
	Status    string `json:"status"`
	DeletedID string `json:"deleted_id"`
}

// Update inserts a new item and, when the buffer overflows, evicts exactly
// one: the least-recently-accessed item at or below the critical threshold,
// or the stalest critical item when nothing else is left. The victim is
// archived to stale memory atomically with its deletion. The item just
// inserted is never its own victim.
func (w *WorkingMemory) Update(ctx context.Context, content string, importance float64) (*UpdateResult, error) {
	if strings.TrimSpace(content) == "" {
		return nil, &memory.ValidationError{Field: "content", Message: "must not be empty"}
	}
	if importance < 0 || importance > 1 {
		return nil, &memory.ValidationError{Field: "importance", Message: "must be within [0, 1]"}
	}

	addedID, err := w.store.InsertWorkingItem(ctx, content, importance)
	if err != nil {
		return nil, err
	}
	res := &UpdateResult{Status: StatusSuccess, AddedID: addedID}

	size, err := w.store.CountWorkingItems(ctx)
	if err != nil {
		return nil, err
	}
	if size <= w.cfg.Capacity {
		return res, nil
	}

	ceiling := w.cfg.CriticalThreshold
	victim, err := w.store.OldestWorkingItem(ctx, &ceiling, addedID)
	if errors.Is(err, memory.ErrNotFound) {
		// Only critical items remain: force-evict the stalest one.
		victim, err = w.store.OldestWorkingItem(ctx, nil, addedID)
	}
	if err != nil {
		return nil, fmt.Errorf("pick eviction victim: %w", err)
	}

	archivedID, err := w.store.ArchiveWorkingItem(ctx, victim.ID, memory.ReasonLRUEviction)
	if err != nil {
		return nil, fmt.Errorf("archive %s: %w", victim.ID, err)
	}
	res.EvictedID = victim.ID
	res.ArchivedID = archivedID
	return res, nil
}

// Delete hard-deletes a buffer item without archival. An unknown id
// reports not_found instead of failing.
func (w *WorkingMemory) Delete(ctx context.Context, id string) (*DeleteResult, error) {
	if id == "" {
		return nil, &memory.ValidationError{Field: "id", Message: "must not be empty"}
	}
	found, err := w.store.DeleteWorkingItem(ctx, id)
	if err != nil {
		return nil, err
	}
	res := &DeleteResult{Status: StatusSuccess, DeletedID: id}
	if !found {
		res.Status = StatusNotFound
	}
	return res, nil
}

// Items returns the live buffer, most recently accessed first.
func (w *WorkingMemory) Items(ctx context.Context, limit int) ([]memory.WorkingItem, error) {
	return w.store.ListWorkingItems(ctx, limit)
}

// Stale returns archived items, newest first.
func (w *WorkingMemory) Stale(ctx context.Context, f memory.StaleFilter) ([]memory.StaleItem, error) {
	return w.store.ListStale(ctx, f)
}
