package memory

import (
	"testing"
	"time"
)

// stubClock pins the store clock to a controllable instant so RFC3339
// second-resolution timestamps order deterministically.
func stubClock(t *testing.T, start time.Time) func(d time.Duration) {
	t.Helper()
	current := start
	timeNow = func() time.Time { return current }
	t.Cleanup(func() { timeNow = time.Now })
	return func(d time.Duration) { current = current.Add(d) }
}

func TestWorkingItemLRUOrdering(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := testCtx("default")

	advance := stubClock(t, time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC))

	a, err := store.InsertWorkingItem(ctx, "first", 0.5)
	if err != nil {
		t.Fatalf("insert a: %v", err)
	}
	advance(time.Second)
	b, err := store.InsertWorkingItem(ctx, "second", 0.5)
	if err != nil {
		t.Fatalf("insert b: %v", err)
	}
	advance(time.Second)
	if _, err := store.InsertWorkingItem(ctx, "third", 0.5); err != nil {
		t.Fatalf("insert c: %v", err)
	}

	oldest, err := store.OldestWorkingItem(ctx, nil, "")
	if err != nil {
		t.Fatalf("oldest: %v", err)
	}
	if oldest.ID != a {
		t.Errorf("expected %s as LRU, got %s", a, oldest.ID)
	}

	// Touching the oldest moves it to the back of the queue.
	advance(time.Second)
	if err := store.TouchWorkingItem(ctx, a); err != nil {
		t.Fatalf("touch: %v", err)
	}
	oldest, err = store.OldestWorkingItem(ctx, nil, "")
	if err != nil {
		t.Fatalf("oldest after touch: %v", err)
	}
	if oldest.ID != b {
		t.Errorf("expected %s as LRU after touch, got %s", b, oldest.ID)
	}
}

func TestOldestWorkingItemCeilingAndExclusion(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := testCtx("default")

	advance := stubClock(t, time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC))

	critical, err := store.InsertWorkingItem(ctx, "critical fact", 0.9)
	if err != nil {
		t.Fatalf("insert critical: %v", err)
	}
	advance(time.Second)
	casual, err := store.InsertWorkingItem(ctx, "casual note", 0.6)
	if err != nil {
		t.Fatalf("insert casual: %v", err)
	}

	ceiling := 0.8
	got, err := store.OldestWorkingItem(ctx, &ceiling, "")
	if err != nil {
		t.Fatalf("ceiling query: %v", err)
	}
	if got.ID != casual {
		t.Errorf("ceiling should skip critical items, got %s", got.ID)
	}

	// Excluding the only non-critical item leaves no candidate.
	if _, err := store.OldestWorkingItem(ctx, &ceiling, casual); err != ErrNotFound {
		t.Errorf("expected ErrNotFound with exclusion, got %v", err)
	}

	// Without the ceiling the forced-eviction fallback finds the critical one.
	forced, err := store.OldestWorkingItem(ctx, nil, casual)
	if err != nil {
		t.Fatalf("forced query: %v", err)
	}
	if forced.ID != critical {
		t.Errorf("expected oldest critical item, got %s", forced.ID)
	}
}

func TestArchiveWorkingItem(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := testCtx("default")

	id, err := store.InsertWorkingItem(ctx, "about to age out", 0.9)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	staleID, err := store.ArchiveWorkingItem(ctx, id, ReasonLRUEviction)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if staleID == "" {
		t.Fatal("expected a stale row id")
	}

	// The live buffer no longer holds the item.
	n, err := store.CountWorkingItems(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("expected empty buffer, got %d items", n)
	}

	// The archive preserved content, importance, and reason.
	stale, err := store.ListStale(ctx, StaleFilter{})
	if err != nil {
		t.Fatalf("list stale: %v", err)
	}
	if len(stale) != 1 {
		t.Fatalf("expected 1 stale row, got %d", len(stale))
	}
	if stale[0].Content != "about to age out" || stale[0].Importance != 0.9 {
		t.Errorf("stale row lost data: %+v", stale[0])
	}
	if stale[0].Reason != ReasonLRUEviction {
		t.Errorf("expected reason %q, got %q", ReasonLRUEviction, stale[0].Reason)
	}

	// Archiving a missing id is a not-found error, not a silent no-op.
	if _, err := store.ArchiveWorkingItem(ctx, "wm-ffffffff", ReasonLRUEviction); err == nil {
		t.Error("expected error archiving a missing item")
	}
}

func TestDeleteWorkingItemIdempotent(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := testCtx("default")

	id, err := store.InsertWorkingItem(ctx, "short-lived", 0.3)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	found, err := store.DeleteWorkingItem(ctx, id)
	if err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if !found {
		t.Error("first delete should report found")
	}

	found, err = store.DeleteWorkingItem(ctx, id)
	if err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if found {
		t.Error("second delete should report not found, not error")
	}

	// Hard delete leaves no stale row behind.
	stale, err := store.ListStale(ctx, StaleFilter{})
	if err != nil {
		t.Fatalf("list stale: %v", err)
	}
	if len(stale) != 0 {
		t.Errorf("hard delete must not archive, got %d stale rows", len(stale))
	}
}

func TestListStaleImportanceFloor(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := testCtx("default")

	low, err := store.InsertWorkingItem(ctx, "low", 0.2)
	if err != nil {
		t.Fatalf("insert low: %v", err)
	}
	high, err := store.InsertWorkingItem(ctx, "high", 0.9)
	if err != nil {
		t.Fatalf("insert high: %v", err)
	}
	if _, err := store.ArchiveWorkingItem(ctx, low, ReasonManualArchive); err != nil {
		t.Fatalf("archive low: %v", err)
	}
	if _, err := store.ArchiveWorkingItem(ctx, high, ReasonManualArchive); err != nil {
		t.Fatalf("archive high: %v", err)
	}

	stale, err := store.ListStale(ctx, StaleFilter{ImportanceMin: 0.5})
	if err != nil {
		t.Fatalf("list stale: %v", err)
	}
	if len(stale) != 1 || stale[0].Content != "high" {
		t.Errorf("importance floor not applied: %v", stale)
	}
}
