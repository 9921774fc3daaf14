package memory

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/engramlabs/engram/internal/util"
)

// InsertWorkingItem adds a new working-memory slot with last_accessed = now.
// Eviction policy lives in the tier manager, not here.
func (s *SQLiteStore) InsertWorkingItem(ctx context.Context, content string, importance float64) (string, error) {
	proj, err := projectFrom(ctx)
	if err != nil {
		return "", err
	}

	id := util.NewID(util.WorkingPrefix)
	now := nowRFC3339()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO working_memory (id, project_id, content, importance, last_accessed, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, proj, content, importance, now, now)
	if err != nil {
		return "", fmt.Errorf("insert working item: %w", err)
	}
	return id, nil
}

// CountWorkingItems returns the live buffer size for the current project.
func (s *SQLiteStore) CountWorkingItems(ctx context.Context) (int, error) {
	proj, err := projectFrom(ctx)
	if err != nil {
		return 0, err
	}
	var n int
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM working_memory WHERE project_id = ?`, proj).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count working items: %w", err)
	}
	return n, nil
}

// GetWorkingItem loads one buffer slot by id. Missing id → ErrNotFound.
func (s *SQLiteStore) GetWorkingItem(ctx context.Context, itemID string) (*WorkingItem, error) {
	proj, err := projectFrom(ctx)
	if err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, content, importance, last_accessed, created_at
		 FROM working_memory WHERE project_id = ? AND id = ?`, proj, itemID)
	return scanWorkingItem(row)
}

// OldestWorkingItem returns the least-recently-accessed item, optionally
// restricted to importance <= ceiling (LRU-among-non-critical selection).
// Pass a nil ceiling to consider every item (forced-eviction fallback).
// excludeID keeps the item just inserted out of candidacy; rowid breaks
// ties between items touched within the same second.
func (s *SQLiteStore) OldestWorkingItem(ctx context.Context, ceiling *float64, excludeID string) (*WorkingItem, error) {
	proj, err := projectFrom(ctx)
	if err != nil {
		return nil, err
	}

	query := `SELECT id, project_id, content, importance, last_accessed, created_at
	          FROM working_memory WHERE project_id = ?`
	args := []any{proj}
	if ceiling != nil {
		query += ` AND importance <= ?`
		args = append(args, *ceiling)
	}
	if excludeID != "" {
		query += ` AND id != ?`
		args = append(args, excludeID)
	}
	query += ` ORDER BY last_accessed ASC, rowid ASC LIMIT 1`

	row := s.db.QueryRowContext(ctx, query, args...)
	return scanWorkingItem(row)
}

// ListWorkingItems returns the buffer ordered most-recently-accessed first.
func (s *SQLiteStore) ListWorkingItems(ctx context.Context, limit int) ([]WorkingItem, error) {
	proj, err := projectFrom(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, content, importance, last_accessed, created_at
		 FROM working_memory WHERE project_id = ?
		 ORDER BY last_accessed DESC LIMIT ?`, proj, limit)
	if err != nil {
		return nil, fmt.Errorf("list working items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []WorkingItem
	for rows.Next() {
		var w WorkingItem
		var lastAccessed, createdAt string
		if err := rows.Scan(&w.ID, &w.ProjectID, &w.Content, &w.Importance, &lastAccessed, &createdAt); err != nil {
			return nil, fmt.Errorf("scan working item: %w", err)
		}
		w.LastAccessed = parseTime(lastAccessed)
		w.CreatedAt = parseTime(createdAt)
		out = append(out, w)
	}
	return out, checkRowsErr(rows)
}

// ArchiveWorkingItem copies an item into stale memory with the given reason
// and deletes it from the buffer, atomically. Returns the stale row id.
func (s *SQLiteStore) ArchiveWorkingItem(ctx context.Context, itemID, reason string) (string, error) {
	proj, err := projectFrom(ctx)
	if err != nil {
		return "", err
	}

	staleID := util.NewID(util.StalePrefix)
	err = s.runInTx(ctx, func(tx *sql.Tx) error {
		var content string
		var importance float64
		row := tx.QueryRowContext(ctx,
			`SELECT content, importance FROM working_memory WHERE project_id = ? AND id = ?`,
			proj, itemID)
		if err := row.Scan(&content, &importance); err != nil {
			if err == sql.ErrNoRows {
				return fmt.Errorf("archive working item %s: %w", itemID, ErrNotFound)
			}
			return fmt.Errorf("load working item %s: %w", itemID, err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO stale_memory (id, project_id, content, importance, reason, archived_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			staleID, proj, content, importance, reason, nowRFC3339()); err != nil {
			return fmt.Errorf("insert stale row: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM working_memory WHERE project_id = ? AND id = ?`, proj, itemID); err != nil {
			return fmt.Errorf("delete evicted item: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return staleID, nil
}

// DeleteWorkingItem hard-deletes without archival. Returns false when the
// id does not exist; the caller reports not_found instead of erroring.
func (s *SQLiteStore) DeleteWorkingItem(ctx context.Context, itemID string) (bool, error) {
	proj, err := projectFrom(ctx)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM working_memory WHERE project_id = ? AND id = ?`, proj, itemID)
	if err != nil {
		return false, fmt.Errorf("delete working item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// StaleFilter narrows stale-memory reads.
type StaleFilter struct {
	ImportanceMin float64
	Limit         int
}

// ListStale returns archived items, newest first.
func (s *SQLiteStore) ListStale(ctx context.Context, f StaleFilter) ([]StaleItem, error) {
	proj, err := projectFrom(ctx)
	if err != nil {
		return nil, err
	}
	if f.Limit <= 0 {
		f.Limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, content, importance, reason, archived_at
		 FROM stale_memory WHERE project_id = ? AND importance >= ?
		 ORDER BY archived_at DESC LIMIT ?`, proj, f.ImportanceMin, f.Limit)
	if err != nil {
		return nil, fmt.Errorf("list stale memory: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []StaleItem
	for rows.Next() {
		var it StaleItem
		var archivedAt string
		if err := rows.Scan(&it.ID, &it.ProjectID, &it.Content, &it.Importance, &it.Reason, &archivedAt); err != nil {
			return nil, fmt.Errorf("scan stale item: %w", err)
		}
		it.ArchivedAt = parseTime(archivedAt)
		out = append(out, it)
	}
	return out, checkRowsErr(rows)
}

// CountStaleByReason is used by capacity tests and stats.
func (s *SQLiteStore) CountStaleByReason(ctx context.Context, reason string) (int, error) {
	proj, err := projectFrom(ctx)
	if err != nil {
		return 0, err
	}
	var n int
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM stale_memory WHERE project_id = ? AND reason = ?`, proj, reason).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count stale rows: %w", err)
	}
	return n, nil
}

func scanWorkingItem(row *sql.Row) (*WorkingItem, error) {
	var w WorkingItem
	var lastAccessed, createdAt string
	if err := row.Scan(&w.ID, &w.ProjectID, &w.Content, &w.Importance, &lastAccessed, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan working item: %w", err)
	}
	w.LastAccessed = parseTime(lastAccessed)
	w.CreatedAt = parseTime(createdAt)
	return &w, nil
}

// TouchWorkingItem refreshes last_accessed on a buffer read.
func (s *SQLiteStore) TouchWorkingItem(ctx context.Context, itemID string) error {
	proj, err := projectFrom(ctx)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE working_memory SET last_accessed = ? WHERE project_id = ? AND id = ?`,
		nowRFC3339(), proj, itemID)
	if err != nil {
		return fmt.Errorf("touch working item: %w", err)
	}
	return nil
}

