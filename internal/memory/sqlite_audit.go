package memory

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/engramlabs/engram/internal/project"
	"github.com/engramlabs/engram/internal/util"
)

// === Audit Log ===

// AuditFilter narrows ListAudit. Zero values mean "no filter".
type AuditFilter struct {
	EdgeID string
	Action string
	Actor  string
	Limit  int
}

// AppendAudit records one guard decision or shadow observation. The log is
// append-only; nothing in the store updates or deletes audit rows.
func (s *SQLiteStore) AppendAudit(ctx context.Context, e *AuditEntry) (string, error) {
	proj, err := projectFrom(ctx)
	if err != nil {
		return "", err
	}
	e.ProjectID = proj
	if err := s.runInTx(ctx, func(tx *sql.Tx) error {
		return appendAuditTx(ctx, tx, e)
	}); err != nil {
		return "", err
	}
	return e.ID, nil
}

// appendAuditTx inserts one audit row inside the caller's transaction.
// The caller is responsible for setting e.ProjectID.
func appendAuditTx(ctx context.Context, tx *sql.Tx, e *AuditEntry) error {
	if e.ID == "" {
		e.ID = util.NewID(util.AuditPrefix)
	}
	if e.Actor == "" {
		e.Actor = ActorSystem
	}
	propsJSON, err := marshalProperties(e.Properties)
	if err != nil {
		return fmt.Errorf("marshal audit properties: %w", err)
	}
	blocked := 0
	if e.Blocked {
		blocked = 1
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO audit_log (id, project_id, edge_id, action, blocked, reason, actor, properties, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ProjectID, e.EdgeID, e.Action, blocked, nullableText(e.Reason), e.Actor, propsJSON, nowRFC3339())
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// DeleteEdgeAudited removes an edge and appends its audit entry in one
// transaction, so a successful deletion is never recorded without the edge
// actually going away (and vice versa). Returns ErrNotFound when the edge
// does not exist in the caller's project; no audit row is written then.
func (s *SQLiteStore) DeleteEdgeAudited(ctx context.Context, edgeID string, e *AuditEntry) error {
	proj, err := projectFrom(ctx)
	if err != nil {
		return err
	}
	e.ProjectID = proj
	return s.runInTx(ctx, func(tx *sql.Tx) error {
		if err := s.DeleteEdgeRow(ctx, tx, proj, edgeID); err != nil {
			return err
		}
		return appendAuditTx(ctx, tx, e)
	})
}

// ListAudit returns audit entries for the caller's project, newest first.
// A database predating the audit table yields an empty log, not an error.
func (s *SQLiteStore) ListAudit(ctx context.Context, f AuditFilter) ([]AuditEntry, error) {
	proj, err := projectFrom(ctx)
	if err != nil {
		return nil, err
	}

	query := `SELECT id, project_id, edge_id, action, blocked, reason, actor, properties, created_at
	          FROM audit_log WHERE project_id = ?`
	args := []any{proj}
	if f.EdgeID != "" {
		query += ` AND edge_id = ?`
		args = append(args, f.EdgeID)
	}
	if f.Action != "" {
		query += ` AND action = ?`
		args = append(args, f.Action)
	}
	if f.Actor != "" {
		query += ` AND actor = ?`
		args = append(args, f.Actor)
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		if isMissingTable(err) {
			return []AuditEntry{}, nil
		}
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var blocked int
		var reason, props sql.NullString
		var createdAt string
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.EdgeID, &e.Action, &blocked, &reason, &e.Actor, &props, &createdAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Blocked = blocked != 0
		e.Reason = nullString(reason)
		if props.Valid {
			p, err := unmarshalProperties(props.String)
			if err != nil {
				return nil, fmt.Errorf("decode audit properties: %w", err)
			}
			e.Properties = p
		}
		e.CreatedAt = parseTime(createdAt)
		entries = append(entries, e)
	}
	return entries, checkRowsErr(rows)
}

// isMissingTable matches SQLite's "no such table" error text. Schema
// bootstrap normally creates audit_log, but the log reader must stay usable
// against databases produced by older builds or external tooling.
func isMissingTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}

// === Nuance Reviews ===

// OpenReview files a pending arbitration between two apparently conflicting
// edges. Both edges carry a scoring penalty until the review resolves.
func (s *SQLiteStore) OpenReview(ctx context.Context, edgeA, edgeB, note string) (string, error) {
	proj, err := projectFrom(ctx)
	if err != nil {
		return "", err
	}
	id := util.NewID(util.ReviewPrefix)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO nuance_reviews (id, project_id, edge_a, edge_b, status, note, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, proj, edgeA, edgeB, ReviewPending, nullableText(note), nowRFC3339())
	if err != nil {
		return "", fmt.Errorf("insert nuance review: %w", err)
	}
	return id, nil
}

// GetReview loads one review by id within the caller's project.
func (s *SQLiteStore) GetReview(ctx context.Context, id string) (*NuanceReview, error) {
	proj, err := projectFrom(ctx)
	if err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx,
		reviewSelect+` WHERE project_id = ? AND id = ?`, proj, id)
	return scanReview(row)
}

// ListReviews returns reviews for the caller's project, newest first.
// An empty status returns every review regardless of state.
func (s *SQLiteStore) ListReviews(ctx context.Context, status string) ([]NuanceReview, error) {
	proj, err := projectFrom(ctx)
	if err != nil {
		return nil, err
	}

	query := reviewSelect + ` WHERE project_id = ?`
	args := []any{proj}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query nuance reviews: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var reviews []NuanceReview
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		reviews = append(reviews, *r)
	}
	return reviews, checkRowsErr(rows)
}

// PendingReviewEdgeIDs returns the set of edge ids currently under pending
// review, for the per-edge scoring penalty.
func (s *SQLiteStore) PendingReviewEdgeIDs(ctx context.Context) (map[string]bool, error) {
	proj, err := projectFrom(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT edge_a, edge_b FROM nuance_reviews WHERE project_id = ? AND status = ?`,
		proj, ReviewPending)
	if err != nil {
		return nil, fmt.Errorf("query pending reviews: %w", err)
	}
	defer func() { _ = rows.Close() }()

	pending := make(map[string]bool)
	for rows.Next() {
		var a, b string
		if err := rows.Scan(&a, &b); err != nil {
			return nil, fmt.Errorf("scan pending review: %w", err)
		}
		pending[a] = true
		pending[b] = true
	}
	return pending, checkRowsErr(rows)
}

// ResolveReview marks a pending review resolved and records the outcome.
// Returns ErrNotFound when the review does not exist or is already resolved.
func (s *SQLiteStore) ResolveReview(ctx context.Context, id, resolution string) error {
	proj, err := projectFrom(ctx)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE nuance_reviews SET status = ?, resolution = ?, resolved_at = ?
		 WHERE project_id = ? AND id = ? AND status = ?`,
		ReviewResolved, resolution, nowRFC3339(), proj, id, ReviewPending)
	if err != nil {
		return fmt.Errorf("resolve review: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolve review rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const reviewSelect = `SELECT id, project_id, edge_a, edge_b, status, note, resolution, created_at, resolved_at
                      FROM nuance_reviews`

func scanReview(row rowScanner) (*NuanceReview, error) {
	var r NuanceReview
	var note, resolution, resolvedAt sql.NullString
	var createdAt string
	err := row.Scan(&r.ID, &r.ProjectID, &r.EdgeA, &r.EdgeB, &r.Status, &note, &resolution, &createdAt, &resolvedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan nuance review: %w", err)
	}
	r.Note = nullString(note)
	r.Resolution = nullString(resolution)
	r.CreatedAt = parseTime(createdAt)
	r.ResolvedAt = parseTime(nullString(resolvedAt))
	return &r, nil
}

// === Project Registry ===

// UpsertProject registers a tenant or updates its name and access level.
// Registry rows are global: they are what tenancy is resolved against, so
// this is the one writer that does not read a project off the context.
func (s *SQLiteStore) UpsertProject(ctx context.Context, p Project) error {
	if p.AccessLevel == "" {
		p.AccessLevel = string(project.AccessIsolated)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, access_level) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, access_level = excluded.access_level`,
		p.ID, p.Name, p.AccessLevel)
	if err != nil {
		return fmt.Errorf("upsert project: %w", err)
	}
	return nil
}

// GetProject looks up one registry row. Unregistered tenants resolve to an
// isolated default so a fresh project can write before registering.
func (s *SQLiteStore) GetProject(ctx context.Context, id string) (*Project, error) {
	var p Project
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, access_level FROM projects WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.AccessLevel)
	if err == sql.ErrNoRows {
		return &Project{ID: id, Name: id, AccessLevel: string(project.AccessIsolated)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return &p, nil
}

// ListProjects returns every registered tenant.
func (s *SQLiteStore) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, access_level FROM projects ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var projects []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Name, &p.AccessLevel); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, checkRowsErr(rows)
}

// GrantRead allows reader to query target's memory. Idempotent.
func (s *SQLiteStore) GrantRead(ctx context.Context, reader, target string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO project_read_permissions (reader_project, target_project) VALUES (?, ?)
		 ON CONFLICT(reader_project, target_project) DO NOTHING`,
		reader, target)
	if err != nil {
		return fmt.Errorf("grant read permission: %w", err)
	}
	return nil
}

// CanRead reports whether reader may query target's memory: always within
// the same project, anywhere for a super-access reader, and across projects
// only with an explicit grant.
func (s *SQLiteStore) CanRead(ctx context.Context, reader, target string) (bool, error) {
	if reader == target {
		return true, nil
	}
	p, err := s.GetProject(ctx, reader)
	if err != nil {
		return false, err
	}
	if p.AccessLevel == string(project.AccessSuper) {
		return true, nil
	}
	var count int
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM project_read_permissions WHERE reader_project = ? AND target_project = ?`,
		reader, target).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check read permission: %w", err)
	}
	return count > 0, nil
}

// === Stats ===

// CountTiers returns per-tier row counts for the caller's project.
func (s *SQLiteStore) CountTiers(ctx context.Context) (*TierCounts, error) {
	proj, err := projectFrom(ctx)
	if err != nil {
		return nil, err
	}

	counts := &TierCounts{}
	queries := []struct {
		dest *int64
		sql  string
	}{
		{&counts.Nodes, `SELECT COUNT(*) FROM nodes WHERE project_id = ?`},
		{&counts.Edges, `SELECT COUNT(*) FROM edges WHERE project_id = ?`},
		{&counts.Insights, `SELECT COUNT(*) FROM insights WHERE project_id = ?`},
		{&counts.Episodes, `SELECT COUNT(*) FROM episodes WHERE project_id = ?`},
		{&counts.Working, `SELECT COUNT(*) FROM working_memory WHERE project_id = ?`},
		{&counts.Stale, `SELECT COUNT(*) FROM stale_memory WHERE project_id = ?`},
		{&counts.RawDialogue, `SELECT COUNT(*) FROM raw_dialogue WHERE project_id = ?`},
		{&counts.Reviews, `SELECT COUNT(*) FROM nuance_reviews WHERE project_id = ?`},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.sql, proj).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("count tier rows: %w", err)
		}
	}

	// Audit counting tolerates a missing table like ListAudit does.
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM audit_log WHERE project_id = ?`, proj).Scan(&counts.AuditRows)
	if err != nil && !isMissingTable(err) {
		return nil, fmt.Errorf("count audit rows: %w", err)
	}
	return counts, nil
}

// CountSectors returns edge counts grouped by memory sector.
func (s *SQLiteStore) CountSectors(ctx context.Context) (map[string]int64, error) {
	proj, err := projectFrom(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT memory_sector, COUNT(*) FROM edges WHERE project_id = ? GROUP BY memory_sector`,
		proj)
	if err != nil {
		return nil, fmt.Errorf("count sectors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int64)
	for rows.Next() {
		var sector string
		var n int64
		if err := rows.Scan(&sector, &n); err != nil {
			return nil, fmt.Errorf("scan sector count: %w", err)
		}
		counts[sector] = n
	}
	return counts, checkRowsErr(rows)
}
