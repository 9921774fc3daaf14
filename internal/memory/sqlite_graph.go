package memory

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/engramlabs/engram/internal/util"
)

// NodeUpsert carries the writable fields of a node upsert.
type NodeUpsert struct {
	Label      string
	Name       string
	Properties Properties
	VectorID   *int64
}

// EdgeUpsert carries the writable fields of an edge upsert. Sector must be
// set by the caller (the engine classifies before writing).
type EdgeUpsert struct {
	SourceID   string
	TargetID   string
	Relation   string
	Weight     float64
	Properties Properties
	Sector     string
}

// Direction selects which edges of a node a traversal step follows.
type Direction string

const (
	DirectionOutgoing Direction = "outgoing"
	DirectionIncoming Direction = "incoming"
	DirectionBoth     Direction = "both"
)

// UpsertNode inserts or updates a node on the (project, name) key.
// On conflict the label and properties are overwritten; the stored vector id
// is preserved unless the caller supplies a new one. Returns the node id and
// whether this call inserted the row.
func (s *SQLiteStore) UpsertNode(ctx context.Context, n NodeUpsert) (string, bool, error) {
	proj, err := projectFrom(ctx)
	if err != nil {
		return "", false, err
	}

	propsJSON, err := marshalProperties(n.Properties)
	if err != nil {
		return "", false, err
	}

	var id string
	var created bool
	err = s.runInTx(ctx, func(tx *sql.Tx) error {
		var existingVec sql.NullInt64
		row := tx.QueryRowContext(ctx,
			`SELECT id, vector_id FROM nodes WHERE project_id = ? AND name = ?`, proj, n.Name)
		switch err := row.Scan(&id, &existingVec); err {
		case nil:
			vec := any(nil)
			if n.VectorID != nil {
				vec = *n.VectorID
			} else if existingVec.Valid {
				vec = existingVec.Int64
			}
			_, err := tx.ExecContext(ctx,
				`UPDATE nodes SET label = ?, properties = ?, vector_id = ? WHERE id = ?`,
				n.Label, propsJSON, vec, id)
			if err != nil {
				return fmt.Errorf("update node: %w", err)
			}
			return nil
		case sql.ErrNoRows:
			id = util.NewID(util.NodePrefix)
			created = true
			vec := any(nil)
			if n.VectorID != nil {
				vec = *n.VectorID
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO nodes (id, project_id, label, name, properties, vector_id, created_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				id, proj, n.Label, n.Name, propsJSON, vec, nowRFC3339())
			if err != nil {
				return fmt.Errorf("insert node: %w", err)
			}
			return nil
		default:
			return fmt.Errorf("lookup node %q: %w", n.Name, err)
		}
	})
	if err != nil {
		return "", false, err
	}
	return id, created, nil
}

// GetNodeByID fetches a node within the current project.
func (s *SQLiteStore) GetNodeByID(ctx context.Context, id string) (*Node, error) {
	proj, err := projectFrom(ctx)
	if err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, label, name, properties, vector_id, created_at
		 FROM nodes WHERE project_id = ? AND id = ?`, proj, id)
	return scanNode(row)
}

// GetNodeByName fetches a node by its display name within the current project.
func (s *SQLiteStore) GetNodeByName(ctx context.Context, name string) (*Node, error) {
	proj, err := projectFrom(ctx)
	if err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, label, name, properties, vector_id, created_at
		 FROM nodes WHERE project_id = ? AND name = ?`, proj, name)
	return scanNode(row)
}

// GetNodesByNames resolves a batch of display names; unknown names are
// silently skipped (entity extraction often guesses wrong).
func (s *SQLiteStore) GetNodesByNames(ctx context.Context, names []string) ([]Node, error) {
	if len(names) == 0 {
		return nil, nil
	}
	proj, err := projectFrom(ctx)
	if err != nil {
		return nil, err
	}

	placeholders := strings.Repeat("?,", len(names))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(names)+1)
	args = append(args, proj)
	for _, n := range names {
		args = append(args, n)
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT id, project_id, label, name, properties, vector_id, created_at
		 FROM nodes WHERE project_id = ? AND name IN (%s)`, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("query nodes by names: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var nodes []Node
	for rows.Next() {
		n, err := scanNodeRow(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, *n)
	}
	return nodes, checkRowsErr(rows)
}

// GetNodesByIDs resolves a batch of node ids; missing ids are skipped.
func (s *SQLiteStore) GetNodesByIDs(ctx context.Context, ids []string) ([]Node, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	proj, err := projectFrom(ctx)
	if err != nil {
		return nil, err
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(ids)+1)
	args = append(args, proj)
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT id, project_id, label, name, properties, vector_id, created_at
		 FROM nodes WHERE project_id = ? AND id IN (%s)`, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("query nodes by ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var nodes []Node
	for rows.Next() {
		n, err := scanNodeRow(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, *n)
	}
	return nodes, checkRowsErr(rows)
}

// NodeNames lists display names of the current project, newest first, for
// entity-extraction candidate matching. Capped to keep queries cheap.
func (s *SQLiteStore) NodeNames(ctx context.Context, limit int) ([]string, error) {
	proj, err := projectFrom(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM nodes WHERE project_id = ? ORDER BY created_at DESC LIMIT ?`, proj, limit)
	if err != nil {
		return nil, fmt.Errorf("query node names: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan node name: %w", err)
		}
		names = append(names, n)
	}
	return names, checkRowsErr(rows)
}

// ListNodes returns the current project's nodes, newest first.
func (s *SQLiteStore) ListNodes(ctx context.Context, limit int) ([]Node, error) {
	proj, err := projectFrom(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, label, name, properties, vector_id, created_at
		 FROM nodes WHERE project_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`, proj, limit)
	if err != nil {
		return nil, fmt.Errorf("query nodes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var nodes []Node
	for rows.Next() {
		n, err := scanNodeRow(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, *n)
	}
	return nodes, checkRowsErr(rows)
}

// UpsertEdge inserts or updates an edge on the (project, source, target,
// relation) key. On conflict weight, properties, and sector are overwritten
// and modified_at is bumped; access statistics are preserved.
func (s *SQLiteStore) UpsertEdge(ctx context.Context, e EdgeUpsert) (string, bool, error) {
	proj, err := projectFrom(ctx)
	if err != nil {
		return "", false, err
	}

	propsJSON, err := marshalProperties(e.Properties)
	if err != nil {
		return "", false, err
	}

	var id string
	var created bool
	now := nowRFC3339()
	err = s.runInTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT id FROM edges
			 WHERE project_id = ? AND source_id = ? AND target_id = ? AND relation = ?`,
			proj, e.SourceID, e.TargetID, e.Relation)
		switch err := row.Scan(&id); err {
		case nil:
			_, err := tx.ExecContext(ctx,
				`UPDATE edges SET weight = ?, properties = ?, memory_sector = ?, modified_at = ?
				 WHERE id = ?`,
				e.Weight, propsJSON, e.Sector, now, id)
			if err != nil {
				return fmt.Errorf("update edge: %w", err)
			}
			return nil
		case sql.ErrNoRows:
			id = util.NewID(util.EdgePrefix)
			created = true
			_, err := tx.ExecContext(ctx,
				`INSERT INTO edges (id, project_id, source_id, target_id, relation, weight,
				                    properties, memory_sector, access_count, modified_at, created_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
				id, proj, e.SourceID, e.TargetID, e.Relation, e.Weight,
				propsJSON, e.Sector, now, now)
			if err != nil {
				return fmt.Errorf("insert edge: %w", err)
			}
			return nil
		default:
			return fmt.Errorf("lookup edge: %w", err)
		}
	})
	if err != nil {
		return "", false, err
	}
	return id, created, nil
}

// GetEdgeByID fetches an edge within the current project.
func (s *SQLiteStore) GetEdgeByID(ctx context.Context, id string) (*Edge, error) {
	proj, err := projectFrom(ctx)
	if err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, edgeSelect+` WHERE project_id = ? AND id = ?`, proj, id)
	return scanEdge(row)
}

// GetEdgeByEndpoints fetches an edge by source name, target name, and
// relation, joining through the node table.
func (s *SQLiteStore) GetEdgeByEndpoints(ctx context.Context, sourceName, targetName, relation string) (*Edge, error) {
	proj, err := projectFrom(ctx)
	if err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT e.id, e.project_id, e.source_id, e.target_id, e.relation, e.weight,
		        e.properties, e.memory_sector, e.access_count, e.last_accessed, e.modified_at, e.created_at
		 FROM edges e
		 JOIN nodes src ON src.id = e.source_id
		 JOIN nodes dst ON dst.id = e.target_id
		 WHERE e.project_id = ? AND src.name = ? AND dst.name = ? AND e.relation = ?`,
		proj, sourceName, targetName, relation)
	return scanEdge(row)
}

// EdgesTouching returns the edges leaving (outgoing) or entering (incoming)
// a node, optionally restricted to one relation. DirectionBoth unions the
// two sets; the traversal engine deduplicates.
func (s *SQLiteStore) EdgesTouching(ctx context.Context, nodeID string, dir Direction, relation string) ([]Edge, error) {
	proj, err := projectFrom(ctx)
	if err != nil {
		return nil, err
	}

	var cond string
	switch dir {
	case DirectionOutgoing:
		cond = "source_id = ?"
	case DirectionIncoming:
		cond = "target_id = ?"
	case DirectionBoth:
		cond = "(source_id = ? OR target_id = ?)"
	default:
		return nil, fmt.Errorf("unknown direction %q", dir)
	}

	query := edgeSelect + ` WHERE project_id = ? AND ` + cond
	args := []any{proj, nodeID}
	if dir == DirectionBoth {
		args = append(args, nodeID)
	}
	if relation != "" {
		query += ` AND relation = ?`
		args = append(args, relation)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query edges of %s: %w", nodeID, err)
	}
	defer func() { _ = rows.Close() }()

	var edges []Edge
	for rows.Next() {
		e, err := scanEdgeRow(rows)
		if err != nil {
			return nil, err
		}
		edges = append(edges, *e)
	}
	return edges, checkRowsErr(rows)
}

// ListEdges returns the current project's edges, newest first.
func (s *SQLiteStore) ListEdges(ctx context.Context, limit int) ([]Edge, error) {
	proj, err := projectFrom(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx,
		edgeSelect+` WHERE project_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`, proj, limit)
	if err != nil {
		return nil, fmt.Errorf("query edges: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var edges []Edge
	for rows.Next() {
		e, err := scanEdgeRow(rows)
		if err != nil {
			return nil, err
		}
		edges = append(edges, *e)
	}
	return edges, checkRowsErr(rows)
}

// DeleteEdgeRow removes an edge row inside tx. The guard in the graph
// engine is responsible for consent checks and audit entries; this is the
// raw delete it commits alongside.
func (s *SQLiteStore) DeleteEdgeRow(ctx context.Context, tx *sql.Tx, proj, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM edges WHERE project_id = ? AND id = ?`, proj, id)
	if err != nil {
		return fmt.Errorf("delete edge %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete edge %s: %w", id, ErrNotFound)
	}
	return nil
}

// TouchEdges bumps access statistics for the given edges in one atomic
// statement. Malformed identifiers are rejected before SQL; the bump itself
// uses max() so concurrent updates never drive the counter negative.
func (s *SQLiteStore) TouchEdges(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	proj, err := projectFrom(ctx)
	if err != nil {
		return err
	}

	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if util.ValidID(id) {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return fmt.Errorf("no well-formed edge ids in %v", ids)
	}

	placeholders := strings.Repeat("?,", len(valid))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(valid)+2)
	args = append(args, nowRFC3339(), proj)
	for _, id := range valid {
		args = append(args, id)
	}

	_, err = s.db.ExecContext(ctx, fmt.Sprintf(
		`UPDATE edges SET last_accessed = ?, access_count = max(COALESCE(access_count, 0), 0) + 1
		 WHERE project_id = ? AND id IN (%s)`, placeholders), args...)
	if err != nil {
		return fmt.Errorf("touch edges: %w", err)
	}
	return nil
}

const edgeSelect = `SELECT id, project_id, source_id, target_id, relation, weight,
       properties, memory_sector, access_count, last_accessed, modified_at, created_at
FROM edges`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNodeFields(sc rowScanner) (*Node, error) {
	var n Node
	var props sql.NullString
	var vectorID sql.NullInt64
	var createdAt string
	if err := sc.Scan(&n.ID, &n.ProjectID, &n.Label, &n.Name, &props, &vectorID, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan node: %w", err)
	}
	parsed, err := unmarshalProperties(nullString(props))
	if err != nil {
		return nil, err
	}
	n.Properties = parsed
	if vectorID.Valid {
		v := vectorID.Int64
		n.VectorID = &v
	}
	n.CreatedAt = parseTime(createdAt)
	return &n, nil
}

func scanNode(row *sql.Row) (*Node, error)      { return scanNodeFields(row) }
func scanNodeRow(rows *sql.Rows) (*Node, error) { return scanNodeFields(rows) }

func scanEdgeFields(sc rowScanner) (*Edge, error) {
	var e Edge
	var props, lastAccessed, modifiedAt sql.NullString
	var createdAt string
	if err := sc.Scan(&e.ID, &e.ProjectID, &e.SourceID, &e.TargetID, &e.Relation, &e.Weight,
		&props, &e.MemorySector, &e.AccessCount, &lastAccessed, &modifiedAt, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan edge: %w", err)
	}
	parsed, err := unmarshalProperties(nullString(props))
	if err != nil {
		return nil, err
	}
	e.Properties = parsed
	e.LastAccessed = parseTime(nullString(lastAccessed))
	e.ModifiedAt = parseTime(nullString(modifiedAt))
	e.CreatedAt = parseTime(createdAt)
	return &e, nil
}

func scanEdge(row *sql.Row) (*Edge, error)      { return scanEdgeFields(row) }
func scanEdgeRow(rows *sql.Rows) (*Edge, error) { return scanEdgeFields(rows) }
