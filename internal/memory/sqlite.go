// Package memory persists every tier of the cognitive memory hierarchy:
// the knowledge graph (nodes, edges), compressed insights (L2), episodes,
// raw dialogue (L0), the working/stale buffers, the audit log, nuance
// reviews, and the project registry. All rows are scoped to a project; the
// tenant is read from the request context on every call.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unsafe"

	"github.com/engramlabs/engram/internal/project"
	_ "modernc.org/sqlite"
)

// DefaultPoolSize bounds concurrent connections. The MCP stdio server
// interleaves handlers, so a small fixed pool with SQLite's busy timeout
// gives bounded acquisition without a separate wait queue.
const DefaultPoolSize = 4

// SQLiteStore implements persistence for every memory tier on a single
// SQLite database file.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Open creates or opens the database at dbPath (":memory:" for tests),
// applies pragmas, and bootstraps the schema. Fail-fast: any error here is
// fatal configuration per the startup contract.
func Open(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(DefaultPoolSize)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	store := &SQLiteStore{db: db, path: dbPath}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return store, nil
}

// initSchema creates tables, indexes, FTS virtual tables and sync triggers.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Tenant registry
	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		access_level TEXT NOT NULL DEFAULT 'isolated'
	);

	CREATE TABLE IF NOT EXISTS project_read_permissions (
		reader_project TEXT NOT NULL,
		target_project TEXT NOT NULL,
		UNIQUE(reader_project, target_project)
	);

	-- Knowledge graph
	CREATE TABLE IF NOT EXISTS nodes (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		label TEXT NOT NULL,
		name TEXT NOT NULL,
		properties TEXT,                    -- JSON property bag
		vector_id INTEGER,                  -- back-reference to insights.id
		created_at TEXT NOT NULL,
		UNIQUE(project_id, name)
	);

	CREATE TABLE IF NOT EXISTS edges (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		source_id TEXT NOT NULL,
		target_id TEXT NOT NULL,
		relation TEXT NOT NULL,
		weight REAL NOT NULL DEFAULT 0.5,
		properties TEXT,                    -- JSON property bag
		memory_sector TEXT NOT NULL DEFAULT 'semantic',
		access_count INTEGER NOT NULL DEFAULT 0,
		last_accessed TEXT,
		modified_at TEXT,
		created_at TEXT NOT NULL,
		UNIQUE(project_id, source_id, target_id, relation),
		FOREIGN KEY (source_id) REFERENCES nodes(id) ON DELETE CASCADE,
		FOREIGN KEY (target_id) REFERENCES nodes(id) ON DELETE CASCADE
	);

	-- Compressed insights (L2)
	CREATE TABLE IF NOT EXISTS insights (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id TEXT NOT NULL,
		content TEXT NOT NULL,
		embedding BLOB,                     -- float32 little-endian
		source_ids TEXT,                    -- JSON array
		memory_strength REAL NOT NULL DEFAULT 0.5,
		metadata TEXT,                      -- JSON
		tags TEXT,                          -- JSON array
		created_at TEXT NOT NULL
	);

	-- Episodic recall tuples
	CREATE TABLE IF NOT EXISTS episodes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id TEXT NOT NULL,
		query TEXT NOT NULL,
		reward REAL NOT NULL DEFAULT 0,
		reflection TEXT NOT NULL DEFAULT '',
		embedding BLOB,
		tags TEXT,
		metadata TEXT,
		created_at TEXT NOT NULL
	);

	-- Raw dialogue (L0), append-only
	CREATE TABLE IF NOT EXISTS raw_dialogue (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		speaker TEXT NOT NULL,
		content TEXT NOT NULL,
		metadata TEXT,
		created_at TEXT NOT NULL
	);

	-- Working memory buffer + stale archive
	CREATE TABLE IF NOT EXISTS working_memory (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		content TEXT NOT NULL,
		importance REAL NOT NULL DEFAULT 0.5,
		last_accessed TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS stale_memory (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		content TEXT NOT NULL,
		importance REAL NOT NULL DEFAULT 0.5,
		reason TEXT NOT NULL,
		archived_at TEXT NOT NULL
	);

	-- Nuance reviews (dissonance arbitration)
	CREATE TABLE IF NOT EXISTS nuance_reviews (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		edge_a TEXT NOT NULL,
		edge_b TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING_REVIEW',
		note TEXT,
		resolution TEXT,
		created_at TEXT NOT NULL,
		resolved_at TEXT
	);

	-- Indexes
	CREATE INDEX IF NOT EXISTS idx_nodes_project_name ON nodes(project_id, name);
	CREATE INDEX IF NOT EXISTS idx_edges_project_source ON edges(project_id, source_id);
	CREATE INDEX IF NOT EXISTS idx_edges_project_target ON edges(project_id, target_id);
	CREATE INDEX IF NOT EXISTS idx_insights_created ON insights(created_at);
	CREATE INDEX IF NOT EXISTS idx_insights_project ON insights(project_id);
	CREATE INDEX IF NOT EXISTS idx_episodes_project ON episodes(project_id);
	CREATE INDEX IF NOT EXISTS idx_dialogue_session ON raw_dialogue(project_id, session_id);
	CREATE INDEX IF NOT EXISTS idx_working_project ON working_memory(project_id);
	CREATE INDEX IF NOT EXISTS idx_reviews_status ON nuance_reviews(project_id, status);

	-- FTS5 keyword index over insight content (hybrid keyword channel)
	CREATE VIRTUAL TABLE IF NOT EXISTS insights_fts USING fts5(
		content,
		project_id UNINDEXED,
		content='insights',
		content_rowid='id'
	);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	// The audit log is created separately so a wiped or pre-audit database
	// still opens; readers fall back to an empty log when the table is
	// missing (first-boot resilience).
	auditSchema := `
	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		edge_id TEXT NOT NULL,              -- no FK: entries must survive edge deletion
		action TEXT NOT NULL,
		blocked INTEGER NOT NULL DEFAULT 0,
		reason TEXT,
		actor TEXT NOT NULL DEFAULT 'system',
		properties TEXT,                    -- edge snapshot at decision time
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_edge ON audit_log(edge_id);
	CREATE INDEX IF NOT EXISTS idx_audit_project ON audit_log(project_id);
	`
	if _, err := s.db.Exec(auditSchema); err != nil {
		return fmt.Errorf("create audit schema: %w", err)
	}

	// SQLite has no IF NOT EXISTS for triggers; check sqlite_master first.
	triggers := []struct {
		name string
		sql  string
	}{
		{
			name: "insights_fts_ai",
			sql: `CREATE TRIGGER insights_fts_ai AFTER INSERT ON insights BEGIN
				INSERT INTO insights_fts(rowid, content, project_id)
				VALUES (NEW.id, NEW.content, NEW.project_id);
			END`,
		},
		{
			name: "insights_fts_ad",
			sql: `CREATE TRIGGER insights_fts_ad AFTER DELETE ON insights BEGIN
				INSERT INTO insights_fts(insights_fts, rowid, content, project_id)
				VALUES('delete', OLD.id, OLD.content, OLD.project_id);
			END`,
		},
		{
			name: "insights_fts_au",
			sql: `CREATE TRIGGER insights_fts_au AFTER UPDATE ON insights BEGIN
				INSERT INTO insights_fts(insights_fts, rowid, content, project_id)
				VALUES('delete', OLD.id, OLD.content, OLD.project_id);
				INSERT INTO insights_fts(rowid, content, project_id)
				VALUES (NEW.id, NEW.content, NEW.project_id);
			END`,
		},
	}

	for _, t := range triggers {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='trigger' AND name=?", t.name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check trigger %s: %w", t.name, err)
		}
		if count == 0 {
			if _, err := s.db.Exec(t.sql); err != nil {
				return fmt.Errorf("create trigger %s: %w", t.name, err)
			}
		}
	}

	// Column migrations for databases created by earlier builds.
	migrations := []struct {
		table  string
		column string
		ddl    string
	}{
		{"edges", "modified_at", "ALTER TABLE edges ADD COLUMN modified_at TEXT"},
		{"insights", "metadata", "ALTER TABLE insights ADD COLUMN metadata TEXT"},
		{"nuance_reviews", "resolution", "ALTER TABLE nuance_reviews ADD COLUMN resolution TEXT"},
	}
	for _, m := range migrations {
		exists, err := s.columnExists(m.table, m.column)
		if err != nil {
			return err
		}
		if !exists {
			if _, err := s.db.Exec(m.ddl); err != nil {
				if !strings.Contains(err.Error(), "duplicate column") {
					return fmt.Errorf("migration %s.%s: %w", m.table, m.column, err)
				}
			}
		}
	}

	return nil
}

// columnExists inspects PRAGMA table_info for a column.
func (s *SQLiteStore) columnExists(table, column string) (bool, error) {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("table_info %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt any
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			continue
		}
		if name == column {
			return true, nil
		}
	}
	return false, checkRowsErr(rows)
}

// SetPoolSize adjusts the connection pool bound. Values below 1 keep the
// default.
func (s *SQLiteStore) SetPoolSize(n int) {
	if n > 0 {
		s.db.SetMaxOpenConns(n)
	}
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path ("" for in-memory stores).
func (s *SQLiteStore) Path() string {
	if s.path == ":memory:" {
		return ""
	}
	return s.path
}

// DB exposes the raw handle for integrity checks in the doctor command.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// projectFrom reads the tenant off the context. Every store method calls
// this first; running without a project is a programming error upstream and
// surfaces as a storage error, not silent cross-tenant access.
func projectFrom(ctx context.Context) (string, error) {
	id, err := project.FromContext(ctx)
	if err != nil {
		return "", fmt.Errorf("storage requires a project: %w", err)
	}
	return id, nil
}

// runInTx wraps fn in a transaction: commit on nil return, rollback on
// error. Multi-statement operations (archive+delete, delete+audit) use it.
func (s *SQLiteStore) runInTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// runReadOnly wraps fn in a read-only transaction.
func (s *SQLiteStore) runReadOnly(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("begin read transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	return fn(tx)
}

// timeNow is stubbed in tests that need deterministic access ordering.
var timeNow = time.Now

// nowRFC3339 renders the canonical timestamp used across all tables.
func nowRFC3339() string {
	return timeNow().UTC().Format(time.RFC3339)
}

// parseTime reads an RFC3339 column; empty or malformed yields the zero time.
func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// === Embedding Helpers ===

// Embeddings persist as little-endian float32 BLOBs: 4 bytes per dimension,
// no header. A 1536-dim vector is 6144 bytes.

func float32SliceToBytes(floats []float32) []byte {
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		bits := *(*uint32)(unsafe.Pointer(&f))
		buf[i*4] = byte(bits)
		buf[i*4+1] = byte(bits >> 8)
		buf[i*4+2] = byte(bits >> 16)
		buf[i*4+3] = byte(bits >> 24)
	}
	return buf
}

func bytesToFloat32Slice(buf []byte) []float32 {
	floats := make([]float32, len(buf)/4)
	for i := range floats {
		bits := uint32(buf[i*4]) | uint32(buf[i*4+1])<<8 | uint32(buf[i*4+2])<<16 | uint32(buf[i*4+3])<<24
		floats[i] = *(*float32)(unsafe.Pointer(&bits))
	}
	return floats
}
