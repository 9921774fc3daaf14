package memory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/engramlabs/engram/internal/util"
)

// InsertEpisode persists one query/reward/reflection tuple.
func (s *SQLiteStore) InsertEpisode(ctx context.Context, ep *Episode) (int64, error) {
	proj, err := projectFrom(ctx)
	if err != nil {
		return 0, err
	}

	tagsJSON, err := marshalStringList(ep.Tags)
	if err != nil {
		return 0, err
	}
	metaJSON, err := marshalMetadata(ep.Metadata)
	if err != nil {
		return 0, err
	}

	var embedding any
	if len(ep.Embedding) > 0 {
		embedding = float32SliceToBytes(ep.Embedding)
	}
	if ep.CreatedAt.IsZero() {
		ep.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO episodes (project_id, query, reward, reflection, embedding, tags, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		proj, ep.Query, ep.Reward, ep.Reflection, embedding, tagsJSON, metaJSON,
		ep.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("insert episode: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("episode id: %w", err)
	}
	ep.ID = id
	ep.ProjectID = proj
	return id, nil
}

// ListEpisodes returns the newest episodes with embeddings loaded, bounded
// by limit. Analogical recall ranks them by cosine in the tier layer.
func (s *SQLiteStore) ListEpisodes(ctx context.Context, limit int) ([]Episode, error) {
	proj, err := projectFrom(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, query, reward, reflection, embedding, tags, metadata, created_at
		 FROM episodes WHERE project_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`, proj, limit)
	if err != nil {
		return nil, fmt.Errorf("list episodes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Episode
	for rows.Next() {
		var ep Episode
		var blob []byte
		var tags, metadata sql.NullString
		var createdAt string
		if err := rows.Scan(&ep.ID, &ep.ProjectID, &ep.Query, &ep.Reward, &ep.Reflection,
			&blob, &tags, &metadata, &createdAt); err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		if len(blob) > 0 {
			ep.Embedding = bytesToFloat32Slice(blob)
		}
		ep.Tags = unmarshalStringList(nullString(tags))
		ep.Metadata = unmarshalMetadata(nullString(metadata))
		ep.CreatedAt = parseTime(createdAt)
		out = append(out, ep)
	}
	return out, checkRowsErr(rows)
}

// DialogueFilter narrows raw-dialogue reads.
type DialogueFilter struct {
	SessionID string
	From      time.Time
	To        time.Time
	Limit     int
}

// InsertDialogue appends one raw-dialogue row (L0). Rows are never updated
// or deleted by the service.
func (s *SQLiteStore) InsertDialogue(ctx context.Context, d *DialogueEntry) (string, error) {
	proj, err := projectFrom(ctx)
	if err != nil {
		return "", err
	}

	metaJSON, err := marshalMetadata(d.Metadata)
	if err != nil {
		return "", err
	}
	if d.ID == "" {
		d.ID = util.NewID(util.DialoguePrefix)
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO raw_dialogue (id, project_id, session_id, speaker, content, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.ID, proj, d.SessionID, d.Speaker, d.Content, metaJSON,
		d.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return "", fmt.Errorf("insert dialogue: %w", err)
	}
	d.ProjectID = proj
	return d.ID, nil
}

// GetDialogueEntry loads one raw-dialogue row by id. Missing id → ErrNotFound.
func (s *SQLiteStore) GetDialogueEntry(ctx context.Context, id string) (*DialogueEntry, error) {
	proj, err := projectFrom(ctx)
	if err != nil {
		return nil, err
	}

	var d DialogueEntry
	var metadata sql.NullString
	var createdAt string
	err = s.db.QueryRowContext(ctx,
		`SELECT id, project_id, session_id, speaker, content, metadata, created_at
		 FROM raw_dialogue WHERE project_id = ? AND id = ?`, proj, id).
		Scan(&d.ID, &d.ProjectID, &d.SessionID, &d.Speaker, &d.Content, &metadata, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get dialogue entry: %w", err)
	}
	d.Metadata = unmarshalMetadata(nullString(metadata))
	d.CreatedAt = parseTime(createdAt)
	return &d, nil
}

// ListDialogue reads raw-dialogue rows matching the filter, newest first.
func (s *SQLiteStore) ListDialogue(ctx context.Context, f DialogueFilter) ([]DialogueEntry, error) {
	proj, err := projectFrom(ctx)
	if err != nil {
		return nil, err
	}
	if f.Limit <= 0 {
		f.Limit = 50
	}

	query := `SELECT id, project_id, session_id, speaker, content, metadata, created_at
	          FROM raw_dialogue WHERE project_id = ?`
	args := []any{proj}
	if f.SessionID != "" {
		query += ` AND session_id = ?`
		args = append(args, f.SessionID)
	}
	if !f.From.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, f.From.UTC().Format(time.RFC3339))
	}
	if !f.To.IsZero() {
		query += ` AND created_at <= ?`
		args = append(args, f.To.UTC().Format(time.RFC3339))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, f.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list dialogue: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []DialogueEntry
	for rows.Next() {
		var d DialogueEntry
		var metadata sql.NullString
		var createdAt string
		if err := rows.Scan(&d.ID, &d.ProjectID, &d.SessionID, &d.Speaker, &d.Content,
			&metadata, &createdAt); err != nil {
			return nil, fmt.Errorf("scan dialogue: %w", err)
		}
		d.Metadata = unmarshalMetadata(nullString(metadata))
		d.CreatedAt = parseTime(createdAt)
		out = append(out, d)
	}
	return out, checkRowsErr(rows)
}
