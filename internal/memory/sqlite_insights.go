package memory

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// TierFilter narrows insight reads before scoring. Date bounds are
// inclusive; zero times mean unbounded. Tags match contains-any.
type TierFilter struct {
	Tags     []string
	DateFrom time.Time
	DateTo   time.Time
}

// MatchesTags reports whether row tags intersect the filter set.
func (f TierFilter) MatchesTags(rowTags []string) bool {
	if len(f.Tags) == 0 {
		return true
	}
	for _, want := range f.Tags {
		for _, have := range rowTags {
			if want == have {
				return true
			}
		}
	}
	return false
}

// dateConditions renders the inclusive created_at range. RFC3339 UTC strings
// sort lexicographically, so plain comparisons are correct.
func (f TierFilter) dateConditions() (string, []any) {
	var conds []string
	var args []any
	if !f.DateFrom.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, f.DateFrom.UTC().Format(time.RFC3339))
	}
	if !f.DateTo.IsZero() {
		conds = append(conds, "created_at <= ?")
		args = append(args, f.DateTo.UTC().Format(time.RFC3339))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " AND " + strings.Join(conds, " AND "), args
}

// InsertInsight persists a compressed insight and returns its integer id.
// Insights are never mutated afterwards (embedding backfill excepted).
func (s *SQLiteStore) InsertInsight(ctx context.Context, ins *Insight) (int64, error) {
	proj, err := projectFrom(ctx)
	if err != nil {
		return 0, err
	}

	sourceJSON, err := marshalStringList(ins.SourceIDs)
	if err != nil {
		return 0, err
	}
	tagsJSON, err := marshalStringList(ins.Tags)
	if err != nil {
		return 0, err
	}
	metaJSON, err := marshalMetadata(ins.Metadata)
	if err != nil {
		return 0, err
	}

	var embedding any
	if len(ins.Embedding) > 0 {
		embedding = float32SliceToBytes(ins.Embedding)
	}
	if ins.CreatedAt.IsZero() {
		ins.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO insights (project_id, content, embedding, source_ids, memory_strength, metadata, tags, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		proj, ins.Content, embedding, sourceJSON, ins.MemoryStrength, metaJSON, tagsJSON,
		ins.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("insert insight: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insight id: %w", err)
	}
	ins.ID = id
	ins.ProjectID = proj
	return id, nil
}

// GetInsight fetches one insight by id within the current project.
func (s *SQLiteStore) GetInsight(ctx context.Context, id int64) (*Insight, error) {
	proj, err := projectFrom(ctx)
	if err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, insightSelect+` WHERE project_id = ? AND id = ?`, proj, id)
	return scanInsight(row)
}

// GetInsightsByIDs fetches a batch; missing ids are skipped.
func (s *SQLiteStore) GetInsightsByIDs(ctx context.Context, ids []int64) ([]Insight, error) {
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
		insightSelect+` WHERE project_id = ? AND id IN (%s)`, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("query insights by ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Insight
	for rows.Next() {
		ins, err := scanInsightRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ins)
	}
	return out, checkRowsErr(rows)
}

// ListInsights returns the newest insights, bounded by limit.
func (s *SQLiteStore) ListInsights(ctx context.Context, limit int) ([]Insight, error) {
	proj, err := projectFrom(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		insightSelect+` WHERE project_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`, proj, limit)
	if err != nil {
		return nil, fmt.Errorf("list insights: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Insight
	for rows.Next() {
		ins, err := scanInsightRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ins)
	}
	return out, checkRowsErr(rows)
}

// SemanticCandidates loads every embedded insight that survives the filter,
// projected down to what the semantic channel scores. The corpus is scanned
// in full; cosine ranking happens in the retrieval engine.
func (s *SQLiteStore) SemanticCandidates(ctx context.Context, f TierFilter) ([]InsightVector, error) {
	proj, err := projectFrom(ctx)
	if err != nil {
		return nil, err
	}

	dateSQL, dateArgs := f.dateConditions()
	args := append([]any{proj}, dateArgs...)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, embedding, memory_strength, tags FROM insights
		 WHERE project_id = ? AND embedding IS NOT NULL`+dateSQL, args...)
	if err != nil {
		return nil, fmt.Errorf("query semantic candidates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []InsightVector
	for rows.Next() {
		var iv InsightVector
		var blob []byte
		var tags sql.NullString
		if err := rows.Scan(&iv.ID, &blob, &iv.MemoryStrength, &tags); err != nil {
			return nil, fmt.Errorf("scan semantic candidate: %w", err)
		}
		if !f.MatchesTags(unmarshalStringList(nullString(tags))) {
			continue
		}
		iv.Embedding = bytesToFloat32Slice(blob)
		out = append(out, iv)
	}
	return out, checkRowsErr(rows)
}

// SearchInsightsFTS runs the keyword channel: FTS5 match with bm25 ranking
// over insight content. The query is sanitized into an OR of quoted terms;
// an empty sanitized query returns no results rather than erroring.
func (s *SQLiteStore) SearchInsightsFTS(ctx context.Context, query string, limit int, f TierFilter) ([]FTSResult, error) {
	proj, err := projectFrom(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	sanitized := sanitizeFTSQuery(query)
	if sanitized == "" {
		return nil, nil
	}

	dateSQL, dateArgs := f.dateConditions()
	dateSQL = strings.ReplaceAll(dateSQL, "created_at", "i.created_at")
	args := []any{sanitized, proj}
	args = append(args, dateArgs...)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT i.id, i.content, i.tags, bm25(insights_fts) AS rank
		FROM insights_fts f
		JOIN insights i ON i.id = f.rowid
		WHERE insights_fts MATCH ? AND i.project_id = ?`+dateSQL+`
		ORDER BY rank
		LIMIT ?`, args...)
	if err != nil {
		// Common case: FTS table missing on a database restored from a
		// partial backup. Caller degrades the channel.
		return nil, fmt.Errorf("fts search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []FTSResult
	for rows.Next() {
		var r FTSResult
		var tags sql.NullString
		if err := rows.Scan(&r.ID, &r.Content, &tags, &r.Rank); err != nil {
			continue
		}
		if !f.MatchesTags(unmarshalStringList(nullString(tags))) {
			continue
		}
		results = append(results, r)
	}
	return results, checkRowsErr(rows)
}

// InsightsWithoutEmbeddings lists rows the backfill command needs to re-embed.
func (s *SQLiteStore) InsightsWithoutEmbeddings(ctx context.Context) ([]Insight, error) {
	proj, err := projectFrom(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		insightSelect+` WHERE project_id = ? AND (embedding IS NULL OR length(embedding) = 0) ORDER BY id`, proj)
	if err != nil {
		return nil, fmt.Errorf("query unembedded insights: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Insight
	for rows.Next() {
		ins, err := scanInsightRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ins)
	}
	return out, checkRowsErr(rows)
}

// UpdateInsightEmbedding replaces the stored vector for one insight.
func (s *SQLiteStore) UpdateInsightEmbedding(ctx context.Context, id int64, embedding []float32) error {
	proj, err := projectFrom(ctx)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE insights SET embedding = ? WHERE project_id = ? AND id = ?`,
		float32SliceToBytes(embedding), proj, id)
	if err != nil {
		return fmt.Errorf("update insight embedding: %w", err)
	}
	return nil
}

const insightSelect = `SELECT id, project_id, content, embedding, source_ids, memory_strength, metadata, tags, created_at
FROM insights`

func scanInsightFields(sc rowScanner) (*Insight, error) {
	var ins Insight
	var blob []byte
	var sourceIDs, metadata, tags sql.NullString
	var createdAt string
	if err := sc.Scan(&ins.ID, &ins.ProjectID, &ins.Content, &blob, &sourceIDs,
		&ins.MemoryStrength, &metadata, &tags, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan insight: %w", err)
	}
	if len(blob) > 0 {
		ins.Embedding = bytesToFloat32Slice(blob)
	}
	ins.SourceIDs = unmarshalStringList(nullString(sourceIDs))
	ins.Metadata = unmarshalMetadata(nullString(metadata))
	ins.Tags = unmarshalStringList(nullString(tags))
	ins.CreatedAt = parseTime(createdAt)
	return &ins, nil
}

func scanInsight(row *sql.Row) (*Insight, error)      { return scanInsightFields(row) }
func scanInsightRow(rows *sql.Rows) (*Insight, error) { return scanInsightFields(rows) }

// sanitizeFTSQuery prepares user text for FTS5: strips operator characters,
// drops stop words and bare operators, quotes each remaining term, and joins
// with OR so partial matches still recall.
func sanitizeFTSQuery(query string) string {
	if query == "" {
		return ""
	}

	stopWords := map[string]bool{
		"a": true, "an": true, "the": true, "is": true, "are": true,
		"was": true, "were": true, "be": true, "been": true, "being": true,
		"have": true, "has": true, "had": true, "do": true, "does": true,
		"did": true, "will": true, "would": true, "could": true, "should": true,
		"what": true, "which": true, "who": true, "whom": true, "this": true,
		"that": true, "these": true, "those": true, "it": true, "its": true,
		"of": true, "for": true, "with": true, "about": true, "against": true,
		"between": true, "into": true, "through": true, "during": true,
		"before": true, "after": true, "above": true, "below": true, "to": true,
		"from": true, "up": true, "down": true, "in": true, "out": true,
		"on": true, "off": true, "over": true, "under": true, "again": true,
		"how": true, "why": true, "when": true, "where": true,
	}

	replacer := strings.NewReplacer(
		`"`, " ", `^`, " ", `:`, " ", `(`, " ", `)`, " ",
		`{`, " ", `}`, " ", `[`, " ", `]`, " ", `-`, " ", `+`, " ",
		`?`, " ", `!`, " ", `.`, " ", `,`, " ", `;`, " ",
	)
	sanitized := replacer.Replace(strings.ToLower(query))

	words := strings.Fields(sanitized)
	var filtered []string
	for _, word := range words {
		word = strings.TrimSpace(word)
		if len(word) < 2 {
			continue
		}
		if stopWords[word] {
			continue
		}
		upper := strings.ToUpper(word)
		if upper == "OR" || upper == "AND" || upper == "NOT" || upper == "NEAR" {
			continue
		}
		word = strings.ReplaceAll(word, "*", "")
		if word != "" {
			filtered = append(filtered, word)
		}
	}

	if len(filtered) == 0 {
		return ""
	}

	quoted := make([]string, 0, len(filtered))
	for _, w := range filtered {
		quoted = append(quoted, `"`+w+`"`)
	}
	return strings.Join(quoted, " OR ")
}
