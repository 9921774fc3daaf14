package memory

import (
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned by single-row lookups when no row matches.
// Handlers translate it into a structured not_found status, never a crash.
var ErrNotFound = errors.New("memory: not found")

// checkRowsErr surfaces iteration errors that rows.Next() swallows.
// Call after every for rows.Next() loop.
func checkRowsErr(rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows iteration error: %w", err)
	}
	return nil
}

// nullString converts a nullable column to its Go zero value.
func nullString(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// nullableText persists "" as NULL so empty optional columns stay NULL.
func nullableText(s string) any {
	if s == "" {
		return nil
	}
	return s
}
