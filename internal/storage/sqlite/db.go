// Package sqlite stores snapshots and crawl runs in a single SQLite file for
// local development and the CLI.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

const (
	// Fixed width so TEXT columns sort chronologically.
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
	dayLayout  = "2006-01-02"
)

// Open opens (or creates) the database at path and applies the schema. Use
// ":memory:" for an ephemeral database.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("storage.sqlite_path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return db, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

func parseNullTime(s sql.NullString, layout string) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(layout, s.String, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("parse timestamp %q: %w", s.String, err)
	}
	return &t, nil
}
