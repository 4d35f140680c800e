package storage

import (
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS check_results (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    check_id    TEXT    NOT NULL,
    run_id      TEXT    NOT NULL DEFAULT '',
    status      TEXT    NOT NULL,
    message     TEXT    NOT NULL DEFAULT '',
    details     TEXT,
    executed_at TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_check_results_executed_at ON check_results(executed_at DESC, id DESC);
CREATE INDEX IF NOT EXISTS idx_check_results_check_executed ON check_results(check_id, executed_at DESC, id DESC);

CREATE TABLE IF NOT EXISTS connection_profiles (
    name                       TEXT PRIMARY KEY,
    driver                     TEXT NOT NULL,
    connection_string_template TEXT NOT NULL,
    connection_type            TEXT DEFAULT 'database',
    secret_ref                 TEXT
);

CREATE TABLE IF NOT EXISTS secrets (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS data_sources (
    name            TEXT PRIMARY KEY,
    connection_name TEXT    NOT NULL,
    secret_key      TEXT    NOT NULL,
    is_valid        BOOLEAN NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS unix_groups (
    group_name  TEXT PRIMARY KEY,
    file_path   TEXT NOT NULL,
    permissions TEXT NOT NULL
);
`

// timeLayout is fixed width so that lexical order of the stored text matches
// chronological order. Values are always written in UTC.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// DB wraps a SQLite database holding check results and configuration entities.
type DB struct {
	db *sql.DB
}

// pragmas are applied by the driver on every new pooled connection.
var pragmas = []string{
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"cache_size(5000)",
	"busy_timeout(5000)",
}

// dsn appends the connection pragmas to path as _pragma query parameters.
func dsn(path string) string {
	q := url.Values{}
	for _, p := range pragmas {
		q.Add("_pragma", p)
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + q.Encode()
}

// Open opens (or creates) the SQLite database at path and applies the schema.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("opening sqlite at %q: %w", path, err)
	}
	// Every pooled connection to :memory: would otherwise get its own empty database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// Fallback for rows written by other tools.
		t, err = time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
		}
	}
	return t.UTC(), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
