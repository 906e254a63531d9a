package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// schema contains the DDL executed on open. Using IF NOT EXISTS makes it
// safe to run on every startup.
const schema = `
CREATE TABLE IF NOT EXISTS summaries (
    content_hash TEXT PRIMARY KEY,
    summary      TEXT NOT NULL,
    created_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// SQLite is a Store backed by a local SQLite database in WAL mode.
type SQLite struct {
	db   *sql.DB
	path string
}

var _ Store = (*SQLite)(nil)

// Open opens (or creates) the cache database at path. Any failure is
// returned as an *IOError so callers can fall back to Disabled.
func Open(ctx context.Context, path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &IOError{Op: "create directory", Err: err}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &IOError{Op: "open database", Err: err}
	}

	// SQLite has a single writer; one connection serializes writes to the
	// same key without relying on busy retries.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, &IOError{Op: "enable WAL mode", Err: err}
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, &IOError{Op: "set busy timeout", Err: err}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, &IOError{Op: "create schema", Err: err}
	}

	return &SQLite{db: db, path: path}, nil
}

// Path returns the database file location.
func (s *SQLite) Path() string { return s.path }

// Get returns the summary stored under hash.
func (s *SQLite) Get(ctx context.Context, hash string) (string, bool, error) {
	var summary string
	err := s.db.QueryRowContext(ctx,
		"SELECT summary FROM summaries WHERE content_hash = ?", hash).Scan(&summary)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, &IOError{Op: fmt.Sprintf("get %s", hash), Err: err}
	}
	return summary, true, nil
}

// Put stores summary under hash. An existing entry is left untouched, so
// concurrent writers for the same content converge on one row.
func (s *SQLite) Put(ctx context.Context, hash, summary string) error {
	const q = `
		INSERT INTO summaries (content_hash, summary)
		VALUES (?, ?)
		ON CONFLICT(content_hash) DO NOTHING`
	if _, err := s.db.ExecContext(ctx, q, hash, summary); err != nil {
		return &IOError{Op: fmt.Sprintf("put %s", hash), Err: err}
	}
	return nil
}

// Delete removes the entry for hash and reports whether one existed.
func (s *SQLite) Delete(ctx context.Context, hash string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM summaries WHERE content_hash = ?", hash)
	if err != nil {
		return false, &IOError{Op: fmt.Sprintf("delete %s", hash), Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, &IOError{Op: "rows affected", Err: err}
	}
	return n > 0, nil
}

// Clear removes every entry and returns how many were deleted.
func (s *SQLite) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM summaries")
	if err != nil {
		return 0, &IOError{Op: "clear", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &IOError{Op: "rows affected", Err: err}
	}
	return n, nil
}

// Stats reports the entry count and total summary size.
func (s *SQLite) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(LENGTH(summary)), 0) FROM summaries").
		Scan(&st.Entries, &st.SummaryBytes)
	if err != nil {
		return Stats{}, &IOError{Op: "stats", Err: err}
	}
	return st, nil
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	if err := s.db.Close(); err != nil {
		return &IOError{Op: "close", Err: err}
	}
	return nil
}
