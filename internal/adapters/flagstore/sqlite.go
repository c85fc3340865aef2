// Package flagstore persists keyed flags in SQLite.
package flagstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/okian/pitchrank/internal/domain/flags"
	"github.com/okian/pitchrank/pkg/metrics"
)

const storeLabel = "sqlite"

const schema = `
CREATE TABLE IF NOT EXISTS flags (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`

// SQLite implements flags.Store on a single table.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

var _ flags.Store = (*SQLite)(nil)

// Open opens or creates the database at path and ensures the schema.
func Open(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		return nil, ErrNoPath
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One writer keeps SeenAndRecord race free and ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("applying pragma %q: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLite{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Get returns the value stored under key.
func (s *SQLite) Get(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, flags.ErrEmptyKey
	}
	metrics.RecordFlagOperation("get", storeLabel)
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM flags WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading flag %s: %w", key, err)
	}
	return value, true, nil
}

// Set stores value under key.
func (s *SQLite) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return flags.ErrEmptyKey
	}
	metrics.RecordFlagOperation("set", storeLabel)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO flags (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, s.now().Unix())
	if err != nil {
		return fmt.Errorf("writing flag %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *SQLite) Delete(ctx context.Context, key string) error {
	if key == "" {
		return flags.ErrEmptyKey
	}
	metrics.RecordFlagOperation("delete", storeLabel)
	if _, err := s.db.ExecContext(ctx, `DELETE FROM flags WHERE key = ?`, key); err != nil {
		return fmt.Errorf("deleting flag %s: %w", key, err)
	}
	return nil
}

// SeenAndRecord inserts key unless it exists and reports whether it did.
func (s *SQLite) SeenAndRecord(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, flags.ErrEmptyKey
	}
	metrics.RecordFlagOperation("seen_and_record", storeLabel)
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO flags (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO NOTHING
	`, key, flags.ValueSeen, s.now().Unix())
	if err != nil {
		return false, fmt.Errorf("recording flag %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("recording flag %s: %w", key, err)
	}
	return n == 0, nil
}

// Size returns the number of stored flags.
func (s *SQLite) Size(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM flags`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting flags: %w", err)
	}
	return n, nil
}
