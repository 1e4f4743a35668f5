package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS cache_entries (
		key       TEXT PRIMARY KEY,
		data      TEXT NOT NULL,
		stored_at INTEGER NOT NULL
	)
`

// SQLiteMirror persists cache entries in a local SQLite database file.
type SQLiteMirror struct {
	db *sql.DB
}

// OpenSQLiteMirror opens (or creates) the database at path and ensures the schema.
// Use ":memory:" for a throwaway database.
func OpenSQLiteMirror(ctx context.Context, path string) (*SQLiteMirror, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	// A single connection serializes writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create cache_entries: %w", err)
	}

	return &SQLiteMirror{db: db}, nil
}

// Close closes the underlying database.
func (m *SQLiteMirror) Close() error {
	return m.db.Close()
}

// Name implements Mirror.
func (m *SQLiteMirror) Name() string {
	return "sqlite"
}

// Load implements Mirror.
func (m *SQLiteMirror) Load(ctx context.Context, key string) (*Entry, error) {
	var (
		data     string
		storedAt int64
	)

	err := m.db.QueryRowContext(ctx,
		`SELECT data, stored_at FROM cache_entries WHERE key = ?`, key,
	).Scan(&data, &storedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return &Entry{Data: []byte(data), Timestamp: storedAt}, nil
}

// Save implements Mirror.
func (m *SQLiteMirror) Save(ctx context.Context, key string, entry Entry, _ time.Duration) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO cache_entries (key, data, stored_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET data = excluded.data, stored_at = excluded.stored_at
	`, key, string(entry.Data), entry.Timestamp)
	return err
}

// Clear implements Mirror. Keys contain '_', so LIKE is avoided.
func (m *SQLiteMirror) Clear(ctx context.Context, prefix string) error {
	_, err := m.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE substr(key, 1, length(?1)) = ?1`, prefix)
	return err
}
