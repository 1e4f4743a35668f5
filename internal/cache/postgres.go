package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS cache_entries (
		key       TEXT PRIMARY KEY,
		data      JSONB NOT NULL,
		stored_at TIMESTAMPTZ NOT NULL
	)
`

// PostgresMirror persists cache entries in the cache_entries table.
type PostgresMirror struct {
	pool *pgxpool.Pool
}

// NewPostgresMirror creates a mirror backed by a PostgreSQL pool.
func NewPostgresMirror(pool *pgxpool.Pool) *PostgresMirror {
	return &PostgresMirror{pool: pool}
}

// EnsureSchema creates the cache_entries table if it does not exist.
func (m *PostgresMirror) EnsureSchema(ctx context.Context) error {
	if _, err := m.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("create cache_entries: %w", err)
	}
	return nil
}

// Name implements Mirror.
func (m *PostgresMirror) Name() string {
	return "postgres"
}

// Load implements Mirror.
func (m *PostgresMirror) Load(ctx context.Context, key string) (*Entry, error) {
	query := `
		SELECT data, stored_at
		FROM cache_entries
		WHERE key = $1
	`

	var (
		data     []byte
		storedAt time.Time
	)

	err := m.pool.QueryRow(ctx, query, key).Scan(&data, &storedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return &Entry{Data: data, Timestamp: storedAt.UnixMilli()}, nil
}

// Save implements Mirror. Postgres has no native expiry; staleness is decided by the store.
func (m *PostgresMirror) Save(ctx context.Context, key string, entry Entry, _ time.Duration) error {
	query := `
		INSERT INTO cache_entries (key, data, stored_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET
			data = EXCLUDED.data,
			stored_at = EXCLUDED.stored_at
	`

	_, err := m.pool.Exec(ctx, query, key, []byte(entry.Data), time.UnixMilli(entry.Timestamp).UTC())
	return err
}

// Clear implements Mirror.
func (m *PostgresMirror) Clear(ctx context.Context, prefix string) error {
	_, err := m.pool.Exec(ctx, `DELETE FROM cache_entries WHERE starts_with(key, $1)`, prefix)
	return err
}
