package store

import (
	"context"
	"database/sql"
	"errors"
)

// Postgres persists KV entries in a single table. Each key holds one whole
// collection, mirroring the write-full-collection discipline of the
// in-browser store this replaces.
type Postgres struct {
	db *sql.DB
}

// NewPostgres creates the KV table if needed and returns the store.
func NewPostgres(ctx context.Context, db *sql.DB) (*Postgres, error) {
	if db == nil {
		return nil, errors.New("nil db handle")
	}
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS kv_entries (
			key        TEXT PRIMARY KEY,
			value      JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

// Get returns the stored value for key, or (nil, nil) when absent.
func (p *Postgres) Get(ctx context.Context, key string) ([]byte, error) {
	row := p.db.QueryRowContext(ctx, `SELECT value FROM kv_entries WHERE key = $1`, key)
	var val []byte
	if err := row.Scan(&val); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return val, nil
}

// Set overwrites the value for key.
func (p *Postgres) Set(ctx context.Context, key string, value []byte) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO kv_entries (key, value)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = NOW()
	`, key, value)
	return err
}
