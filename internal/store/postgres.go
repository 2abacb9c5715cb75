package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

const createCollectionsTable = `
	CREATE TABLE IF NOT EXISTS collections (
		name TEXT PRIMARY KEY,
		doc  JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`

// PostgresStore keeps each collection as a single JSONB row, preserving the
// read-all/write-all contract while letting the durable partition live in
// Postgres instead of on local disk.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore connects and ensures the collections table exists.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if _, err := db.Exec(createCollectionsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure collections table: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// Read returns the document for name, or nil when absent.
func (s *PostgresStore) Read(ctx context.Context, name string) ([]byte, error) {
	var doc []byte
	err := s.db.GetContext(ctx, &doc, `SELECT doc FROM collections WHERE name = $1`, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read collection %s: %w", name, err)
	}
	return doc, nil
}

// Write upserts the document for name.
func (s *PostgresStore) Write(ctx context.Context, name string, doc []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO collections (name, doc, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()`,
		name, doc,
	)
	if err != nil {
		return fmt.Errorf("failed to write collection %s: %w", name, err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
