package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"storefront/internal/storage"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	key        TEXT PRIMARY KEY,
	payload    JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS order_records (
	order_id    TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL,
	user_id     TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	total       NUMERIC(12, 2) NOT NULL,
	payload     JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS order_records_user_idx ON order_records (user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS order_records_session_idx ON order_records (session_id, created_at DESC);

CREATE TABLE IF NOT EXISTS processed_events (
	event_id     TEXT PRIMARY KEY,
	event_type   TEXT NOT NULL,
	processed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// NewFromDB wraps an existing connection
func NewFromDB(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the tables used by the storefront if missing
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Ping checks the connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Get retrieves a snapshot by key
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var payload []byte
	err := s.db.GetContext(ctx, &payload, "SELECT payload FROM snapshots WHERE key = $1", key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// Set upserts a snapshot
func (s *Store) Set(ctx context.Context, key string, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots (key, payload) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET payload = EXCLUDED.payload, updated_at = NOW()`,
		key, data)
	return err
}

// Delete removes a snapshot
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM snapshots WHERE key = $1", key)
	return err
}

// AppendRecord appends to a record array within a transaction (FOR UPDATE lock)
func (s *Store) AppendRecord(ctx context.Context, key string, version int, record []byte) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var existing []byte
	err = tx.GetContext(ctx, &existing,
		"SELECT payload FROM snapshots WHERE key = $1 FOR UPDATE", key)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to lock snapshot: %w", err)
	}

	updated, err := storage.AppendToEnvelope(existing, version, record)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO snapshots (key, payload) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET payload = EXCLUDED.payload, updated_at = NOW()`,
		key, updated)
	if err != nil {
		return fmt.Errorf("failed to append record: %w", err)
	}

	return tx.Commit()
}
