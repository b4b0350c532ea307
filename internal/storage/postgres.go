package storage

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is the relational tier, a key/value table on a pgx pool
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to PostgreSQL and idempotently ensures the
// required table exists before first use.
func NewPostgresStore(ctx context.Context, dbURL string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("error parsing database URL: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("error pinging database: %w", err)
	}

	store := &PostgresStore{pool: pool}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("error initializing schema: %w", err)
	}

	log.Println("Connected to PostgreSQL database")
	return store, nil
}

// initSchema creates the necessary table
func (s *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS kv_entries (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`

	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Kind identifies the postgres tier
func (s *PostgresStore) Kind() string { return "postgres" }

// Ping probes the pool
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Get returns the value for key
func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM kv_entries WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(value), true, nil
}

// Set unconditionally writes key
func (s *PostgresStore) Set(ctx context.Context, key string, value []byte) error {
	query := `
		INSERT INTO kv_entries (key, value, updated_at)
		VALUES ($1, $2, CURRENT_TIMESTAMP)
		ON CONFLICT (key) DO UPDATE SET value = $2, updated_at = CURRENT_TIMESTAMP
	`
	_, err := s.pool.Exec(ctx, query, key, string(value))
	return err
}

// SetNX writes key only if absent
func (s *PostgresStore) SetNX(ctx context.Context, key string, value []byte) (bool, error) {
	query := `
		INSERT INTO kv_entries (key, value)
		VALUES ($1, $2)
		ON CONFLICT (key) DO NOTHING
	`
	tag, err := s.pool.Exec(ctx, query, key, string(value))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// SetXX writes key only if present
func (s *PostgresStore) SetXX(ctx context.Context, key string, value []byte) (bool, error) {
	query := `UPDATE kv_entries SET value = $2, updated_at = CURRENT_TIMESTAMP WHERE key = $1`
	tag, err := s.pool.Exec(ctx, query, key, string(value))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Update applies fn inside a transaction holding a row lock on key, so
// concurrent updates serialize instead of conflicting.
func (s *PostgresStore) Update(ctx context.Context, key string, fn UpdateFunc) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var value string
	found := true
	err = tx.QueryRow(ctx, `SELECT value FROM kv_entries WHERE key = $1 FOR UPDATE`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		found = false
	} else if err != nil {
		return err
	}

	var old []byte
	if found {
		old = []byte(value)
	}
	next, err := fn(old, found)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO kv_entries (key, value, updated_at)
		VALUES ($1, $2, CURRENT_TIMESTAMP)
		ON CONFLICT (key) DO UPDATE SET value = $2, updated_at = CURRENT_TIMESTAMP
	`
	if _, err := tx.Exec(ctx, query, key, string(next)); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// List returns all key/value pairs under prefix
func (s *PostgresStore) List(ctx context.Context, prefix string) (map[string][]byte, error) {
	rows, err := s.pool.Query(ctx, `SELECT key, value FROM kv_entries WHERE key LIKE $1 || '%'`, prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		out[key] = []byte(value)
	}
	return out, rows.Err()
}

// Close closes the database connection pool
func (s *PostgresStore) Close() {
	s.pool.Close()
}
