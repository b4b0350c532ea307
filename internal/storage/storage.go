package storage

import (
	"context"
	"errors"
)

// ErrNoBackend indicates that no storage backend is configured or reachable
var ErrNoBackend = errors.New("no storage backend available")

// UpdateFunc transforms the current value of a key into its next value.
// found is false when the key does not exist yet. Returning an error aborts
// the update without writing.
type UpdateFunc func(old []byte, found bool) ([]byte, error)

// Store is the contract every backend tier satisfies. Tiers differ in
// durability and in the concurrency primitive backing Update: Redis uses
// WATCH/MULTI/EXEC with bounded retries, Postgres a row lock inside a
// transaction, the REST tier a plain read-modify-write with no conflict
// detection, and the in-memory tier a mutex.
type Store interface {
	// Kind identifies the backend tier ("redis", "restkv", "postgres", "memory")
	Kind() string

	// Ping probes liveness
	Ping(ctx context.Context) error

	// Get returns the value for key, with found=false when absent
	Get(ctx context.Context, key string) (value []byte, found bool, err error)

	// Set unconditionally writes key
	Set(ctx context.Context, key string, value []byte) error

	// SetNX writes key only if absent, reporting whether the write happened
	SetNX(ctx context.Context, key string, value []byte) (bool, error)

	// SetXX writes key only if present, reporting whether the write happened
	SetXX(ctx context.Context, key string, value []byte) (bool, error)

	// Update applies a read-modify-write of key using the tier's concurrency primitive
	Update(ctx context.Context, key string, fn UpdateFunc) error

	// List returns all key/value pairs under a key prefix
	List(ctx context.Context, prefix string) (map[string][]byte, error)

	// Close releases the backend's resources
	Close()
}
