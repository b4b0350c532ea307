package storage

import (
	"context"
	"log"
	"os"
	"sync"
)

// Config holds the connection knobs for every backend tier. An empty field
// means the tier is not configured and is skipped during selection.
type Config struct {
	RedisURL       string
	RestURL        string
	RestToken      string
	PostgresURL    string
	MemoryFallback bool
}

// ConfigFromEnv reads the backend configuration from the environment
func ConfigFromEnv() Config {
	return Config{
		RedisURL:       os.Getenv("REDIS_URL"),
		RestURL:        os.Getenv("KV_REST_API_URL"),
		RestToken:      os.Getenv("KV_REST_API_TOKEN"),
		PostgresURL:    os.Getenv("DATABASE_URL"),
		MemoryFallback: true,
	}
}

// Selector resolves the process's storage backend exactly once. The first
// caller triggers the probe chain; concurrent callers block on the same
// resolution. The result is never re-probed, even if the backend becomes
// unreachable later — that surfaces as per-operation errors instead.
type Selector struct {
	cfg   Config
	once  sync.Once
	store Store
	err   error
}

// NewSelector creates a selector for the given configuration
func NewSelector(cfg Config) *Selector {
	return &Selector{cfg: cfg}
}

// Resolve returns the selected backend, probing tiers in preference order
// (redis, REST KV, postgres, memory) on first call.
func (s *Selector) Resolve(ctx context.Context) (Store, error) {
	s.once.Do(func() {
		s.store, s.err = s.resolve(ctx)
	})
	return s.store, s.err
}

// ResolveDurable is Resolve restricted to durable tiers. The in-memory
// fallback does not count: subsystems with ownership or ranking semantics
// must fail as unavailable rather than hand out volatile state.
func (s *Selector) ResolveDurable(ctx context.Context) (Store, error) {
	store, err := s.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	if store.Kind() == "memory" {
		return nil, ErrNoBackend
	}
	return store, nil
}

// resolve probes each configured tier and returns the first live one
func (s *Selector) resolve(ctx context.Context) (Store, error) {
	if s.cfg.RedisURL != "" {
		store, err := NewRedisStore(ctx, s.cfg.RedisURL)
		if err == nil {
			log.Println("Storage backend: redis")
			return store, nil
		}
		log.Printf("Warning: redis backend not available: %v", err)
	}

	if s.cfg.RestURL != "" && s.cfg.RestToken != "" {
		store, err := NewRestKVStore(ctx, s.cfg.RestURL, s.cfg.RestToken)
		if err == nil {
			log.Println("Storage backend: REST KV")
			return store, nil
		}
		log.Printf("Warning: REST KV backend not available: %v", err)
	}

	if s.cfg.PostgresURL != "" {
		store, err := NewPostgresStore(ctx, s.cfg.PostgresURL)
		if err == nil {
			log.Println("Storage backend: postgres")
			return store, nil
		}
		log.Printf("Warning: postgres backend not available: %v", err)
	}

	if s.cfg.MemoryFallback {
		log.Println("Warning: no storage backend configured, falling back to in-memory (data will not survive a restart)")
		return NewMemoryStore(), nil
	}

	return nil, ErrNoBackend
}

// Close releases the resolved backend, if any
func (s *Selector) Close() {
	if s.store != nil {
		s.store.Close()
	}
}
