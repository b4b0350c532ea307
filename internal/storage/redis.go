package storage

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
)

// submitRetries bounds the WATCH/EXEC retry loop before degrading to an
// unconditional write
const submitRetries = 4

// RedisStore is the connection-oriented tier backed by a go-redis client
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis using a connection URL and verifies the
// connection with a PING.
func NewRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("error parsing redis URL: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("error pinging redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// Kind identifies the redis tier
func (s *RedisStore) Kind() string { return "redis" }

// Ping probes the connection
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Get returns the value for key
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

// Set unconditionally writes key
func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	return s.client.Set(ctx, key, value, 0).Err()
}

// SetNX writes key only if absent
func (s *RedisStore) SetNX(ctx context.Context, key string, value []byte) (bool, error) {
	return s.client.SetNX(ctx, key, value, 0).Result()
}

// SetXX writes key only if present
func (s *RedisStore) SetXX(ctx context.Context, key string, value []byte) (bool, error) {
	return s.client.SetXX(ctx, key, value, 0).Result()
}

// Update performs an optimistic WATCH/MULTI/EXEC read-modify-write. A
// conflicting concurrent writer aborts the EXEC; the attempt is retried up
// to submitRetries times, then falls back to an unconditional write so the
// caller's update is not lost outright. The fallback accepts a small risk of
// overwriting a concurrent update under heavy contention.
func (s *RedisStore) Update(ctx context.Context, key string, fn UpdateFunc) error {
	txn := func(tx *redis.Tx) error {
		old, err := tx.Get(ctx, key).Bytes()
		found := true
		if errors.Is(err, redis.Nil) {
			old, found = nil, false
		} else if err != nil {
			return err
		}

		next, err := fn(old, found)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, 0)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < submitRetries; attempt++ {
		err := s.client.Watch(ctx, txn, key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}

	log.Printf("Warning: redis update on %s conflicted %d times, falling back to unconditional write", key, submitRetries)

	old, found, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	next, err := fn(old, found)
	if err != nil {
		return err
	}
	return s.Set(ctx, key, next)
}

// List enumerates keys under prefix with a cursor-based SCAN loop
func (s *RedisStore) List(ctx context.Context, prefix string) (map[string][]byte, error) {
	out := make(map[string][]byte)
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, prefix+"*", 100).Result()
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			val, err := s.client.Get(ctx, k).Bytes()
			if errors.Is(err, redis.Nil) {
				continue // deleted between SCAN and GET
			}
			if err != nil {
				return nil, err
			}
			out[k] = val
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return out, nil
}

// Close closes the client connection pool
func (s *RedisStore) Close() {
	s.client.Close()
}
