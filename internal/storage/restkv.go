package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// RestKVStore is the stateless REST tier: every operation is one HTTP call
// carrying a bearer token, against an Upstash-style command endpoint. The
// tier has no transactions, so Update is a plain read-modify-write with no
// conflict detection. Concurrent submissions on this tier can lose updates;
// that is an accepted consistency trade-off, not an oversight.
type RestKVStore struct {
	url    string
	token  string
	client *http.Client
}

// NewRestKVStore creates a REST KV store and verifies it with a PING
func NewRestKVStore(ctx context.Context, url, token string) (*RestKVStore, error) {
	s := &RestKVStore{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	if err := s.Ping(ctx); err != nil {
		return nil, fmt.Errorf("error pinging REST KV: %w", err)
	}
	return s, nil
}

// command executes one redis-protocol command over REST and decodes the result
func (s *RestKVStore) command(ctx context.Context, result any, args ...any) error {
	body, err := json.Marshal(args)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  string          `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("error decoding REST KV response: %w", err)
	}
	if envelope.Error != "" {
		return fmt.Errorf("REST KV error: %s", envelope.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("REST KV status %d", resp.StatusCode)
	}
	if result != nil {
		return json.Unmarshal(envelope.Result, result)
	}
	return nil
}

// Kind identifies the REST tier
func (s *RestKVStore) Kind() string { return "restkv" }

// Ping probes the endpoint
func (s *RestKVStore) Ping(ctx context.Context) error {
	var pong string
	return s.command(ctx, &pong, "PING")
}

// Get returns the value for key
func (s *RestKVStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var val *string
	if err := s.command(ctx, &val, "GET", key); err != nil {
		return nil, false, err
	}
	if val == nil {
		return nil, false, nil
	}
	return []byte(*val), true, nil
}

// Set unconditionally writes key
func (s *RestKVStore) Set(ctx context.Context, key string, value []byte) error {
	var ok *string
	return s.command(ctx, &ok, "SET", key, string(value))
}

// SetNX writes key only if absent
func (s *RestKVStore) SetNX(ctx context.Context, key string, value []byte) (bool, error) {
	var ok *string
	if err := s.command(ctx, &ok, "SET", key, string(value), "NX"); err != nil {
		return false, err
	}
	return ok != nil, nil
}

// SetXX writes key only if present
func (s *RestKVStore) SetXX(ctx context.Context, key string, value []byte) (bool, error) {
	var ok *string
	if err := s.command(ctx, &ok, "SET", key, string(value), "XX"); err != nil {
		return false, err
	}
	return ok != nil, nil
}

// Update is a plain read-modify-write; the REST protocol exposes no
// transaction primitive.
func (s *RestKVStore) Update(ctx context.Context, key string, fn UpdateFunc) error {
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
func (s *RestKVStore) List(ctx context.Context, prefix string) (map[string][]byte, error) {
	out := make(map[string][]byte)
	cursor := "0"
	for {
		var scan []json.RawMessage
		if err := s.command(ctx, &scan, "SCAN", cursor, "MATCH", prefix+"*", "COUNT", "100"); err != nil {
			return nil, err
		}
		if len(scan) != 2 {
			return nil, fmt.Errorf("malformed SCAN response")
		}
		var keys []string
		if err := json.Unmarshal(scan[0], &cursor); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(scan[1], &keys); err != nil {
			return nil, err
		}
		for _, k := range keys {
			val, found, err := s.Get(ctx, k)
			if err != nil {
				return nil, err
			}
			if found {
				out[k] = val
			}
		}
		if cursor == "0" {
			break
		}
	}
	return out, nil
}

// Close is a no-op; the tier holds no long-lived connection
func (s *RestKVStore) Close() {}
