package leaderboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/studio-arcade/internal/arcade"
	"github.com/studio-arcade/internal/storage"
)

var (
	// ErrInvalid indicates caller-supplied data failed validation
	ErrInvalid = errors.New("invalid leaderboard input")

	// ErrUnavailable indicates no storage backend could serve the request.
	// Distinct from an empty leaderboard: "we could not reach storage" must
	// never be reported as "confirmed empty".
	ErrUnavailable = errors.New("leaderboard unavailable")
)

// Resolver yields the storage backend for leaderboard operations
type Resolver interface {
	ResolveDurable(ctx context.Context) (storage.Store, error)
}

// Store reads and updates per-game top-5 leaderboards
type Store struct {
	resolver Resolver
	now      func() time.Time
}

// NewStore creates a leaderboard store on top of a backend resolver
func NewStore(resolver Resolver) *Store {
	return &Store{resolver: resolver, now: time.Now}
}

func key(gameID string) string {
	return "lb:" + gameID
}

// Read returns the current top-5 for a game. A live backend with no entries
// for the key yields an empty slice, not an error.
func (s *Store) Read(ctx context.Context, gameID string) ([]arcade.Entry, error) {
	gameID = arcade.NormalizeGameID(gameID)
	if !arcade.IsValidGameID(gameID) {
		return nil, ErrInvalid
	}

	store, err := s.resolver.ResolveDurable(ctx)
	if err != nil {
		return nil, ErrUnavailable
	}

	raw, found, err := store.Get(ctx, key(gameID))
	if err != nil {
		log.Printf("Warning: leaderboard read failed for %s: %v", gameID, err)
		return nil, ErrUnavailable
	}
	if !found {
		return []arcade.Entry{}, nil
	}

	return decodeEntries(raw), nil
}

// Submit validates and merges a new score into a game's leaderboard and
// returns the resulting top-5. Concurrency control depends on the backend
// tier: redis retries an optimistic transaction, postgres serializes on a
// row lock, the REST tier is a plain read-modify-write.
func (s *Store) Submit(ctx context.Context, gameID, nickname string, score float64) ([]arcade.Entry, error) {
	gameID = arcade.NormalizeGameID(gameID)
	nickname = arcade.CanonicalizeNickname(nickname)
	cleanScore, ok := arcade.SanitizeScore(score)
	if !arcade.IsValidGameID(gameID) || !arcade.IsValidCanonicalNickname(nickname) || !ok {
		return nil, ErrInvalid
	}

	candidate := arcade.Entry{
		Nickname: nickname,
		Score:    cleanScore,
		TS:       s.now().UnixMilli(),
	}

	store, err := s.resolver.ResolveDurable(ctx)
	if err != nil {
		return nil, ErrUnavailable
	}

	var merged []arcade.Entry
	err = store.Update(ctx, key(gameID), func(old []byte, found bool) ([]byte, error) {
		entries := []arcade.Entry{}
		if found {
			entries = decodeEntries(old)
		}
		entries = append(entries, candidate)
		merged = arcade.RankAndTruncate(entries)

		data, err := json.Marshal(merged)
		if err != nil {
			return nil, fmt.Errorf("error marshaling leaderboard: %w", err)
		}
		return data, nil
	})
	if err != nil {
		log.Printf("Warning: leaderboard submit failed for %s: %v", gameID, err)
		return nil, ErrUnavailable
	}

	return merged, nil
}

// decodeEntries parses stored entries, dropping anything malformed and
// re-ranking defensively. Storage may hold old or foreign data.
func decodeEntries(raw []byte) []arcade.Entry {
	var entries []arcade.Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		log.Printf("Warning: discarding malformed leaderboard data: %v", err)
		return []arcade.Entry{}
	}
	return arcade.RankAndTruncate(arcade.SanitizeEntries(entries))
}
