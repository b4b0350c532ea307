package client

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/studio-arcade/internal/arcade"
)

const (
	// cacheTTL is how long a fetched global board is considered fresh
	cacheTTL = 30 * time.Second

	// refreshCooldown is the minimum gap between network refresh attempts
	// for one game, preventing retry storms against a flaky server
	refreshCooldown = 5 * time.Second

	requestTimeout = 10 * time.Second
)

type cachedBoard struct {
	entries   []arcade.Entry
	fetchedAt time.Time
}

// Cache reconciles a local optimistic leaderboard against the unreliable
// global one. UI-facing reads never block: network work runs in the
// background and the best currently-known board is returned immediately.
// Whenever the global store cannot be reached, the local board is the
// system of record.
type Cache struct {
	api   *API
	local *LocalStore

	mu          sync.Mutex
	boards      map[string]cachedBoard
	lastAttempt map[string]time.Time
	inflight    map[string]bool
	listeners   []func(gameID string)

	now func() time.Time
}

// NewCache creates a cache over an API client and a local fallback store
func NewCache(api *API, local *LocalStore) *Cache {
	return &Cache{
		api:         api,
		local:       local,
		boards:      make(map[string]cachedBoard),
		lastAttempt: make(map[string]time.Time),
		inflight:    make(map[string]bool),
		now:         time.Now,
	}
}

// Subscribe registers a listener invoked with the game id whenever a global
// board is reconciled
func (c *Cache) Subscribe(fn func(gameID string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// GetLeaderboard returns the best currently-known board for a game without
// blocking. A fresh cache is returned as-is; otherwise a background refresh
// is kicked off and the stale cache or the local fallback is returned.
func (c *Cache) GetLeaderboard(gameID string) []arcade.Entry {
	gameID = arcade.NormalizeGameID(gameID)
	if !arcade.IsValidGameID(gameID) {
		return nil
	}

	c.mu.Lock()
	board, ok := c.boards[gameID]
	fresh := ok && c.now().Sub(board.fetchedAt) < cacheTTL
	c.mu.Unlock()

	if fresh {
		return board.entries
	}

	c.refresh(gameID)

	if ok {
		return board.entries // stale beats nothing
	}
	return c.local.Board(gameID)
}

// SubmitScore merges the entry into local storage synchronously, so the
// player sees the score immediately even offline, then attempts the network
// submit in the background. Any failure keeps the optimistic local state.
func (c *Cache) SubmitScore(gameID, nick string, score float64) []arcade.Entry {
	gameID = arcade.NormalizeGameID(gameID)
	canonical := arcade.CanonicalizeNickname(nick)
	cleanScore, ok := arcade.SanitizeScore(score)
	if !arcade.IsValidGameID(gameID) || !arcade.IsValidCanonicalNickname(canonical) || !ok {
		return c.local.Board(gameID)
	}

	entry := arcade.Entry{Nickname: canonical, Score: cleanScore, TS: c.now().UnixMilli()}
	board := c.local.MergeEntry(gameID, entry)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		entries, err := c.api.SubmitScore(ctx, gameID, canonical, float64(cleanScore))
		if err != nil {
			log.Printf("Score submit for %s not reconciled, keeping local entry: %v", gameID, err)
			return
		}
		c.reconcile(gameID, entries)
	}()

	return board
}

// refresh starts a background fetch for a game, coalescing concurrent
// callers into one round trip and honoring the cooldown
func (c *Cache) refresh(gameID string) {
	c.mu.Lock()
	if c.inflight[gameID] || c.now().Sub(c.lastAttempt[gameID]) < refreshCooldown {
		c.mu.Unlock()
		return
	}
	c.inflight[gameID] = true
	c.lastAttempt[gameID] = c.now()
	c.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		entries, err := c.api.Leaderboard(ctx, gameID)

		// Clear the in-flight flag before reconciling so a listener reacting
		// to the update can immediately trigger the next refresh
		c.mu.Lock()
		delete(c.inflight, gameID)
		c.mu.Unlock()

		if err != nil {
			log.Printf("Leaderboard refresh for %s failed, serving fallback: %v", gameID, err)
			return
		}
		c.reconcile(gameID, entries)
	}()
}

// reconcile overwrites the in-memory cache and the local fallback with the
// authoritative server board and notifies listeners
func (c *Cache) reconcile(gameID string, entries []arcade.Entry) {
	c.mu.Lock()
	c.boards[gameID] = cachedBoard{entries: entries, fetchedAt: c.now()}
	listeners := make([]func(string), len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	c.local.SetBoard(gameID, entries)

	for _, fn := range listeners {
		fn(gameID)
	}
}
