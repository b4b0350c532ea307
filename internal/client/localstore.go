package client

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/studio-arcade/internal/arcade"
)

// Profile is the locally persisted player identity
type Profile struct {
	Nickname  string `json:"nickname,omitempty"`
	UserID    string `json:"userId,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// localData is the on-disk blob: a profile plus a best-5 board per game id
type localData struct {
	Profile Profile                   `json:"profile"`
	Boards  map[string][]arcade.Entry `json:"boards"`
}

// LocalStore is the durable local fallback, a JSON file that stays readable
// and writable with every network backend down.
type LocalStore struct {
	path string
	mu   sync.Mutex
}

// NewLocalStore creates a local store persisting to path
func NewLocalStore(path string) *LocalStore {
	return &LocalStore{path: path}
}

// load reads the blob, returning an empty one for a missing or corrupt file
func (s *LocalStore) load() localData {
	data := localData{Boards: make(map[string][]arcade.Entry)}

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("Warning: could not read local leaderboard file: %v", err)
		}
		return data
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		log.Printf("Warning: discarding corrupt local leaderboard file: %v", err)
		return localData{Boards: make(map[string][]arcade.Entry)}
	}
	if data.Boards == nil {
		data.Boards = make(map[string][]arcade.Entry)
	}
	return data
}

// save writes the blob back to disk
func (s *LocalStore) save(data localData) {
	raw, err := json.Marshal(data)
	if err != nil {
		log.Printf("Error marshaling local leaderboard file: %v", err)
		return
	}
	if dir := filepath.Dir(s.path); dir != "." {
		os.MkdirAll(dir, 0o755)
	}
	if err := os.WriteFile(s.path, raw, 0o644); err != nil {
		log.Printf("Error writing local leaderboard file: %v", err)
	}
}

// Board returns the locally stored board for a game
func (s *LocalStore) Board(gameID string) []arcade.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return arcade.RankAndTruncate(arcade.SanitizeEntries(s.load().Boards[gameID]))
}

// MergeEntry merges one entry into a game's local board and returns the
// re-ranked result
func (s *LocalStore) MergeEntry(gameID string, entry arcade.Entry) []arcade.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := s.load()
	board := append(arcade.SanitizeEntries(data.Boards[gameID]), entry)
	board = arcade.RankAndTruncate(board)
	data.Boards[gameID] = board
	s.save(data)
	return board
}

// SetBoard overwrites a game's local board with the authoritative server
// result
func (s *LocalStore) SetBoard(gameID string, entries []arcade.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := s.load()
	data.Boards[gameID] = entries
	s.save(data)
}

// Profile returns the stored player profile
func (s *LocalStore) Profile() Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load().Profile
}

// SetProfile stores the player profile
func (s *LocalStore) SetProfile(p Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := s.load()
	data.Profile = p
	s.save(data)
}
