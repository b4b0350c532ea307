package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/studio-arcade/internal/arcade"
)

var (
	// ErrRejected indicates the server rejected the request as invalid
	ErrRejected = errors.New("request rejected")

	// ErrUnavailable indicates the global store could not be reached
	ErrUnavailable = errors.New("global leaderboard unavailable")
)

// API is the HTTP client for the leaderboard endpoints
type API struct {
	baseURL string
	client  *http.Client
}

// NewAPI creates an API client for a server base URL
func NewAPI(baseURL string) *API {
	return &API{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type boardEnvelope struct {
	OK      bool           `json:"ok"`
	GameID  string         `json:"gameId"`
	Entries []arcade.Entry `json:"entries"`
	Error   string         `json:"error"`
}

// Leaderboard fetches the global top-5 for a game
func (a *API) Leaderboard(ctx context.Context, gameID string) ([]arcade.Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/api/leaderboard?gameId="+gameID, nil)
	if err != nil {
		return nil, err
	}
	return a.do(req)
}

// SubmitScore submits a score and returns the authoritative new top-5
func (a *API) SubmitScore(ctx context.Context, gameID, nick string, score float64) ([]arcade.Entry, error) {
	body, err := json.Marshal(map[string]any{
		"gameId":   gameID,
		"nickname": nick,
		"score":    score,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/leaderboard/submit", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return a.do(req)
}

// do executes a request and decodes the leaderboard envelope
func (a *API) do(req *http.Request) ([]arcade.Entry, error) {
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	var envelope boardEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("%w: malformed response", ErrUnavailable)
	}

	if !envelope.OK {
		switch envelope.Error {
		case "invalid":
			return nil, ErrRejected
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnavailable, envelope.Error)
		}
	}

	return arcade.SanitizeEntries(envelope.Entries), nil
}
