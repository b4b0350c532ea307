package api

import (
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/studio-arcade/internal/arcade"
	"github.com/studio-arcade/internal/kafka"
	"github.com/studio-arcade/internal/leaderboard"
	"github.com/studio-arcade/internal/nickname"
	"github.com/studio-arcade/internal/purchase"
	"github.com/studio-arcade/internal/websocket"
)

// Error codes surfaced in the response envelope
const (
	CodeInvalid                = "invalid"
	CodeTaken                  = "taken"
	CodeNotFound               = "not_found"
	CodeWrongPin               = "wrong_pin"
	CodeInvalidPin             = "invalid_pin"
	CodeRateLimited            = "rate_limited"
	CodeLeaderboardUnavailable = "leaderboard_unavailable"
	CodeRegistryUnavailable    = "registry_unavailable"
	CodeMethodNotAllowed       = "method_not_allowed"
	CodeUnexpected             = "unexpected"
)

// Handlers holds API handler dependencies
type Handlers struct {
	leaderboard *leaderboard.Store
	registry    *nickname.Registry
	purchases   *purchase.Store
	producer    *kafka.Producer
	consumer    *kafka.Consumer
	hub         *websocket.Hub
}

// NewHandlers creates a new API handlers instance. producer, consumer and
// hub may be nil when those subsystems are disabled.
func NewHandlers(lb *leaderboard.Store, registry *nickname.Registry, purchases *purchase.Store, producer *kafka.Producer, consumer *kafka.Consumer, hub *websocket.Hub) *Handlers {
	return &Handlers{
		leaderboard: lb,
		registry:    registry,
		purchases:   purchases,
		producer:    producer,
		consumer:    consumer,
		hub:         hub,
	}
}

// RegisterRoutes registers API routes
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed)
	})

	r.Get("/leaderboard", h.GetLeaderboard)
	r.Post("/leaderboard/submit", h.SubmitScore)
	r.Post("/nickname/claim", h.ClaimNickname)
	r.Post("/nickname/login", h.LoginNickname)
	r.Post("/nickname/verify", h.VerifyNickname)
	r.Get("/purchases", h.GetPurchases)
	r.Post("/purchase", h.RecordPurchase)
	r.Get("/identity", h.GetIdentity)
	r.Post("/identity", h.SetIdentity)
	r.Get("/identities", h.ListIdentities)
	r.Get("/analytics", h.GetAnalytics)
	r.Get("/status", h.GetStatus)
}

// leaderboardResponse always carries entries, so an empty board serializes
// as entries:[] rather than disappearing
type leaderboardResponse struct {
	OK      bool           `json:"ok"`
	GameID  string         `json:"gameId"`
	Entries []arcade.Entry `json:"entries"`
}

type nicknameResponse struct {
	OK       bool   `json:"ok"`
	Nickname string `json:"nickname"`
}

type errorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// GetLeaderboard returns the top-5 for a game
func (h *Handlers) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	gameID := arcade.NormalizeGameID(r.URL.Query().Get("gameId"))

	entries, err := h.leaderboard.Read(r.Context(), gameID)
	if err != nil {
		h.respondLeaderboardError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, leaderboardResponse{OK: true, GameID: gameID, Entries: entries})
}

// SubmitScore merges a new score into a game's leaderboard
func (h *Handlers) SubmitScore(w http.ResponseWriter, r *http.Request) {
	var body struct {
		GameID   string   `json:"gameId"`
		Nickname string   `json:"nickname"`
		Score    *float64 `json:"score"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Score == nil {
		respondError(w, http.StatusBadRequest, CodeInvalid)
		return
	}

	entries, err := h.leaderboard.Submit(r.Context(), body.GameID, body.Nickname, *body.Score)
	if err != nil {
		h.respondLeaderboardError(w, err)
		return
	}

	gameID := arcade.NormalizeGameID(body.GameID)
	h.announceSubmission(gameID, body.Nickname, *body.Score, entries)

	respondJSON(w, http.StatusOK, leaderboardResponse{OK: true, GameID: gameID, Entries: entries})
}

// announceSubmission pushes the updated board to websocket subscribers and
// emits the analytics event
func (h *Handlers) announceSubmission(gameID, rawNickname string, rawScore float64, entries []arcade.Entry) {
	if h.hub != nil {
		h.hub.BroadcastLeaderboard(gameID, entries)
	}
	if h.producer == nil {
		return
	}

	candidate := arcade.Entry{Nickname: arcade.CanonicalizeNickname(rawNickname)}
	candidate.Score, _ = arcade.SanitizeScore(rawScore)

	madeTop5 := false
	for _, e := range entries {
		if e.Nickname == candidate.Nickname && e.Score == candidate.Score {
			madeTop5 = true
			break
		}
	}
	h.producer.EmitScoreSubmitted(gameID, candidate, madeTop5)
}

// ClaimNickname atomically reserves a nickname with a PIN
func (h *Handlers) ClaimNickname(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Nickname string `json:"nickname"`
		PIN      string `json:"pin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, CodeInvalid)
		return
	}

	canonical, err := h.registry.Claim(r.Context(), body.Nickname, body.PIN)
	if err != nil {
		h.respondRegistryError(w, err)
		return
	}

	if h.producer != nil {
		h.producer.EmitNicknameClaimed(canonical)
	}
	respondJSON(w, http.StatusOK, nicknameResponse{OK: true, Nickname: canonical})
}

// LoginNickname verifies a nickname's PIN. Unknown nicknames and wrong PINs
// share one failure code.
func (h *Handlers) LoginNickname(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Nickname string `json:"nickname"`
		PIN      string `json:"pin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, CodeInvalid)
		return
	}

	canonical, err := h.registry.Login(r.Context(), body.Nickname, body.PIN, requesterIP(r))
	if err != nil {
		h.respondRegistryError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, nicknameResponse{OK: true, Nickname: canonical})
}

// VerifyNickname verifies a nickname's PIN, keeping not-found and wrong-PIN
// distinct for internal callers
func (h *Handlers) VerifyNickname(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Nickname string `json:"nickname"`
		PIN      string `json:"pin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, CodeInvalid)
		return
	}

	canonical, err := h.registry.Verify(r.Context(), body.Nickname, body.PIN, requesterIP(r))
	if err != nil {
		h.respondRegistryError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, nicknameResponse{OK: true, Nickname: canonical})
}

// RecordPurchase appends an already-verified purchase
func (h *Handlers) RecordPurchase(w http.ResponseWriter, r *http.Request) {
	var body purchase.Purchase
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.UserID == "" || body.Item == "" {
		respondError(w, http.StatusBadRequest, CodeInvalid)
		return
	}

	rec, err := h.purchases.AppendPurchase(r.Context(), body)
	if err != nil {
		log.Printf("Error recording purchase: %v", err)
		respondError(w, http.StatusInternalServerError, CodeUnexpected)
		return
	}

	if h.producer != nil {
		h.producer.EmitPurchaseRecorded(rec)
	}
	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "purchase": rec})
}

// GetPurchases lists a user's purchases
func (h *Handlers) GetPurchases(w http.ResponseWriter, r *http.Request) {
	purchases, err := h.purchases.ListPurchases(r.Context(), r.URL.Query().Get("userId"))
	if err != nil {
		log.Printf("Error listing purchases: %v", err)
		respondError(w, http.StatusInternalServerError, CodeUnexpected)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "purchases": purchases})
}

// SetIdentity writes a user identity record
func (h *Handlers) SetIdentity(w http.ResponseWriter, r *http.Request) {
	var body purchase.Identity
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.UserID == "" {
		respondError(w, http.StatusBadRequest, CodeInvalid)
		return
	}

	id, err := h.purchases.SetIdentity(r.Context(), body)
	if err != nil {
		log.Printf("Error setting identity: %v", err)
		respondError(w, http.StatusInternalServerError, CodeUnexpected)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "identity": id})
}

// GetIdentity returns a user identity record
func (h *Handlers) GetIdentity(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		respondError(w, http.StatusBadRequest, CodeInvalid)
		return
	}

	id, err := h.purchases.GetIdentity(r.Context(), userID)
	if errors.Is(err, purchase.ErrNotFound) {
		respondError(w, http.StatusNotFound, CodeNotFound)
		return
	}
	if err != nil {
		log.Printf("Error getting identity: %v", err)
		respondError(w, http.StatusInternalServerError, CodeUnexpected)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "identity": id})
}

// ListIdentities enumerates all identity records
func (h *Handlers) ListIdentities(w http.ResponseWriter, r *http.Request) {
	identities, err := h.purchases.ListIdentities(r.Context())
	if err != nil {
		log.Printf("Error listing identities: %v", err)
		respondError(w, http.StatusInternalServerError, CodeUnexpected)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "identities": identities})
}

// GetAnalytics returns event analytics aggregated by the Kafka consumer
func (h *Handlers) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"ok":           true,
		"kafkaEnabled": h.producer != nil && h.producer.IsEnabled(),
	}

	if h.consumer != nil {
		response["metrics"] = h.consumer.GetMetrics()
		response["topSubmitter"] = h.consumer.GetTopSubmitter()
	}

	respondJSON(w, http.StatusOK, response)
}

// GetStatus returns server status
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"ok":           true,
		"status":       "ok",
		"kafkaEnabled": h.producer != nil && h.producer.IsEnabled(),
	}
	if h.hub != nil {
		status["wsClients"] = h.hub.ClientCount()
	}

	respondJSON(w, http.StatusOK, status)
}

// respondLeaderboardError maps leaderboard errors to HTTP statuses
func (h *Handlers) respondLeaderboardError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, leaderboard.ErrInvalid):
		respondError(w, http.StatusBadRequest, CodeInvalid)
	case errors.Is(err, leaderboard.ErrUnavailable):
		respondError(w, http.StatusNotImplemented, CodeLeaderboardUnavailable)
	default:
		log.Printf("Unexpected leaderboard error: %v", err)
		respondError(w, http.StatusInternalServerError, CodeUnexpected)
	}
}

// respondRegistryError maps nickname registry errors to HTTP statuses
func (h *Handlers) respondRegistryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, nickname.ErrInvalid):
		respondError(w, http.StatusBadRequest, CodeInvalid)
	case errors.Is(err, nickname.ErrTaken):
		respondError(w, http.StatusConflict, CodeTaken)
	case errors.Is(err, nickname.ErrNotFound):
		respondError(w, http.StatusNotFound, CodeNotFound)
	case errors.Is(err, nickname.ErrWrongPin):
		respondError(w, http.StatusUnauthorized, CodeWrongPin)
	case errors.Is(err, nickname.ErrInvalidPin):
		respondError(w, http.StatusUnauthorized, CodeInvalidPin)
	case errors.Is(err, nickname.ErrRateLimited):
		respondError(w, http.StatusTooManyRequests, CodeRateLimited)
	case errors.Is(err, nickname.ErrUnavailable):
		respondError(w, http.StatusNotImplemented, CodeRegistryUnavailable)
	default:
		log.Printf("Unexpected registry error: %v", err)
		respondError(w, http.StatusInternalServerError, CodeUnexpected)
	}
}

// requesterIP extracts the requester's IP, relying on middleware.RealIP to
// have rewritten RemoteAddr behind proxies
func requesterIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError writes a JSON error envelope
func respondError(w http.ResponseWriter, status int, code string) {
	respondJSON(w, status, errorResponse{OK: false, Error: code})
}
