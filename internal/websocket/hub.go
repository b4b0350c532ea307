package websocket

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/studio-arcade/internal/arcade"
)

// Message types
const (
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypeLeaderboard = "leaderboard"
	TypeError       = "error"
)

// Message represents a WebSocket message
type Message struct {
	Type    string         `json:"type"`
	GameID  string         `json:"gameId,omitempty"`
	Entries []arcade.Entry `json:"entries,omitempty"`
	Message string         `json:"message,omitempty"`
}

// Hub maintains the set of active clients and pushes leaderboard updates to
// subscribers, so open arcade UIs re-render without polling.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Clients by subscribed game ID
	gameClients map[string]map[*Client]bool

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	mu sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		clients:     make(map[*Client]bool),
		gameClients: make(map[string]map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Printf("Client registered: %s", client.remoteAddr)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				for _, subs := range h.gameClients {
					delete(subs, client)
				}
				close(client.send)
			}
			h.mu.Unlock()
			log.Printf("Client unregistered: %s", client.remoteAddr)
		}
	}
}

// Subscribe adds a client to a game's subscriber list
func (h *Hub) Subscribe(gameID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.gameClients[gameID] == nil {
		h.gameClients[gameID] = make(map[*Client]bool)
	}
	h.gameClients[gameID][client] = true
}

// Unsubscribe removes a client from a game's subscriber list
func (h *Hub) Unsubscribe(gameID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.gameClients[gameID], client)
}

// BroadcastLeaderboard pushes a game's new top-5 to its subscribers
func (h *Hub) BroadcastLeaderboard(gameID string, entries []arcade.Entry) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.gameClients[gameID]))
	for client := range h.gameClients[gameID] {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	if len(clients) == 0 {
		return
	}

	data, err := json.Marshal(Message{
		Type:    TypeLeaderboard,
		GameID:  gameID,
		Entries: entries,
	})
	if err != nil {
		log.Printf("Error marshaling message: %v", err)
		return
	}

	for _, client := range clients {
		select {
		case client.send <- data:
		default:
			log.Printf("Dropping leaderboard push to %s - buffer full", client.remoteAddr)
		}
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
