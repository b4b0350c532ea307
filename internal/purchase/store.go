package purchase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/studio-arcade/internal/storage"
)

// ErrNotFound indicates no identity exists for the user id
var ErrNotFound = errors.New("identity not found")

// Purchase is one append-only record of a beat purchase
type Purchase struct {
	ID          string `json:"id"`
	UserID      string `json:"userId"`
	Item        string `json:"item"`
	AmountCents int64  `json:"amountCents"`
	CreatedAt   string `json:"createdAt"`
}

// Identity maps an anonymous user id to its profile
type Identity struct {
	UserID    string `json:"userId"`
	Nickname  string `json:"nickname,omitempty"`
	CreatedAt string `json:"createdAt"`
}

// Resolver yields the storage backend for purchase operations. Unlike the
// leaderboard and nickname subsystems, purchases accept the in-memory
// fallback tier.
type Resolver interface {
	Resolve(ctx context.Context) (storage.Store, error)
}

// Store persists purchases and user identities
type Store struct {
	resolver Resolver
	now      func() time.Time
}

// NewStore creates a purchase store on top of a backend resolver
func NewStore(resolver Resolver) *Store {
	return &Store{resolver: resolver, now: time.Now}
}

// AppendPurchase records a purchase if its id is not already present.
// Replayed webhooks therefore append at most once.
func (s *Store) AppendPurchase(ctx context.Context, p Purchase) (Purchase, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt == "" {
		p.CreatedAt = s.now().UTC().Format(time.RFC3339)
	}

	store, err := s.resolver.Resolve(ctx)
	if err != nil {
		return Purchase{}, err
	}

	data, err := json.Marshal(p)
	if err != nil {
		return Purchase{}, fmt.Errorf("error marshaling purchase: %w", err)
	}

	if _, err := store.SetNX(ctx, "purchase:"+p.ID, data); err != nil {
		return Purchase{}, err
	}
	return p, nil
}

// ListPurchases returns all purchases for a user, oldest first
func (s *Store) ListPurchases(ctx context.Context, userID string) ([]Purchase, error) {
	store, err := s.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	values, err := store.List(ctx, "purchase:")
	if err != nil {
		return nil, err
	}

	purchases := make([]Purchase, 0)
	for _, raw := range values {
		var p Purchase
		if err := json.Unmarshal(raw, &p); err != nil {
			continue // skip foreign data
		}
		if userID == "" || p.UserID == userID {
			purchases = append(purchases, p)
		}
	}

	sort.Slice(purchases, func(i, j int) bool {
		return purchases[i].CreatedAt < purchases[j].CreatedAt
	})
	return purchases, nil
}

// SetIdentity writes a user's identity record
func (s *Store) SetIdentity(ctx context.Context, id Identity) (Identity, error) {
	if id.CreatedAt == "" {
		id.CreatedAt = s.now().UTC().Format(time.RFC3339)
	}

	store, err := s.resolver.Resolve(ctx)
	if err != nil {
		return Identity{}, err
	}

	data, err := json.Marshal(id)
	if err != nil {
		return Identity{}, fmt.Errorf("error marshaling identity: %w", err)
	}

	if err := store.Set(ctx, "identity:"+id.UserID, data); err != nil {
		return Identity{}, err
	}
	return id, nil
}

// GetIdentity returns a user's identity record
func (s *Store) GetIdentity(ctx context.Context, userID string) (Identity, error) {
	store, err := s.resolver.Resolve(ctx)
	if err != nil {
		return Identity{}, err
	}

	raw, found, err := store.Get(ctx, "identity:"+userID)
	if err != nil {
		return Identity{}, err
	}
	if !found {
		return Identity{}, ErrNotFound
	}

	var id Identity
	if err := json.Unmarshal(raw, &id); err != nil {
		return Identity{}, fmt.Errorf("error parsing identity: %w", err)
	}
	return id, nil
}

// ListIdentities enumerates all identity records via prefix scan
func (s *Store) ListIdentities(ctx context.Context) ([]Identity, error) {
	store, err := s.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	values, err := store.List(ctx, "identity:")
	if err != nil {
		return nil, err
	}

	identities := make([]Identity, 0, len(values))
	for _, raw := range values {
		var id Identity
		if err := json.Unmarshal(raw, &id); err != nil {
			continue
		}
		identities = append(identities, id)
	}

	sort.Slice(identities, func(i, j int) bool {
		return identities[i].UserID < identities[j].UserID
	})
	return identities, nil
}
