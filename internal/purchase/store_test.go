package purchase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/studio-arcade/internal/storage"
)

type staticResolver struct {
	store storage.Store
}

func (r *staticResolver) Resolve(ctx context.Context) (storage.Store, error) {
	if r.store == nil {
		return nil, storage.ErrNoBackend
	}
	return r.store, nil
}

func newTestStore() *Store {
	return NewStore(&staticResolver{store: storage.NewMemoryStore()})
}

func TestAppendPurchaseAssignsDefaults(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	rec, err := s.AppendPurchase(ctx, Purchase{UserID: "u-1", Item: "beat-pack", AmountCents: 499})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.NotEmpty(t, rec.CreatedAt)

	got, err := s.ListPurchases(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, rec, got[0])
}

func TestAppendPurchaseIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	first := Purchase{ID: "order-1", UserID: "u-1", Item: "beat-pack", AmountCents: 499}
	_, err := s.AppendPurchase(ctx, first)
	require.NoError(t, err)

	// Replayed webhook with the same id must not duplicate or overwrite
	replay := first
	replay.AmountCents = 999
	_, err = s.AppendPurchase(ctx, replay)
	require.NoError(t, err)

	got, err := s.ListPurchases(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(499), got[0].AmountCents)
}

func TestListPurchasesFiltersAndSorts(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	_, err := s.AppendPurchase(ctx, Purchase{ID: "b", UserID: "u-1", Item: "late", CreatedAt: "2026-02-01T00:00:00Z"})
	require.NoError(t, err)
	_, err = s.AppendPurchase(ctx, Purchase{ID: "a", UserID: "u-1", Item: "early", CreatedAt: "2026-01-01T00:00:00Z"})
	require.NoError(t, err)
	_, err = s.AppendPurchase(ctx, Purchase{ID: "c", UserID: "u-2", Item: "other", CreatedAt: "2026-01-15T00:00:00Z"})
	require.NoError(t, err)

	got, err := s.ListPurchases(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "early", got[0].Item)
	assert.Equal(t, "late", got[1].Item)

	all, err := s.ListPurchases(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestIdentityRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	_, err := s.GetIdentity(ctx, "u-1")
	assert.ErrorIs(t, err, ErrNotFound)

	saved, err := s.SetIdentity(ctx, Identity{UserID: "u-1", Nickname: "ACE"})
	require.NoError(t, err)
	assert.NotEmpty(t, saved.CreatedAt)

	got, err := s.GetIdentity(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, saved, got)
}

func TestListIdentities(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	_, err := s.SetIdentity(ctx, Identity{UserID: "u-2"})
	require.NoError(t, err)
	_, err = s.SetIdentity(ctx, Identity{UserID: "u-1"})
	require.NoError(t, err)

	got, err := s.ListIdentities(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "u-1", got[0].UserID)
	assert.Equal(t, "u-2", got[1].UserID)
}

func TestNoBackendSurfacesError(t *testing.T) {
	ctx := context.Background()
	s := NewStore(&staticResolver{})

	_, err := s.AppendPurchase(ctx, Purchase{UserID: "u-1", Item: "x"})
	assert.ErrorIs(t, err, storage.ErrNoBackend)
}
