package nickname

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/studio-arcade/internal/arcade"
	"github.com/studio-arcade/internal/storage"
)

type staticResolver struct {
	store storage.Store
}

func (r *staticResolver) ResolveDurable(ctx context.Context) (storage.Store, error) {
	if r.store == nil {
		return nil, storage.ErrNoBackend
	}
	return r.store, nil
}

func newTestRegistry() (*Registry, *storage.MemoryStore) {
	mem := storage.NewMemoryStore()
	r := NewRegistry(&staticResolver{store: mem}, NewRateLimiter())
	r.detach = func(fn func()) { fn() } // synchronous for deterministic tests
	return r, mem
}

func TestClaimAndLogin(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry()

	canonical, err := r.Claim(ctx, " a c e ", "1234")
	require.NoError(t, err)
	assert.Equal(t, "ACE", canonical)

	canonical, err = r.Login(ctx, "ace", "1234", "1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, "ACE", canonical)

	_, err = r.Login(ctx, "ace", "9999", "1.2.3.4")
	assert.ErrorIs(t, err, ErrInvalidPin)
}

func TestClaimValidation(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry()

	_, err := r.Claim(ctx, "?", "1234")
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = r.Claim(ctx, "ACE", "12345")
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = r.Claim(ctx, "ACE", "12a4")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestClaimExclusivity(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry()

	var mu sync.Mutex
	successes, conflicts := 0, 0

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		pin := "1234"
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Claim(ctx, "ABC123", pin)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case assert.ErrorIs(t, err, ErrTaken):
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, 9, conflicts)
}

func TestLoginCollapsesNotFoundAndWrongPin(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry()

	_, err := r.Claim(ctx, "REAL", "1234")
	require.NoError(t, err)

	_, missingErr := r.Login(ctx, "NOPE", "0000", "1.2.3.4")
	_, wrongErr := r.Login(ctx, "REAL", "9999", "1.2.3.4")

	assert.ErrorIs(t, missingErr, ErrInvalidPin)
	assert.ErrorIs(t, wrongErr, ErrInvalidPin)
	assert.Equal(t, missingErr, wrongErr)
}

func TestVerifyKeepsDistinctErrors(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry()

	_, err := r.Claim(ctx, "REAL", "1234")
	require.NoError(t, err)

	_, err = r.Verify(ctx, "NOPE", "0000", "1.2.3.4")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = r.Verify(ctx, "REAL", "9999", "1.2.3.4")
	assert.ErrorIs(t, err, ErrWrongPin)
}

func TestVerifyRateLimit(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry()

	_, err := r.Claim(ctx, "ACE", "1234")
	require.NoError(t, err)

	// Burn the window's budget on wrong PINs
	for i := 0; i < maxAttempts; i++ {
		_, err := r.Verify(ctx, "ACE", "0000", "1.2.3.4")
		assert.ErrorIs(t, err, ErrWrongPin, "attempt %d", i+1)
	}

	// 11th attempt is rejected before storage, even with the right PIN
	_, err = r.Verify(ctx, "ACE", "1234", "1.2.3.4")
	assert.ErrorIs(t, err, ErrRateLimited)

	// A different IP is not limited, and success clears the bucket
	_, err = r.Verify(ctx, "ACE", "1234", "5.6.7.8")
	require.NoError(t, err)
	_, err = r.Verify(ctx, "ACE", "1234", "5.6.7.8")
	require.NoError(t, err)
}

func TestRateLimitClearsOnSuccess(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry()

	_, err := r.Claim(ctx, "ACE", "1234")
	require.NoError(t, err)

	for i := 0; i < maxAttempts-1; i++ {
		_, err := r.Verify(ctx, "ACE", "0000", "1.2.3.4")
		assert.ErrorIs(t, err, ErrWrongPin)
	}

	// Success on the last allowed attempt resets the counter
	_, err = r.Verify(ctx, "ACE", "1234", "1.2.3.4")
	require.NoError(t, err)

	for i := 0; i < maxAttempts-1; i++ {
		_, err := r.Verify(ctx, "ACE", "0000", "1.2.3.4")
		assert.ErrorIs(t, err, ErrWrongPin)
	}
	_, err = r.Verify(ctx, "ACE", "1234", "1.2.3.4")
	require.NoError(t, err)
}

func TestLegacyUpgrade(t *testing.T) {
	ctx := context.Background()
	r, mem := newTestRegistry()

	// Record created before PIN auth existed
	legacy, err := json.Marshal(arcade.NicknameRecord{Nickname: "OLDIE", CreatedAt: "2021-06-01T00:00:00Z"})
	require.NoError(t, err)
	require.NoError(t, mem.Set(ctx, "nick:oldie", legacy))

	// First login with any valid PIN upgrades the record
	canonical, err := r.Login(ctx, "OLDIE", "4321", "1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, "OLDIE", canonical)

	raw, found, err := mem.Get(ctx, "nick:oldie")
	require.NoError(t, err)
	require.True(t, found)

	var upgraded arcade.NicknameRecord
	require.NoError(t, json.Unmarshal(raw, &upgraded))
	assert.True(t, upgraded.HasPinAuth())
	assert.Equal(t, "2021-06-01T00:00:00Z", upgraded.CreatedAt)

	// The claimed PIN is now permanent: same PIN works, others fail
	_, err = r.Login(ctx, "OLDIE", "4321", "1.2.3.4")
	require.NoError(t, err)
	_, err = r.Login(ctx, "OLDIE", "9999", "1.2.3.4")
	assert.ErrorIs(t, err, ErrInvalidPin)
}

func TestLastLoginRefreshed(t *testing.T) {
	ctx := context.Background()
	r, mem := newTestRegistry()

	_, err := r.Claim(ctx, "ACE", "1234")
	require.NoError(t, err)

	_, err = r.Verify(ctx, "ACE", "1234", "1.2.3.4")
	require.NoError(t, err)

	raw, _, err := mem.Get(ctx, "nick:ace")
	require.NoError(t, err)

	var record arcade.NicknameRecord
	require.NoError(t, json.Unmarshal(raw, &record))
	assert.NotEmpty(t, record.LastLoginAt)
}

func TestRegistryUnavailable(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(&staticResolver{}, NewRateLimiter())

	_, err := r.Claim(ctx, "ACE", "1234")
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = r.Login(ctx, "ACE", "1234", "1.2.3.4")
	assert.ErrorIs(t, err, ErrUnavailable)
}
