package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreBasics(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, found, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Set(ctx, "k", []byte("v1")))
	val, found, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("v1"), val)
}

func TestMemoryStoreSetNX(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	ok, err := store.SetNX(ctx, "k", []byte("first"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.SetNX(ctx, "k", []byte("second"))
	require.NoError(t, err)
	assert.False(t, ok)

	val, _, _ := store.Get(ctx, "k")
	assert.Equal(t, []byte("first"), val)
}

func TestMemoryStoreSetXX(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	ok, err := store.SetXX(ctx, "k", []byte("v"))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, "k", []byte("v")))
	ok, err = store.SetXX(ctx, "k", []byte("v2"))
	require.NoError(t, err)
	assert.True(t, ok)

	val, _, _ := store.Get(ctx, "k")
	assert.Equal(t, []byte("v2"), val)
}

func TestMemoryStoreUpdateSerialized(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Set(ctx, "counter", []byte("0")))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.Update(ctx, "counter", func(old []byte, found bool) ([]byte, error) {
				var n int
				fmt.Sscanf(string(old), "%d", &n)
				return []byte(fmt.Sprintf("%d", n+1)), nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	val, _, _ := store.Get(ctx, "counter")
	assert.Equal(t, "50", string(val))
}

func TestMemoryStoreUpdateAborts(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Set(ctx, "k", []byte("v")))

	wantErr := fmt.Errorf("boom")
	err := store.Update(ctx, "k", func(old []byte, found bool) ([]byte, error) {
		return nil, wantErr
	})
	assert.ErrorIs(t, err, wantErr)

	val, _, _ := store.Get(ctx, "k")
	assert.Equal(t, []byte("v"), val)
}

func TestMemoryStoreList(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Set(ctx, "identity:a", []byte("1")))
	require.NoError(t, store.Set(ctx, "identity:b", []byte("2")))
	require.NoError(t, store.Set(ctx, "purchase:c", []byte("3")))

	out, err := store.List(ctx, "identity:")
	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.Equal(t, []byte("1"), out["identity:a"])
	assert.Equal(t, []byte("2"), out["identity:b"])
}
