package storage

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectorMemoryFallback(t *testing.T) {
	ctx := context.Background()
	selector := NewSelector(Config{MemoryFallback: true})

	store, err := selector.Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, "memory", store.Kind())
}

func TestSelectorNoBackend(t *testing.T) {
	ctx := context.Background()
	selector := NewSelector(Config{})

	_, err := selector.Resolve(ctx)
	assert.ErrorIs(t, err, ErrNoBackend)
}

func TestSelectorDurableRejectsMemory(t *testing.T) {
	ctx := context.Background()
	selector := NewSelector(Config{MemoryFallback: true})

	_, err := selector.ResolveDurable(ctx)
	assert.ErrorIs(t, err, ErrNoBackend)
}

func TestSelectorResolvesOnce(t *testing.T) {
	ctx := context.Background()
	selector := NewSelector(Config{MemoryFallback: true})

	first, err := selector.Resolve(ctx)
	require.NoError(t, err)

	// Concurrent callers all receive the same memoized instance
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store, err := selector.Resolve(ctx)
			assert.NoError(t, err)
			assert.Same(t, first, store)
		}()
	}
	wg.Wait()
}
