package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mealtracker/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIdempotencyStore(t *testing.T) (*InMemoryIdempotencyStore, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	store := NewInMemoryIdempotencyStore()
	store.now = clock.Now
	t.Cleanup(func() { _ = store.Close() })
	return store, clock
}

func TestInMemoryIdempotencyStore_MarkProcessed(t *testing.T) {
	ctx := context.Background()

	t.Run("marks new event as processed", func(t *testing.T) {
		store, _ := newTestIdempotencyStore(t)

		isNew, err := store.MarkProcessed(ctx, "event-1", time.Hour)
		require.NoError(t, err)
		assert.True(t, isNew)
	})

	t.Run("returns false for already processed event", func(t *testing.T) {
		store, _ := newTestIdempotencyStore(t)

		isNew, err := store.MarkProcessed(ctx, "event-2", time.Hour)
		require.NoError(t, err)
		assert.True(t, isNew)

		isNew, err = store.MarkProcessed(ctx, "event-2", time.Hour)
		require.NoError(t, err)
		assert.False(t, isNew)
	})

	t.Run("allows reprocessing after expiration", func(t *testing.T) {
		store, clock := newTestIdempotencyStore(t)

		_, err := store.MarkProcessed(ctx, "event-3", time.Minute)
		require.NoError(t, err)

		clock.Advance(time.Minute)

		isNew, err := store.MarkProcessed(ctx, "event-3", time.Minute)
		require.NoError(t, err)
		assert.True(t, isNew)
	})
}

func TestInMemoryIdempotencyStore_Release(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestIdempotencyStore(t)

	_, err := store.MarkProcessed(ctx, "event-1", time.Hour)
	require.NoError(t, err)

	require.NoError(t, store.Release(ctx, "event-1"))

	processed, err := store.IsProcessed(ctx, "event-1")
	require.NoError(t, err)
	assert.False(t, processed)

	isNew, err := store.MarkProcessed(ctx, "event-1", time.Hour)
	require.NoError(t, err)
	assert.True(t, isNew, "released event should be applied again")

	assert.NoError(t, store.Release(ctx, "never-marked"))
}

func TestInMemoryIdempotencyStore_IsProcessed(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestIdempotencyStore(t)

	processed, err := store.IsProcessed(ctx, "unknown-event")
	require.NoError(t, err)
	assert.False(t, processed)

	_, err = store.MarkProcessed(ctx, "processed-event", 10*time.Second)
	require.NoError(t, err)

	processed, err = store.IsProcessed(ctx, "processed-event")
	require.NoError(t, err)
	assert.True(t, processed)

	clock.Advance(11 * time.Second)

	processed, err = store.IsProcessed(ctx, "processed-event")
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestInMemoryIdempotencyStore_Size(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestIdempotencyStore(t)

	assert.Equal(t, 0, store.Size())

	_, _ = store.MarkProcessed(ctx, "event-1", time.Hour)
	_, _ = store.MarkProcessed(ctx, "event-2", time.Hour)
	_, _ = store.MarkProcessed(ctx, "event-1", time.Hour)
	assert.Equal(t, 2, store.Size())
}

func TestInMemoryIdempotencyStore_Cleanup(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestIdempotencyStore(t)

	_, _ = store.MarkProcessed(ctx, "short-lived-1", time.Second)
	_, _ = store.MarkProcessed(ctx, "short-lived-2", time.Second)
	_, _ = store.MarkProcessed(ctx, "long-lived", time.Hour)
	require.Equal(t, 3, store.Size())

	clock.Advance(2 * time.Second)
	store.cleanup()

	assert.Equal(t, 1, store.Size())
	processed, err := store.IsProcessed(ctx, "long-lived")
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestInMemoryIdempotencyStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestIdempotencyStore(t)

	const goroutines = 100
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		newCount int
	)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			isNew, err := store.MarkProcessed(ctx, "concurrent-event", time.Hour)
			if err == nil && isNew {
				mu.Lock()
				newCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, newCount, "exactly one goroutine should win")
}

func TestInMemoryIdempotencyStore_Close(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}

func TestIdempotencyStoreFactory_CreateStore(t *testing.T) {
	t.Run("memory backend", func(t *testing.T) {
		f := NewIdempotencyStoreFactory(config.EventConfig{IdempotencyBackend: config.IdempotencyBackendMemory})
		store, err := f.CreateStore()
		require.NoError(t, err)
		defer store.Close()
		assert.IsType(t, &InMemoryIdempotencyStore{}, store)
	})

	t.Run("redis backend without client falls back", func(t *testing.T) {
		f := NewIdempotencyStoreFactory(config.EventConfig{IdempotencyBackend: config.IdempotencyBackendRedis})
		store, err := f.CreateStore()
		require.NoError(t, err)
		defer store.Close()
		assert.IsType(t, &InMemoryIdempotencyStore{}, store)
	})

	t.Run("redis backend without client and no fallback", func(t *testing.T) {
		f := NewIdempotencyStoreFactory(
			config.EventConfig{IdempotencyBackend: config.IdempotencyBackendRedis},
			WithInMemoryFallback(false),
		)
		_, err := f.CreateStore()
		assert.ErrorIs(t, err, ErrRedisClientRequired)
	})
}
