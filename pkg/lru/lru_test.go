package lru_test

import (
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/prune/pkg/lru"
)

// smallMaxEntries limits the cache to 3 entries for eviction tests.
const smallMaxEntries = 3

func TestCache_GetPut(t *testing.T) {
	t.Parallel()

	cache := lru.New[string, int](0)

	_, found := cache.Get("a")
	assert.False(t, found)

	cache.Put("a", 1)
	cache.Put("a", 2)

	got, found := cache.Get("a")
	require.True(t, found)
	assert.Equal(t, 2, got)
	assert.Equal(t, 1, cache.Len())

	stats := cache.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate(), 1e-9)
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	cache := lru.New[int, string](smallMaxEntries)
	for i := range smallMaxEntries {
		cache.Put(i, strconv.Itoa(i))
	}

	// Touch 0 so 1 becomes the eviction victim.
	_, found := cache.Get(0)
	require.True(t, found)

	cache.Put(smallMaxEntries, "new")

	_, found = cache.Get(1)
	assert.False(t, found)

	_, found = cache.Get(0)
	assert.True(t, found)
	assert.Equal(t, smallMaxEntries, cache.Len())
	assert.Equal(t, int64(1), cache.Stats().Evictions)
}

func TestCache_GetOrCreate(t *testing.T) {
	t.Parallel()

	cache := lru.New[string, int](smallMaxEntries)
	calls := 0

	create := func() (int, error) {
		calls++

		return 42, nil
	}

	for range 3 {
		value, err := cache.GetOrCreate("answer", create)
		require.NoError(t, err)
		assert.Equal(t, 42, value)
	}

	assert.Equal(t, 1, calls)

	boom := errors.New("boom")
	_, err := cache.GetOrCreate("bad", func() (int, error) { return 0, boom })
	require.ErrorIs(t, err, boom)

	_, found := cache.Get("bad")
	assert.False(t, found)
}

func TestCache_Concurrent(t *testing.T) {
	t.Parallel()

	cache := lru.New[int, int](smallMaxEntries * 10)

	var wg sync.WaitGroup

	for g := range 16 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for i := range 200 {
				key := (g + i) % 40
				if _, ok := cache.Get(key); !ok {
					cache.Put(key, i)
				}
			}
		}()
	}

	wg.Wait()
	assert.LessOrEqual(t, cache.Len(), smallMaxEntries*10)
}
