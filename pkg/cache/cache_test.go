package cache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleBasicOperations(t *testing.T) {
	c, err := NewSimple[int]()
	require.NoError(t, err)

	created, err := c.Set("a", 1)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = c.Set("a", 2)
	require.NoError(t, err)
	assert.False(t, created)

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 2, v)

	_, ok = c.Get("missing")
	assert.False(t, ok)

	existed, err := c.Delete("a")
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, 0, c.Size())
}

func TestSimpleRejectsEmptyKey(t *testing.T) {
	c, err := NewSimple[string]()
	require.NoError(t, err)

	_, err = c.Set("", "x")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestSimpleClear(t *testing.T) {
	c, err := NewSimple[string]()
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := c.Set(fmt.Sprintf("key%d", i), "v")
		require.NoError(t, err)
	}
	require.Equal(t, 5, c.Size())
	require.NoError(t, c.Clear())
	assert.Equal(t, 0, c.Size())
}

func TestLRUEviction(t *testing.T) {
	c, err := NewLRU[int](2)
	require.NoError(t, err)

	_, err = c.Set("a", 1)
	require.NoError(t, err)
	_, err = c.Set("b", 2)
	require.NoError(t, err)

	// Touch "a" so "b" is the eviction candidate.
	_, ok := c.Get("a")
	require.True(t, ok)

	_, err = c.Set("c", 3)
	require.NoError(t, err)

	_, ok = c.Get("b")
	assert.False(t, ok, "least recently used entry should be evicted")
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)

	assert.Equal(t, int64(1), c.Stats().Snapshot().Evictions)
}

func TestLRUInvalidCapacity(t *testing.T) {
	_, err := NewLRU[int](0)
	assert.ErrorIs(t, err, ErrInvalidCapacity)
}

func TestStatsTrackHitsAndMisses(t *testing.T) {
	c, err := NewSimple[int]()
	require.NoError(t, err)

	_, err = c.Set("a", 1)
	require.NoError(t, err)
	c.Get("a")
	c.Get("a")
	c.Get("nope")

	snap := c.Stats().Snapshot()
	assert.Equal(t, int64(2), snap.Hits)
	assert.Equal(t, int64(1), snap.Misses)
	assert.InDelta(t, 2.0/3.0, snap.HitRate, 0.001)
}

func TestConcurrentAccess(t *testing.T) {
	c, err := NewLRU[int](128)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				key := fmt.Sprintf("key%d", i%32)
				_, _ = c.Set(key, g*1000+i)
				c.Get(key)
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Size(), 128)
}
