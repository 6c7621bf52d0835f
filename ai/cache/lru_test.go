package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRU_Defaults(t *testing.T) {
	c := NewLRU[string, int](0, 0)
	assert.Equal(t, DefaultCapacity, c.cap)
	assert.Equal(t, DefaultTTL, c.ttl)
	assert.Equal(t, 0, c.Len())
}

func TestLRU_SetGet(t *testing.T) {
	c := NewLRU[string, []float32](4, time.Minute)

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("browser bug", []float32{1, 0})
	got, ok := c.Get("browser bug")
	require.True(t, ok)
	assert.Equal(t, []float32{1, 0}, got)

	c.Set("browser bug", []float32{0, 1})
	got, ok = c.Get("browser bug")
	require.True(t, ok)
	assert.Equal(t, []float32{0, 1}, got)
	assert.Equal(t, 1, c.Len())

	hits, misses := c.Stats()
	assert.EqualValues(t, 2, hits)
	assert.EqualValues(t, 1, misses)
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRU[string, int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	_, _ = c.Get("a")
	c.Set("c", 3)

	_, ok := c.Get("b")
	assert.False(t, ok, "b was least recently used")
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestLRU_Expiry(t *testing.T) {
	c := NewLRU[string, int](8, time.Minute)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("q", 1)
	now = now.Add(59 * time.Second)
	_, ok := c.Get("q")
	assert.True(t, ok)

	now = now.Add(time.Second)
	_, ok = c.Get("q")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestLRU_Concurrent(t *testing.T) {
	c := NewLRU[int, int](16, time.Minute)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				c.Set((g*200+i)%32, i)
				_, _ = c.Get(i % 32)
			}
		}(g)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 16)
}
