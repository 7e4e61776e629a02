// ABOUTME: Tests for the replay cache
// ABOUTME: Validates TTL expiry, refresh on Put, size-bounded eviction, sweeping, and concurrency safety

package dedupe

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestCache(t *testing.T, ttl time.Duration, size int) (*Cache[string], *clock) {
	t.Helper()
	clk := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New[string](ttl, size)
	c.now = clk.now
	t.Cleanup(c.Close)
	return c, clk
}

func TestCache_GetMissing(t *testing.T) {
	c, _ := newTestCache(t, time.Minute, 10)
	_, ok := c.Get("never-stored")
	assert.False(t, ok)
}

func TestCache_PutThenGet(t *testing.T) {
	c, _ := newTestCache(t, time.Minute, 10)
	c.Put("k", "v")

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestCache_Expiry(t *testing.T) {
	c, clk := newTestCache(t, time.Minute, 10)
	c.Put("k", "v")

	clk.advance(59 * time.Second)
	_, ok := c.Get("k")
	assert.True(t, ok)

	clk.advance(time.Second)
	_, ok = c.Get("k")
	assert.False(t, ok)
	assert.Zero(t, c.Len(), "expired entry is dropped on read")
}

func TestCache_PutRefreshes(t *testing.T) {
	c, clk := newTestCache(t, time.Minute, 10)
	c.Put("k", "old")
	clk.advance(40 * time.Second)
	c.Put("k", "new")
	clk.advance(40 * time.Second)

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "new", v)
	assert.Equal(t, 1, c.Len())
}

func TestCache_EvictsOldest(t *testing.T) {
	c, clk := newTestCache(t, time.Hour, 3)
	for i := 1; i <= 3; i++ {
		c.Put(fmt.Sprintf("k%d", i), "v")
		clk.advance(time.Millisecond)
	}
	// Refreshing k1 makes k2 the oldest
	c.Put("k1", "v")
	c.Put("k4", "v")

	_, ok := c.Get("k2")
	assert.False(t, ok)
	for _, k := range []string{"k1", "k3", "k4"} {
		_, ok := c.Get(k)
		assert.True(t, ok, k)
	}
	assert.Equal(t, 3, c.Len())
}

func TestCache_Sweep(t *testing.T) {
	c, clk := newTestCache(t, time.Minute, 10)
	c.Put("a", "1")
	c.Put("b", "2")
	clk.advance(30 * time.Second)
	c.Put("c", "3")
	clk.advance(45 * time.Second)

	c.sweep()
	assert.Equal(t, 1, c.Len())
	_, ok := c.Get("c")
	assert.True(t, ok)
}

func TestCache_Concurrent(t *testing.T) {
	c, _ := newTestCache(t, time.Minute, 50)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				k := fmt.Sprintf("k%d", (g*200+i)%75)
				c.Put(k, k)
				if v, ok := c.Get(k); ok {
					assert.Equal(t, k, v)
				}
			}
		}(g)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 50)
}

func TestCache_CloseTwice(t *testing.T) {
	c := New[int](time.Minute, 1)
	c.Close()
	assert.NotPanics(t, c.Close)
}

func TestKey(t *testing.T) {
	assert.Equal(t, Key("u1", "a1", "hello"), Key("u1", "a1", "hello"))
	assert.NotEqual(t, Key("ab", "c"), Key("a", "bc"))
	assert.Len(t, Key("x"), 64)
}
