package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLRUCache_SetGet(t *testing.T) {
	c := NewLRUCache(10, time.Minute)
	c.Set("/clients", []byte(`["ACME"]`))

	got, ok := c.Get("/clients")
	assert.True(t, ok)
	assert.Equal(t, `["ACME"]`, string(got))

	_, ok = c.Get("/stats")
	assert.False(t, ok)
}

func TestLRUCache_Expiry(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRUCache(10, time.Minute)
	c.now = func() time.Time { return now }
	c.Set("k", []byte("v"))

	now = now.Add(59 * time.Second)
	_, ok := c.Get("k")
	assert.True(t, ok)

	now = now.Add(2 * time.Second)
	_, ok = c.Get("k")
	assert.False(t, ok)
	assert.Zero(t, c.Size())
}

func TestLRUCache_EvictsLeastRecentlyRead(t *testing.T) {
	c := NewLRUCache(2, time.Minute)
	c.Set("a", []byte("1"))
	c.Set("b", []byte("2"))
	_, _ = c.Get("a")
	c.Set("c", []byte("3"))

	_, ok := c.Get("b")
	assert.False(t, ok, "b was least recently used")
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Size())
}

func TestLRUCache_UpdateAndInvalidate(t *testing.T) {
	c := NewLRUCache(0, 0)
	c.Set("a", []byte("1"))
	c.Set("a", []byte("2"))
	got, _ := c.Get("a")
	assert.Equal(t, "2", string(got))
	assert.Equal(t, 1, c.Size())

	c.Invalidate("a")
	c.Invalidate("missing")
	assert.Zero(t, c.Size())

	c.Set("x", nil)
	c.InvalidateAll()
	assert.Zero(t, c.Size())
}

func TestLRUCache_ConcurrentAccess(t *testing.T) {
	c := NewLRUCache(50, time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("/clients/%d/articles", (i+j)%80)
				c.Set(key, []byte("[]"))
				c.Get(key)
				if j%25 == 0 {
					c.Invalidate(key)
				}
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Size(), 50)
}
