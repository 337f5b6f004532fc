package cursor

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCache_PutGet(t *testing.T) {
	c := NewCache(10)
	cur := Cursor{Score: 1.5, DocID: "doc-20"}

	c.Put("news|q=cat|pw=1", cur)

	got, ok := c.Get("news|q=cat|pw=1")
	assert.True(t, ok)
	assert.Equal(t, cur, got)

	_, ok = c.Get("news|q=cat|pw=2")
	assert.False(t, ok)

	hits, misses := c.Stats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(1), misses)
}

func TestCursor_IsZero(t *testing.T) {
	assert.True(t, Cursor{}.IsZero())
	assert.True(t, Cursor{Score: 2}.IsZero())
	assert.False(t, Cursor{DocID: "doc-01"}.IsZero())
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	// Given: a cache with room for two cursors
	c := NewCache(2)
	c.Put("a", Cursor{DocID: "a1"})
	c.Put("b", Cursor{DocID: "b2"})

	// When: touching "a" and adding a third
	_, _ = c.Get("a")
	c.Put("c", Cursor{DocID: "c3"})

	// Then: "b" was evicted and the size stays bounded
	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("b")
	assert.False(t, ok)
	_, ok = c.Get("a")
	assert.True(t, ok)
}

func TestCache_LastWriteWins(t *testing.T) {
	c := NewCache(4)
	c.Put("k", Cursor{DocID: "doc-05"})
	c.Put("k", Cursor{DocID: "doc-09"})

	got, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "doc-09", got.DocID)
	assert.Equal(t, 1, c.Len())
}

func TestCache_DefaultSizeAndPurge(t *testing.T) {
	c := NewCache(0)
	for i := 0; i < DefaultCacheSize+10; i++ {
		c.Put(fmt.Sprintf("k%d", i), Cursor{Score: float64(i)})
	}
	assert.Equal(t, DefaultCacheSize, c.Len())

	c.Purge()
	assert.Equal(t, 0, c.Len())
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := NewCache(50)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				k := fmt.Sprintf("k%d", i%20)
				c.Put(k, Cursor{Score: float64(g*1000 + i)})
				_, _ = c.Get(k)
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 50)
}
