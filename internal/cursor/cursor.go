// Package cursor remembers where the last page of a search stopped, so the
// next page can resume from there instead of re-reading the hit stream from
// the start.
package cursor

import (
	"crypto/sha256"
	"encoding/hex"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the default number of cursors kept.
const DefaultCacheSize = 1000

// Cursor is a position in one index's ranked hit stream: the score and id
// of the last consumed hit. Reading resumes strictly after it.
type Cursor struct {
	Score float64
	DocID string
}

// IsZero reports whether c is the start of the stream.
func (c Cursor) IsZero() bool {
	return c.DocID == ""
}

// Cache is a bounded LRU of cursors shared by all requests. Concurrent writers
// of the same key race and the last write wins; an evicted or overwritten
// entry only sends the next request down the cold path.
type Cache struct {
	cache  *lru.Cache[string, Cursor]
	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewCache creates a cache holding up to size cursors.
func NewCache(size int) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, _ := lru.New[string, Cursor](size)
	return &Cache{cache: cache}
}

// key hashes request keys so long query strings cost a fixed amount of memory.
func key(requestKey string) string {
	sum := sha256.Sum256([]byte(requestKey))
	return hex.EncodeToString(sum[:])
}

// Get returns the cursor stored under requestKey.
func (c *Cache) Get(requestKey string) (Cursor, bool) {
	cur, ok := c.cache.Get(key(requestKey))
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return cur, ok
}

// Put stores cur under requestKey.
func (c *Cache) Put(requestKey string, cur Cursor) {
	c.cache.Add(key(requestKey), cur)
}

// Len returns the number of cached cursors.
func (c *Cache) Len() int {
	return c.cache.Len()
}

// Purge drops every cursor.
func (c *Cache) Purge() {
	c.cache.Purge()
}

// Stats returns the hit and miss counts since creation.
func (c *Cache) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}
