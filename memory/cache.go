package memory

import (
	"encoding/hex"
	"sync"
	"sync/atomic"

	"lukechampine.com/blake3"
)

// EmbeddingCacheKey computes the content-addressed cache key for content,
// per the invariant that keys are deterministic over content:
// "embedding:" + blake3_hex(content).
func EmbeddingCacheKey(content string) string {
	sum := blake3.Sum256([]byte(content))
	return "embedding:" + hex.EncodeToString(sum[:])
}

// CacheStats reports cumulative hit/miss counters for an EmbeddingCache.
type CacheStats struct {
	Hits   uint64
	Misses uint64
	Size   int
}

// EmbeddingCache is a concurrent content-hash keyed vector cache. It never
// yields an entry whose content hash does not match its key, because the
// key is always derived from the content at Set time — there is no path
// to insert under a mismatched key.
type EmbeddingCache struct {
	mu      sync.RWMutex
	entries map[string][]float32
	hits    atomic.Uint64
	misses  atomic.Uint64
}

// NewEmbeddingCache returns an empty cache.
func NewEmbeddingCache() *EmbeddingCache {
	return &EmbeddingCache{entries: make(map[string][]float32)}
}

// Get returns the cached embedding for content, if present.
func (c *EmbeddingCache) Get(content string) ([]float32, bool) {
	key := EmbeddingCacheKey(content)
	c.mu.RLock()
	vec, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return vec, ok
}

// Set stores vec under content's derived key.
func (c *EmbeddingCache) Set(content string, vec []float32) {
	key := EmbeddingCacheKey(content)
	c.mu.Lock()
	c.entries[key] = vec
	c.mu.Unlock()
}

// Stats returns a snapshot of cumulative cache statistics.
func (c *EmbeddingCache) Stats() CacheStats {
	c.mu.RLock()
	size := len(c.entries)
	c.mu.RUnlock()
	return CacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Size:   size,
	}
}
