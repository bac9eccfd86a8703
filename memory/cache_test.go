package memory

import "testing"

func TestEmbeddingCacheKey_DeterministicOverContent(t *testing.T) {
	if EmbeddingCacheKey("hello") != EmbeddingCacheKey("hello") {
		t.Fatal("key must be deterministic for identical content")
	}
	if EmbeddingCacheKey("hello") == EmbeddingCacheKey("world") {
		t.Fatal("different content must not collide")
	}
}

func TestEmbeddingCache_GetSet(t *testing.T) {
	c := NewEmbeddingCache()
	if _, ok := c.Get("x"); ok {
		t.Fatal("expected miss on empty cache")
	}
	c.Set("x", []float32{1, 2, 3})
	vec, ok := c.Get("x")
	if !ok {
		t.Fatal("expected hit after Set")
	}
	if len(vec) != 3 {
		t.Errorf("got len %d, want 3", len(vec))
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 || stats.Size != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}
