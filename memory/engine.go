package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

// Embedder produces a vector embedding for a piece of text. Implementations
// call out to whatever embedding model/provider is configured; Engine only
// depends on this function shape.
type Embedder func(ctx context.Context, content string) ([]float32, error)

// Reranker reorders search candidates for a query, returning an ordered
// subset. A Reranker failure degrades the search gracefully to plain
// cosine-similarity order rather than failing the search (see
// EngineOption WithReranker).
type Reranker func(ctx context.Context, query string, candidates []Fragment) ([]Fragment, error)

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithMaxFragments sets the LRU cap. Default 10,000, matching the
// reference fragment-store default.
func WithMaxFragments(n int) EngineOption {
	return func(e *Engine) { e.maxFragments = n }
}

// WithEmbeddingDim sets the expected embedding dimension used only for a
// mismatch warning; mismatched vectors are still stored.
func WithEmbeddingDim(d int) EngineOption {
	return func(e *Engine) { e.embeddingDim = d }
}

// WithSimilarityThreshold sets the minimum cosine score a fragment must
// clear to be considered a search candidate.
func WithSimilarityThreshold(t float32) EngineOption {
	return func(e *Engine) { e.similarityThreshold = t }
}

// WithReranker sets the rerank stage. If unset, Search returns fragments in
// plain cosine-similarity order.
func WithReranker(r Reranker) EngineOption {
	return func(e *Engine) { e.reranker = r }
}

// WithEngineLogger sets the structured logger. Defaults to a discarding
// logger so Engine never branches on a nil logger.
func WithEngineLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// Engine stores fragments and supports semantic search: a content-keyed
// embedding cache in front of an insertion-ordered fragment list, plus a
// side key-value map for opaque JSON blobs.
type Engine struct {
	mu        sync.RWMutex
	fragments []Fragment
	kv        map[string]json.RawMessage

	cache    *EmbeddingCache
	embedder Embedder
	reranker Reranker

	maxFragments        int
	embeddingDim        int
	similarityThreshold float32

	logger *slog.Logger
}

// NewEngine builds an Engine. embedder is required; with a nil embedder,
// AddMemory fails with ErrNoEmbedder for any non-empty content and Search
// for any non-empty query.
func NewEngine(embedder Embedder, opts ...EngineOption) *Engine {
	e := &Engine{
		kv:                  make(map[string]json.RawMessage),
		cache:               NewEmbeddingCache(),
		embedder:            embedder,
		maxFragments:        10_000,
		embeddingDim:        384,
		similarityThreshold: 0.1,
		logger:              discardLogger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ErrEmptyContent is returned by AddMemory for empty or whitespace-only
// content.
var ErrEmptyContent = fmt.Errorf("memory: content is empty")

// ErrNoEmbedder is returned when Engine was constructed without an
// Embedder.
var ErrNoEmbedder = fmt.Errorf("memory: no embedder configured")

// FragmentMetadata carries the optional provenance and tag metadata
// AddMemory attaches to the stored Fragment. Zero value means no
// metadata.
type FragmentMetadata struct {
	Source string
	Tags   []string
}

// AddMemory embeds content (using the cache when possible) and appends a
// fragment, evicting the oldest fragment by insertion order if the
// fragment count would exceed maxFragments. An optional FragmentMetadata
// attaches provenance (Source) and classification (Tags) to the stored
// fragment; only the first metadata argument is used.
func (e *Engine) AddMemory(ctx context.Context, content string, metadata ...FragmentMetadata) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}
	if e.embedder == nil {
		return ErrNoEmbedder
	}

	vec, ok := e.cache.Get(content)
	if !ok {
		start := time.Now()
		var err error
		vec, err = e.embedder(ctx, content)
		if err != nil {
			e.logger.Error("embedding failed", "duration", time.Since(start), "error", err)
			return fmt.Errorf("memory: embed content: %w", err)
		}
		e.cache.Set(content, vec)
	}
	if len(vec) != e.embeddingDim {
		e.logger.Warn("embedding dimension mismatch", "got", len(vec), "want", e.embeddingDim)
	}

	var meta FragmentMetadata
	if len(metadata) > 0 {
		meta = metadata[0]
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.fragments) >= e.maxFragments {
		e.fragments = e.fragments[1:]
	}
	e.fragments = append(e.fragments, Fragment{
		Content:   content,
		Embedding: vec,
		Timestamp: time.Now().Unix(),
		Source:    meta.Source,
		Tags:      meta.Tags,
	})
	return nil
}

// Search returns up to k fragments most relevant to query: cosine
// similarity filters and ranks candidates, the top 2k are handed to the
// configured Reranker (if any), and the first k of the reranked order are
// returned. An empty query returns an empty result. A Reranker error
// degrades to plain cosine order rather than failing the search.
func (e *Engine) Search(ctx context.Context, query string, k int) ([]Fragment, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if e.embedder == nil {
		return nil, ErrNoEmbedder
	}

	queryVec, ok := e.cache.Get(query)
	if !ok {
		var err error
		queryVec, err = e.embedder(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("memory: embed query: %w", err)
		}
		e.cache.Set(query, queryVec)
	}

	e.mu.RLock()
	type scored struct {
		fragment Fragment
		score    float32
		order    int
	}
	candidates := make([]scored, 0, len(e.fragments))
	for i, f := range e.fragments {
		score := cosineSimilarity(queryVec, f.Embedding)
		if score > e.similarityThreshold {
			candidates = append(candidates, scored{fragment: f, score: score, order: i})
		}
	}
	e.mu.RUnlock()

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].order < candidates[j].order
	})

	rerankCount := 2 * k
	if rerankCount > len(candidates) {
		rerankCount = len(candidates)
	}
	pool := make([]Fragment, rerankCount)
	for i := 0; i < rerankCount; i++ {
		pool[i] = candidates[i].fragment
	}

	ranked := pool
	if e.reranker != nil && len(pool) > 0 {
		reranked, err := e.reranker(ctx, query, pool)
		if err != nil {
			e.logger.Warn("rerank failed, falling back to cosine order", "error", err)
		} else {
			ranked = reranked
		}
	}

	if k > len(ranked) {
		k = len(ranked)
	}
	return ranked[:k], nil
}

// GetConfig returns a stored KV value by key.
func (e *Engine) GetConfig(key string) (json.RawMessage, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.kv[key]
	return v, ok
}

// SetConfig stores an opaque JSON value under key.
func (e *Engine) SetConfig(key string, value json.RawMessage) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.kv[key] = value
}

// FragmentCount returns the number of stored fragments.
func (e *Engine) FragmentCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.fragments)
}

// CacheStats returns the embedding cache's cumulative statistics.
func (e *Engine) CacheStats() CacheStats {
	return e.cache.Stats()
}

// cosineSimilarity returns the cosine similarity of a and b. Defined as 0
// on length mismatch or a zero-norm operand.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return float32(dot / denom)
}
