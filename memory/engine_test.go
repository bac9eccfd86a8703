package memory

import (
	"context"
	"errors"
	"testing"
)

func constantEmbedder(vec []float32) Embedder {
	return func(ctx context.Context, content string) ([]float32, error) {
		return append([]float32(nil), vec...), nil
	}
}

func TestCosineSimilarity(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{0, 1, 0}

	if got := cosineSimilarity(a, a); got != 1 {
		t.Errorf("cos(a, a) = %v, want 1", got)
	}
	if got := cosineSimilarity(a, []float32{0, 0, 0}); got != 0 {
		t.Errorf("cos(a, 0) = %v, want 0", got)
	}
	if got, want := cosineSimilarity(a, b), cosineSimilarity(b, a); got != want {
		t.Errorf("cosine not symmetric: %v != %v", got, want)
	}
	if got := cosineSimilarity(a, []float32{0, 1}); got != 0 {
		t.Errorf("cos of mismatched lengths = %v, want 0", got)
	}
}

func TestEngine_AddMemory_RejectsEmptyContent(t *testing.T) {
	e := NewEngine(constantEmbedder([]float32{1, 0}))
	if err := e.AddMemory(context.Background(), "   "); !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("got %v, want ErrEmptyContent", err)
	}
}

func TestEngine_AddMemory_CacheIdempotence(t *testing.T) {
	calls := 0
	embedder := func(ctx context.Context, content string) ([]float32, error) {
		calls++
		return []float32{1, 0}, nil
	}
	e := NewEngine(embedder, WithMaxFragments(10))

	if err := e.AddMemory(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}
	if err := e.AddMemory(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("embedder called %d times, want 1", calls)
	}
	if e.FragmentCount() != 2 {
		t.Errorf("fragment count = %d, want 2", e.FragmentCount())
	}
}

func TestEngine_AddMemory_EvictsOldestAtCap(t *testing.T) {
	e := NewEngine(constantEmbedder([]float32{1, 0}), WithMaxFragments(2))
	ctx := context.Background()

	if err := e.AddMemory(ctx, "first"); err != nil {
		t.Fatal(err)
	}
	if err := e.AddMemory(ctx, "second"); err != nil {
		t.Fatal(err)
	}
	if err := e.AddMemory(ctx, "third"); err != nil {
		t.Fatal(err)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if len(e.fragments) != 2 {
		t.Fatalf("fragment count = %d, want 2", len(e.fragments))
	}
	if e.fragments[0].Content != "second" || e.fragments[1].Content != "third" {
		t.Errorf("unexpected surviving fragments: %+v", e.fragments)
	}
}

func TestEngine_AddMemory_StoresMetadata(t *testing.T) {
	e := NewEngine(constantEmbedder([]float32{1, 0}))
	err := e.AddMemory(context.Background(), "hello", FragmentMetadata{
		Source: "conversation:42",
		Tags:   []string{"preference", "user-supplied"},
	})
	if err != nil {
		t.Fatal(err)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if len(e.fragments) != 1 {
		t.Fatalf("fragment count = %d, want 1", len(e.fragments))
	}
	got := e.fragments[0]
	if got.Source != "conversation:42" {
		t.Errorf("source = %q, want %q", got.Source, "conversation:42")
	}
	if len(got.Tags) != 2 || got.Tags[0] != "preference" || got.Tags[1] != "user-supplied" {
		t.Errorf("tags = %v, want [preference user-supplied]", got.Tags)
	}
}

func TestEngine_AddMemory_WithoutMetadataLeavesFieldsZero(t *testing.T) {
	e := NewEngine(constantEmbedder([]float32{1, 0}))
	if err := e.AddMemory(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	got := e.fragments[0]
	if got.Source != "" || got.Tags != nil {
		t.Errorf("expected zero metadata, got source=%q tags=%v", got.Source, got.Tags)
	}
}

func TestEngine_Search_EmptyQuery(t *testing.T) {
	e := NewEngine(constantEmbedder([]float32{1, 0}))
	results, err := e.Search(context.Background(), "", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results, want 0", len(results))
	}
}

func TestEngine_Search_RerankFailureDegradesToCosineOrder(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(constantEmbedder([]float32{1, 0}), WithSimilarityThreshold(-1))
	if err := e.AddMemory(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if err := e.AddMemory(ctx, "b"); err != nil {
		t.Fatal(err)
	}

	failingReranker := func(ctx context.Context, query string, candidates []Fragment) ([]Fragment, error) {
		return nil, errors.New("rerank backend unavailable")
	}
	e.reranker = failingReranker

	results, err := e.Search(ctx, "query", 2)
	if err != nil {
		t.Fatalf("search should degrade, not fail: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("got %d results, want 2", len(results))
	}
}
