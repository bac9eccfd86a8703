// Package memory implements the embedding-backed fragment store: a
// content-addressed embedding cache fronting an insertion-ordered fragment
// list, with cosine-similarity search and an optional rerank stage.
package memory

// Fragment is a stored (content, embedding) pair with metadata. D, the
// embedding dimension, is fixed per Engine by configuration.
type Fragment struct {
	Content   string
	Embedding []float32
	Timestamp int64
	Source    string
	Tags      []string
}
