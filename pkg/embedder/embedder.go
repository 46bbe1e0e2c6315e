// Package embedder defines the interface the external
// embedding-model collaborator implements. The core never computes
// embeddings itself or loads a model; callers supply pre-computed
// vectors to the Retrieval Engine and the Store.
package embedder

import "context"

// Embedder maps text to a fixed-dimension float32 vector. Implementations
// own model loading, batching, and any hardware acceleration; none of
// that is specified here.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}
