// Package vector provides similarity search over neuron embeddings. The
// Index contract is deliberately narrow so a flat scan can later be
// swapped for an approximate nearest-neighbor structure without
// disturbing callers.
package vector

import (
	"context"
	"sort"
	"sync"

	"github.com/denizumutdereli/neuralrag/pkg/core"
	"github.com/denizumutdereli/neuralrag/pkg/vector/simd"
)

// Match is one result of a top-k similarity search.
type Match struct {
	NeuronID   core.NeuronID
	Similarity float64
}

// Index returns the top-k neurons by cosine similarity to a query
// vector. Ties are broken by neuron id ordering for determinism.
// Neurons with empty embeddings never appear in results.
type Index interface {
	TopK(ctx context.Context, queryVec []float32, k int) ([]Match, error)
	Invalidate()
	Count() int
}

// neuronLoader is the subset of the store the flat index needs to
// (re)hydrate itself. Kept narrow so tests can fake it without a real
// database.
type neuronLoader interface {
	GetAllNeurons(ctx context.Context) ([]*core.Neuron, error)
}

// FlatIndex is a flat in-memory scan over every embedded neuron, loaded
// lazily from the store and invalidated whenever the caller observes a
// write that could change the embedding set. A full scan is acceptable
// at the scales this system targets (tens of thousands of neurons).
type FlatIndex struct {
	loader neuronLoader

	mu       sync.RWMutex
	vectors  []entry // nil means "needs hydration"
	hydrated bool
}

type entry struct {
	id        core.NeuronID
	embedding []float32
}

// NewFlatIndex constructs a FlatIndex backed by loader. The index is
// empty until the first TopK call triggers hydration.
func NewFlatIndex(loader neuronLoader) *FlatIndex {
	return &FlatIndex{loader: loader}
}

// Invalidate marks the cached vector set stale; the next TopK call
// re-hydrates from the store. Callers must invoke this on every neuron
// insert, batch insert, file delete, or clear_all.
func (idx *FlatIndex) Invalidate() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.hydrated = false
	idx.vectors = nil
}

// Count returns the number of embedded vectors currently cached. It
// does not trigger hydration.
func (idx *FlatIndex) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.vectors)
}

func (idx *FlatIndex) ensureHydrated(ctx context.Context) error {
	idx.mu.RLock()
	if idx.hydrated {
		idx.mu.RUnlock()
		return nil
	}
	idx.mu.RUnlock()

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.hydrated {
		return nil
	}

	neurons, err := idx.loader.GetAllNeurons(ctx)
	if err != nil {
		return err
	}

	vectors := make([]entry, 0, len(neurons))
	for _, n := range neurons {
		if len(n.Embedding) == 0 {
			continue
		}
		vectors = append(vectors, entry{id: n.ID, embedding: n.Embedding})
	}
	idx.vectors = vectors
	idx.hydrated = true
	return nil
}

// TopK returns up to k neurons ranked by cosine similarity to
// queryVec, descending, ties broken by neuron id.
func (idx *FlatIndex) TopK(ctx context.Context, queryVec []float32, k int) ([]Match, error) {
	if err := idx.ensureHydrated(ctx); err != nil {
		return nil, err
	}
	if k <= 0 || len(queryVec) == 0 {
		return nil, nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	matches := make([]Match, 0, len(idx.vectors))
	for _, v := range idx.vectors {
		if len(v.embedding) != len(queryVec) {
			continue
		}
		matches = append(matches, Match{NeuronID: v.id, Similarity: simd.Cosine(queryVec, v.embedding)})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].NeuronID < matches[j].NeuronID
	})

	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}
