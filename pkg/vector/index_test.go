package vector

import (
	"context"
	"testing"

	"github.com/denizumutdereli/neuralrag/pkg/core"
)

type fakeLoader struct {
	neurons []*core.Neuron
}

func (f *fakeLoader) GetAllNeurons(ctx context.Context) ([]*core.Neuron, error) {
	return f.neurons, nil
}

func neuron(id string, embedding []float32) *core.Neuron {
	return &core.Neuron{ID: core.NeuronID(id), Embedding: embedding}
}

func TestFlatIndexTopKOrdersBySimilarityDescending(t *testing.T) {
	loader := &fakeLoader{neurons: []*core.Neuron{
		neuron("n1", []float32{1, 0, 0}),
		neuron("n2", []float32{0, 1, 0}),
		neuron("n3", []float32{0.9, 0.1, 0}),
	}}
	idx := NewFlatIndex(loader)

	matches, err := idx.TopK(context.Background(), []float32{1, 0, 0}, 3)
	if err != nil {
		t.Fatalf("TopK: %v", err)
	}
	if len(matches) != 3 {
		t.Fatalf("expected 3 matches, got %d", len(matches))
	}
	if matches[0].NeuronID != "n1" {
		t.Fatalf("expected n1 first (exact match), got %s", matches[0].NeuronID)
	}
	if matches[1].NeuronID != "n3" {
		t.Fatalf("expected n3 second, got %s", matches[1].NeuronID)
	}
	for i := 1; i < len(matches); i++ {
		if matches[i-1].Similarity < matches[i].Similarity {
			t.Fatalf("results not sorted descending: %+v", matches)
		}
	}
}

func TestFlatIndexExcludesEmptyEmbeddings(t *testing.T) {
	loader := &fakeLoader{neurons: []*core.Neuron{
		neuron("n1", []float32{1, 0, 0}),
		neuron("n2", nil),
	}}
	idx := NewFlatIndex(loader)

	matches, err := idx.TopK(context.Background(), []float32{1, 0, 0}, 10)
	if err != nil {
		t.Fatalf("TopK: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match (empty-embedding neuron excluded), got %d", len(matches))
	}
}

func TestFlatIndexTiesBrokenByNeuronID(t *testing.T) {
	loader := &fakeLoader{neurons: []*core.Neuron{
		neuron("zzz", []float32{1, 0}),
		neuron("aaa", []float32{1, 0}),
	}}
	idx := NewFlatIndex(loader)

	matches, err := idx.TopK(context.Background(), []float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("TopK: %v", err)
	}
	if matches[0].NeuronID != "aaa" {
		t.Fatalf("expected tie broken by ascending id, got order %v", matches)
	}
}

func TestFlatIndexInvalidateForcesRehydration(t *testing.T) {
	loader := &fakeLoader{neurons: []*core.Neuron{neuron("n1", []float32{1, 0})}}
	idx := NewFlatIndex(loader)

	if _, err := idx.TopK(context.Background(), []float32{1, 0}, 1); err != nil {
		t.Fatalf("TopK: %v", err)
	}
	if idx.Count() != 1 {
		t.Fatalf("expected 1 cached vector, got %d", idx.Count())
	}

	loader.neurons = append(loader.neurons, neuron("n2", []float32{0, 1}))
	idx.Invalidate()

	matches, err := idx.TopK(context.Background(), []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("TopK after invalidate: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected rehydration to pick up new neuron, got %d matches", len(matches))
	}
}

func TestFlatIndexTopKZeroWhenNoQuery(t *testing.T) {
	idx := NewFlatIndex(&fakeLoader{})
	matches, err := idx.TopK(context.Background(), nil, 5)
	if err != nil {
		t.Fatalf("TopK: %v", err)
	}
	if matches != nil {
		t.Fatalf("expected nil matches for empty query vector, got %v", matches)
	}
}
