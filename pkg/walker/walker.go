// Package walker implements bounded best-first spreading activation over
// the synapse graph: given a set of entry neurons with seed scores, it
// expands outward along outgoing synapses, decaying the score
// geometrically at each hop, until it has accepted enough neurons or
// exhausted the frontier.
package walker

import (
	"container/heap"
	"context"

	"github.com/denizumutdereli/neuralrag/pkg/core"
)

// Entry is a seed neuron with its initial activation score, normally
// derived from vector similarity.
type Entry struct {
	NeuronID core.NeuronID
	Score    float64
}

// ActivationResult is one accepted neuron from a walk: its best
// discovered score, the hop depth at which it was accepted, and the
// path of neuron ids from its entry point.
type ActivationResult struct {
	NeuronID core.NeuronID
	Score    float64
	Depth    int
	Path     []core.NeuronID
}

// Config bounds a single walk.
type Config struct {
	MaxNeurons    int
	DecayFactor   float64 // in (0, 1)
	MinActivation float64 // in [0, 1)
}

// SynapseSource supplies the outgoing edges of a neuron during a walk.
// The store's GetOutgoing satisfies this directly.
type SynapseSource interface {
	GetOutgoing(ctx context.Context, neuronID core.NeuronID) ([]*core.Synapse, error)
}

// candidate is one entry in the walker's priority queue.
type candidate struct {
	neuronID core.NeuronID
	score    float64
	depth    int
	path     []core.NeuronID
}

// frontier is a max-heap of candidates ordered by score descending,
// then depth ascending, then neuron id — matching the result ordering
// the spec requires so a deterministic pop order yields a deterministic
// accept order.
type frontier []*candidate

func (f frontier) Len() int { return len(f) }
func (f frontier) Less(i, j int) bool {
	a, b := f[i], f[j]
	if a.score != b.score {
		return a.score > b.score
	}
	if a.depth != b.depth {
		return a.depth < b.depth
	}
	return a.neuronID < b.neuronID
}
func (f frontier) Swap(i, j int)      { f[i], f[j] = f[j], f[i] }
func (f *frontier) Push(x any)        { *f = append(*f, x.(*candidate)) }
func (f *frontier) Pop() any {
	old := *f
	n := len(old)
	item := old[n-1]
	*f = old[:n-1]
	return item
}

// Walk runs bounded best-first spreading activation from entries over
// source, honoring cfg. If ctx is cancelled or its deadline expires
// mid-walk, Walk returns the accepted set so far (possibly empty) along
// with ctx.Err(), rather than discarding partial progress — the caller
// is expected to treat a non-nil error here as "partial results,
// continue anyway" per the retrieval engine's deadline handling.
func Walk(ctx context.Context, source SynapseSource, entries []Entry, cfg Config) ([]ActivationResult, error) {
	if cfg.MaxNeurons <= 0 {
		return nil, nil
	}

	pq := &frontier{}
	heap.Init(pq)
	for _, e := range entries {
		if e.Score <= 0 || e.Score > 1 {
			continue
		}
		heap.Push(pq, &candidate{
			neuronID: e.NeuronID,
			score:    e.Score,
			depth:    0,
			path:     []core.NeuronID{e.NeuronID},
		})
	}

	bestScore := make(map[core.NeuronID]float64)
	var accepted []ActivationResult

	for pq.Len() > 0 && len(accepted) < cfg.MaxNeurons {
		select {
		case <-ctx.Done():
			return accepted, ctx.Err()
		default:
		}

		c := heap.Pop(pq).(*candidate)

		if prev, ok := bestScore[c.neuronID]; ok && prev >= c.score {
			continue
		}
		bestScore[c.neuronID] = c.score
		accepted = append(accepted, ActivationResult{
			NeuronID: c.neuronID,
			Score:    c.score,
			Depth:    c.depth,
			Path:     c.path,
		})

		outgoing, err := source.GetOutgoing(ctx, c.neuronID)
		if err != nil {
			return accepted, err
		}

		for _, syn := range outgoing {
			propagated := c.score * syn.Weight * cfg.DecayFactor
			if propagated < cfg.MinActivation {
				continue
			}
			if prev, ok := bestScore[syn.TargetID]; ok && prev >= propagated {
				continue
			}
			path := make([]core.NeuronID, len(c.path), len(c.path)+1)
			copy(path, c.path)
			path = append(path, syn.TargetID)
			heap.Push(pq, &candidate{
				neuronID: syn.TargetID,
				score:    propagated,
				depth:    c.depth + 1,
				path:     path,
			})
		}
	}

	return accepted, nil
}

// AvgActivationDepth is the mean depth over accepted results, 0 if none.
func AvgActivationDepth(results []ActivationResult) float64 {
	if len(results) == 0 {
		return 0
	}
	var sum int
	for _, r := range results {
		sum += r.Depth
	}
	return float64(sum) / float64(len(results))
}
