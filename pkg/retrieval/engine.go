// Package retrieval composes the vector index, graph walker, and
// Hebbian learner into the single entry point external callers use:
// query in, a ranked, adaptively-learned set of neurons out.
package retrieval

import (
	"context"
	"errors"
	"log"

	"github.com/denizumutdereli/neuralrag/pkg/core"
	"github.com/denizumutdereli/neuralrag/pkg/vector"
	"github.com/denizumutdereli/neuralrag/pkg/walker"
)

// Default retrieval parameters, per spec.
const (
	DefaultMaxNeurons    = 15
	DefaultEntryCount    = 3
	DefaultDecayFactor   = 0.7
	DefaultMinActivation = 0.1
)

// Config bounds one query. Query replaces a non-positive MaxNeurons or
// EntryCount, a DecayFactor outside (0, 1), and a MinActivation outside
// [0, 1) with the package defaults; a zero MinActivation is kept.
type Config struct {
	MaxNeurons      int
	EntryCount      int
	DecayFactor     float64
	MinActivation   float64
	SimilarityFloor *float64 // optional; entries below this are dropped
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxNeurons:    DefaultMaxNeurons,
		EntryCount:    DefaultEntryCount,
		DecayFactor:   DefaultDecayFactor,
		MinActivation: DefaultMinActivation,
	}
}

// FromCoreConfig maps a core.RetrievalConfig (as loaded from the
// four-layer configuration hierarchy) onto a retrieval Config.
func FromCoreConfig(c core.RetrievalConfig) Config {
	return Config{
		MaxNeurons:      c.MaxNeurons,
		EntryCount:      c.EntryCount,
		DecayFactor:     c.DecayFactor,
		MinActivation:   c.MinActivation,
		SimilarityFloor: c.SimilarityFloor,
	}
}

// Result is one ranked, hydrated neuron returned from a query.
type Result struct {
	Neuron *core.Neuron
	Score  float64
	Depth  int
	Path   []core.NeuronID
}

// QueryResponse is the full outcome of a Query call.
type QueryResponse struct {
	QueryID            string
	Results            []Result
	Partial            bool // true if a deadline cut the walk short
	AvgActivationDepth float64
}

// NeuronStore is the subset of pkg/store.Store the Retrieval Engine
// reads and mutates directly (synapse mutation is the Learner's job).
type NeuronStore interface {
	GetNeuron(ctx context.Context, id core.NeuronID) (*core.Neuron, error)
	IncrementActivation(ctx context.Context, id core.NeuronID) error
	LogQuery(ctx context.Context, query string, activatedIDs []core.NeuronID, usedIDs []core.NeuronID) (string, error)
	ReportUsed(ctx context.Context, queryID string, usedIDs []core.NeuronID) error
}

// Learner is the subset of pkg/learner.HebbianEngine the Retrieval
// Engine drives. Its errors are logged and swallowed, never returned to
// the query caller.
type Learner interface {
	ObserveCoActivation(ctx context.Context, a, b core.NeuronID) error
	ReinforceUse(ctx context.Context, ids []core.NeuronID) error
}

// Engine composes the Store, Vector Index, Graph Walker, and Learner
// into the spreading-activation retrieval pipeline.
type Engine struct {
	store   NeuronStore
	index   vector.Index
	source  walker.SynapseSource
	learner Learner
}

// New constructs a retrieval Engine. source supplies outgoing synapses
// to the Graph Walker; it is normally the same *store.Store as store.
func New(store NeuronStore, index vector.Index, source walker.SynapseSource, learner Learner) *Engine {
	return &Engine{store: store, index: index, source: source, learner: learner}
}

// Query runs the full retrieval pipeline: vector entry selection, graph
// expansion, activation bookkeeping, co-activation synthesis, and query
// logging.
func (e *Engine) Query(ctx context.Context, text string, queryEmbedding []float32, cfg Config) (*QueryResponse, error) {
	cfg = applyDefaults(cfg)

	matches, err := e.index.TopK(ctx, queryEmbedding, cfg.EntryCount)
	if err != nil {
		return nil, err
	}

	var entries []walker.Entry
	for _, m := range matches {
		if cfg.SimilarityFloor != nil && m.Similarity < *cfg.SimilarityFloor {
			continue
		}
		score := m.Similarity
		if score <= 0 {
			continue
		}
		if score > 1 {
			score = 1
		}
		entries = append(entries, walker.Entry{NeuronID: m.NeuronID, Score: score})
	}

	walkResults, walkErr := walker.Walk(ctx, e.source, entries, walker.Config{
		MaxNeurons:    cfg.MaxNeurons,
		DecayFactor:   cfg.DecayFactor,
		MinActivation: cfg.MinActivation,
	})

	// bookCtx backs every store call below. A walk that stopped on its
	// own deadline/cancellation still owes bookkeeping and logging for
	// the partial set it already accepted (spec: a partial walk is a
	// successful response, not a failure) — context.WithoutCancel keeps
	// request-scoped values but drops the expired deadline so those
	// calls aren't doomed to fail with the same error that ended the walk.
	bookCtx := ctx
	partial := false
	if walkErr != nil {
		if errors.Is(walkErr, context.DeadlineExceeded) || errors.Is(walkErr, context.Canceled) {
			partial = true
			bookCtx = context.WithoutCancel(ctx)
		} else {
			return nil, walkErr
		}
	}

	results := make([]Result, 0, len(walkResults))
	activatedIDs := make([]core.NeuronID, 0, len(walkResults))
	for _, wr := range walkResults {
		if err := e.store.IncrementActivation(bookCtx, wr.NeuronID); err != nil {
			return nil, err
		}
		n, err := e.store.GetNeuron(bookCtx, wr.NeuronID)
		if err != nil {
			return nil, err
		}
		results = append(results, Result{Neuron: n, Score: wr.Score, Depth: wr.Depth, Path: wr.Path})
		activatedIDs = append(activatedIDs, wr.NeuronID)
	}

	e.synthesizeCoActivations(bookCtx, activatedIDs)

	queryID, err := e.store.LogQuery(bookCtx, text, activatedIDs, nil)
	if err != nil {
		return nil, err
	}

	return &QueryResponse{
		QueryID:            queryID,
		Results:            results,
		Partial:            partial,
		AvgActivationDepth: walker.AvgActivationDepth(walkResults),
	}, nil
}

// synthesizeCoActivations calls Learner.ObserveCoActivation for every
// ordered pair of distinct accepted neurons. Failures are logged and
// swallowed: Learner errors never fail a query.
func (e *Engine) synthesizeCoActivations(ctx context.Context, ids []core.NeuronID) {
	for _, a := range ids {
		for _, b := range ids {
			if a == b {
				continue
			}
			if err := e.learner.ObserveCoActivation(ctx, a, b); err != nil {
				log.Printf("[retrieval] co-activation synthesis %s->%s failed: %v", a, b, err)
			}
		}
	}
}

// ReportUsed records which of a query's activated neurons the caller
// actually used, and instructs the Learner to strengthen the
// co-activation edges among them.
func (e *Engine) ReportUsed(ctx context.Context, queryID string, usedIDs []core.NeuronID) error {
	if err := e.store.ReportUsed(ctx, queryID, usedIDs); err != nil {
		return err
	}
	if err := e.learner.ReinforceUse(ctx, usedIDs); err != nil {
		log.Printf("[retrieval] reinforce_use for query %s failed: %v", queryID, err)
	}
	return nil
}

func applyDefaults(cfg Config) Config {
	d := DefaultConfig()
	if cfg.MaxNeurons <= 0 {
		cfg.MaxNeurons = d.MaxNeurons
	}
	if cfg.EntryCount <= 0 {
		cfg.EntryCount = d.EntryCount
	}
	if cfg.DecayFactor <= 0 || cfg.DecayFactor >= 1 {
		cfg.DecayFactor = d.DecayFactor
	}
	if cfg.MinActivation < 0 || cfg.MinActivation >= 1 {
		cfg.MinActivation = d.MinActivation
	}
	return cfg
}
