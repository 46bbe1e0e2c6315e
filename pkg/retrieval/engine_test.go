package retrieval

import (
	"context"
	"testing"

	"github.com/denizumutdereli/neuralrag/pkg/core"
	"github.com/denizumutdereli/neuralrag/pkg/learner"
	"github.com/denizumutdereli/neuralrag/pkg/store"
	"github.com/denizumutdereli/neuralrag/pkg/vector"
	"github.com/denizumutdereli/neuralrag/pkg/walker"
)

// cancelingSource wraps a walker.SynapseSource and cancels a context
// right after the first call to GetOutgoing succeeds, simulating a
// deadline that expires mid-walk.
type cancelingSource struct {
	inner  walker.SynapseSource
	cancel context.CancelFunc
}

func (c *cancelingSource) GetOutgoing(ctx context.Context, id core.NeuronID) ([]*core.Synapse, error) {
	out, err := c.inner.GetOutgoing(ctx, id)
	c.cancel()
	return out, err
}

// harness wires a real Store, FlatIndex, and HebbianEngine together into
// an Engine, with the FlatIndex registered as the Store's invalidator.
type harness struct {
	store  *store.Store
	index  *vector.FlatIndex
	engine *Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	s, err := store.Open(ctx, t.TempDir(), &core.StorageConfig{WALEnabled: true, FsyncPolicy: "off", StartupRepair: true})
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	idx := vector.NewFlatIndex(s)
	s.RegisterInvalidator(idx)
	hebbian := learner.New(s)
	engine := New(s, idx, s, hebbian)

	return &harness{store: s, index: idx, engine: engine}
}

func (h *harness) createNeuron(t *testing.T, path string, line int, embedding []float32) *core.Neuron {
	t.Helper()
	n, err := h.store.CreateNeuron(context.Background(), core.NeuronCreateInput{
		Content: "x", FilePath: path, StartLine: line, EndLine: line + 1,
		Type: core.NeuronFunction, Name: "x", Language: "go", Embedding: embedding,
	})
	if err != nil {
		t.Fatalf("creating neuron: %v", err)
	}
	return n
}

func (h *harness) createSynapse(t *testing.T, source, target core.NeuronID, weight float64, synType core.SynapseType) {
	t.Helper()
	if _, err := h.store.CreateSynapse(context.Background(), core.SynapseCreateInput{
		SourceID: source, TargetID: target, Weight: weight, Type: synType,
	}); err != nil {
		t.Fatalf("creating synapse: %v", err)
	}
}

// TestQueryTwoFileGraph is spec scenario 1.
func TestQueryTwoFileGraph(t *testing.T) {
	h := newHarness(t)

	n1 := h.createNeuron(t, "a.go", 1, []float32{1, 0, 0})
	h.createNeuron(t, "a.go", 5, []float32{0, 1, 0})
	n3 := h.createNeuron(t, "b.go", 1, []float32{0.9, 0.1, 0})
	h.createSynapse(t, n1.ID, n3.ID, 0.8, core.SynapseImports)

	cfg := DefaultConfig()
	cfg.EntryCount = 1

	resp, err := h.engine.Query(context.Background(), "find n1", []float32{1, 0, 0}, cfg)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("expected 2 accepted results, got %d: %+v", len(resp.Results), resp.Results)
	}
	if resp.Results[0].Neuron.ID != n1.ID || resp.Results[0].Score != 1.0 {
		t.Fatalf("expected n1 first at score 1.0, got %+v", resp.Results[0])
	}
	wantN3 := 1.0 * 0.8 * DefaultDecayFactor
	if resp.Results[1].Neuron.ID != n3.ID {
		t.Fatalf("expected n3 second, got %+v", resp.Results[1])
	}
	if diff := resp.Results[1].Score - wantN3; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("n3 score = %f, want %f", resp.Results[1].Score, wantN3)
	}
}

// TestQueryDecayCutoffExcludesDistantNeuron is spec scenario 2.
func TestQueryDecayCutoffExcludesDistantNeuron(t *testing.T) {
	h := newHarness(t)

	n1 := h.createNeuron(t, "a.go", 1, []float32{1, 0, 0})
	n3 := h.createNeuron(t, "b.go", 1, []float32{0.9, 0.1, 0})
	h.createSynapse(t, n1.ID, n3.ID, 0.8, core.SynapseImports)

	cfg := DefaultConfig()
	cfg.EntryCount = 1
	cfg.MinActivation = 0.6

	resp, err := h.engine.Query(context.Background(), "find n1", []float32{1, 0, 0}, cfg)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].Neuron.ID != n1.ID {
		t.Fatalf("expected only n1 accepted, got %+v", resp.Results)
	}
}

// TestQuerySynthesizesCoActivationAndSaturates is spec scenario 3.
func TestQuerySynthesizesCoActivationAndSaturates(t *testing.T) {
	h := newHarness(t)

	n1 := h.createNeuron(t, "a.go", 1, []float32{1, 0, 0})
	n3 := h.createNeuron(t, "b.go", 1, []float32{0.9, 0.1, 0})
	h.createSynapse(t, n1.ID, n3.ID, 0.8, core.SynapseImports)

	cfg := DefaultConfig()
	cfg.EntryCount = 1

	for i := 0; i < 15; i++ {
		if _, err := h.engine.Query(context.Background(), "find n1", []float32{1, 0, 0}, cfg); err != nil {
			t.Fatalf("query %d: %v", i, err)
		}
	}

	forward, err := h.store.GetOutgoing(context.Background(), n1.ID)
	if err != nil {
		t.Fatalf("getting outgoing from n1: %v", err)
	}
	var coActivation *core.Synapse
	for _, s := range forward {
		if s.Type == core.SynapseCoActivation {
			coActivation = s
		}
	}
	if coActivation == nil {
		t.Fatalf("expected a co_activation synapse n1->n3")
	}
	if coActivation.Weight != 1.0 {
		t.Fatalf("weight = %f, want saturated 1.0 after 15 co-activations", coActivation.Weight)
	}

	backward, err := h.store.GetOutgoing(context.Background(), n3.ID)
	if err != nil {
		t.Fatalf("getting outgoing from n3: %v", err)
	}
	found := false
	for _, s := range backward {
		if s.Type == core.SynapseCoActivation && s.TargetID == n1.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected symmetric co_activation synapse n3->n1")
	}
}

func TestQueryLogsAndReportUsedStrengthens(t *testing.T) {
	h := newHarness(t)

	n1 := h.createNeuron(t, "a.go", 1, []float32{1, 0, 0})
	n3 := h.createNeuron(t, "b.go", 1, []float32{0.9, 0.1, 0})
	h.createSynapse(t, n1.ID, n3.ID, 0.8, core.SynapseImports)

	cfg := DefaultConfig()
	cfg.EntryCount = 1

	resp, err := h.engine.Query(context.Background(), "find n1", []float32{1, 0, 0}, cfg)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if resp.QueryID == "" {
		t.Fatalf("expected non-empty query id")
	}

	if err := h.engine.ReportUsed(context.Background(), resp.QueryID, []core.NeuronID{n1.ID, n3.ID}); err != nil {
		t.Fatalf("report used: %v", err)
	}

	entry, err := h.store.GetQueryLogEntry(context.Background(), resp.QueryID)
	if err != nil {
		t.Fatalf("getting query log entry: %v", err)
	}
	if len(entry.UsedNeuronIDs) != 2 {
		t.Fatalf("expected used ids recorded, got %+v", entry.UsedNeuronIDs)
	}
}

// TestQueryPartialWalkStillBooksAndLogs verifies that when the walk is
// cut short by context cancellation, the engine still performs
// activation bookkeeping and query logging for the partial set instead
// of failing the whole query (spec: a partial walk is a successful,
// partial response).
func TestQueryPartialWalkStillBooksAndLogs(t *testing.T) {
	h := newHarness(t)

	n1 := h.createNeuron(t, "a.go", 1, []float32{1, 0, 0})
	n3 := h.createNeuron(t, "b.go", 1, []float32{0.9, 0.1, 0})
	h.createSynapse(t, n1.ID, n3.ID, 0.8, core.SynapseImports)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	source := &cancelingSource{inner: h.store, cancel: cancel}
	engine := New(h.store, h.index, source, learner.New(h.store))

	cfg := DefaultConfig()
	cfg.EntryCount = 1

	resp, err := engine.Query(ctx, "find n1", []float32{1, 0, 0}, cfg)
	if err != nil {
		t.Fatalf("expected a partial response, not an error, got %v", err)
	}
	if !resp.Partial {
		t.Fatalf("expected Partial=true")
	}
	if len(resp.Results) != 1 || resp.Results[0].Neuron.ID != n1.ID {
		t.Fatalf("expected only n1 accepted before cancellation, got %+v", resp.Results)
	}

	got, err := h.store.GetNeuron(context.Background(), n1.ID)
	if err != nil {
		t.Fatalf("getting neuron: %v", err)
	}
	if got.ActivationCount != 1 {
		t.Fatalf("activation_count = %d, want 1 (bookkeeping must still run on a partial walk)", got.ActivationCount)
	}

	if resp.QueryID == "" {
		t.Fatalf("expected query to still be logged on a partial walk")
	}
	if _, err := h.store.GetQueryLogEntry(context.Background(), resp.QueryID); err != nil {
		t.Fatalf("expected query log entry to exist: %v", err)
	}
}

func TestQueryIncrementsActivationCount(t *testing.T) {
	h := newHarness(t)
	n1 := h.createNeuron(t, "a.go", 1, []float32{1, 0, 0})

	cfg := DefaultConfig()
	cfg.EntryCount = 1

	if _, err := h.engine.Query(context.Background(), "find n1", []float32{1, 0, 0}, cfg); err != nil {
		t.Fatalf("query: %v", err)
	}

	got, err := h.store.GetNeuron(context.Background(), n1.ID)
	if err != nil {
		t.Fatalf("getting neuron: %v", err)
	}
	if got.ActivationCount != 1 {
		t.Fatalf("activation_count = %d, want 1", got.ActivationCount)
	}
}
