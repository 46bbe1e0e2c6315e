package learner

import (
	"context"
	"testing"

	"github.com/denizumutdereli/neuralrag/pkg/apierr"
	"github.com/denizumutdereli/neuralrag/pkg/core"
	"github.com/denizumutdereli/neuralrag/pkg/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	s, err := store.Open(ctx, t.TempDir(), &core.StorageConfig{WALEnabled: true, FsyncPolicy: "off", StartupRepair: true})
	if err != nil {
		t.Fatalf("opening test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustCreateNeuron(t *testing.T, s *store.Store, path string, line int) *core.Neuron {
	t.Helper()
	n, err := s.CreateNeuron(context.Background(), core.NeuronCreateInput{
		Content: "x", FilePath: path, StartLine: line, EndLine: line + 1,
		Type: core.NeuronFunction, Name: "x", Language: "go",
	})
	if err != nil {
		t.Fatalf("creating neuron: %v", err)
	}
	return n
}

func TestObserveCoActivationCreatesThenStrengthens(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	h := New(s)

	a := mustCreateNeuron(t, s, "a.go", 1)
	b := mustCreateNeuron(t, s, "a.go", 5)

	if err := h.ObserveCoActivation(ctx, a.ID, b.ID); err != nil {
		t.Fatalf("first observe: %v", err)
	}
	outgoing, err := s.GetOutgoing(ctx, a.ID)
	if err != nil {
		t.Fatalf("getting outgoing: %v", err)
	}
	if len(outgoing) != 1 || outgoing[0].Weight != 0.3 {
		t.Fatalf("expected one co_activation synapse at weight 0.3, got %+v", outgoing)
	}

	if err := h.ObserveCoActivation(ctx, a.ID, b.ID); err != nil {
		t.Fatalf("second observe: %v", err)
	}
	outgoing, err = s.GetOutgoing(ctx, a.ID)
	if err != nil {
		t.Fatalf("getting outgoing: %v", err)
	}
	if len(outgoing) != 1 {
		t.Fatalf("expected still one synapse, got %d", len(outgoing))
	}
	if diff := outgoing[0].Weight - 0.35; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("weight = %f, want 0.35 after one strengthen", outgoing[0].Weight)
	}
}

func TestRepeatedCoActivationSaturatesAtOne(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	h := New(s)

	a := mustCreateNeuron(t, s, "a.go", 1)
	b := mustCreateNeuron(t, s, "a.go", 5)

	for i := 0; i < 20; i++ {
		if err := h.ObserveCoActivation(ctx, a.ID, b.ID); err != nil {
			t.Fatalf("observe %d: %v", i, err)
		}
	}

	outgoing, err := s.GetOutgoing(ctx, a.ID)
	if err != nil {
		t.Fatalf("getting outgoing: %v", err)
	}
	if outgoing[0].Weight != 1.0 {
		t.Fatalf("weight = %f, want saturated 1.0", outgoing[0].Weight)
	}
}

func TestCoActivationSynthesizedBothDirections(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	h := New(s)

	a := mustCreateNeuron(t, s, "a.go", 1)
	b := mustCreateNeuron(t, s, "b.go", 1)

	if err := h.ObserveCoActivation(ctx, a.ID, b.ID); err != nil {
		t.Fatalf("observe a->b: %v", err)
	}
	if err := h.ObserveCoActivation(ctx, b.ID, a.ID); err != nil {
		t.Fatalf("observe b->a: %v", err)
	}

	ab, err := s.GetOutgoing(ctx, a.ID)
	if err != nil || len(ab) != 1 {
		t.Fatalf("expected a->b synapse, got %+v err=%v", ab, err)
	}
	ba, err := s.GetOutgoing(ctx, b.ID)
	if err != nil || len(ba) != 1 {
		t.Fatalf("expected b->a synapse, got %+v err=%v", ba, err)
	}
}

func TestReinforceUseOnlyStrengthensExistingEdges(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	h := New(s)

	a := mustCreateNeuron(t, s, "a.go", 1)
	b := mustCreateNeuron(t, s, "a.go", 5)
	c := mustCreateNeuron(t, s, "a.go", 9)

	if _, err := s.CreateSynapse(ctx, core.SynapseCreateInput{SourceID: a.ID, TargetID: b.ID, Weight: 0.3, Type: core.SynapseCoActivation}); err != nil {
		t.Fatalf("seeding synapse: %v", err)
	}

	if err := h.ReinforceUse(ctx, []core.NeuronID{a.ID, b.ID, c.ID}); err != nil {
		t.Fatalf("reinforce use: %v", err)
	}

	outgoing, err := s.GetOutgoing(ctx, a.ID)
	if err != nil {
		t.Fatalf("getting outgoing: %v", err)
	}
	if len(outgoing) != 1 {
		t.Fatalf("expected reinforce to not create new edges, got %d", len(outgoing))
	}
	if diff := outgoing[0].Weight - 0.35; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("weight = %f, want 0.35", outgoing[0].Weight)
	}
}

func TestDecayNeverProducesNegativeWeights(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	h := New(s)

	a := mustCreateNeuron(t, s, "a.go", 1)
	b := mustCreateNeuron(t, s, "a.go", 5)
	if _, err := s.CreateSynapse(ctx, core.SynapseCreateInput{SourceID: a.ID, TargetID: b.ID, Weight: 0.05, Type: core.SynapseCoActivation}); err != nil {
		t.Fatalf("seeding synapse: %v", err)
	}
	// Backdate last_fired by adjusting weight with a negative delta through
	// the store's decay path directly against a synthetic old timestamp is
	// not exposed; instead exercise decay's floor behavior repeatedly.
	for i := 0; i < 5; i++ {
		if _, err := h.Decay(ctx, 0, 0.05); err != nil {
			t.Fatalf("decay: %v", err)
		}
	}

	outgoing, err := s.GetOutgoing(ctx, a.ID)
	if err != nil {
		t.Fatalf("getting outgoing: %v", err)
	}
	if outgoing[0].Weight < 0 {
		t.Fatalf("weight went negative: %f", outgoing[0].Weight)
	}
}

func TestPruneRemovesExactlyFloorWeightEdges(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	h := New(s)

	a := mustCreateNeuron(t, s, "a.go", 1)
	b := mustCreateNeuron(t, s, "a.go", 5)
	c := mustCreateNeuron(t, s, "a.go", 9)

	if _, err := s.CreateSynapse(ctx, core.SynapseCreateInput{SourceID: a.ID, TargetID: b.ID, Weight: 0, Type: core.SynapseCoActivation}); err != nil {
		t.Fatalf("seeding zero-weight synapse: %v", err)
	}
	if _, err := s.CreateSynapse(ctx, core.SynapseCreateInput{SourceID: a.ID, TargetID: c.ID, Weight: 0.3, Type: core.SynapseCoActivation}); err != nil {
		t.Fatalf("seeding nonzero synapse: %v", err)
	}

	n, err := h.Prune(ctx, 0)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 pruned, got %d", n)
	}

	outgoing, err := s.GetOutgoing(ctx, a.ID)
	if err != nil {
		t.Fatalf("getting outgoing: %v", err)
	}
	if len(outgoing) != 1 || outgoing[0].TargetID != c.ID {
		t.Fatalf("expected only the nonzero-weight edge to survive, got %+v", outgoing)
	}
}

func TestDecayJobBringsOldSynapseToZeroThenPruned(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	h := New(s)

	a := mustCreateNeuron(t, s, "a.go", 1)
	b := mustCreateNeuron(t, s, "a.go", 5)
	if _, err := s.CreateSynapse(ctx, core.SynapseCreateInput{SourceID: a.ID, TargetID: b.ID, Weight: 0.05, Type: core.SynapseCoActivation}); err != nil {
		t.Fatalf("seeding synapse: %v", err)
	}
	// Force last_fired ten days in the past by strengthening then manually
	// rewinding via a negative delta trip isn't available; daysOld=0 makes
	// "now" already past the cutoff for a freshly-created, never-fired edge,
	// which models the "last_fired older than days_old" condition via
	// created_at per DecaySynapses' COALESCE fallback.
	n, err := h.Decay(ctx, 0, 0.05)
	if err != nil {
		t.Fatalf("decay: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 synapse decayed, got %d", n)
	}

	pruned, err := h.Prune(ctx, 0)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("expected 1 synapse pruned after decay to zero, got %d", pruned)
	}
}

func TestObserveCoActivationIgnoresSelfLoop(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	h := New(s)

	a := mustCreateNeuron(t, s, "a.go", 1)
	if err := h.ObserveCoActivation(ctx, a.ID, a.ID); err != nil {
		t.Fatalf("expected no-op, got error: %v", err)
	}
}

func TestObserveCoActivationPropagatesUnexpectedErrors(t *testing.T) {
	h := New(&failingStore{})
	err := h.ObserveCoActivation(context.Background(), "a", "b")
	if err == nil || apierr.Is(err, apierr.Conflict) {
		t.Fatalf("expected a non-conflict error to propagate, got %v", err)
	}
}

type failingStore struct{}

func (f *failingStore) CreateSynapse(ctx context.Context, input core.SynapseCreateInput) (*core.Synapse, error) {
	return nil, apierr.Wrap(apierr.StoreFailure, "boom")
}
func (f *failingStore) AdjustWeight(ctx context.Context, source, target core.NeuronID, synType core.SynapseType, delta float64) error {
	return nil
}
func (f *failingStore) DecaySynapses(ctx context.Context, synType core.SynapseType, daysOld int, delta float64) (int, error) {
	return 0, nil
}
func (f *failingStore) PruneSynapses(ctx context.Context, synType core.SynapseType, floor float64) (int, error) {
	return 0, nil
}
