// Package learner implements the Hebbian edge-mutation rules that adapt
// the synapse graph over time: co-activation synthesis when neurons are
// retrieved together, strengthening on reported use, and decay/pruning
// of stale co-activation edges. Structural synapse types (imports,
// calls, type_reference, extends, proximity, semantic) are never
// touched here; they are owned by the external indexer.
package learner

import (
	"context"
	"log"
	"time"

	"github.com/denizumutdereli/neuralrag/pkg/apierr"
	"github.com/denizumutdereli/neuralrag/pkg/core"
)

// strengthenDelta and initialWeight are literal constants per the
// source system's behavior; they are not exposed as configuration.
const (
	strengthenDelta = 0.05
	initialWeight   = 0.3
)

// Store is the subset of pkg/store.Store the Learner mutates.
type Store interface {
	CreateSynapse(ctx context.Context, input core.SynapseCreateInput) (*core.Synapse, error)
	AdjustWeight(ctx context.Context, source, target core.NeuronID, synType core.SynapseType, delta float64) error
	DecaySynapses(ctx context.Context, synType core.SynapseType, daysOld int, delta float64) (int, error)
	PruneSynapses(ctx context.Context, synType core.SynapseType, floor float64) (int, error)
}

// HebbianEngine owns the synapse weight-mutation rules. All methods are
// best-effort from the caller's perspective: the Retrieval Engine logs
// and ignores HebbianEngine errors rather than failing a query.
type HebbianEngine struct {
	store Store
}

// New constructs a HebbianEngine against store.
func New(store Store) *HebbianEngine {
	return &HebbianEngine{store: store}
}

// ObserveCoActivation strengthens or creates the co_activation synapse
// a→b: +0.05 (clamped) if it exists, otherwise a new edge at weight
// 0.3. The Retrieval Engine calls this for both (a,b) and (b,a) so the
// relation is symmetric.
func (h *HebbianEngine) ObserveCoActivation(ctx context.Context, a, b core.NeuronID) error {
	if a == b {
		return nil
	}
	_, err := h.store.CreateSynapse(ctx, core.SynapseCreateInput{
		SourceID: a,
		TargetID: b,
		Weight:   initialWeight,
		Type:     core.SynapseCoActivation,
	})
	if err == nil {
		return nil
	}
	if apierr.Is(err, apierr.Conflict) {
		return h.store.AdjustWeight(ctx, a, b, core.SynapseCoActivation, strengthenDelta)
	}
	return err
}

// ReinforceUse strengthens the co_activation edge for every ordered,
// distinct pair in ids×ids that already exists. It never creates new
// edges — that is ObserveCoActivation's job.
func (h *HebbianEngine) ReinforceUse(ctx context.Context, ids []core.NeuronID) error {
	var firstErr error
	for _, a := range ids {
		for _, b := range ids {
			if a == b {
				continue
			}
			if err := h.store.AdjustWeight(ctx, a, b, core.SynapseCoActivation, strengthenDelta); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Decay decrements every co_activation synapse whose last_fired is
// older than daysOld days by delta, clamped at 0. Returns the count
// mutated. Intended to run on a periodic external trigger, not per
// query.
func (h *HebbianEngine) Decay(ctx context.Context, daysOld int, delta float64) (int, error) {
	return h.store.DecaySynapses(ctx, core.SynapseCoActivation, daysOld, delta)
}

// Prune deletes co_activation synapses at or below floor. Structural
// synapses are never pruned here.
func (h *HebbianEngine) Prune(ctx context.Context, floor float64) (int, error) {
	return h.store.PruneSynapses(ctx, core.SynapseCoActivation, floor)
}

// RunDecayLoop runs Decay on interval until ctx is cancelled. Errors are
// logged, never fatal — per the Learner's best-effort failure semantics.
func (h *HebbianEngine) RunDecayLoop(ctx context.Context, interval time.Duration, daysOld int, delta float64) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := h.Decay(ctx, daysOld, delta)
			if err != nil {
				log.Printf("[learner] decay job failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("[learner] decayed %d co-activation synapses", n)
			}
		}
	}
}

// RunPruneLoop runs Prune on interval until ctx is cancelled.
func (h *HebbianEngine) RunPruneLoop(ctx context.Context, interval time.Duration, floor float64) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := h.Prune(ctx, floor)
			if err != nil {
				log.Printf("[learner] prune job failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("[learner] pruned %d co-activation synapses", n)
			}
		}
	}
}
