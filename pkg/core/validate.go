package core

import "github.com/denizumutdereli/neuralrag/pkg/apierr"

// ValidateLineSpan checks the start <= end invariant shared by every
// neuron read or write path.
func ValidateLineSpan(start, end int) error {
	if start > end {
		return apierr.Wrap(apierr.InvalidArgument, "start_line %d > end_line %d", start, end)
	}
	return nil
}

// ValidateNeuronType checks membership in the closed classification set.
func ValidateNeuronType(t NeuronType) error {
	if !ValidNeuronTypes[t] {
		return apierr.Wrap(apierr.InvalidArgument, "unknown neuron type %q", t)
	}
	return nil
}

// ValidateSynapseType checks membership in the closed relation-kind set.
func ValidateSynapseType(t SynapseType) error {
	if !ValidSynapseTypes[t] {
		return apierr.Wrap(apierr.InvalidArgument, "unknown synapse type %q", t)
	}
	return nil
}

// ValidateWeight checks the [0, 1] clamp invariant.
func ValidateWeight(w float64) error {
	if w < 0 || w > 1 {
		return apierr.Wrap(apierr.InvalidArgument, "weight %f out of [0,1]", w)
	}
	return nil
}

// ClampWeight clamps w into [0, 1]; used by every weight mutation path so
// the invariant holds unconditionally regardless of the delta applied.
func ClampWeight(w float64) float64 {
	switch {
	case w < 0:
		return 0
	case w > 1:
		return 1
	default:
		return w
	}
}
