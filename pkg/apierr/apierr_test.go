package apierr

import (
	"errors"
	"testing"
)

func TestWrapAttachesKind(t *testing.T) {
	err := Wrap(NotFound, "neuron %s", "abc123")
	if !Is(err, NotFound) {
		t.Fatalf("expected wrapped error to match NotFound, got %v", err)
	}
	if Is(err, InvalidArgument) {
		t.Fatalf("expected wrapped error not to match an unrelated kind")
	}
}

func TestWrapMessageIncludesFormattedArgs(t *testing.T) {
	err := Wrap(InvalidArgument, "weight %f out of range", 1.5)
	if err.Error() == "" {
		t.Fatalf("expected non-empty error message")
	}
}

func TestIsUsesErrorsIsSemantics(t *testing.T) {
	err := Wrap(StoreFailure, "disk full")
	var target error = StoreFailure
	if !errors.Is(err, target) {
		t.Fatalf("expected errors.Is to match the sentinel kind directly")
	}
}
