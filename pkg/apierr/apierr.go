// Package apierr defines the sentinel error kinds shared across the store,
// retrieval engine, and learner, grounded on the teacher's pkg/api/apierr.
package apierr

import (
	"errors"
	"fmt"
)

// Kind is a sentinel error identifying the class of failure. Callers
// compare with errors.Is, never with ==, since Wrap always returns a
// wrapped error.
type Kind error

var (
	// NotFound means the caller referenced an id that does not exist.
	NotFound Kind = errors.New("not found")

	// InvalidArgument means a caller-supplied value violates an invariant
	// (out-of-range line span, bad weight, empty entries, wrong embedding
	// dimension).
	InvalidArgument Kind = errors.New("invalid argument")

	// Conflict means a unique-key violation surfaced to a caller who
	// asked for it (single-insert synapse creation).
	Conflict Kind = errors.New("conflict")

	// StoreFailure means the underlying storage engine failed: I/O,
	// corruption, or a schema-version mismatch.
	StoreFailure Kind = errors.New("store failure")

	// Cancelled means a deadline expired before the operation completed.
	Cancelled Kind = errors.New("cancelled")
)

// Wrap attaches kind to err's chain with a formatted message.
func Wrap(kind Kind, format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), kind)
}

// Is reports whether err's chain contains kind.
func Is(err error, kind Kind) bool {
	return errors.Is(err, kind)
}
