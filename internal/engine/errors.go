package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrCartUnavailable flags an initial load failure. The engine degrades
	// to an empty cart so views can still render, but callers can tell
	// "load failed" apart from "truly empty".
	ErrCartUnavailable = errors.New("cart could not be loaded")

	// ErrLineBusy rejects a second mutation against a line that already has
	// one in flight. A stale rollback must never clobber a newer optimistic
	// update.
	ErrLineBusy = errors.New("cart line has a mutation in flight")

	ErrLineNotFound = errors.New("cart line not found")
)

// Op names the mutation a MutationError came from.
type Op string

const (
	OpAdd    Op = "add"
	OpUpdate Op = "update"
	OpRemove Op = "remove"
)

// MutationError reports a failed cart mutation. When the underlying cause is
// a remote failure the optimistic local change has already been rolled back;
// when it is ErrLineBusy or ErrLineNotFound no local change was made.
type MutationError struct {
	Op     Op
	LineID string
	Err    error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("cart %s for line %s failed: %v", e.Op, e.LineID, e.Err)
}

func (e *MutationError) Unwrap() error {
	return e.Err
}
