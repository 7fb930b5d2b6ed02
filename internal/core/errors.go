package core

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrAlreadyInStatus     = errors.New("job already in requested status")
	ErrTriggerNotPermitted = errors.New("transition not permitted for this trigger")
	ErrConflict            = errors.New("job was modified concurrently")
	ErrNotFound            = errors.New("job not found")
	ErrPersistence         = errors.New("persistence failure")
	ErrStorage             = errors.New("artifact storage failure")
	ErrInvalidConfig       = errors.New("invalid print configuration")
)

// TransitionError describes a rejected status change. It matches
// ErrInvalidTransition, and additionally ErrAlreadyInStatus when From == To.
type TransitionError struct {
	From JobStatus
	To   JobStatus
}

func (e *TransitionError) Error() string {
	if e.From == e.To {
		return fmt.Sprintf("job already %s", e.To)
	}
	return fmt.Sprintf("invalid status transition from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() []error {
	if e.From == e.To {
		return []error{ErrInvalidTransition, ErrAlreadyInStatus}
	}
	return []error{ErrInvalidTransition}
}
