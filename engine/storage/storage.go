// Package storage defines types and primitives for workflow engine run storage backends.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/micromdm/nanoheal/workflow"
)

var (
	// ErrRunNotFound is returned when no run exists for an ID.
	ErrRunNotFound = errors.New("run not found")

	ErrEmptyRun     = errors.New("empty run")
	ErrMissingRunID = errors.New("missing run id")
)

// NewErrRunNotFound wraps ErrRunNotFound with the run ID.
func NewErrRunNotFound(id string) error {
	return fmt.Errorf("%w: %s", ErrRunNotFound, id)
}

// ValidateRun checks st for values required by storage backends.
func ValidateRun(st *workflow.State) error {
	if st == nil {
		return ErrEmptyRun
	}
	if st.ID == "" {
		return ErrMissingRunID
	}
	return nil
}

type ReadRunStorage interface {
	// RetrieveRun returns a copy of the stored run state for id.
	// ErrRunNotFound is returned (wrapped) if no such run exists.
	RetrieveRun(ctx context.Context, id string) (*workflow.State, error)
}

// RunStorage stores and retrieves run state records.
// Implementations must be safe for concurrent use. Each call is a
// single exclusive operation; no locks are held between calls.
type RunStorage interface {
	ReadRunStorage

	// StoreRun inserts or wholesale replaces the run record for st.ID.
	// Callers may keep modifying st after StoreRun returns.
	StoreRun(ctx context.Context, st *workflow.State) error
}
