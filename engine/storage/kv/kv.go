// Package kv implements a workflow engine run storage backend using a key-value interface.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/micromdm/nanoheal/engine/storage"
	"github.com/micromdm/nanoheal/workflow"

	"github.com/micromdm/nanolib/storage/kv"
)

// KV is a workflow engine run storage backend using a key-value interface.
// Run records are stored JSON encoded which means both stores and
// retrievals operate on independent copies of a record.
type KV struct {
	mu       sync.RWMutex
	runStore kv.CRUDBucket
}

// New creates a new key-value workflow engine run storage backend.
func New(runStore kv.CRUDBucket) *KV {
	return &KV{runStore: runStore}
}

// StoreRun implements the storage interface method.
func (s *KV) StoreRun(ctx context.Context, st *workflow.State) error {
	if err := storage.ValidateRun(st); err != nil {
		return err
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal run %s: %w", st.ID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err = s.runStore.Set(ctx, st.ID, raw); err != nil {
		return fmt.Errorf("setting run %s: %w", st.ID, err)
	}
	return nil
}

// RetrieveRun implements the storage interface method.
func (s *KV) RetrieveRun(ctx context.Context, id string) (*workflow.State, error) {
	if id == "" {
		return nil, storage.ErrMissingRunID
	}
	s.mu.RLock()
	raw, err := s.runStore.Get(ctx, id)
	s.mu.RUnlock()
	if errors.Is(err, kv.ErrKeyNotFound) {
		return nil, storage.NewErrRunNotFound(id)
	} else if err != nil {
		return nil, fmt.Errorf("getting run %s: %w", id, err)
	}
	st := new(workflow.State)
	if err = json.Unmarshal(raw, st); err != nil {
		return nil, fmt.Errorf("unmarshal run %s: %w", id, err)
	}
	return st, nil
}
