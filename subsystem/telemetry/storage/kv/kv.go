// Package kv implements a telemetry subsystem storage backend using a key-value store.
package kv

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/micromdm/nanoheal/subsystem/telemetry/storage"
	"github.com/micromdm/nanoheal/workflow"

	"github.com/micromdm/nanolib/storage/kv"
)

// KV is a telemetry subsystem storage backend using a key-value store.
type KV struct {
	b kv.CRUDBucket
}

// New creates a new telemetry subsystem backend.
func New(b kv.CRUDBucket) *KV {
	return &KV{b: b}
}

// RetrieveTelemetry queries and returns the telemetry snapshots mapped
// by device ID from the key-value store. Must provide opt and IDs.
func (s *KV) RetrieveTelemetry(ctx context.Context, opt *storage.SearchOptions) (map[string]*workflow.Telemetry, error) {
	if opt == nil || len(opt.IDs) < 1 {
		return nil, storage.ErrNoIDs
	}

	r := make(map[string]*workflow.Telemetry)
	for _, id := range opt.IDs {
		if found, err := s.b.Has(ctx, id); err != nil {
			return r, fmt.Errorf("checking telemetry for %s: %w", id, err)
		} else if !found {
			continue
		}

		jsonTelemetry, err := s.b.Get(ctx, id)
		if err != nil {
			return r, fmt.Errorf("getting telemetry for %s: %w", id, err)
		}

		t := new(workflow.Telemetry)
		if err = json.Unmarshal(jsonTelemetry, t); err != nil {
			return r, fmt.Errorf("unmarshal telemetry for %s: %w", id, err)
		}
		r[id] = t
	}
	return r, nil
}

// StoreTelemetry replaces the telemetry snapshot of id.
func (s *KV) StoreTelemetry(ctx context.Context, id string, t *workflow.Telemetry) error {
	if id == "" {
		return storage.ErrNoIDs
	}
	if t == nil {
		return storage.ErrNoTelemetry
	}

	jsonTelemetry, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal telemetry: %w", err)
	}

	if err = s.b.Set(ctx, id, jsonTelemetry); err != nil {
		return fmt.Errorf("set telemetry: %w", err)
	}

	return nil
}

// DeleteTelemetry deletes the telemetry snapshot of id.
func (s *KV) DeleteTelemetry(ctx context.Context, id string) error {
	return s.b.Delete(ctx, id)
}
