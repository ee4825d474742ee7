// Package inmem implements an in-memory telemetry subsystem storage backend.
package inmem

import (
	"github.com/micromdm/nanoheal/subsystem/telemetry/storage/kv"

	"github.com/micromdm/nanolib/storage/kv/kvmap"
)

// InMem is an in-memory telemetry subsystem storage system backend.
type InMem struct {
	*kv.KV
}

// New creates a new telemetry subsystem storage system backend.
func New() *InMem {
	return &InMem{KV: kv.New(kvmap.New())}
}
