// Package inmem implements an engine run storage backend using a map-based key-value store.
//
// Runs only live as long as the process: the store is created once at
// startup, handed to the engine and lost on restart.
package inmem

import (
	"github.com/micromdm/nanoheal/engine/storage/kv"

	"github.com/micromdm/nanolib/storage/kv/kvmap"
)

// InMem is an in-memory engine run storage backend.
type InMem struct {
	*kv.KV
}

// New creates a new in-memory run store.
func New() *InMem {
	return &InMem{KV: kv.New(kvmap.New())}
}
