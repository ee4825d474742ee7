// Package diskv implements a diskv-backed telemetry subsystem storage backend.
package diskv

import (
	"path/filepath"

	"github.com/micromdm/nanoheal/subsystem/telemetry/storage/kv"

	"github.com/micromdm/nanolib/storage/kv/kvdiskv"
	"github.com/peterbourgon/diskv/v3"
)

// Diskv is an on-disk device telemetry store.
type Diskv struct {
	*kv.KV
}

func newBucket(path string) *kvdiskv.KVDiskv {
	return kvdiskv.New(diskv.New(diskv.Options{
		BasePath:     filepath.Join(path, "telemetry"),
		Transform:    kvdiskv.FlatTransform,
		CacheSizeMax: 1024 * 1024,
	}))
}

// New creates a new initialized telemetry data store.
func New(path string) *Diskv {
	return &Diskv{KV: kv.New(newBucket(path))}
}
