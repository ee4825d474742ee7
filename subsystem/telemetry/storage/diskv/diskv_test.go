package diskv

import (
	"context"
	"testing"

	"github.com/micromdm/nanoheal/subsystem/telemetry/storage"
	"github.com/micromdm/nanoheal/subsystem/telemetry/storage/test"

	kvtest "github.com/micromdm/nanolib/storage/kv/test"
)

func TestDiskv(t *testing.T) {
	test.TestStorage(t, func() storage.Storage { return New(t.TempDir()) })
}

func TestBucket(t *testing.T) {
	kvtest.TestBucketSimple(t, context.Background(), newBucket(t.TempDir()))
}
