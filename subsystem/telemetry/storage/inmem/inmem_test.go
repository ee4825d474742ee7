package inmem

import (
	"testing"

	"github.com/micromdm/nanoheal/subsystem/telemetry/storage"
	"github.com/micromdm/nanoheal/subsystem/telemetry/storage/test"
)

func TestInMem(t *testing.T) {
	test.TestStorage(t, func() storage.Storage { return New() })
}
