package main

import (
	"fmt"

	storageengine "github.com/micromdm/nanoheal/engine/storage"
	storageengineinmem "github.com/micromdm/nanoheal/engine/storage/inmem"
	storagetel "github.com/micromdm/nanoheal/subsystem/telemetry/storage"
	storageteldiskv "github.com/micromdm/nanoheal/subsystem/telemetry/storage/diskv"
	storagetelinmem "github.com/micromdm/nanoheal/subsystem/telemetry/storage/inmem"
	storagetelmysql "github.com/micromdm/nanoheal/subsystem/telemetry/storage/mysql"

	_ "github.com/go-sql-driver/mysql"
)

// newRunStorage creates the workflow run store.
// Runs live for the lifetime of the process.
func newRunStorage() storageengine.RunStorage {
	return storageengineinmem.New()
}

// parseStorage creates the telemetry storage backend called name.
func parseStorage(name, dsn string) (storagetel.Storage, error) {
	switch name {
	case "inmem":
		return storagetelinmem.New(), nil
	case "file", "diskv":
		if dsn == "" {
			dsn = "db"
		}
		return storageteldiskv.New(dsn), nil
	case "mysql":
		s, err := storagetelmysql.New(storagetelmysql.WithDSN(dsn))
		if err != nil {
			return nil, fmt.Errorf("creating telemetry mysql storage: %w", err)
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown storage: %s", name)
}
