// Package storage defines types and interfaces to support the telemetry subsystem.
package storage

import (
	"context"
	"errors"

	"github.com/micromdm/nanoheal/workflow"
)

var (
	ErrNoIDs       = errors.New("no IDs provided")
	ErrNoTelemetry = errors.New("no telemetry provided")
)

// SearchOptions is a basic query for telemetry of device IDs.
type SearchOptions struct {
	IDs []string // slice of device IDs to query against
}

type ReadStorage interface {
	// RetrieveTelemetry queries and returns the latest telemetry snapshots mapped by device ID.
	// Device IDs without stored telemetry are missing from the result.
	RetrieveTelemetry(ctx context.Context, opt *SearchOptions) (map[string]*workflow.Telemetry, error)
}

type Storage interface {
	ReadStorage

	// StoreTelemetry replaces the telemetry snapshot of a device ID.
	StoreTelemetry(ctx context.Context, id string, t *workflow.Telemetry) error

	// DeleteTelemetry deletes the telemetry snapshot of a device ID.
	// Deleting a device ID without telemetry is not an error.
	DeleteTelemetry(ctx context.Context, id string) error
}
