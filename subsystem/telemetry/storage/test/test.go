// Package test runs a conformance suite against telemetry storage backends.
package test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/micromdm/nanoheal/subsystem/telemetry/storage"
	"github.com/micromdm/nanoheal/workflow"
)

func boolp(b bool) *bool { return &b }

func intp(i int) *int { return &i }

func TestStorage(t *testing.T, newStorage func() storage.Storage) {
	s := newStorage()
	ctx := context.Background()

	id := "PRN-AA11BB22"
	hb := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	tel := &workflow.Telemetry{
		Online:        boolp(false),
		LastHeartbeat: &hb,
		ErrorCodes:    []string{"INK_FW_002"},
		InkLevelCyan:  intp(0),
	}

	err := s.StoreTelemetry(ctx, id, tel)
	if err != nil {
		t.Fatal(err)
	}

	q := &storage.SearchOptions{IDs: []string{id, "PRN-missing"}}
	idTel, err := s.RetrieveTelemetry(ctx, q)
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := idTel["PRN-missing"]; ok {
		t.Error("expected missing id to be absent")
	}

	have, ok := idTel[id]
	if !ok {
		t.Fatal("expected id in id telemetry map")
	}
	if have.Online == nil || *have.Online {
		t.Errorf("online: have: %v, want: false", have.Online)
	}
	if have.LastHeartbeat == nil || !have.LastHeartbeat.Equal(hb) {
		t.Errorf("heartbeat: have: %v, want: %v", have.LastHeartbeat, hb)
	}
	if len(have.ErrorCodes) != 1 || have.ErrorCodes[0] != "INK_FW_002" {
		t.Errorf("error codes: have: %v", have.ErrorCodes)
	}
	if have.InkLevelCyan == nil || *have.InkLevelCyan != 0 {
		t.Errorf("cyan: have: %v, want: 0", have.InkLevelCyan)
	}
	if have.InkLevelBlack != nil {
		t.Errorf("black: have: %v, want: nil", *have.InkLevelBlack)
	}

	// snapshots are replaced, not merged
	err = s.StoreTelemetry(ctx, id, &workflow.Telemetry{Online: boolp(true)})
	if err != nil {
		t.Fatal(err)
	}
	idTel, err = s.RetrieveTelemetry(ctx, q)
	if err != nil {
		t.Fatal(err)
	}
	if have := idTel[id]; have == nil || have.Online == nil || !*have.Online || have.InkLevelCyan != nil {
		t.Errorf("expected replaced snapshot, have: %+v", have)
	}

	err = s.DeleteTelemetry(ctx, id)
	if err != nil {
		t.Fatal(err)
	}

	idTel, err = s.RetrieveTelemetry(ctx, q)
	if err != nil {
		t.Error(err)
	}

	if _, ok = idTel[id]; ok {
		t.Error("expected id to be missing in id telemetry map")
	}

	// deleting again is fine
	if err = s.DeleteTelemetry(ctx, id); err != nil {
		t.Error(err)
	}

	if _, err = s.RetrieveTelemetry(ctx, &storage.SearchOptions{}); !errors.Is(err, storage.ErrNoIDs) {
		t.Errorf("have: %v, want: %v", err, storage.ErrNoIDs)
	}

	if err = s.StoreTelemetry(ctx, "", tel); !errors.Is(err, storage.ErrNoIDs) {
		t.Errorf("have: %v, want: %v", err, storage.ErrNoIDs)
	}
}
