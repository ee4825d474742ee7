// Package http contains HTTP handlers for working with the telemetry subsystem.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/micromdm/nanoheal/http/api"
	"github.com/micromdm/nanoheal/log/logkeys"
	"github.com/micromdm/nanoheal/subsystem/telemetry/storage"
	"github.com/micromdm/nanoheal/workflow"

	"github.com/alexedwards/flow"
	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
)

var (
	ErrNoIDs       = errors.New("no IDs provided")
	ErrNoStorage   = errors.New("no storage backend")
	ErrBadBody     = errors.New("invalid request body")
	ErrNoTelemetry = errors.New("no telemetry found")
)

// maxBodySize caps the size of a telemetry snapshot upload.
const maxBodySize = 64 << 10

// RetrieveTelemetry returns an HTTP handler that retrieves telemetry for device IDs.
func RetrieveTelemetry(store storage.ReadStorage, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		if store == nil {
			logger.Info(logkeys.Message, "retrieve telemetry", logkeys.Error, ErrNoStorage)
			api.JSONError(w, ErrNoStorage, 0)
			return
		}

		ids := r.URL.Query()["id"]
		if len(ids) < 1 {
			logger.Info(logkeys.Message, "parameters", logkeys.Error, ErrNoIDs)
			api.JSONError(w, ErrNoIDs, http.StatusBadRequest)
			return
		}

		logger = logger.With(
			logkeys.FirstDeviceID, ids[0],
			logkeys.GenericCount, len(ids),
		)
		opts := &storage.SearchOptions{IDs: ids}
		idTelemetry, err := store.RetrieveTelemetry(r.Context(), opts)
		if err != nil {
			logger.Info(logkeys.Message, "retrieve telemetry", logkeys.Error, err)
			api.JSONError(w, err, 0)
			return
		}
		if len(idTelemetry) < 1 {
			logger.Debug(logkeys.Message, "retrieve telemetry", logkeys.Error, ErrNoTelemetry)
			api.JSONError(w, ErrNoTelemetry, http.StatusNotFound)
			return
		}
		logger.Debug(
			logkeys.Message, "retrieved telemetry",
		)
		w.Header().Set("Content-type", "application/json")
		err = json.NewEncoder(w).Encode(idTelemetry)
		if err != nil {
			logger.Info(logkeys.Message, "encode response", logkeys.Error, err)
			return
		}
	}
}

// StoreTelemetry returns an HTTP handler that replaces the telemetry snapshot of a device.
func StoreTelemetry(store storage.Storage, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		if store == nil {
			logger.Info(logkeys.Message, "store telemetry", logkeys.Error, ErrNoStorage)
			api.JSONError(w, ErrNoStorage, 0)
			return
		}

		id := flow.Param(r.Context(), "id")
		if id == "" {
			logger.Info(logkeys.Message, "parameters", logkeys.Error, ErrNoIDs)
			api.JSONError(w, ErrNoIDs, http.StatusBadRequest)
			return
		}
		logger = logger.With(logkeys.DeviceID, id)

		t := new(workflow.Telemetry)
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(t); err != nil {
			logger.Info(logkeys.Message, "decoding telemetry", logkeys.Error, err)
			api.JSONError(w, fmt.Errorf("%w: %v", ErrBadBody, err), http.StatusBadRequest)
			return
		}

		if err := store.StoreTelemetry(r.Context(), id, t); err != nil {
			logger.Info(logkeys.Message, "store telemetry", logkeys.Error, err)
			api.JSONError(w, err, 0)
			return
		}
		logger.Debug(logkeys.Message, "stored telemetry")

		w.Header().Set("Content-type", "application/json")
		err := json.NewEncoder(w).Encode(&struct {
			Status   string `json:"status"`
			DeviceID string `json:"device_id"`
		}{Status: "ok", DeviceID: id})
		if err != nil {
			logger.Info(logkeys.Message, "encode response", logkeys.Error, err)
		}
	}
}

// DeleteTelemetry returns an HTTP handler that deletes the telemetry snapshot of a device.
func DeleteTelemetry(store storage.Storage, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		if store == nil {
			logger.Info(logkeys.Message, "delete telemetry", logkeys.Error, ErrNoStorage)
			api.JSONError(w, ErrNoStorage, 0)
			return
		}

		id := flow.Param(r.Context(), "id")
		logger = logger.With(logkeys.DeviceID, id)
		if err := store.DeleteTelemetry(r.Context(), id); err != nil {
			logger.Info(logkeys.Message, "delete telemetry", logkeys.Error, err)
			api.JSONError(w, err, 0)
			return
		}
		logger.Debug(logkeys.Message, "deleted telemetry")
		w.WriteHeader(http.StatusNoContent)
	}
}
