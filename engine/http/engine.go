// Package http contains HTTP handlers that work with the NanoHeal engine.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/micromdm/nanoheal/engine/storage"
	"github.com/micromdm/nanoheal/http/api"
	"github.com/micromdm/nanoheal/log/logkeys"
	"github.com/micromdm/nanoheal/workflow"

	"github.com/alexedwards/flow"
	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
)

var (
	ErrNoID      = errors.New("no ID provided")
	ErrNoTrigger = errors.New("missing workflow trigger")
	ErrBadBody   = errors.New("invalid request body")
)

// maxBodySize limits the size of decoded trigger requests.
const maxBodySize = 1 << 20

type WorkflowTriggerer interface {
	Trigger(ctx context.Context, req *workflow.TriggerRequest) (*workflow.State, error)
}

type RunRetriever interface {
	RetrieveRun(ctx context.Context, id string) (*workflow.State, error)
}

// TriggerResponse is the acknowledgement of a triggered run.
type TriggerResponse struct {
	WorkflowID   string          `json:"workflow_id"`
	WorkflowType workflow.Type   `json:"workflow_type"`
	Status       workflow.Status `json:"status"`
	Stage        workflow.Stage  `json:"stage"`
	CreatedAt    time.Time       `json:"created_at"`
}

// StatusResponse wraps the full state record of a run.
type StatusResponse struct {
	Workflow *workflow.State `json:"workflow"`
}

func writeJSON(w http.ResponseWriter, v any, logger log.Logger) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Info(logkeys.Message, "encoding json response", logkeys.Error, err)
	}
}

// TriggerWorkflowHandler creates a HandlerFunc that triggers a remediation run.
// The run executes in the background; the response only acknowledges it.
func TriggerWorkflowHandler(triggerer WorkflowTriggerer, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)

		req := new(workflow.TriggerRequest)
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(req); err != nil {
			logger.Info(logkeys.Message, "decoding trigger request", logkeys.Error, err)
			api.JSONError(w, fmt.Errorf("%w: %v", ErrBadBody, err), http.StatusBadRequest)
			return
		}
		if err := req.Validate(); err != nil {
			logger.Info(logkeys.Message, "validating trigger request", logkeys.Error, err)
			api.JSONError(w, err, http.StatusBadRequest)
			return
		}

		logger = logger.With(logkeys.DeviceID, req.Device.DeviceID)
		if triggerer == nil {
			logger.Info(logkeys.Message, "triggering workflow", logkeys.Error, ErrNoTrigger)
			api.JSONError(w, ErrNoTrigger, 0)
			return
		}

		st, err := triggerer.Trigger(r.Context(), req)
		if err != nil {
			logger.Info(logkeys.Message, "triggering workflow", logkeys.Error, err)
			api.JSONError(w, err, 0)
			return
		}

		logger.Debug(
			logkeys.Message, "triggered workflow",
			logkeys.RunID, st.ID,
			logkeys.WorkflowType, st.WorkflowType,
		)

		writeJSON(w, &TriggerResponse{
			WorkflowID:   st.ID,
			WorkflowType: st.WorkflowType,
			Status:       st.Status,
			Stage:        st.Stage,
			CreatedAt:    st.CreatedAt,
		}, logger)
	}
}

// WorkflowStatusHandler creates a HandlerFunc that returns the latest
// state record of a run.
func WorkflowStatusHandler(retriever RunRetriever, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)

		id := flow.Param(r.Context(), "id")
		if id == "" {
			logger.Info(logkeys.Message, "parameters", logkeys.Error, ErrNoID)
			api.JSONError(w, ErrNoID, http.StatusBadRequest)
			return
		}
		logger = logger.With(logkeys.RunID, id)

		st, err := retriever.RetrieveRun(r.Context(), id)
		if errors.Is(err, storage.ErrRunNotFound) {
			logger.Debug(logkeys.Message, "retrieving run", logkeys.Error, err)
			api.JSONError(w, err, http.StatusNotFound)
			return
		} else if err != nil {
			logger.Info(logkeys.Message, "retrieving run", logkeys.Error, err)
			api.JSONError(w, err, 0)
			return
		}

		writeJSON(w, &StatusResponse{Workflow: st}, logger)
	}
}
