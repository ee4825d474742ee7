package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/micromdm/nanoheal/engine"
	"github.com/micromdm/nanoheal/engine/storage/inmem"
	"github.com/micromdm/nanoheal/stage"
	"github.com/micromdm/nanoheal/utils/ider"
	"github.com/micromdm/nanoheal/workflow"

	"github.com/alexedwards/flow"
	"github.com/micromdm/nanolib/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const triggerBody = `{
	"interaction": {"channel": "voice", "text": "My printer says the ink cartridge is not recognized"},
	"device": {"device_id": "PRN-9", "model": "OfficeJet 9010", "os": "fw", "firmware_version": "2.1"},
	"telemetry": {"online": true, "error_codes": ["INK_AUTH_001"]},
	"entitlement": {"account_id": "ACC-7", "tier": "gold", "sla_minutes": 60}
}`

func newTestMux(t *testing.T) (*flow.Mux, *engine.Engine) {
	t.Helper()
	e := engine.New(
		inmem.New(),
		engine.WithIDer(ider.NewStaticIDs("run-1")),
		engine.WithStageOptions(stage.WithLatency(0)),
	)
	t.Cleanup(e.Wait)
	mux := flow.New()
	HandleAPIv1("/v1", mux, log.NopLogger, e)
	return mux, e
}

func serve(mux http.Handler, method, target, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, target, strings.NewReader(body)))
	return rec
}

func TestTriggerAndStatus(t *testing.T) {
	mux, e := newTestMux(t)

	rec := serve(mux, "POST", "/v1/workflow/trigger", triggerBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var ack TriggerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ack))
	assert.Equal(t, "run-1", ack.WorkflowID)
	assert.Equal(t, workflow.InkError, ack.WorkflowType)
	assert.Equal(t, workflow.StatusPending, ack.Status)
	assert.Equal(t, workflow.StageTriggered, ack.Stage)
	assert.False(t, ack.CreatedAt.IsZero())

	e.Wait()

	rec = serve(mux, "GET", "/v1/workflow/run-1", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var status StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.NotNil(t, status.Workflow)
	assert.Equal(t, "run-1", status.Workflow.ID)
	assert.Equal(t, workflow.StatusEscalated, status.Workflow.Status)
	assert.Equal(t, stage.RootNotAuthentic, status.Workflow.RootCause(workflow.InkError))
	assert.NotEmpty(t, status.Workflow.Logs)
	assert.NotEmpty(t, status.Workflow.ResolutionReason)
}

func TestTriggerBadRequest(t *testing.T) {
	mux, _ := newTestMux(t)

	for _, test := range []struct {
		name string
		body string
	}{
		{"malformed", `{"interaction":`},
		{"missing device", `{"interaction":{"text":"offline"},"entitlement":{"account_id":"A"}}`},
		{"bad channel", `{"interaction":{"text":"offline","channel":"fax"},"device":{"device_id":"D"},"entitlement":{"account_id":"A"}}`},
		{"missing firmware", `{"interaction":{"text":"offline"},"device":{"device_id":"D","model":"M","os":"O"},"entitlement":{"account_id":"A","tier":"gold"}}`},
	} {
		t.Run(test.name, func(t *testing.T) {
			rec := serve(mux, "POST", "/v1/workflow/trigger", test.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var jsonErr struct {
				Err string `json:"error"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jsonErr))
			assert.NotEmpty(t, jsonErr.Err)
		})
	}
}

func TestStatusNotFound(t *testing.T) {
	mux, _ := newTestMux(t)

	rec := serve(mux, "GET", "/v1/workflow/does-not-exist", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "run not found")
}
