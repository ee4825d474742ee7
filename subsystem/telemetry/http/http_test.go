package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/micromdm/nanoheal/subsystem/telemetry/storage"
	"github.com/micromdm/nanoheal/subsystem/telemetry/storage/inmem"
	"github.com/micromdm/nanoheal/workflow"

	"github.com/alexedwards/flow"
	"github.com/micromdm/nanolib/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelemetryAPI(t *testing.T) {
	mux := flow.New()
	HandleAPIv1("/v1", mux, log.NopLogger, inmem.New())

	do := func(method, target, body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(method, target, strings.NewReader(body)))
		return rec
	}

	rec := do("PUT", "/v1/telemetry/PRN-1", `{"online":false,"error_codes":["INK_AUTH_001"],"ink_level_cyan":0}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"status":"ok","device_id":"PRN-1"}`, rec.Body.String())

	rec = do("GET", "/v1/telemetry?id=PRN-1&id=PRN-2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got map[string]*workflow.Telemetry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Contains(t, got, "PRN-1")
	assert.NotContains(t, got, "PRN-2")
	assert.Equal(t, []string{"INK_AUTH_001"}, got["PRN-1"].ErrorCodes)
	require.NotNil(t, got["PRN-1"].InkLevelCyan)
	assert.Equal(t, 0, *got["PRN-1"].InkLevelCyan)

	rec = do("GET", "/v1/telemetry", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do("PUT", "/v1/telemetry/PRN-1", `{"online":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do("DELETE", "/v1/telemetry/PRN-1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do("GET", "/v1/telemetry?id=PRN-1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), ErrNoTelemetry.Error())
}

func TestStoreTelemetryTooLarge(t *testing.T) {
	store := inmem.New()
	mux := flow.New()
	HandleAPIv1("/v1", mux, log.NopLogger, store)

	// valid JSON whose string value pushes it past the body limit
	body := `{"error_codes":["` + strings.Repeat("E", maxBodySize) + `"]}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("PUT", "/v1/telemetry/PRN-1", strings.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	got, err := store.RetrieveTelemetry(context.Background(), &storage.SearchOptions{IDs: []string{"PRN-1"}})
	require.NoError(t, err)
	assert.Empty(t, got)
}
