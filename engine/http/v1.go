package http

import (
	"net/http"

	"github.com/micromdm/nanolib/log"
)

type APIEngine interface {
	WorkflowTriggerer
	RunRetriever
}

// Mux can register HTTP handlers.
// Ostensibly this supports flow router.
type Mux interface {
	// Handle registers the handler for the given pattern.
	Handle(pattern string, handler http.Handler, methods ...string)
}

// HandleAPIv1 registers the various API handlers into mux.
// API endpoint paths are prepended with prefix.
// Authentication or any other layered handlers are not present.
// They are assumed to be layered with mux, possibly at the Handle call.
// The logger is adorned with a "handler" key of the endpoint name.
func HandleAPIv1(prefix string, mux Mux, logger log.Logger, e APIEngine) {
	mux.Handle(
		prefix+"/workflow/trigger",
		TriggerWorkflowHandler(e, logger.With("handler", "trigger workflow")),
		"POST",
	)

	mux.Handle(
		prefix+"/workflow/:id",
		WorkflowStatusHandler(e, logger.With("handler", "workflow status")),
		"GET",
	)
}
