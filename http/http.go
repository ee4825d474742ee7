// Package http includes handlers and utilties.
package http

import (
	"encoding/json"
	"io"
	"net/http"

	nanohttp "github.com/micromdm/nanolib/http"
)

// DumpHandler outputs the body of the request to output.
func DumpHandler(next http.Handler, output io.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := nanohttp.GetAndReplaceBodyBytes(r)
		output.Write(append(body, '\n'))
		next.ServeHTTP(w, r)
	}
}

// HealthHandler reports liveness of the service.
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}
