// Package statusd implements the optional, read-only Status Server
// (SPEC_FULL.md §4.9): a chi.Router exposing GET /status as a JSON
// snapshot of a running pull's counters. It never influences engine
// state; it only polls a *pull.Status the Orchestrator is updating
// concurrently.
package statusd

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mirrorstore/objsync/pkg/pull"
)

// NewRouter builds the status server's routes. status may be nil before
// a pull has started; Snapshot handles that by returning zero values.
func NewRouter(status *pull.Status) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(status.Snapshot())
	})

	return r
}

// ListenAndServe starts the status server on addr. It blocks until the
// server stops (the caller typically runs this in its own goroutine and
// shuts it down alongside the pull).
func ListenAndServe(addr string, status *pull.Status) error {
	return http.ListenAndServe(addr, NewRouter(status))
}
