package main

import (
	"net/http"
	"strconv"
	"time"
)

// healthy responds with a JSON object indicating that the server is healthy.
func (app *application) healthy(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// testTimeout sleeps for the sleep_ms query parameter before responding.
func (app *application) testTimeout(w http.ResponseWriter, r *http.Request) {
	sleepMS, err := strconv.Atoi(r.URL.Query().Get("sleep_ms"))
	if err != nil || sleepMS < 0 {
		app.clientError(w, r, http.StatusBadRequest, "invalid sleep_ms parameter")
		return
	}
	select {
	case <-time.After(time.Duration(sleepMS) * time.Millisecond):
	case <-r.Context().Done():
		return
	}
	app.writeJSON(w, r, http.StatusOK, map[string]any{"status": "completed", "slept_ms": sleepMS})
}
