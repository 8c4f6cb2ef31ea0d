package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/myrjola/ruckplan/internal/errors"
	"github.com/myrjola/ruckplan/internal/plan"
)

// maxBodyBytes caps request bodies. The largest body is a performance snapshot.
const maxBodyBytes = 64 << 10

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON responds with v encoded as JSON.
func (app *application) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		app.serverError(w, r, fmt.Errorf("encode response: %w", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err = w.Write(append(body, '\n')); err != nil {
		app.logger.LogAttrs(r.Context(), slog.LevelWarn, "write response", errors.SlogError(err))
	}
}

// decodeJSON decodes the request body into v rejecting unknown fields and trailing data. On failure it responds
// with 400 Bad Request and returns false.
func (app *application) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	return app.decodeBody(w, r, v, false)
}

// decodeOptionalJSON is decodeJSON for optional bodies. An empty body, with or without a Content-Length, leaves v
// untouched.
func (app *application) decodeOptionalJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	return app.decodeBody(w, r, v, true)
}

func (app *application) decodeBody(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	err := dec.Decode(v)
	if optional && errors.Is(err, io.EOF) {
		return true
	}
	if err == nil {
		if _, tokenErr := dec.Token(); !errors.Is(tokenErr, io.EOF) {
			err = errors.New("trailing data after JSON body")
		}
	}
	if err != nil {
		app.clientError(w, r, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func (app *application) serverError(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.LogAttrs(r.Context(), slog.LevelError, "server error", errors.SlogError(err))
	app.writeJSON(w, r, http.StatusInternalServerError, errorResponse{Error: http.StatusText(http.StatusInternalServerError)})
}

func (app *application) clientError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	app.logger.LogAttrs(r.Context(), slog.LevelDebug, "client error", slog.Int("status_code", status),
		slog.String("reason", msg))
	app.writeJSON(w, r, status, errorResponse{Error: msg})
}

func (app *application) notFound(w http.ResponseWriter, r *http.Request) {
	app.clientError(w, r, http.StatusNotFound, http.StatusText(http.StatusNotFound))
}

// serviceError maps the plan error kinds to status codes. Anything unknown is a server error.
func (app *application) serviceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, plan.ErrSessionNotFound):
		app.clientError(w, r, http.StatusNotFound, "session not found")
	case errors.Is(err, plan.ErrTemplateNotFound):
		app.clientError(w, r, http.StatusNotFound, "template not found")
	case errors.Is(err, plan.ErrNotFound):
		app.notFound(w, r)
	case errors.Is(err, plan.ErrInvalidParameters):
		app.clientError(w, r, http.StatusBadRequest, err.Error())
	default:
		app.serverError(w, r, err)
	}
}
