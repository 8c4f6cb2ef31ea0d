package main

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/trace"
	"strings"
	"time"

	"github.com/myrjola/ruckplan/internal/errors"
	"github.com/myrjola/ruckplan/internal/logging"
)

// statusResponseWriter remembers the status and size of the response for request logging.
type statusResponseWriter struct {
	http.ResponseWriter
	statusCode    int
	bytes         int
	headerWritten bool
}

func newStatusResponseWriter(w http.ResponseWriter) *statusResponseWriter {
	return &statusResponseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
		bytes:          0,
		headerWritten:  false,
	}
}

func (mw *statusResponseWriter) WriteHeader(statusCode int) {
	mw.ResponseWriter.WriteHeader(statusCode)
	if !mw.headerWritten {
		mw.statusCode = statusCode
		mw.headerWritten = true
	}
}

func (mw *statusResponseWriter) Write(b []byte) (int, error) {
	mw.headerWritten = true
	written, err := mw.ResponseWriter.Write(b)
	mw.bytes += written
	if err != nil {
		return written, fmt.Errorf("write response: %w", err)
	}
	return written, nil
}

func (mw *statusResponseWriter) Unwrap() http.ResponseWriter {
	return mw.ResponseWriter
}

func secureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "deny")
		w.Header().Set("Cross-Origin-Resource-Policy", "same-origin")
		next.ServeHTTP(w, r)
	})
}

// noCache keeps clients from caching plans that change on regeneration.
func noCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		next.ServeHTTP(w, r)
	})
}

// traceHeader carries the trace ID. A valid incoming value is reused so that callers can correlate their own logs.
const (
	traceHeader      = "X-Trace-Id"
	maxTraceIDLength = 64
)

func requestTraceID(r *http.Request) string {
	id := r.Header.Get(traceHeader)
	printable := !strings.ContainsFunc(id, func(c rune) bool { return c <= ' ' || c > '~' })
	if id == "" || len(id) > maxTraceIDLength || !printable {
		return rand.Text()
	}
	return id
}

// logAndTraceRequest tags the request context with a trace ID and the session the route addresses, and logs the
// outcome. With runtime tracing enabled every request also becomes a trace task named after its route pattern.
func (app *application) logAndTraceRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		traceID := requestTraceID(r)
		w.Header().Set(traceHeader, traceID)

		ctx := logging.WithAttrs(r.Context(),
			slog.String("trace_id", traceID),
			slog.String("method", r.Method),
			slog.String("uri", r.URL.RequestURI()),
		)
		if id := r.PathValue("id"); id != "" && strings.Contains(r.Pattern, sessionRoutePrefix) {
			ctx = logging.WithSessionID(ctx, id)
		}
		app.logger.LogAttrs(ctx, slog.LevelDebug, "received request", slog.String("proto", r.Proto))

		sw := newStatusResponseWriter(w)
		if trace.IsEnabled() {
			var task *trace.Task
			ctx, task = trace.NewTask(ctx, "HTTP "+routeName(r))
			trace.Log(ctx, "trace_id", traceID)
			defer func() {
				trace.Logf(ctx, "response", "status=%d bytes=%d", sw.statusCode, sw.bytes)
				task.End()
			}()
		}
		next.ServeHTTP(sw, r.WithContext(ctx))

		level := slog.LevelInfo
		switch {
		case sw.statusCode >= http.StatusInternalServerError:
			level = slog.LevelError
		case r.URL.Path == healthPath:
			level = slog.LevelDebug
		}
		app.logger.LogAttrs(ctx, level, "request completed",
			slog.String("route", routeName(r)),
			slog.Int("status_code", sw.statusCode),
			slog.Int("bytes", sw.bytes),
			slog.Duration("duration", time.Since(start)))
	})
}

// routeName is the matched pattern, or the path for requests no pattern matched.
func routeName(r *http.Request) string {
	if r.Pattern != "" && r.Pattern != "/" {
		return r.Pattern
	}
	return r.Method + " " + r.URL.Path
}

func (app *application) recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if excp := recover(); excp != nil {
				app.serverError(w, r, errors.DecoratePanic(excp))
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// timeout responds with 503 Service Unavailable when the handler misses the deadline and captures a trace of the
// stalled request when the flight recorder runs.
func (app *application) timeout(next http.Handler) http.Handler {
	// Shorter than the server's write timeout so that the timeout response still reaches the client.
	handlerTimeout := defaultTimeout - 200*time.Millisecond //nolint:mnd // writing the response takes time.
	th := http.TimeoutHandler(next, handlerTimeout, `{"error":"timed out"}`)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := newStatusResponseWriter(w)
		th.ServeHTTP(sw, r)
		if sw.statusCode == http.StatusServiceUnavailable && r.Context().Err() == nil {
			app.logger.LogAttrs(r.Context(), slog.LevelWarn, "request timed out",
				slog.Duration("timeout", handlerTimeout))
			if app.recorder != nil {
				app.recorder.Capture(r.Context(), "timeout")
			}
		}
	})
}
