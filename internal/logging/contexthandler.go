package logging

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
)

type contextKey string

const slogAttrs contextKey = "slogAttrs"

// SessionIDKey is the attribute key identifying the training session in log records.
const SessionIDKey = "session_id"

type ContextHandler struct {
	handler slog.Handler
}

// NewContextHandler constructs a ContextHandler that adds new [slog.Attr] to the log messages from [context.Context]
// to the underlying [slog.Handler].
func NewContextHandler(h slog.Handler) *ContextHandler {
	return &ContextHandler{handler: h}
}

// Enabled reports whether the handler handles records at the given level.
// It delegates to the underlying handler.
func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle enriches the log record with [slog.Attr] stored in context with [WithAttrs].
func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(Attrs(ctx)...)

	if err := h.handler.Handle(ctx, r); err != nil {
		return fmt.Errorf("handle log record: %w", err)
	}
	return nil
}

// WithAttrs returns a new ContextHandler that wraps the result of calling WithAttrs on the underlying handler.
func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{handler: h.handler.WithAttrs(attrs)}
}

// WithGroup returns a new ContextHandler that wraps the result of calling WithGroup on the underlying handler.
func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{handler: h.handler.WithGroup(name)}
}

// WithAttrs adds [...slog.Attr] to the [context.Context] that enriches the log messages handled by [ContextHandler].
//
// The attributes already stored in ctx are copied so that sibling contexts never share a backing array.
func WithAttrs(ctx context.Context, attr ...slog.Attr) context.Context {
	return context.WithValue(ctx, slogAttrs, slices.Concat(Attrs(ctx), attr))
}

// Attrs returns the [slog.Attr] stored in ctx with [WithAttrs].
func Attrs(ctx context.Context) []slog.Attr {
	attrs, _ := ctx.Value(slogAttrs).([]slog.Attr)
	return attrs
}

// WithSessionID tags every log record made with the returned context with the training session it concerns.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	for _, a := range Attrs(ctx) {
		if a.Key == SessionIDKey && a.Value.String() == sessionID {
			return ctx
		}
	}
	return WithAttrs(ctx, slog.String(SessionIDKey, sessionID))
}
