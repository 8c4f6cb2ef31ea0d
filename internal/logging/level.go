package logging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// levelHandler drops records below a minimum level before they reach the wrapped handler.
type levelHandler struct {
	level   slog.Leveler
	handler slog.Handler
}

// WithMinLevel returns a handler that only passes records at or above level to h. It can raise the threshold of h
// but never lower it.
func WithMinLevel(h slog.Handler, level slog.Leveler) slog.Handler {
	return &levelHandler{level: level, handler: h}
}

func (h *levelHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level.Level() && h.handler.Enabled(ctx, level)
}

func (h *levelHandler) Handle(ctx context.Context, r slog.Record) error {
	if err := h.handler.Handle(ctx, r); err != nil {
		return fmt.Errorf("handle log record: %w", err)
	}
	return nil
}

func (h *levelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelHandler{level: h.level, handler: h.handler.WithAttrs(attrs)}
}

func (h *levelHandler) WithGroup(name string) slog.Handler {
	return &levelHandler{level: h.level, handler: h.handler.WithGroup(name)}
}

// ParseLevel parses debug, info, warn or error, optionally with an offset such as "info+2".
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("parse log level %q: %w", s, err)
	}
	return level, nil
}
