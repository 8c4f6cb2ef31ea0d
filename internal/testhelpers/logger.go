package testhelpers

import (
	"io"
	"log/slog"
	"testing"

	"github.com/myrjola/ruckplan/internal/logging"
)

// NewLogger creates a debug level logger writing text records to logSink. The handler resolves context attributes
// such as the session ID the same way the server's does.
func NewLogger(logSink io.Writer) *slog.Logger {
	return slog.New(logging.NewContextHandler(slog.NewTextHandler(logSink, &slog.HandlerOptions{
		AddSource:   false,
		Level:       slog.LevelDebug,
		ReplaceAttr: nil,
	})))
}

// Logger is NewLogger(NewWriter(tb)).
func Logger(tb testing.TB) *slog.Logger {
	tb.Helper()
	return NewLogger(NewWriter(tb))
}
