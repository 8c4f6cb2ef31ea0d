package e2etest

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/myrjola/ruckplan/internal/logging"
)

// LogAddrKey is the key the server logs its listen address under.
const LogAddrKey = "addr"

// LogDsnKey is the key the database logs its SQLite data source name under.
const LogDsnKey = "sqlDsn"

// RunFunc starts a server and blocks until ctx is done. It has the signature of the web binary's run function.
type RunFunc func(ctx context.Context, logger *slog.Logger, lookupEnv func(string) (string, bool)) error

// Server is a plan server running in-process for the duration of a test.
type Server struct {
	url    string
	client *Client
	db     *sql.DB
	cancel context.CancelCauseFunc
	done   chan struct{}
}

// announcements collects values the server logs while starting. Every watched key is delivered at most once.
type announcements struct {
	values map[string]chan string
}

func watch(keys ...string) *announcements {
	a := &announcements{values: make(map[string]chan string, len(keys))}
	for _, k := range keys {
		a.values[k] = make(chan string, 1)
	}
	return a
}

func (a *announcements) replaceAttr(_ []string, attr slog.Attr) slog.Attr {
	if ch, ok := a.values[attr.Key]; ok {
		select {
		case ch <- attr.Value.String():
		default:
		}
	}
	return attr
}

// await returns the logged value of every watched key or the cause of ctx ending first.
func (a *announcements) await(ctx context.Context) (map[string]string, error) {
	got := make(map[string]string, len(a.values))
	for key, ch := range a.values {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for %s: %w", key, context.Cause(ctx))
		case v := <-ch:
			got[key] = v
		}
	}
	return got, nil
}

// StartServer runs the server with run and returns once it answers health checks.
//
// Server logs go to logSink, usually testhelpers.NewWriter. The server must log its listen address under LogAddrKey
// and its database DSN under LogDsnKey. The server is shut down when the test ends.
func StartServer(t *testing.T, logSink io.Writer, lookupEnv func(string) (string, bool), run RunFunc) (*Server, error) {
	ctx, cancel := context.WithCancelCause(t.Context())
	done := make(chan struct{})
	logged := watch(LogAddrKey, LogDsnKey)
	logger := slog.New(logging.NewContextHandler(slog.NewTextHandler(logSink, &slog.HandlerOptions{
		AddSource:   false,
		Level:       slog.LevelDebug,
		ReplaceAttr: logged.replaceAttr,
	})))

	go func() {
		defer close(done)
		if err := run(ctx, logger, lookupEnv); err != nil {
			cancel(err)
		}
	}()
	server := &Server{url: "", client: nil, db: nil, cancel: cancel, done: done}
	t.Cleanup(server.Shutdown)

	values, err := logged.await(ctx)
	if err != nil {
		return nil, err
	}
	server.url = "http://" + values[LogAddrKey]
	server.client = NewClient(server.url)
	if err = server.client.WaitForReady(ctx, "/api/healthy"); err != nil {
		return nil, fmt.Errorf("wait for ready: %w", err)
	}
	if server.db, err = sql.Open("sqlite3", values[LogDsnKey]); err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return server, nil
}

// Client returns a client for the server's API.
func (s *Server) Client() *Client {
	return s.client
}

func (s *Server) URL() string {
	return s.url
}

// DB is a connection to the server's database for asserting on stored state.
func (s *Server) DB() *sql.DB {
	return s.db
}

// CountSessionRows counts the rows of table that belong to the session.
func (s *Server) CountSessionRows(ctx context.Context, table, sessionID string) (int, error) {
	if table == "" || strings.Trim(table, "abcdefghijklmnopqrstuvwxyz_") != "" {
		return 0, fmt.Errorf("invalid table name %q", table)
	}
	column := "session_id"
	if table == "sessions" {
		column = "id"
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table+" WHERE "+column+" = ?", //nolint:gosec // table is validated
		sessionID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s rows: %w", table, err)
	}
	return n, nil
}

// Shutdown stops the server and waits for it to exit. It is safe to call more than once.
func (s *Server) Shutdown() {
	s.cancel(nil)
	<-s.done
	if s.db != nil {
		_ = s.db.Close()
		s.db = nil
	}
}
