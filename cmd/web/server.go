package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/myrjola/ruckplan/internal/e2etest"
	"golang.org/x/sync/errgroup"
)

// defaultTimeout bounds reading a request and writing its response. Regenerations are CPU bound and finish well
// within it.
const defaultTimeout = 5 * time.Second

const maxHeaderBytes = 16 << 10

// configureAndStartServer serves handler on addr until ctx is done and then drains in-flight requests.
func (app *application) configureAndStartServer(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{ //nolint:exhaustruct // defaults are fine for the rest
		ErrorLog:          slog.NewLogLogger(app.logger.Handler(), slog.LevelError),
		Handler:           handler,
		IdleTimeout:       time.Minute,
		ReadTimeout:       defaultTimeout,
		WriteTimeout:      defaultTimeout,
		ReadHeaderTimeout: time.Second,
		MaxHeaderBytes:    maxHeaderBytes,
		// In-flight requests outlive ctx. Shutdown drains them.
		BaseContext: func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("TCP listen: %w", err)
	}
	app.logger.LogAttrs(ctx, slog.LevelInfo, "starting server", slog.String(e2etest.LogAddrKey, listener.Addr().String()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if serveErr := srv.Serve(listener); !errors.Is(serveErr, http.ErrServerClosed) {
			return fmt.Errorf("server serve: %w", serveErr)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		app.logger.LogAttrs(ctx, slog.LevelInfo, "shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultTimeout)
		defer cancel()
		if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
			return fmt.Errorf("shutdown server: %w", shutdownErr)
		}
		return nil
	})
	if err = g.Wait(); err != nil {
		return err //nolint:wrapcheck // both goroutines wrap their errors
	}
	app.logger.LogAttrs(ctx, slog.LevelInfo, "server stopped")
	return nil
}
