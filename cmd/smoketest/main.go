package main

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/myrjola/ruckplan/internal/e2etest"
	"github.com/myrjola/ruckplan/internal/logging"
	"github.com/myrjola/ruckplan/internal/testhelpers"
)

func main() {
	logger := testhelpers.NewLogger(os.Stdout)
	ctx := context.Background()

	if len(os.Args) != 2 { //nolint:mnd // we expect only hostname to be passed as argument.
		logger.LogAttrs(ctx, slog.LevelError, "usage: smoketest <hostname>")
		os.Exit(1)
	}

	var (
		hostname = os.Args[1]
		start    = time.Now()
	)
	ctx = logging.WithAttrs(ctx, slog.String("hostname", hostname))
	url := "https://" + hostname
	if strings.Contains(hostname, "localhost") {
		url = "http://" + hostname
	}

	client := e2etest.NewClient(url)
	if err := client.WaitForReady(ctx, "/api/healthy"); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "server not ready in time", slog.Any("error", err))
		os.Exit(1)
	}
	smokeCtx, cancel := context.WithTimeout(ctx, 10*time.Second) //nolint:mnd // 10 seconds
	err := e2etest.Smoke(smokeCtx, client)
	cancel()
	if err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "smoke test failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger.LogAttrs(ctx, slog.LevelInfo, "Smoke test successful 🙌", slog.Duration("duration", time.Since(start)))
}
