package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/myrjola/ruckplan/internal/archive"
	"github.com/myrjola/ruckplan/internal/envstruct"
	"github.com/myrjola/ruckplan/internal/errors"
	"github.com/myrjola/ruckplan/internal/flightrecorder"
	"github.com/myrjola/ruckplan/internal/logging"
	"github.com/myrjola/ruckplan/internal/mongostore"
	"github.com/myrjola/ruckplan/internal/plan"
	"github.com/myrjola/ruckplan/internal/sqlite"
)

type application struct {
	logger   *slog.Logger
	service  *plan.Service
	sweeper  *plan.Sweeper
	recorder *flightrecorder.Recorder
	// testRoutes exposes the endpoints used by the timeout tests.
	testRoutes bool
}

type config struct {
	// Addr is the address to listen on. It's possible to choose the address dynamically with localhost:0.
	Addr string `env:"PLAN_ADDR" envDefault:"localhost:8081"`
	// SqliteURL is the URL to the SQLite database. You can use ":memory:" for an ethereal in-memory database.
	SqliteURL string `env:"PLAN_SQLITE_URL" envDefault:"./ruckplan.sqlite3"`
	// LogLevel is the minimum level logged: debug, info, warn or error.
	LogLevel string `env:"PLAN_LOG_LEVEL" envDefault:"info"`
	// TemplateDir holds YAML workflow templates merged over the built-in ones.
	TemplateDir string `env:"PLAN_TEMPLATE_DIR" envDefault:""`
	// WindowWeeks is how many weeks a generated workflow covers.
	WindowWeeks int `env:"PLAN_WINDOW_WEEKS" envDefault:"4"`
	// Validity is how long a generated workflow stays valid before it's regenerated.
	Validity time.Duration `env:"PLAN_WORKFLOW_VALIDITY" envDefault:"672h"`
	// MongoURI moves the workflow cache and adaptation history to MongoDB when set.
	MongoURI string `env:"PLAN_MONGO_URI" envDefault:""`
	MongoDB  string `env:"PLAN_MONGO_DB" envDefault:"ruckplan"`
	// S3Bucket enables archiving superseded workflows.
	S3Bucket          string `env:"PLAN_S3_BUCKET" envDefault:""`
	S3Region          string `env:"PLAN_S3_REGION" envDefault:"us-east-1"`
	S3Endpoint        string `env:"PLAN_S3_ENDPOINT" envDefault:""`
	S3AccessKeyID     string `env:"PLAN_S3_ACCESS_KEY_ID" envDefault:""`
	S3SecretAccessKey string `env:"PLAN_S3_SECRET_ACCESS_KEY" envDefault:""`
	S3Prefix          string `env:"PLAN_S3_PREFIX" envDefault:""`
	// S3PresignTTL is how long archive download links stay valid.
	S3PresignTTL time.Duration `env:"PLAN_S3_PRESIGN_TTL" envDefault:"15m"`
	// SweepSchedule is the cron schedule of the regeneration sweeper. Empty disables it.
	SweepSchedule    string `env:"PLAN_SWEEP_SCHEDULE" envDefault:"@every 1h"`
	SweepConcurrency int    `env:"PLAN_SWEEP_CONCURRENCY" envDefault:"4"`
	// TraceDir enables the flight recorder. Traces of timed out requests are written there.
	TraceDir string `env:"PLAN_TRACE_DIR" envDefault:""`
	// TestRoutes registers endpoints only used by tests.
	TestRoutes bool `env:"PLAN_TEST_ROUTES" envDefault:"false"`
}

func run(ctx context.Context, logger *slog.Logger, lookupEnv func(string) (string, bool)) (err error) {
	var cancel context.CancelFunc
	ctx, cancel = signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var cfg config
	if err = envstruct.Populate(&cfg, lookupEnv); err != nil {
		return errors.Wrap(err, "populate config")
	}
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return errors.Wrap(err, "configure logging")
	}
	logger = slog.New(logging.WithMinLevel(logger.Handler(), level))

	var recorder *flightrecorder.Recorder
	if cfg.TraceDir != "" {
		if recorder, err = flightrecorder.New(flightrecorder.Config{
			Dir: cfg.TraceDir, MinAge: 0, MaxBytes: 0, Cooldown: 0,
		}, logger); err != nil {
			return errors.Wrap(err, "new flight recorder")
		}
		if err = recorder.Start(ctx); err != nil {
			return errors.Wrap(err, "start flight recorder")
		}
		defer recorder.Stop(context.WithoutCancel(ctx))
	}

	catalog, err := plan.LoadCatalog(ctx, logger, cfg.TemplateDir)
	if err != nil {
		return errors.Wrap(err, "load catalog", slog.String("dir", cfg.TemplateDir))
	}

	db, err := sqlite.NewDatabase(ctx, cfg.SqliteURL, logger)
	if err != nil {
		return errors.Wrap(err, "open db", slog.String("url", cfg.SqliteURL))
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			err = errors.Join(err, errors.Wrap(closeErr, "close db"))
		}
	}()
	logger.LogAttrs(ctx, slog.LevelInfo, "connected to db")

	opts := []plan.Option{plan.WithWindowWeeks(cfg.WindowWeeks), plan.WithValidity(cfg.Validity)}
	if cfg.MongoURI != "" {
		client, connectErr := mongostore.Connect(ctx, cfg.MongoURI)
		if connectErr != nil {
			return errors.Wrap(connectErr, "connect mongo")
		}
		defer func() {
			if disconnectErr := mongostore.Disconnect(client); disconnectErr != nil {
				err = errors.Join(err, disconnectErr)
			}
		}()
		mdb := client.Database(cfg.MongoDB)
		if err = mongostore.EnsureIndexes(ctx, mdb); err != nil {
			return errors.Wrap(err, "ensure mongo indexes")
		}
		opts = append(opts,
			plan.WithWorkflowStore(mongostore.NewWorkflowStore(mdb, logger)),
			plan.WithAdaptationStore(mongostore.NewAdaptationStore(mdb, logger)))
		logger.LogAttrs(ctx, slog.LevelInfo, "using mongo stores", slog.String("database", cfg.MongoDB))
	}
	if cfg.S3Bucket != "" {
		archiver, archiveErr := archive.NewS3Archiver(ctx, archive.Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			Prefix:          cfg.S3Prefix,
			PresignExpiry:   cfg.S3PresignTTL,
		}, logger)
		if archiveErr != nil {
			return errors.Wrap(archiveErr, "new archiver")
		}
		opts = append(opts, plan.WithArchiver(archiver))
	}

	service, err := plan.NewService(db, logger, catalog, opts...)
	if err != nil {
		return errors.Wrap(err, "new plan service")
	}
	sweeper := plan.NewSweeper(service, logger, cfg.SweepConcurrency)
	if cfg.SweepSchedule != "" {
		if err = sweeper.Start(ctx, cfg.SweepSchedule); err != nil {
			return errors.Wrap(err, "start sweeper")
		}
		defer sweeper.Stop()
	}

	app := application{
		logger:     logger,
		service:    service,
		sweeper:    sweeper,
		recorder:   recorder,
		testRoutes: cfg.TestRoutes,
	}
	if err = app.configureAndStartServer(ctx, cfg.Addr, app.routes()); err != nil {
		return errors.Wrap(err, "start server")
	}
	return nil
}

func main() {
	ctx := context.Background()
	loggerHandler := logging.NewContextHandler(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource:   false,
		Level:       slog.LevelDebug,
		ReplaceAttr: nil,
	}))
	logger := slog.New(loggerHandler)
	if err := run(ctx, logger, os.LookupEnv); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "failure starting application", errors.SlogError(err))
		os.Exit(1)
	}
}
