package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/myrjola/ruckplan/internal/errors"
	"github.com/myrjola/ruckplan/internal/logging"
	"github.com/myrjola/ruckplan/internal/mongostore"
	"github.com/myrjola/ruckplan/internal/plan"
	"github.com/myrjola/ruckplan/internal/sqlite"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Configuration keys. Each is also read from PLAN_<KEY> with dashes replaced by underscores.
const (
	keySqliteURL        = "sqlite-url"
	keyTemplateDir      = "template-dir"
	keyWindowWeeks      = "window-weeks"
	keyValidity         = "validity"
	keyMongoURI         = "mongo-uri"
	keyMongoDB          = "mongo-db"
	keySweepConcurrency = "sweep-concurrency"
	keyVerbose          = "verbose"
)

type cli struct {
	v      *viper.Viper
	stderr io.Writer
	logger *slog.Logger
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	c := &cli{v: viper.New(), stderr: stderr, logger: nil}
	var configFile string

	root := &cobra.Command{
		Use:           "plancli",
		Short:         "Inspect training templates and manage plan sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.init(configFile)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "YAML config file")
	flags.String(keySqliteURL, "./ruckplan.sqlite3", "SQLite database URL")
	flags.String(keyTemplateDir, "", "directory of YAML templates merged over the built-in ones")
	flags.Int(keyWindowWeeks, plan.DefaultWindowWeeks, "weeks covered by a generated workflow")
	flags.Duration(keyValidity, plan.DefaultValidity, "how long a generated workflow stays valid")
	flags.String(keyMongoURI, "", "MongoDB URI for the workflow cache and adaptation history")
	flags.String(keyMongoDB, "ruckplan", "MongoDB database name")
	flags.BoolP(keyVerbose, "v", false, "log debug output to stderr")
	cobra.CheckErr(c.v.BindPFlags(flags))

	root.AddCommand(
		c.templatesCmd(),
		c.scheduleCmd(),
		c.sessionsCmd(),
		c.sweepCmd(),
	)
	return root
}

func (c *cli) init(configFile string) error {
	c.v.SetEnvPrefix("PLAN")
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()
	if configFile != "" {
		c.v.SetConfigFile(configFile)
		if err := c.v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", configFile, err)
		}
	}
	level := slog.LevelWarn
	if c.v.GetBool(keyVerbose) {
		level = slog.LevelDebug
	}
	c.logger = slog.New(logging.NewContextHandler(slog.NewTextHandler(c.stderr, &slog.HandlerOptions{
		AddSource:   false,
		Level:       level,
		ReplaceAttr: nil,
	})))
	return nil
}

func (c *cli) catalog(ctx context.Context) (*plan.Catalog, error) {
	catalog, err := plan.LoadCatalog(ctx, c.logger, c.v.GetString(keyTemplateDir))
	if err != nil {
		return nil, errors.Wrap(err, "load catalog")
	}
	return catalog, nil
}

// openService opens the SQLite database and returns the service with a function releasing its resources. Unless
// local is set the configured MongoDB stores replace the SQLite ones.
func (c *cli) openService(ctx context.Context, sqliteURL string, local bool) (*plan.Service, func() error, error) {
	catalog, err := c.catalog(ctx)
	if err != nil {
		return nil, nil, err
	}
	db, err := sqlite.NewDatabase(ctx, sqliteURL, c.logger)
	if err != nil {
		return nil, nil, errors.Wrap(err, "open db", slog.String("url", sqliteURL))
	}
	closers := []func() error{db.Close}
	closeAll := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}

	opts := []plan.Option{
		plan.WithWindowWeeks(c.v.GetInt(keyWindowWeeks)),
		plan.WithValidity(c.v.GetDuration(keyValidity)),
	}
	if uri := c.v.GetString(keyMongoURI); uri != "" && !local {
		client, connectErr := mongostore.Connect(ctx, uri)
		if connectErr != nil {
			return nil, nil, errors.Join(connectErr, closeAll())
		}
		closers = append(closers, func() error { return mongostore.Disconnect(client) })
		mdb := client.Database(c.v.GetString(keyMongoDB))
		opts = append(opts,
			plan.WithWorkflowStore(mongostore.NewWorkflowStore(mdb, c.logger)),
			plan.WithAdaptationStore(mongostore.NewAdaptationStore(mdb, c.logger)))
	}
	svc, err := plan.NewService(db, c.logger, catalog, opts...)
	if err != nil {
		return nil, nil, errors.Join(err, closeAll())
	}
	return svc, closeAll, nil
}

// withService runs fn against the configured database.
func (c *cli) withService(ctx context.Context, fn func(*plan.Service) error) (err error) {
	svc, closeFn, err := c.openService(ctx, c.v.GetString(keySqliteURL), false)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, closeFn())
	}()
	return fn(svc)
}
