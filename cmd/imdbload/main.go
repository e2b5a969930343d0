package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/JonMunkholm/imdbload/internal/config"
	"github.com/JonMunkholm/imdbload/internal/core"
	"github.com/JonMunkholm/imdbload/internal/loader"
	"github.com/JonMunkholm/imdbload/internal/logging"
	"github.com/JonMunkholm/imdbload/internal/migrate"
	"github.com/JonMunkholm/imdbload/internal/pipeline"
	"github.com/JonMunkholm/imdbload/internal/web"
)

// Exit codes.
const (
	exitFailed = 1 // a table failed to load, or an unexpected error
	exitConfig = 2 // nothing was modified
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	}

	if err := newApp().Run(os.Args); err != nil {
		slog.Error("imdbload failed", "error", err, "message", core.FormatUserError(err))
		if errors.Is(err, core.ErrConfiguration) {
			os.Exit(exitConfig)
		}
		os.Exit(exitFailed)
	}
}

// flagEnv maps command line flags onto the environment variables they
// override. Flags are applied after .env so the command line always wins.
var flagEnv = map[string]string{
	"root":        "DATA_ROOT",
	"datasets":    "DATASETS_FILE",
	"dburi":       "DATABASE_URL",
	"resume":      "PIPELINE_RESUME",
	"one":         "PIPELINE_ONE",
	"dry-run":     "PIPELINE_DRY_RUN",
	"parallelism": "PIPELINE_PARALLELISM",
	"status-addr": "STATUS_ADDR",
	"report":      "REPORT_FILE",
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "imdbload",
		Usage: "normalize IMDB dataset files and bulk load them into PostgreSQL",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "root", Usage: "directory holding the source files and intermediate artifacts"},
			&cli.StringFlag{Name: "datasets", Usage: "YAML manifest listing the source files"},
			&cli.StringFlag{Name: "dburi", Usage: "PostgreSQL connection string"},
			&cli.StringFlag{Name: "resume", Usage: "table to restart from; earlier tables are left untouched"},
			&cli.BoolFlag{Name: "one", Usage: "load only the first table of the window"},
			&cli.BoolFlag{Name: "dry-run", Usage: "clean up, normalize and split but skip the bulk copy"},
			&cli.IntFlag{Name: "parallelism", Usage: "split and load workers (0 = one per CPU)"},
			&cli.StringFlag{Name: "status-addr", Usage: "listen address of the run status server, e.g. :9100"},
			&cli.StringFlag{Name: "report", Usage: "error report file"},
			&cli.BoolFlag{Name: "no-migrate", Usage: "do not apply the schema before loading"},
			&cli.BoolFlag{Name: "debug", Usage: "debug logging, including rejected record samples"},
			&cli.BoolFlag{Name: "quiet", Usage: "log warnings and errors only"},
		},
		Before: applyFlags,
		Action: runLoad,
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "apply (or with --down roll back) the schema and exit",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "down", Usage: "roll back the last migration"},
				},
				Action: runMigrate,
			},
			{
				Name:  "tables",
				Usage: "list the target tables in load order",
				Action: func(c *cli.Context) error {
					for i, t := range core.LoadOrder {
						fmt.Fprintf(c.App.Writer, "%2d  %-18s %v\n", i+1, t, t.Columns())
					}
					return nil
				},
			},
		},
	}
}

// applyFlags copies every flag set on the command line into the environment
// so config.Load sees a single source of truth.
func applyFlags(c *cli.Context) error {
	for flag, env := range flagEnv {
		if !c.IsSet(flag) {
			continue
		}
		var value string
		switch flag {
		case "one", "dry-run":
			value = strconv.FormatBool(c.Bool(flag))
		case "parallelism":
			value = strconv.Itoa(c.Int(flag))
		default:
			value = c.String(flag)
		}
		if err := os.Setenv(env, value); err != nil {
			return err
		}
	}

	if c.Bool("no-migrate") {
		os.Setenv("PIPELINE_MIGRATE", "false")
	}
	switch {
	case c.Bool("debug"):
		os.Setenv("LOG_LEVEL", "debug")
	case c.Bool("quiet"):
		os.Setenv("LOG_LEVEL", "warn")
	}
	return nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrConfiguration, err)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Debug("configuration loaded", "config", cfg.String())
	return cfg, nil
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-sigCh:
			slog.Warn("interrupted, stopping run")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

func runLoad(c *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	parallelism := cfg.Pipeline.Parallelism
	if parallelism == 0 {
		parallelism = runtime.NumCPU()
	}

	manifest, err := config.LoadManifest(cfg.Pipeline.DatasetsFile)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrConfiguration, err)
	}
	sources, err := pipeline.SourcesFromManifest(cfg.Pipeline.Root, manifest)
	if err != nil {
		return err
	}

	delimiter := manifest.DelimiterRune()
	if d := cfg.DelimiterRune(); d != 0 {
		delimiter = d
	}

	pool, err := loader.Connect(ctx, cfg.Database, parallelism)
	if err != nil {
		return err
	}
	defer pool.Close()

	tracker := pipeline.NewTracker(nil)
	if cfg.Status.Addr != "" {
		server := web.NewServer(tracker)
		go func() {
			if err := server.Start(cfg.Status.Addr); err != nil {
				slog.Error("status server stopped", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Status.ShutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				slog.Error("status server shutdown", "error", err)
			}
		}()
	}

	orch := pipeline.New(loader.NewPostgresStore(pool), pipeline.Options{
		Root:        cfg.Pipeline.Root,
		Sources:     sources,
		Stream:      core.StreamOptions{Delimiter: delimiter, Quoted: cfg.Pipeline.Quoted},
		Parallelism: parallelism,
		Resume:      cfg.Pipeline.Resume,
		One:         cfg.Pipeline.One,
		DryRun:      cfg.Pipeline.DryRun,
		ReportPath:  cfg.ReportPath(),
		MaxSamples:  cfg.Report.MaxSamples,
		Prepare:     schemaPreparer(pool, cfg.Pipeline.Migrate),
	}, tracker)

	res, err := orch.Run(ctx)
	if res != nil && len(res.FailedTables()) > 0 {
		slog.Error("tables failed to load; re-run with --resume set to the first one",
			"tables", res.FailedTables())
	}
	return err
}

// schemaPreparer applies pending migrations once the run has passed
// preflight, so a rejected configuration never creates tables.
func schemaPreparer(pool *pgxpool.Pool, enabled bool) func(context.Context) error {
	if !enabled {
		return nil
	}
	return func(ctx context.Context) error {
		if err := migrate.Up(ctx, pool); err != nil {
			return fmt.Errorf("%w: %v", core.ErrConfiguration, err)
		}
		return nil
	}
}

func runMigrate(c *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	pool, err := loader.Connect(ctx, cfg.Database, 1)
	if err != nil {
		return err
	}
	defer pool.Close()

	return migrateSchema(ctx, pool, c.Bool("down"))
}

func migrateSchema(ctx context.Context, pool *pgxpool.Pool, down bool) error {
	if down {
		return migrate.Down(ctx, pool)
	}
	return migrate.Up(ctx, pool)
}
