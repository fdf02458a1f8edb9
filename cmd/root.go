// Package cmd defines the CLI of the proyectos-ley harvester.
//
// Architecture overview:
//   - Eras: internal/era holds the static table of the seven legislative
//     periods. Six are served by the paged HTML views of the legacy host and
//     the last one by the JSON services of the legislative portal.
//   - Pipeline: internal/worker lists the bills of an era, extracts every
//     detail with bounded concurrency and fixed-delay retries, applies the
//     aggregation policy, and hands the set to the JSON cache and the SQLite
//     loader. internal/dispatcher runs the selected eras in parallel.
//   - Persistence & fanout: caches go to the configured blob store
//     (local/GCS/memory); databases are rebuilt under output.dir; every era
//     result is published to Pub/Sub when a topic is configured. Progress
//     events are batched to the log and Prometheus sinks.
//   - Configuration: Viper reads the optional config file and PROYECTOS_*
//     environment overrides; flags override both.
//
// Quick checklist:
//   - proyectos-ley extract --era 2021: list + details + JSON cache.
//   - proyectos-ley load --era 2021: JSON cache to database.
//   - proyectos-ley run: every era straight into its database.
//   - proyectos-ley eras: era table and artifact status.
//   - proyectos-ley serve: health, metrics and result endpoints.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/openpolitica/proyectos-ley/internal/app"
	"github.com/openpolitica/proyectos-ley/internal/config"
	"github.com/openpolitica/proyectos-ley/internal/era"
	"github.com/openpolitica/proyectos-ley/internal/worker"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is the service surface commands use. Tests inject a fake.
type App interface {
	Logger() *zap.Logger
	Eras() []era.Era
	DatabasePath(period era.Period) string
	RunEras(ctx context.Context, mode worker.Mode, names []string) ([]worker.EraResult, error)
	StartHTTP(addr string)
	Close()
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg config.Config) (App, error) {
	return app.New(ctx, cfg, app.Options{})
}

// rootOptions collects the persistent flags.
type rootOptions struct {
	cfgFile     string
	eras        []string
	strict      bool
	aggregation string
	outputDir   string
	cache       bool
	cfg         config.Config
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "proyectos-ley",
		Short: "Harvests the bills of the Peruvian Congress into per-era SQLite databases.",
		Long: `proyectos-ley lists every bill (proyecto de ley) filed in each legislative
era since 1995, extracts its detail from the congress sources, and rebuilds one
SQLite database per era. A JSON cache lets the database be rebuilt without
extracting again.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := opts.apply(cmd, &cfg); err != nil {
				return err
			}
			opts.cfg = cfg

			appInstance, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.cfgFile, "config", "", "config file (YAML, TOML or JSON)")
	flags.StringSliceVar(&opts.eras, "era", nil, "era to process, as 2011-2016 or 2011 (repeatable; default all)")
	flags.BoolVar(&opts.strict, "strict", false, "exit with status 1 when any era fails")
	flags.StringVar(&opts.aggregation, "aggregation", "", "abort or partial (overrides crawler.aggregation)")
	flags.StringVar(&opts.outputDir, "output-dir", "", "database directory (overrides output.dir)")

	cmd.AddCommand(
		newJobCmd(opts, worker.ModeExtract,
			"List and extract every bill of the selected eras into the JSON cache"),
		newJobCmd(opts, worker.ModeLoad,
			"Rebuild the databases of the selected eras from the JSON cache"),
		newRunCmd(opts),
		newErasCmd(opts),
		newServeCmd(opts),
	)
	return cmd
}

// apply copies the flags the user actually set onto cfg and revalidates it.
func (o *rootOptions) apply(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("aggregation") {
		cfg.Crawler.Aggregation = o.aggregation
	}
	if flags.Changed("output-dir") {
		cfg.Output.Dir = o.outputDir
	}
	if flags.Changed("cache") {
		cfg.Cache.OnRun = o.cache
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	return nil
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "proyectos-ley: %v\n", err)
		os.Exit(1)
	}
}
