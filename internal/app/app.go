// Package app initializes and holds long-lived services, acting as the
// dependency injection container of the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/openpolitica/proyectos-ley/internal/api"
	"github.com/openpolitica/proyectos-ley/internal/cache"
	"github.com/openpolitica/proyectos-ley/internal/clock/system"
	"github.com/openpolitica/proyectos-ley/internal/config"
	"github.com/openpolitica/proyectos-ley/internal/crawler"
	"github.com/openpolitica/proyectos-ley/internal/dispatcher"
	"github.com/openpolitica/proyectos-ley/internal/era"
	collyfetcher "github.com/openpolitica/proyectos-ley/internal/fetcher/colly"
	"github.com/openpolitica/proyectos-ley/internal/hash/sha256"
	"github.com/openpolitica/proyectos-ley/internal/id/uuid"
	"github.com/openpolitica/proyectos-ley/internal/logging"
	"github.com/openpolitica/proyectos-ley/internal/metrics"
	"github.com/openpolitica/proyectos-ley/internal/policy/ratelimit"
	"github.com/openpolitica/proyectos-ley/internal/progress"
	"github.com/openpolitica/proyectos-ley/internal/progress/sinks"
	"github.com/openpolitica/proyectos-ley/internal/publisher/pubsub"
	htmlsource "github.com/openpolitica/proyectos-ley/internal/source/html"
	restsource "github.com/openpolitica/proyectos-ley/internal/source/rest"
	"github.com/openpolitica/proyectos-ley/internal/storage/gcs"
	"github.com/openpolitica/proyectos-ley/internal/storage/local"
	"github.com/openpolitica/proyectos-ley/internal/storage/memory"
	"github.com/openpolitica/proyectos-ley/internal/storage/sqlite"
	"github.com/openpolitica/proyectos-ley/internal/telemetry"
	"github.com/openpolitica/proyectos-ley/internal/worker"
)

const shutdownTimeout = 10 * time.Second

// Options tune construction for tests.
type Options struct {
	// Logger replaces the logger built from config.
	Logger *zap.Logger
	// Registerer receives the progress collectors. Defaults to the global
	// Prometheus registerer.
	Registerer prometheus.Registerer
	// Registry replaces the extractors built from config.
	Registry crawler.Registry
}

// App holds the shared services of one process.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	eras       []era.Era
	worker     *worker.Worker
	dispatcher *dispatcher.Dispatcher
	server     *api.Server
	hub        *progress.Hub
	loader     *sqlite.Loader
	verifier   func(ctx context.Context) error
	closers    []func() error
	httpServer *http.Server
}

// New builds every service from cfg. It fails fast when a backing service
// cannot be initialized.
func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		var err error
		logger, err = logging.New(cfg.Logging.Development, cfg.Logging.Level)
		if err != nil {
			return nil, err
		}
	}
	metrics.Init()

	aggregation, err := worker.ParseAggregation(cfg.Crawler.Aggregation)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:    cfg,
		logger: logger,
		eras:   era.Table(cfg.EraSources()),
	}

	if cfg.Tracing.Enabled {
		tp, err := telemetry.InitTracerProvider(ctx, cfg.Tracing.ServiceName, cfg.Tracing.SampleRatio)
		if err != nil {
			return nil, fmt.Errorf("init tracing: %w", err)
		}
		a.closers = append(a.closers, func() error {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return tp.Shutdown(shutdownCtx)
		})
	}

	registry := opts.Registry
	if registry == nil {
		registry = newRegistry(cfg, logger)
	}

	blobs, err := a.newBlobStore(ctx)
	if err != nil {
		a.closeAll()
		return nil, err
	}
	snapshots := cache.New(blobs, sha256.New(), cfg.Cache.Prefix, logger.Named("cache"))
	a.loader = sqlite.NewLoader(cfg.Output.Dir, logger.Named("sqlite"))

	var publisher crawler.Publisher
	if cfg.PubSub.Enabled() {
		pub, err := pubsub.Dial(ctx, cfg.PubSub.ProjectID, cfg.PubSub.Topic)
		if err != nil {
			a.closeAll()
			return nil, fmt.Errorf("init pubsub: %w", err)
		}
		a.closers = append(a.closers, pub.Close)
		publisher = pub
		logger.Info("publishing era results", zap.String("topic", cfg.PubSub.Topic))
	}

	promSink, err := sinks.NewPrometheusSink(opts.Registerer)
	if err != nil {
		a.closeAll()
		return nil, err
	}
	a.hub = progress.NewHub(progress.Config{Logger: logger.Named("progress")},
		sinks.NewLogSink(logger.Named("progress")),
		promSink,
	)

	a.worker = worker.New(
		registry,
		snapshots,
		a.loader,
		publisher,
		a.hub,
		system.New(),
		uuid.New(),
		crawler.NewFixedRetryPolicy(cfg.Retry.MaxAttempts, cfg.RetryDelay()),
		worker.Config{
			Concurrency: cfg.Crawler.Concurrency,
			Aggregation: aggregation,
			CacheOnRun:  cfg.Cache.OnRun,
			Topic:       cfg.PubSub.Topic,
		},
		logger.Named("worker"),
	)
	a.dispatcher = dispatcher.New(logger.Named("dispatcher"))
	a.server = api.NewServer(a.eras, api.NewBoard(), a.Ready, logger.Named("api"))
	a.server.SetProgress(a.hub)

	logger.Info("services initialized",
		zap.String("cache_provider", cfg.Cache.Provider),
		zap.String("output_dir", cfg.Output.Dir),
		zap.Int("concurrency", cfg.Crawler.Concurrency),
		zap.String("aggregation", string(aggregation)),
	)
	return a, nil
}

func newRegistry(cfg config.Config, logger *zap.Logger) crawler.Registry {
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.HTTP.RatePerSecond,
		DefaultBurst: cfg.HTTP.Burst,
	})
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.HTTP.UserAgent,
		RespectRobots: cfg.HTTP.RespectRobots,
		Timeout:       cfg.Timeout(),
	}, limiter, logger.Named("fetcher"))
	client := restsource.NewClient(restsource.Config{
		UserAgent: cfg.HTTP.UserAgent,
		Timeout:   cfg.Timeout(),
	}, limiter, logger.Named("rest"))

	return crawler.Registry{
		era.AdapterHTML: {
			List:     htmlsource.NewListExtractor(fetcher, logger.Named("html")),
			Metadata: htmlsource.NewMetadataExtractor(fetcher, logger.Named("html")),
		},
		era.AdapterREST: {
			List:     restsource.NewListExtractor(client),
			Metadata: restsource.NewMetadataExtractor(client),
		},
	}
}

func (a *App) newBlobStore(ctx context.Context) (crawler.BlobStore, error) {
	switch a.cfg.Cache.Provider {
	case config.CacheGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("init storage client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		store, err := gcs.New(client, gcs.Config{Bucket: a.cfg.Cache.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("init gcs cache: %w", err)
		}
		a.verifier = store.Verify
		a.logger.Info("using gcs cache", zap.String("bucket", a.cfg.Cache.GCSBucket))
		return store, nil
	case config.CacheMemory:
		a.logger.Warn("using in-memory cache; snapshots are lost on exit")
		return memory.NewBlobStore(), nil
	default:
		store, err := local.New(local.Config{BaseDir: a.cfg.Cache.Dir})
		if err != nil {
			return nil, fmt.Errorf("init local cache: %w", err)
		}
		return store, nil
	}
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Eras returns the era table built from the configured hosts.
func (a *App) Eras() []era.Era {
	return a.eras
}

// DatabasePath is where the database of period is written.
func (a *App) DatabasePath(period era.Period) string {
	return a.loader.Path(period)
}

// Server returns the HTTP surface.
func (a *App) Server() *api.Server {
	return a.server
}

// Ready checks that the output directory is writable and the cache backend is
// reachable.
func (a *App) Ready(ctx context.Context) error {
	dir := a.cfg.Output.Dir
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("output dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".ready-*")
	if err != nil {
		return fmt.Errorf("output dir not writable: %w", err)
	}
	name := tmp.Name()
	_ = tmp.Close()
	_ = os.Remove(filepath.Clean(name))
	if a.verifier != nil {
		return a.verifier(ctx)
	}
	return nil
}

// RunEras executes mode for the named eras (all eras when names is empty)
// in parallel and records the results on the HTTP board.
func (a *App) RunEras(ctx context.Context, mode worker.Mode, names []string) ([]worker.EraResult, error) {
	selected, err := era.Select(a.eras, names)
	if err != nil {
		return nil, err
	}
	var job dispatcher.Job
	switch mode {
	case worker.ModeExtract:
		job = a.worker.Extract
	case worker.ModeLoad:
		job = a.worker.Load
	case worker.ModeRun:
		job = a.worker.Run
	default:
		return nil, fmt.Errorf("unknown mode %q", mode)
	}
	results := a.dispatcher.Run(ctx, mode, selected, job)
	a.server.Board().RecordAll(results)
	return results, nil
}

// StartHTTP serves the HTTP surface on addr in the background until Close.
func (a *App) StartHTTP(addr string) {
	a.httpServer = &http.Server{
		Addr:              addr,
		Handler:           a.server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	srv := a.httpServer
	go func() {
		a.logger.Info("http server started", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
		}
	}()
}

// Close drains the progress hub and releases every client.
func (a *App) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if a.httpServer != nil {
		if err := a.httpServer.Shutdown(ctx); err != nil {
			a.logger.Warn("http server shutdown failed", zap.Error(err))
		}
	}
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	a.closeAll()
	_ = a.logger.Sync()
}

func (a *App) closeAll() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close service failed", zap.Error(err))
		}
	}
	a.closers = nil
}
