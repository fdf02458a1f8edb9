// Package worker implements the per-era harvest pipeline.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/openpolitica/proyectos-ley/internal/bill"
	"github.com/openpolitica/proyectos-ley/internal/cache"
	"github.com/openpolitica/proyectos-ley/internal/crawler"
	"github.com/openpolitica/proyectos-ley/internal/era"
	"github.com/openpolitica/proyectos-ley/internal/metrics"
	"github.com/openpolitica/proyectos-ley/internal/progress"
	"github.com/openpolitica/proyectos-ley/internal/telemetry"
)

// Config controls Worker behavior.
type Config struct {
	// Concurrency bounds the detail requests in flight per era.
	Concurrency int
	Aggregation Aggregation
	// CacheOnRun makes Run write the JSON cache next to the database.
	CacheOnRun bool
	// Topic receives every EraResult when a publisher is configured.
	Topic string
}

// Worker executes extract, load and run jobs for single eras. It is safe to
// run jobs for different eras concurrently.
type Worker struct {
	registry  crawler.Registry
	cache     *cache.Cache
	loader    crawler.DatabaseLoader
	publisher crawler.Publisher
	progress  progress.Emitter
	clock     crawler.Clock
	ids       crawler.IDGenerator
	policy    crawler.RetryPolicy
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker. The cache, publisher and progress emitter may be
// nil.
func New(
	registry crawler.Registry,
	snapshots *cache.Cache,
	loader crawler.DatabaseLoader,
	publisher crawler.Publisher,
	emitter progress.Emitter,
	clock crawler.Clock,
	ids crawler.IDGenerator,
	policy crawler.RetryPolicy,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if emitter == nil {
		emitter = progress.Nop{}
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Aggregation == "" {
		cfg.Aggregation = AggregateAbort
	}
	if policy == nil {
		policy = crawler.NewFixedRetryPolicy(crawler.DefaultMaxAttempts, crawler.DefaultRetryDelay)
	}
	return &Worker{
		registry:  registry,
		cache:     snapshots,
		loader:    loader,
		publisher: publisher,
		progress:  emitter,
		clock:     clock,
		ids:       ids,
		policy:    policy,
		cfg:       cfg,
		logger:    logger,
	}
}

// Extract lists and details every bill of e and writes the JSON cache.
func (w *Worker) Extract(ctx context.Context, e era.Era) EraResult {
	return w.execute(ctx, e, ModeExtract, func(ctx context.Context, j *job) error {
		bills, err := w.harvest(ctx, j, e)
		if err != nil {
			return err
		}
		if err := w.writeCache(ctx, j, e.Period, bills); err != nil {
			return err
		}
		j.result.Output = j.result.CacheURI
		return nil
	})
}

// Load rebuilds the database of e from its JSON cache.
func (w *Worker) Load(ctx context.Context, e era.Era) EraResult {
	return w.execute(ctx, e, ModeLoad, func(ctx context.Context, j *job) error {
		if w.cache == nil {
			return errors.New("cache is not configured")
		}
		bills, err := w.cache.Load(ctx, e.Period)
		if err != nil {
			return err
		}
		j.result.Bills = len(bills)
		return w.writeDatabase(ctx, j, e.Period, bills)
	})
}

// Run lists and details every bill of e and rebuilds its database directly.
func (w *Worker) Run(ctx context.Context, e era.Era) EraResult {
	return w.execute(ctx, e, ModeRun, func(ctx context.Context, j *job) error {
		bills, err := w.harvest(ctx, j, e)
		if err != nil {
			return err
		}
		if w.cfg.CacheOnRun {
			if err := w.writeCache(ctx, j, e.Period, bills); err != nil {
				return err
			}
		}
		return w.writeDatabase(ctx, j, e.Period, bills)
	})
}

// job carries the per-era state shared by the pipeline stages.
type job struct {
	result EraResult
	runID  [16]byte
	logger *zap.Logger
}

func (w *Worker) execute(ctx context.Context, e era.Era, mode Mode, body func(ctx context.Context, j *job) error) EraResult {
	ctx, span := telemetry.Tracer().Start(ctx, "era."+string(mode), trace.WithAttributes(
		attribute.String("era", e.Period.String()),
		attribute.String("adapter", string(e.Adapter)),
	))
	defer span.End()

	j := &job{
		result: EraResult{Era: e.Period, Mode: mode, Started: w.clock.Now()},
		logger: w.logger.With(zap.Stringer("era", e.Period), zap.String("mode", string(mode))).
			With(telemetry.TraceFields(ctx)...),
	}

	runID, err := w.ids.NewID()
	if err != nil {
		j.result.fail(fmt.Errorf("generate run id: %w", err))
		j.result.Finished = w.clock.Now()
		w.finish(ctx, span, j)
		return j.result
	}
	j.result.RunID = runID
	j.logger = j.logger.With(zap.String("run_id", runID))
	if parsed, perr := progress.ParseRunID(runID); perr == nil {
		j.runID = parsed
	}

	j.logger.Info("era started")
	w.emit(j, progress.Event{Stage: progress.StageEraStart})

	err = body(ctx, j)
	j.result.Finished = w.clock.Now()
	j.result.fail(err)
	w.finish(ctx, span, j)
	return j.result
}

func (w *Worker) finish(ctx context.Context, span trace.Span, j *job) {
	res := j.result
	metrics.ObserveEra(string(res.Mode), res.OK())
	span.SetAttributes(
		attribute.Int("bills", res.Bills),
		attribute.Int("soft_misses", res.SoftMisses),
		attribute.Int("failed", len(res.Failed)),
	)
	if res.OK() {
		j.logger.Info("era completed",
			zap.Int("references", res.References),
			zap.Int("bills", res.Bills),
			zap.Int("soft_misses", res.SoftMisses),
			zap.Int("failed", len(res.Failed)),
			zap.String("output", res.Output),
			zap.Duration("duration", res.Duration()),
		)
		w.emit(j, progress.Event{Stage: progress.StageEraDone, Count: res.Bills, Dur: res.Duration()})
	} else {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Error)
		j.logger.Error("era failed", zap.Error(res.Err), zap.Duration("duration", res.Duration()))
		w.emit(j, progress.Event{Stage: progress.StageEraError, Dur: res.Duration(), Note: res.Error})
	}
	w.publish(ctx, j)
}

// harvest runs the list stage and the concurrent detail stage, then applies
// the aggregation policy.
func (w *Worker) harvest(ctx context.Context, j *job, e era.Era) ([]bill.Metadata, error) {
	adapters, err := w.registry.For(e)
	if err != nil {
		return nil, err
	}
	refs, err := adapters.List.List(ctx, e)
	if err != nil {
		return nil, fmt.Errorf("list bills: %w", err)
	}
	refs = bill.UniqueReferences(refs)
	j.result.References = len(refs)
	j.logger.Info("references listed", zap.Int("count", len(refs)))
	w.emit(j, progress.Event{Stage: progress.StageListDone, Count: len(refs)})

	records := make([]bill.Metadata, len(refs))
	errs := make([]error, len(refs))
	var softMisses atomic.Int64

	// Siblings are never canceled: every bill gets its full retry budget
	// before the aggregation policy looks at the outcome.
	var g errgroup.Group
	g.SetLimit(w.cfg.Concurrency)
	for i, ref := range refs {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					errs[i] = fmt.Errorf("bill %s panicked: %v", ref.ID(), r)
					j.logger.Error("bill detail panicked",
						zap.String("bill_id", ref.ID()),
						zap.Any("panic", r),
						zap.ByteString("stack", debug.Stack()),
					)
					w.emit(j, progress.Event{Stage: progress.StageBillFailed, BillID: ref.ID(), Note: errs[i].Error()})
				}
			}()
			records[i], errs[i] = w.detail(ctx, j, e, adapters.Metadata, ref, &softMisses)
			return nil
		})
	}
	_ = g.Wait()
	j.result.SoftMisses = int(softMisses.Load())

	bills := make([]bill.Metadata, 0, len(refs))
	var firstErr error
	for i, ref := range refs {
		if errs[i] == nil {
			bills = append(bills, records[i])
			continue
		}
		if firstErr == nil {
			firstErr = errs[i]
		}
		j.result.Failed = append(j.result.Failed, FailedBill{
			Number: ref.Number,
			BillID: ref.ID(),
			Error:  errs[i].Error(),
		})
	}

	if n := len(j.result.Failed); n > 0 {
		if w.cfg.Aggregation != AggregatePartial {
			return nil, fmt.Errorf("%d of %d bills failed, first %s: %w",
				n, len(refs), j.result.Failed[0].BillID, firstErr)
		}
		j.logger.Warn("persisting era without failed bills", zap.Int("failed", n))
	}

	bills = bill.UniqueMetadata(bills)
	j.result.Bills = len(bills)
	return bills, nil
}

// detail extracts one bill with retries. A soft miss yields the fallback
// record and a nil error.
func (w *Worker) detail(
	ctx context.Context,
	j *job,
	e era.Era,
	extractor crawler.MetadataExtractor,
	ref bill.Reference,
	softMisses *atomic.Int64,
) (bill.Metadata, error) {
	id := ref.ID()
	ctx, span := telemetry.Tracer().Start(ctx, "bill.detail", trace.WithAttributes(attribute.String("bill_id", id)))
	defer span.End()

	started := w.clock.Now()
	onRetry := func(attempt int, err error) {
		span.AddEvent("retry", trace.WithAttributes(attribute.Int("attempt", attempt)))
		j.logger.Warn("retrying bill", zap.String("bill_id", id), zap.Int("attempt", attempt), zap.Error(err))
		w.emit(j, progress.Event{Stage: progress.StageBillRetry, BillID: id, Attempt: attempt, Note: err.Error()})
	}

	m, err := crawler.Retry(ctx, w.policy, onRetry, func(ctx context.Context) (bill.Metadata, error) {
		return extractor.Metadata(ctx, e, ref)
	})
	elapsed := w.since(started)

	switch {
	case err == nil:
		w.emit(j, progress.Event{Stage: progress.StageBillDone, BillID: id, Dur: elapsed})
		return m, nil
	case crawler.IsSoftMiss(err):
		softMisses.Add(1)
		span.AddEvent("soft miss")
		if m.Number == 0 {
			m = bill.FromReference(ref)
		}
		w.emit(j, progress.Event{Stage: progress.StageBillSoftMiss, BillID: id, Dur: elapsed, Note: err.Error()})
		return m, nil
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, "detail failed")
		j.logger.Error("bill failed", zap.String("bill_id", id), zap.String("url", ref.URL), zap.Error(err))
		w.emit(j, progress.Event{Stage: progress.StageBillFailed, BillID: id, Dur: elapsed, Note: err.Error()})
		return bill.Metadata{}, err
	}
}

func (w *Worker) writeCache(ctx context.Context, j *job, period era.Period, bills []bill.Metadata) error {
	if w.cache == nil {
		return errors.New("cache is not configured")
	}
	uri, digest, err := w.cache.Save(ctx, period, bills)
	if err != nil {
		return err
	}
	j.result.CacheURI = uri
	j.result.Digest = digest
	return nil
}

func (w *Worker) writeDatabase(ctx context.Context, j *job, period era.Period, bills []bill.Metadata) error {
	if w.loader == nil {
		return errors.New("database loader is not configured")
	}
	out, err := w.loader.Load(ctx, period, bills)
	if err != nil {
		return err
	}
	j.result.Output = out
	return nil
}

// publish is best effort: failures are logged and never change the outcome.
func (w *Worker) publish(ctx context.Context, j *job) {
	if w.publisher == nil || w.cfg.Topic == "" {
		return
	}
	id, err := w.publisher.Publish(ctx, w.cfg.Topic, j.result)
	if err != nil {
		j.logger.Warn("publish era result failed", zap.String("topic", w.cfg.Topic), zap.Error(err))
		return
	}
	j.logger.Debug("era result published", zap.String("topic", w.cfg.Topic), zap.String("message_id", id))
}

func (w *Worker) emit(j *job, evt progress.Event) {
	evt.RunID = j.runID
	evt.TS = w.clock.Now()
	evt.Era = j.result.Era.String()
	evt.Mode = string(j.result.Mode)
	w.progress.Emit(evt)
}

func (w *Worker) since(t time.Time) time.Duration {
	if d := w.clock.Now().Sub(t); d > 0 {
		return d
	}
	return 0
}
