// Package dispatcher fans era jobs out in parallel.
package dispatcher

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/openpolitica/proyectos-ley/internal/era"
	"github.com/openpolitica/proyectos-ley/internal/worker"
)

// Job runs one era to completion.
type Job func(ctx context.Context, e era.Era) worker.EraResult

// Dispatcher runs a job for every selected era. A failing or panicking era
// never affects the others.
type Dispatcher struct {
	logger *zap.Logger
}

// New creates a Dispatcher.
func New(logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{logger: logger}
}

// Run starts one goroutine per era and blocks until all of them return.
// Results keep the order of eras.
func (d *Dispatcher) Run(ctx context.Context, mode worker.Mode, eras []era.Era, job Job) []worker.EraResult {
	results := make([]worker.EraResult, len(eras))
	var wg sync.WaitGroup
	for i, e := range eras {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = d.runOne(ctx, mode, e, job)
		}()
	}
	wg.Wait()

	failed := 0
	for _, res := range results {
		if !res.OK() {
			failed++
		}
	}
	d.logger.Info("eras finished",
		zap.String("mode", string(mode)),
		zap.Int("count", len(results)),
		zap.Int("failed", failed),
	)
	return results
}

func (d *Dispatcher) runOne(ctx context.Context, mode worker.Mode, e era.Era, job Job) (res worker.EraResult) {
	started := time.Now().UTC()
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("era job panicked",
				zap.Stringer("era", e.Period),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			err := fmt.Errorf("era %s panicked: %v", e.Period, r)
			res = worker.EraResult{
				Era:      e.Period,
				Mode:     mode,
				Started:  started,
				Finished: time.Now().UTC(),
				Err:      err,
				Error:    err.Error(),
			}
		}
	}()
	return job(ctx, e)
}

// Failed returns the results whose era did not complete.
func Failed(results []worker.EraResult) []worker.EraResult {
	var out []worker.EraResult
	for _, res := range results {
		if !res.OK() {
			out = append(out, res)
		}
	}
	return out
}
