package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/openpolitica/proyectos-ley/internal/progress"
)

// PrometheusSink exports pipeline progress: eras started, completed and
// running, era wall time, and per-era bill outcomes.
type PrometheusSink struct {
	erasStarted   prometheus.Counter
	erasCompleted *prometheus.CounterVec
	erasRunning   prometheus.Gauge
	eraRuntime    *prometheus.HistogramVec

	references   *prometheus.CounterVec
	billOutcomes *prometheus.CounterVec
	billDuration prometheus.Histogram

	tracker *eraTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		erasStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proyectos_progress_eras_started_total",
			Help: "Total eras that have started.",
		}),
		erasCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proyectos_progress_eras_completed_total",
			Help: "Total eras completed partitioned by result.",
		}, []string{"result"}),
		erasRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "proyectos_progress_eras_running",
			Help: "Current number of eras in flight.",
		}),
		eraRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "proyectos_progress_era_runtime_seconds",
			Help:    "Wall time per completed era.",
			Buckets: []float64{1, 10, 60, 300, 900, 1800, 3600, 7200},
		}, []string{"result"}),
		references: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proyectos_progress_references_total",
			Help: "References returned by list extraction per era.",
		}, []string{"era"}),
		billOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proyectos_progress_bills_total",
			Help: "Bill detail outcomes partitioned by era and outcome.",
		}, []string{"era", "outcome"}),
		billDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "proyectos_progress_bill_duration_seconds",
			Help:    "Detail extraction latency per bill, retries included.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		tracker: newEraTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.erasStarted,
		s.erasCompleted,
		s.erasRunning,
		s.eraRuntime,
		s.references,
		s.billOutcomes,
		s.billDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageEraStart, progress.StageEraDone, progress.StageEraError:
		s.handleEraEvent(evt)
	case progress.StageListDone:
		s.references.WithLabelValues(evt.Era).Add(float64(evt.Count))
	case progress.StageBillDone:
		s.billOutcomes.WithLabelValues(evt.Era, "done").Inc()
		s.observeBill(evt)
	case progress.StageBillSoftMiss:
		s.billOutcomes.WithLabelValues(evt.Era, "soft_miss").Inc()
		s.observeBill(evt)
	case progress.StageBillRetry:
		s.billOutcomes.WithLabelValues(evt.Era, "retry").Inc()
	case progress.StageBillFailed:
		s.billOutcomes.WithLabelValues(evt.Era, "failed").Inc()
	}
}

func (s *PrometheusSink) handleEraEvent(evt progress.Event) {
	key := eraKey{run: evt.RunID, era: evt.Era}
	switch evt.Stage {
	case progress.StageEraStart:
		s.erasStarted.Inc()
		if s.tracker.start(key) {
			s.erasRunning.Inc()
		}
		return
	case progress.StageEraDone:
		s.erasCompleted.WithLabelValues("success").Inc()
		s.observeRuntime(evt, "success")
	case progress.StageEraError:
		s.erasCompleted.WithLabelValues("error").Inc()
		s.observeRuntime(evt, "error")
	}
	if s.tracker.complete(key) {
		s.erasRunning.Dec()
	}
}

func (s *PrometheusSink) observeRuntime(evt progress.Event, label string) {
	if evt.Dur > 0 {
		s.eraRuntime.WithLabelValues(label).Observe(evt.Dur.Seconds())
	}
}

func (s *PrometheusSink) observeBill(evt progress.Event) {
	if evt.Dur > 0 {
		s.billDuration.Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type eraKey struct {
	run [16]byte
	era string
}

type eraTracker struct {
	mu      sync.Mutex
	running map[eraKey]struct{}
}

func newEraTracker() *eraTracker {
	return &eraTracker{running: make(map[eraKey]struct{})}
}

func (t *eraTracker) start(k eraKey) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[k]; ok {
		return false
	}
	t.running[k] = struct{}{}
	return true
}

func (t *eraTracker) complete(k eraKey) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[k]; !ok {
		return false
	}
	delete(t.running, k)
	return true
}
