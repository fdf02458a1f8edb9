package progress

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config controls buffering and flushing for the Hub.
type Config struct {
	// BufferSize bounds the queued bill events (default 4096). Bill events
	// beyond it are dropped and counted on their run.
	BufferSize int
	// MaxBatchEvents flushes a run once this many of its events are pending
	// (default 1000).
	MaxBatchEvents int
	// FlushInterval flushes every pending run periodically (default 500ms).
	FlushInterval time.Duration
	// SinkTimeout bounds each sink call (default 10s).
	SinkTimeout time.Duration
	BaseContext context.Context
	Logger      *zap.Logger
}

const (
	defaultBufferSize     = 4096
	defaultMaxBatchEvents = 1000
	defaultFlushInterval  = 500 * time.Millisecond
	defaultSinkTimeout    = 10 * time.Second
	dropLogInterval       = 5 * time.Second
)

// RunSummary is the live tally of one era run.
type RunSummary struct {
	RunID      string    `json:"run_id"`
	Era        string    `json:"era"`
	Mode       string    `json:"mode"`
	Listed     int       `json:"listed"`
	Done       int       `json:"done"`
	SoftMisses int       `json:"soft_misses"`
	Retries    int       `json:"retries"`
	Failed     int       `json:"failed"`
	Dropped    int64     `json:"dropped_events"`
	Finished   bool      `json:"finished"`
	Error      string    `json:"error,omitempty"`
	Started    time.Time `json:"started"`
	Updated    time.Time `json:"updated"`
}

// Hub routes the events of every era worker to the registered sinks, one run
// per batch. Emit never blocks on bill events; era-level events wait for
// buffer space so a run's start and end always reach the sinks.
type Hub struct {
	cfg    Config
	sinks  []Sink
	bills  chan Event
	eras   chan Event
	stopCh chan struct{}
	doneCh chan struct{}
	logger *zap.Logger

	// pending is owned by the run goroutine.
	pending map[[16]byte][]Event

	mu   sync.Mutex
	runs map[[16]byte]*RunSummary

	dropLimiter rateLimiter
	closed      atomic.Bool
	closeOnce   sync.Once
	closeCtx    context.Context
}

// NewHub starts a Hub flushing to sinks.
func NewHub(cfg Config, sinks ...Sink) *Hub {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.MaxBatchEvents <= 0 {
		cfg.MaxBatchEvents = defaultMaxBatchEvents
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		cfg:         cfg,
		sinks:       append([]Sink(nil), sinks...),
		bills:       make(chan Event, cfg.BufferSize),
		eras:        make(chan Event, 64),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
		logger:      logger,
		pending:     make(map[[16]byte][]Event),
		runs:        make(map[[16]byte]*RunSummary),
		dropLimiter: rateLimiter{interval: dropLogInterval},
	}
	go h.run()
	return h
}

// Emit enqueues evt. Invalid events and events emitted after Close are
// discarded.
func (h *Hub) Emit(evt Event) {
	if h == nil || h.closed.Load() {
		return
	}
	if err := evt.Validate(); err != nil {
		h.logger.Debug("discarding invalid progress event",
			zap.String("stage", string(evt.Stage)),
			zap.String("era", evt.Era),
			zap.Error(err),
		)
		return
	}
	if evt.Stage.EraLevel() {
		select {
		case h.eras <- evt:
		case <-h.stopCh:
		}
		return
	}
	select {
	case h.bills <- evt:
	default:
		h.recordDrop(evt)
	}
}

// Snapshot returns the tally of every run seen so far, ordered by era and
// start time.
func (h *Hub) Snapshot() []RunSummary {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	out := make([]RunSummary, 0, len(h.runs))
	for _, s := range h.runs {
		out = append(out, *s)
	}
	h.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Era != out[j].Era {
			return out[i].Era < out[j].Era
		}
		return out[i].Started.Before(out[j].Started)
	})
	return out
}

// Close drains queued events, flushes every pending run, closes the sinks and
// waits for the background goroutine. Later calls only wait.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		h.closeCtx = ctx
		close(h.stopCh)
	})
	select {
	case <-h.doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("progress hub close wait: %w", ctx.Err())
	}
}

func (h *Hub) run() {
	defer close(h.doneCh)
	ticker := time.NewTicker(h.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case evt := <-h.bills:
			h.add(evt)
		case evt := <-h.eras:
			if evt.Stage.Terminal() {
				// Bill events of the run were enqueued before its end.
				h.drainBills()
			}
			h.add(evt)
		case <-ticker.C:
			h.flushPending()
		case <-h.stopCh:
			h.drainBills()
			h.drainEras()
			h.flushPending()
			h.closeSinks()
			return
		}
	}
}

func (h *Hub) drainBills() {
	for {
		select {
		case evt := <-h.bills:
			h.add(evt)
		default:
			return
		}
	}
}

func (h *Hub) drainEras() {
	for {
		select {
		case evt := <-h.eras:
			h.add(evt)
		default:
			return
		}
	}
}

func (h *Hub) add(evt Event) {
	h.track(evt)
	batch := append(h.pending[evt.RunID], evt)
	if evt.Stage.Terminal() || len(batch) >= h.cfg.MaxBatchEvents {
		delete(h.pending, evt.RunID)
		h.flush(batch)
		return
	}
	h.pending[evt.RunID] = batch
}

func (h *Hub) flushPending() {
	for id, batch := range h.pending {
		delete(h.pending, id)
		h.flush(batch)
	}
}

func (h *Hub) track(evt Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.summaryLocked(evt)
	s.Updated = evt.TS
	switch evt.Stage {
	case StageEraStart:
		s.Started = evt.TS
	case StageListDone:
		s.Listed = evt.Count
	case StageBillDone:
		s.Done++
	case StageBillSoftMiss:
		s.Done++
		s.SoftMisses++
	case StageBillRetry:
		s.Retries++
	case StageBillFailed:
		s.Failed++
	case StageEraDone:
		s.Finished = true
	case StageEraError:
		s.Finished = true
		s.Error = evt.Note
	}
}

func (h *Hub) recordDrop(evt Event) {
	h.mu.Lock()
	h.summaryLocked(evt).Dropped++
	h.mu.Unlock()
	if h.dropLimiter.Allow(time.Now()) {
		h.logger.Warn("progress events dropped due to backpressure",
			zap.String("era", evt.Era),
			zap.String("stage", string(evt.Stage)),
		)
	}
}

func (h *Hub) summaryLocked(evt Event) *RunSummary {
	s, ok := h.runs[evt.RunID]
	if !ok {
		s = &RunSummary{
			RunID:   uuid.UUID(evt.RunID).String(),
			Era:     evt.Era,
			Mode:    evt.Mode,
			Started: evt.TS,
		}
		h.runs[evt.RunID] = s
	}
	return s
}

func (h *Hub) flush(batch []Event) {
	if len(batch) == 0 {
		return
	}
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(h.cfg.BaseContext, h.cfg.SinkTimeout)
		if err := sink.Consume(ctx, batch); err != nil {
			h.logger.Warn("progress sink consume failed",
				zap.String("era", batch[0].Era),
				zap.Int("events", len(batch)),
				zap.Error(err),
			)
		}
		cancel()
	}
}

func (h *Hub) closeSinks() {
	ctx := h.closeCtx
	if ctx == nil {
		ctx = context.Background()
	}
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		if err := sink.Close(ctx); err != nil {
			h.logger.Warn("progress sink close failed", zap.Error(err))
		}
	}
}

type rateLimiter struct {
	interval time.Duration
	last     atomic.Int64
}

func (r *rateLimiter) Allow(now time.Time) bool {
	if r == nil || r.interval <= 0 {
		return true
	}
	nano := now.UnixNano()
	last := r.last.Load()
	if nano-last < r.interval.Nanoseconds() {
		return false
	}
	return r.last.CompareAndSwap(last, nano)
}
