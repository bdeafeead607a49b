package scanner

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/coterm/extract"
	"github.com/BaSui01/coterm/internal/metrics"
	"github.com/BaSui01/coterm/types"
)

// SessionStore is the slice of the store the scanner needs.
type SessionStore interface {
	ListStale(ctx context.Context, threshold time.Duration) ([]types.Session, error)
	MarkExtracted(ctx context.Context, sessionID string) error
}

// Config tunes the scheduler.
type Config struct {
	// StalenessThreshold is the max heartbeat gap before a session is idle.
	StalenessThreshold time.Duration
	// MaxConcurrent caps simultaneously running extractions.
	MaxConcurrent int
	// ExtractionTimeout is the wall-clock deadline per extraction. A run
	// past its deadline is killed and counts as a failure, so a hung
	// summarizer can never occupy a slot forever.
	ExtractionTimeout time.Duration
	// StoreTimeout bounds store round-trips made by the scheduler.
	StoreTimeout time.Duration
}

// Scheduler owns every piece of mutable scan state: the in-flight set and the
// FIFO overflow queue. All of it is process-local and deliberately not
// persisted: a restart drops the bookkeeping and the next tick's ListStale
// rediscovers unextracted sessions, because extraction state lives in the
// store, not here.
type Scheduler struct {
	store   SessionStore
	runner  extract.Runner
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Collector

	mu       sync.Mutex
	inFlight map[string]*run
	pending  []types.Session
	queued   map[string]bool
}

// run tracks one spawned extraction.
type run struct {
	session types.Session
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
	started time.Time
}

// NewScheduler creates a scheduler. The metrics collector may be nil.
func NewScheduler(store SessionStore, runner extract.Runner, cfg Config, collector *metrics.Collector, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 2
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 30 * time.Second
	}
	return &Scheduler{
		store:    store,
		runner:   runner,
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "scanner")),
		metrics:  collector,
		inFlight: make(map[string]*run),
		queued:   make(map[string]bool),
	}
}

// Tick performs one scan: reap finished runs, list stale sessions, enqueue
// newcomers and fill free slots from the queue in FIFO order. A store failure
// fails closed: no extraction work is spawned on a tick that cannot read an
// authoritative stale set.
func (s *Scheduler) Tick(ctx context.Context) error {
	s.reap()

	listCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	listStart := time.Now()
	stale, err := s.store.ListStale(listCtx, s.cfg.StalenessThreshold)
	cancel()
	if s.metrics != nil {
		s.metrics.RecordStoreOp("list_stale", time.Since(listStart))
	}
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordScanTick("error")
		}
		s.logger.Warn("stale scan failed", zap.Error(err))
		return err
	}

	s.mu.Lock()
	for _, sess := range stale {
		if _, running := s.inFlight[sess.ID]; running {
			continue
		}
		if s.queued[sess.ID] {
			continue
		}
		s.pending = append(s.pending, sess)
		s.queued[sess.ID] = true
	}
	s.fillSlotsLocked(ctx)
	s.updateGaugesLocked()
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordScanTick("ok")
	}
	return nil
}

// reap removes finished runs from the in-flight set. Completion handling
// (MarkExtracted on success) already happened on the run's own goroutine;
// the reaper only frees slots.
func (s *Scheduler) reap() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, r := range s.inFlight {
		select {
		case <-r.done:
			delete(s.inFlight, id)
		default:
		}
	}
	s.updateGaugesLocked()
}

// fillSlotsLocked starts queued sessions while slots are free. Caller holds
// the mutex.
func (s *Scheduler) fillSlotsLocked(ctx context.Context) {
	for len(s.inFlight) < s.cfg.MaxConcurrent && len(s.pending) > 0 {
		sess := s.pending[0]
		s.pending = s.pending[1:]
		delete(s.queued, sess.ID)
		s.startLocked(ctx, sess)
	}
}

// startLocked spawns one extraction on its own goroutine. Caller holds the
// mutex.
func (s *Scheduler) startLocked(ctx context.Context, sess types.Session) {
	runCtx := context.WithoutCancel(ctx)
	var cancel context.CancelFunc
	if s.cfg.ExtractionTimeout > 0 {
		runCtx, cancel = context.WithTimeout(runCtx, s.cfg.ExtractionTimeout)
	} else {
		runCtx, cancel = context.WithCancel(runCtx)
	}

	r := &run{
		session: sess,
		cancel:  cancel,
		done:    make(chan struct{}),
		started: time.Now(),
	}
	s.inFlight[sess.ID] = r

	s.logger.Info("extraction started",
		zap.String("session_id", sess.ID),
		zap.String("project", sess.Project))

	go s.execute(runCtx, r)
}

// execute runs one extraction to completion and records the outcome. On
// confirmed success it sets the one-shot extraction marker; on any failure
// the session stays stale and the next tick retries it.
func (s *Scheduler) execute(ctx context.Context, r *run) {
	defer r.cancel()
	defer close(r.done)

	err := s.runner.Run(ctx, r.session.ID, r.session.Project)
	elapsed := time.Since(r.started)
	r.err = err

	switch {
	case err == nil:
		markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.StoreTimeout)
		markStart := time.Now()
		markErr := s.store.MarkExtracted(markCtx, r.session.ID)
		cancel()
		if s.metrics != nil {
			s.metrics.RecordStoreOp("mark_extracted", time.Since(markStart))
		}
		if markErr != nil {
			// The session stays stale and will be re-extracted; the
			// summarizer contract requires re-runs to be safe.
			s.logger.Warn("mark extracted failed",
				zap.String("session_id", r.session.ID),
				zap.Error(markErr))
			r.err = markErr
			s.record("failure", elapsed)
			return
		}
		s.record("success", elapsed)

	case ctx.Err() != nil:
		s.logger.Warn("extraction deadline exceeded, child killed",
			zap.String("session_id", r.session.ID),
			zap.Duration("elapsed", elapsed))
		s.record("timeout", elapsed)

	default:
		s.record("failure", elapsed)
	}
}

func (s *Scheduler) record(result string, elapsed time.Duration) {
	if s.metrics != nil {
		s.metrics.RecordExtraction(result, elapsed)
	}
}

func (s *Scheduler) updateGaugesLocked() {
	if s.metrics == nil {
		return
	}
	s.metrics.SetExtractionsInFlight(len(s.inFlight))
	s.metrics.SetExtractionQueueLength(len(s.pending))
}

// InFlight returns the number of running extractions.
func (s *Scheduler) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inFlight)
}

// QueueLen returns the number of sessions waiting for a slot.
func (s *Scheduler) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Shutdown cancels every running extraction and waits for their goroutines,
// bounded by ctx.
func (s *Scheduler) Shutdown(ctx context.Context) {
	s.mu.Lock()
	runs := make([]*run, 0, len(s.inFlight))
	for _, r := range s.inFlight {
		r.cancel()
		runs = append(runs, r)
	}
	s.mu.Unlock()

	for _, r := range runs {
		select {
		case <-r.done:
		case <-ctx.Done():
			return
		}
	}
}
