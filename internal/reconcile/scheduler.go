// Package reconcile runs the background loops that push the system back to
// eventual consistency across store, object store, and event bus (spec
// §4.F): stuck-uploads, missing-events, orphaned-intents, orphaned-blobs.
package reconcile

import (
	"context"
	"sync"
	"time"

	"wallpaperdb/internal/logging"
	"wallpaperdb/internal/monitoring"
)

type Config struct {
	StuckUploadThreshold    time.Duration
	MissingEventThreshold   time.Duration
	OrphanedIntentThreshold time.Duration
	SweepInterval           time.Duration
	BlobSweepInterval       time.Duration
	BatchSize               int
}

// Reconciler is one independent sweep; the scheduler fans out to each on its
// own ticker so a slow reconciler never delays the others.
type Reconciler interface {
	name() string
	run(ctx context.Context) (claimed int, err error)
}

// Scheduler owns the reconciliation ticker and the blob-cleanup ticker. Each
// reconciler's loop runs on a single goroutine, so a sweep that outruns its
// ticker period delays the next tick rather than overlapping it. TriggerNow
// runs sweeps on the caller's goroutine and is not serialised against those
// loops.
type Scheduler struct {
	cfg         Config
	logger      *logging.StructuredLogger
	metrics     monitoring.Metrics
	reconcilers []Reconciler
	blobSweeper Reconciler

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewScheduler(cfg Config, logger *logging.StructuredLogger, metrics monitoring.Metrics, reconcilers []Reconciler, blobSweeper Reconciler) *Scheduler {
	return &Scheduler{
		cfg:         cfg,
		logger:      logger,
		metrics:     metrics,
		reconcilers: reconcilers,
		blobSweeper: blobSweeper,
	}
}

// Start is idempotent: calling it while already running is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	var wg sync.WaitGroup
	for _, r := range s.reconcilers {
		wg.Add(1)
		go func(r Reconciler) {
			defer wg.Done()
			s.loop(runCtx, r, s.cfg.SweepInterval)
		}(r)
	}
	if s.blobSweeper != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.loop(runCtx, s.blobSweeper, s.cfg.BlobSweepInterval)
		}()
	}

	go func() {
		wg.Wait()
		close(s.done)
	}()
}

// Stop is idempotent and blocks until every loop has exited.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	done := s.done
	s.running = false
	s.mu.Unlock()

	cancel()
	<-done
}

// TriggerNow runs every reconciler, then the blob sweeper, once, outside
// their regular tick. It is an in-process hook; no HTTP route calls it.
func (s *Scheduler) TriggerNow(ctx context.Context) {
	for _, r := range s.reconcilers {
		s.runOnce(ctx, r)
	}
	if s.blobSweeper != nil {
		s.runOnce(ctx, s.blobSweeper)
	}
}

func (s *Scheduler) loop(ctx context.Context, r Reconciler, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, r)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, r Reconciler) {
	s.metrics.ReconcilerRuns.WithLabelValues(r.name()).Inc()

	claimed, err := r.run(ctx)
	if err != nil {
		s.logger.Error(ctx, "reconciler sweep failed", map[string]interface{}{
			"reconciler": r.name(),
			"error":      err.Error(),
		})
		return
	}

	if claimed > 0 {
		s.metrics.ReconcilerClaimed.WithLabelValues(r.name()).Add(float64(claimed))
		s.logger.Info(ctx, "reconciler sweep claimed rows", map[string]interface{}{
			"reconciler": r.name(),
			"claimed":    claimed,
		})
	}
}
