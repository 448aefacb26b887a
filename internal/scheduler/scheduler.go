package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/medremind/callsched/internal/model"
)

// RunFunc executes one scheduler pass for the given instant. Per-user
// failures live inside the report; a returned error means the pass could not
// run at all.
type RunFunc func(ctx context.Context, now time.Time) (model.RunReport, error)

// Scheduler invokes a RunFunc once per interval. Each pass is stateless;
// skipping or repeating a pass is safe because all scheduling memory lives
// in the medication store.
type Scheduler struct {
	interval time.Duration
	run      RunFunc

	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(interval time.Duration, run RunFunc) (*Scheduler, error) {
	if interval <= 0 {
		return nil, errors.New("interval must be > 0")
	}
	if run == nil {
		return nil, errors.New("run must not be nil")
	}
	return &Scheduler{
		interval: interval,
		run:      run,
		done:     make(chan struct{}),
	}, nil
}

func (s *Scheduler) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running.Store(true)

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		slog.Info("scheduler started", "interval", s.interval.String())

		s.safeRun(ctx)

		for {
			select {
			case <-ctx.Done():
				slog.Info("scheduler stopping")
				return
			case <-ticker.C:
				s.safeRun(ctx)
			}
		}
	}()

	return true
}

func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return false
	}

	s.cancel()
	<-s.done
	s.running.Store(false)

	slog.Info("scheduler stopped")
	return true
}

func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

func (s *Scheduler) safeRun(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("scheduler run panic recovered", "panic", r)
		}
	}()

	start := time.Now()

	report, err := s.run(ctx, start)
	if err != nil {
		slog.Error("scheduler run failed",
			"error", err,
			"duration_ms", time.Since(start).Milliseconds())
		return
	}

	// Quiet passes are the dominant case; keep them out of the info log.
	if report.BatchesTriggered == 0 && len(report.Outcomes) == 0 {
		slog.Debug("scheduler run idle", "duration_ms", time.Since(start).Milliseconds())
		return
	}

	slog.Info("scheduler run completed",
		"batchesTriggered", report.BatchesTriggered,
		"totalMedications", report.TotalMedications,
		"skippedOrErrored", len(report.Outcomes)-report.BatchesTriggered,
		"errors", len(report.Errors),
		"success", report.Success,
		"duration_ms", time.Since(start).Milliseconds())
}
