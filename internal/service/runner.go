package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/medremind/callsched/internal/model"
)

type BatchDispatcher interface {
	Dispatch(ctx context.Context, batch model.UserBatch, now time.Time) model.UserOutcome
}

// Runner walks one scheduler pass from anchor detection through concurrent
// dispatch and aggregates the report. It holds no state between runs; every
// pass re-reads the store from scratch.
type Runner struct {
	detector   *Detector
	sweeper    *Sweeper
	dispatcher BatchDispatcher
}

func NewRunner(detector *Detector, sweeper *Sweeper, dispatcher BatchDispatcher) *Runner {
	return &Runner{
		detector:   detector,
		sweeper:    sweeper,
		dispatcher: dispatcher,
	}
}

// RunOnce executes a single pass for the given instant and always returns a
// report, even when individual dispatches fail. The only error it returns is
// an unreachable store, which aborts the run before any call is placed.
func (r *Runner) RunOnce(ctx context.Context, now time.Time) (model.RunReport, error) {
	report := model.RunReport{StartedAt: now.UTC()}

	anchors, err := r.detector.FindAnchors(ctx, now)
	if err != nil {
		return report, fmt.Errorf("anchor detection: %w", err)
	}
	if anchors.Empty() {
		report.Success = true
		return report, nil
	}

	batches, err := r.sweeper.Sweep(ctx, anchors, now)
	if err != nil {
		return report, fmt.Errorf("sweep: %w", err)
	}
	if len(batches) == 0 {
		report.Success = true
		return report, nil
	}

	outcomes := make([]model.UserOutcome, len(batches))

	var wg sync.WaitGroup
	for i, batch := range batches {
		i, batch := i, batch
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes[i] = r.dispatchSafe(ctx, batch, now)
		}()
	}
	wg.Wait()

	// Anchor users whose batch emptied out between detection and sweep are
	// reported as skips, not errors.
	batched := make(map[string]struct{}, len(batches))
	for _, b := range batches {
		batched[b.UserID] = struct{}{}
	}
	for userID := range anchors.Users {
		if _, ok := batched[userID]; !ok {
			outcomes = append(outcomes, model.UserOutcome{
				UserID: userID,
				Status: model.OutcomeSkipped,
				Reason: "no pending medications at sweep time",
			})
		}
	}

	sort.Slice(outcomes, func(i, j int) bool {
		return outcomes[i].UserID < outcomes[j].UserID
	})

	for _, o := range outcomes {
		switch o.Status {
		case model.OutcomeTriggered:
			report.BatchesTriggered++
			report.TotalMedications += o.Medications
		case model.OutcomeError:
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %s", o.UserID, o.Reason))
		}
	}
	report.Outcomes = outcomes

	// A run with at least one placed call counts as a success even when
	// other users errored.
	report.Success = report.BatchesTriggered > 0 || len(report.Errors) == 0

	return report, nil
}

// dispatchSafe isolates one user's dispatch so a panic cannot take down the
// sibling dispatches running in the same pass.
func (r *Runner) dispatchSafe(ctx context.Context, batch model.UserBatch, now time.Time) (out model.UserOutcome) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("dispatch panicked", "userId", batch.UserID, "panic", rec)
			out = model.UserOutcome{
				UserID: batch.UserID,
				Status: model.OutcomeError,
				Reason: fmt.Sprintf("dispatch panic: %v", rec),
			}
		}
	}()

	return r.dispatcher.Dispatch(ctx, batch, now)
}
