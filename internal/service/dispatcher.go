package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/medremind/callsched/internal/cache"
	"github.com/medremind/callsched/internal/model"
)

// commitFailedReason is the outcome reason when the attempt stamp cannot be
// recorded. The call must never go out in that case.
const commitFailedReason = "state commit failed, call aborted to avoid duplicate billing"

type Directory interface {
	Resolve(ctx context.Context, userID string) (phone string, name string, err error)
}

type CallClient interface {
	PlaceCall(ctx context.Context, phone, name string, items []model.CallItem) (callRef string, err error)
}

type Committer interface {
	CommitAttempt(ctx context.Context, ids []string, now time.Time) error
}

// Dispatcher turns one user batch into one provider call. The attempt is
// committed to the store before the provider is invoked; a failed commit
// aborts the call.
type Dispatcher struct {
	directory Directory
	calls     CallClient
	committer Committer
	journal   cache.CallJournal
}

func NewDispatcher(directory Directory, calls CallClient, committer Committer) *Dispatcher {
	return &Dispatcher{
		directory: directory,
		calls:     calls,
		committer: committer,
	}
}

// WithJournal records placed calls so the provider callback can map a call
// reference back to its medications. Optional; dispatch works without it.
func (d *Dispatcher) WithJournal(journal cache.CallJournal) *Dispatcher {
	d.journal = journal
	return d
}

func (d *Dispatcher) Dispatch(ctx context.Context, batch model.UserBatch, now time.Time) model.UserOutcome {
	phone, name, err := d.directory.Resolve(ctx, batch.UserID)
	if err != nil {
		// Nothing was stamped and nothing was dialed for this user.
		return model.UserOutcome{
			UserID: batch.UserID,
			Status: model.OutcomeSkipped,
			Reason: err.Error(),
		}
	}

	ids := make([]string, len(batch.Items))
	for i, item := range batch.Items {
		ids[i] = item.MedicationID
	}

	if err := d.committer.CommitAttempt(ctx, ids, now); err != nil {
		slog.Error("attempt commit failed", "userId", batch.UserID, "error", err)
		return model.UserOutcome{
			UserID: batch.UserID,
			Status: model.OutcomeError,
			Reason: commitFailedReason,
		}
	}

	callRef, err := d.calls.PlaceCall(ctx, phone, name, batch.Items)
	if err != nil {
		// The attempt is already stamped; the strike stays consumed.
		return model.UserOutcome{
			UserID: batch.UserID,
			Status: model.OutcomeError,
			Reason: err.Error(),
		}
	}

	if d.journal != nil {
		rec := cache.CallRecord{UserID: batch.UserID, MedicationIDs: ids, PlacedAt: now}
		if err := d.journal.RecordCall(ctx, callRef, rec); err != nil {
			slog.Warn("call journal write failed", "callRef", callRef, "error", err)
		}
	}

	return model.UserOutcome{
		UserID:      batch.UserID,
		Status:      model.OutcomeTriggered,
		CallRef:     callRef,
		Medications: len(batch.Items),
	}
}
