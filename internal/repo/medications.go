package repo

import (
	"context"
	"errors"
	"time"

	"github.com/medremind/callsched/internal/model"
)

// ErrMedicationNotFound is returned for updates that matched no row.
var ErrMedicationNotFound = errors.New("medication reminder not found")

// MedicationRepository is the store the scheduler reads on every run and
// stamps before every call. Query methods only ever return callable rows;
// the is_taken and retry-cap filters live in the store, not in callers.
type MedicationRepository interface {
	Create(ctx context.Context, m *model.MedicationReminder) error
	ListByUser(ctx context.Context, userID string) ([]model.MedicationReminder, error)

	// FindFirstCallDue returns pending, never-called medications scheduled
	// exactly at the given "HH:MM" clock.
	FindFirstCallDue(ctx context.Context, clock string) ([]model.MedicationReminder, error)

	// FindRetryDue returns pending medications whose last call was at or
	// before calledBefore and that still have retry attempts left.
	FindRetryDue(ctx context.Context, calledBefore time.Time) ([]model.MedicationReminder, error)

	// FindDueInWindow returns pending medications scheduled inside the
	// inclusive clock window [from, to]. A window with to < from crosses
	// midnight and is evaluated disjunctively.
	FindDueInWindow(ctx context.Context, from, to string) ([]model.MedicationReminder, error)

	// FindOverdueRetries returns pending medications scheduled before
	// beforeClock whose cooldown expired at or before calledBefore.
	FindOverdueRetries(ctx context.Context, calledBefore time.Time, beforeClock string) ([]model.MedicationReminder, error)

	GetByIDs(ctx context.Context, ids []string) ([]model.MedicationReminder, error)

	// StampAttempt records one call attempt: last_called_at := at and
	// retry_count incremented by one, as a single per-row update.
	StampAttempt(ctx context.Context, id string, at time.Time) error

	MarkTaken(ctx context.Context, ids []string) error

	// ResetDaily clears is_taken, retry_count and last_called_at on every
	// row, starting a new reminder day. Returns the number of rows touched.
	ResetDaily(ctx context.Context) (int64, error)
}
