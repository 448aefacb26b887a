package model

import "time"

const (
	// MaxRetryCount caps call attempts per medication per day. Once a
	// medication has been included in this many calls it is excluded from
	// scheduling until the daily reset.
	MaxRetryCount = 2

	// SnoozeCooldown is the minimum gap after a dispatched call before the
	// same medication becomes retry-eligible again. The boundary is
	// inclusive: exactly SnoozeCooldown ago is eligible.
	SnoozeCooldown = 15 * time.Minute

	// SweepWindow is how far ahead of the current minute a call batch
	// collects soon-due medications, so one user gets one call instead of
	// several near-simultaneous ones.
	SweepWindow = 30 * time.Minute
)

// MedicationReminder is one scheduled dose for one user. Time is a wall-clock
// "HH:MM" in the reference timezone; LastCalledAt is absolute UTC.
// LastCalledAt is nil exactly when RetryCount is zero.
type MedicationReminder struct {
	ID           string     `json:"id"`
	UserID       string     `json:"userId"`
	Name         string     `json:"name"`
	Dosage       string     `json:"dosage"`
	Time         string     `json:"time"`
	IsTaken      bool       `json:"isTaken"`
	LastCalledAt *time.Time `json:"lastCalledAt,omitempty"`
	RetryCount   int        `json:"retryCount"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Callable reports whether the scheduler may still consider this row.
func (m MedicationReminder) Callable() bool {
	return !m.IsTaken && m.RetryCount < MaxRetryCount
}

// DueKind tags why a medication is due right now. First calls and retries
// have different eligibility rules (exact minute match vs elapsed cooldown)
// and are kept distinct end to end.
type DueKind string

const (
	DueFirstCall DueKind = "first_call"
	DueRetry     DueKind = "retry"
)

// DueMedication is a medication the anchor detector found due this instant.
type DueMedication struct {
	MedicationReminder
	Kind DueKind
}

// CallItem is the per-medication payload handed to the call provider.
type CallItem struct {
	MedicationID string `json:"medicationId"`
	Name         string `json:"name"`
}

// UserBatch is every medication that rides along in a single call to one
// user, ordered by time of day. Batches are computed per run, never stored.
type UserBatch struct {
	UserID string     `json:"userId"`
	Items  []CallItem `json:"items"`
}
