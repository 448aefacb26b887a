package model

import "time"

type OutcomeStatus string

const (
	OutcomeTriggered OutcomeStatus = "triggered"
	OutcomeSkipped   OutcomeStatus = "skipped"
	OutcomeError     OutcomeStatus = "error"
)

// UserOutcome is the result of one user's dispatch within a run.
type UserOutcome struct {
	UserID      string        `json:"userId"`
	Status      OutcomeStatus `json:"status"`
	Reason      string        `json:"reason,omitempty"`
	CallRef     string        `json:"callRef,omitempty"`
	Medications int           `json:"medications"`
}

// RunReport summarizes one scheduler pass. It is returned to the invoker
// and logged, never persisted.
type RunReport struct {
	StartedAt        time.Time     `json:"startedAt"`
	BatchesTriggered int           `json:"batchesTriggered"`
	TotalMedications int           `json:"totalMedications"`
	Outcomes         []UserOutcome `json:"outcomes,omitempty"`
	Errors           []string      `json:"errors,omitempty"`
	Success          bool          `json:"success"`
}
