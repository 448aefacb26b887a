package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCallNotFound is returned when no journal entry exists for a call reference.
var ErrCallNotFound = errors.New("call reference not found in journal")

// CallRecord is what the provider callback needs to close the loop on a call:
// which user was dialed and which medications the call covered.
type CallRecord struct {
	UserID        string    `json:"userId"`
	MedicationIDs []string  `json:"medicationIds"`
	PlacedAt      time.Time `json:"placedAt"`
}

type CallJournal interface {
	RecordCall(ctx context.Context, callRef string, rec CallRecord) error
	LookupCall(ctx context.Context, callRef string) (CallRecord, error)
}
