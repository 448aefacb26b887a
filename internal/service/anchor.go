package service

import (
	"context"
	"fmt"
	"time"

	"github.com/medremind/callsched/internal/model"
	"github.com/medremind/callsched/internal/repo"
)

// AnchorSet is the output of one anchor detection pass: every user who must
// receive a call this minute, plus the raw due rows that made them anchors.
type AnchorSet struct {
	Users map[string]struct{}
	Due   []model.DueMedication
}

func (s AnchorSet) Empty() bool {
	return len(s.Users) == 0
}

// Detector finds the users with at least one medication due this instant.
// Only anchor users receive calls; the sweep merely enriches their batches.
type Detector struct {
	repo repo.MedicationRepository
	loc  *time.Location
}

func NewDetector(r repo.MedicationRepository, loc *time.Location) *Detector {
	return &Detector{repo: r, loc: loc}
}

// FindAnchors runs the two due queries and unions their users. First calls
// match the current minute exactly; retries are driven by the elapsed
// cooldown regardless of their scheduled time. The two sets are disjoint
// because a never-called row has no lastCalledAt.
func (d *Detector) FindAnchors(ctx context.Context, now time.Time) (AnchorSet, error) {
	nowClock := model.ClockAt(now, d.loc)
	cooldownThreshold := now.Add(-model.SnoozeCooldown)

	first, err := d.repo.FindFirstCallDue(ctx, nowClock)
	if err != nil {
		return AnchorSet{}, fmt.Errorf("first-call query: %w", err)
	}

	retries, err := d.repo.FindRetryDue(ctx, cooldownThreshold)
	if err != nil {
		return AnchorSet{}, fmt.Errorf("retry query: %w", err)
	}

	set := AnchorSet{Users: make(map[string]struct{}, len(first)+len(retries))}
	for _, m := range first {
		set.Users[m.UserID] = struct{}{}
		set.Due = append(set.Due, model.DueMedication{MedicationReminder: m, Kind: model.DueFirstCall})
	}
	for _, m := range retries {
		set.Users[m.UserID] = struct{}{}
		set.Due = append(set.Due, model.DueMedication{MedicationReminder: m, Kind: model.DueRetry})
	}

	return set, nil
}
