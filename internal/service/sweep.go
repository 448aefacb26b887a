package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/medremind/callsched/internal/model"
	"github.com/medremind/callsched/internal/repo"
)

// Sweeper builds the call batch for each anchor user: whatever comes due
// inside the sweep window plus any overdue retries ride along with the
// anchor medication. One user, one call.
type Sweeper struct {
	repo repo.MedicationRepository
	loc  *time.Location
}

func NewSweeper(r repo.MedicationRepository, loc *time.Location) *Sweeper {
	return &Sweeper{repo: r, loc: loc}
}

// Sweep collects call batches for the given anchor users. Users without an
// anchor are never pulled in, even when they have medications inside the
// window. Batches come back sorted by user id, items by time of day.
func (s *Sweeper) Sweep(ctx context.Context, anchors AnchorSet, now time.Time) ([]model.UserBatch, error) {
	if anchors.Empty() {
		return nil, nil
	}

	nowClock := model.ClockAt(now, s.loc)
	windowEnd, err := model.AddClock(nowClock, model.SweepWindow)
	if err != nil {
		return nil, fmt.Errorf("sweep window: %w", err)
	}
	cooldownThreshold := now.Add(-model.SnoozeCooldown)

	future, err := s.repo.FindDueInWindow(ctx, nowClock, windowEnd)
	if err != nil {
		return nil, fmt.Errorf("window query: %w", err)
	}

	overdue, err := s.repo.FindOverdueRetries(ctx, cooldownThreshold, nowClock)
	if err != nil {
		return nil, fmt.Errorf("overdue query: %w", err)
	}

	// Dedupe by id; future rows win, though the predicates are time-disjoint.
	rows := make(map[string]model.MedicationReminder, len(future)+len(overdue))
	for _, m := range future {
		rows[m.ID] = m
	}
	for _, m := range overdue {
		if _, ok := rows[m.ID]; !ok {
			rows[m.ID] = m
		}
	}

	grouped := make(map[string][]model.MedicationReminder)
	for _, m := range rows {
		if _, ok := anchors.Users[m.UserID]; !ok {
			continue
		}
		grouped[m.UserID] = append(grouped[m.UserID], m)
	}

	batches := make([]model.UserBatch, 0, len(grouped))
	for userID, meds := range grouped {
		sort.Slice(meds, func(i, j int) bool {
			if meds[i].Time != meds[j].Time {
				return meds[i].Time < meds[j].Time
			}
			return meds[i].Name < meds[j].Name
		})

		items := make([]model.CallItem, len(meds))
		for i, m := range meds {
			items[i] = model.CallItem{MedicationID: m.ID, Name: m.Name}
		}
		batches = append(batches, model.UserBatch{UserID: userID, Items: items})
	}

	sort.Slice(batches, func(i, j int) bool {
		return batches[i].UserID < batches[j].UserID
	})

	return batches, nil
}
