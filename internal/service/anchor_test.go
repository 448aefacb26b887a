package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/medremind/callsched/internal/model"
	"github.com/medremind/callsched/internal/service"
)

func TestDetector_FirstCall_ExactMinuteMatch(t *testing.T) {
	t.Parallel()

	aspirin := med("m1", "user-1", "Aspirin", "08:00")
	store := newFakeRepo(aspirin)
	detector := service.NewDetector(store, time.UTC)

	// 29 seconds into the minute still formats as 08:00.
	now := time.Date(2026, 5, 12, 8, 0, 29, 0, time.UTC)

	anchors, err := detector.FindAnchors(context.Background(), now)
	if err != nil {
		t.Fatalf("FindAnchors() error: %v", err)
	}

	if _, ok := anchors.Users["user-1"]; !ok {
		t.Fatalf("expected user-1 to be an anchor, got %v", anchors.Users)
	}
	if len(anchors.Due) != 1 {
		t.Fatalf("expected 1 due medication, got %d", len(anchors.Due))
	}
	if anchors.Due[0].ID != "m1" || anchors.Due[0].Kind != model.DueFirstCall {
		t.Fatalf("expected m1 tagged first_call, got %+v", anchors.Due[0])
	}
}

func TestDetector_FirstCall_OtherMinutesDoNotMatch(t *testing.T) {
	t.Parallel()

	store := newFakeRepo(med("m1", "user-1", "Aspirin", "08:00"))
	detector := service.NewDetector(store, time.UTC)

	for _, now := range []time.Time{
		time.Date(2026, 5, 12, 7, 59, 59, 0, time.UTC),
		time.Date(2026, 5, 12, 8, 1, 0, 0, time.UTC),
	} {
		anchors, err := detector.FindAnchors(context.Background(), now)
		if err != nil {
			t.Fatalf("FindAnchors() error: %v", err)
		}
		if !anchors.Empty() {
			t.Fatalf("expected no anchors at %v, got %+v", now, anchors.Due)
		}
	}
}

func TestDetector_Retry_CooldownBoundaryInclusive(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 12, 8, 20, 0, 0, time.UTC)

	exactlyCooldown := now.Add(-model.SnoozeCooldown)
	oneSecondShort := now.Add(-model.SnoozeCooldown + time.Second)

	eligible := med("m1", "user-1", "Aspirin", "08:00")
	eligible.RetryCount = 1
	eligible.LastCalledAt = &exactlyCooldown

	tooFresh := med("m2", "user-2", "Iron", "08:00")
	tooFresh.RetryCount = 1
	tooFresh.LastCalledAt = &oneSecondShort

	store := newFakeRepo(eligible, tooFresh)
	detector := service.NewDetector(store, time.UTC)

	anchors, err := detector.FindAnchors(context.Background(), now)
	if err != nil {
		t.Fatalf("FindAnchors() error: %v", err)
	}

	if _, ok := anchors.Users["user-1"]; !ok {
		t.Fatalf("expected user-1 retry-eligible at exactly the cooldown, got %v", anchors.Users)
	}
	if _, ok := anchors.Users["user-2"]; ok {
		t.Fatalf("expected user-2 one second short of the cooldown to be excluded")
	}
	if len(anchors.Due) != 1 || anchors.Due[0].Kind != model.DueRetry {
		t.Fatalf("expected one retry-tagged medication, got %+v", anchors.Due)
	}
}

func TestDetector_Retry_IgnoresScheduledTime(t *testing.T) {
	t.Parallel()

	// Called 16 minutes ago; its 08:00 slot has long passed.
	now := time.Date(2026, 5, 12, 8, 16, 0, 0, time.UTC)
	calledAt := now.Add(-16 * time.Minute)

	m := med("m1", "user-1", "Aspirin", "08:00")
	m.RetryCount = 1
	m.LastCalledAt = &calledAt

	store := newFakeRepo(m)
	detector := service.NewDetector(store, time.UTC)

	anchors, err := detector.FindAnchors(context.Background(), now)
	if err != nil {
		t.Fatalf("FindAnchors() error: %v", err)
	}
	if _, ok := anchors.Users["user-1"]; !ok {
		t.Fatalf("expected retry anchor regardless of scheduled time, got %v", anchors.Users)
	}
}

func TestDetector_RetryCapExcludesExhaustedMedications(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 12, 9, 0, 0, 0, time.UTC)
	longAgo := now.Add(-2 * time.Hour)

	exhausted := med("m1", "user-1", "Aspirin", "08:00")
	exhausted.RetryCount = model.MaxRetryCount
	exhausted.LastCalledAt = &longAgo

	store := newFakeRepo(exhausted)
	detector := service.NewDetector(store, time.UTC)

	anchors, err := detector.FindAnchors(context.Background(), now)
	if err != nil {
		t.Fatalf("FindAnchors() error: %v", err)
	}
	if !anchors.Empty() {
		t.Fatalf("expected no anchors for retryCount=%d, got %+v", model.MaxRetryCount, anchors.Due)
	}
}

func TestDetector_TakenMedicationsNeverAnchor(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 12, 8, 0, 0, 0, time.UTC)
	calledAt := now.Add(-time.Hour)

	takenFresh := med("m1", "user-1", "Aspirin", "08:00")
	takenFresh.IsTaken = true

	takenRetry := med("m2", "user-2", "Iron", "07:00")
	takenRetry.IsTaken = true
	takenRetry.RetryCount = 1
	takenRetry.LastCalledAt = &calledAt

	store := newFakeRepo(takenFresh, takenRetry)
	detector := service.NewDetector(store, time.UTC)

	anchors, err := detector.FindAnchors(context.Background(), now)
	if err != nil {
		t.Fatalf("FindAnchors() error: %v", err)
	}
	if !anchors.Empty() {
		t.Fatalf("expected taken medications to never anchor, got %+v", anchors.Due)
	}
}

func TestDetector_UnionsUsersAcrossBothSets(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 12, 8, 0, 0, 0, time.UTC)
	calledAt := now.Add(-20 * time.Minute)

	first := med("m1", "user-1", "Aspirin", "08:00")

	retry := med("m2", "user-2", "Iron", "07:30")
	retry.RetryCount = 1
	retry.LastCalledAt = &calledAt

	// user-1 also has a retry pending, so it appears in both sets once.
	alsoRetry := med("m3", "user-1", "Vitamin D", "07:00")
	alsoRetry.RetryCount = 1
	alsoRetry.LastCalledAt = &calledAt

	store := newFakeRepo(first, retry, alsoRetry)
	detector := service.NewDetector(store, time.UTC)

	anchors, err := detector.FindAnchors(context.Background(), now)
	if err != nil {
		t.Fatalf("FindAnchors() error: %v", err)
	}

	if len(anchors.Users) != 2 {
		t.Fatalf("expected 2 anchor users, got %v", anchors.Users)
	}
	if len(anchors.Due) != 3 {
		t.Fatalf("expected 3 due medications, got %+v", anchors.Due)
	}

	kinds := map[string]model.DueKind{}
	for _, d := range anchors.Due {
		kinds[d.ID] = d.Kind
	}
	if kinds["m1"] != model.DueFirstCall || kinds["m2"] != model.DueRetry || kinds["m3"] != model.DueRetry {
		t.Fatalf("unexpected due kinds: %v", kinds)
	}
}

func TestDetector_StoreErrorPropagates(t *testing.T) {
	t.Parallel()

	store := newFakeRepo()
	store.queryErr = errors.New("connection refused")
	detector := service.NewDetector(store, time.UTC)

	_, err := detector.FindAnchors(context.Background(), time.Now())
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
}
