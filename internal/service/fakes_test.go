package service_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/medremind/callsched/internal/cache"
	"github.com/medremind/callsched/internal/model"
	"github.com/medremind/callsched/internal/repo"
	"github.com/medremind/callsched/internal/service"
)

// fakeRepo is an in-memory medication store implementing the same predicates
// as the SQL queries.
type fakeRepo struct {
	mu       sync.Mutex
	rows     map[string]model.MedicationReminder
	queryErr error
	stampErr map[string]error
	stamped  []string
}

var _ repo.MedicationRepository = (*fakeRepo)(nil)

func newFakeRepo(meds ...model.MedicationReminder) *fakeRepo {
	r := &fakeRepo{
		rows:     make(map[string]model.MedicationReminder),
		stampErr: make(map[string]error),
	}
	for _, m := range meds {
		r.rows[m.ID] = m
	}
	return r
}

func (r *fakeRepo) get(id string) (model.MedicationReminder, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.rows[id]
	return m, ok
}

func (r *fakeRepo) stampedIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.stamped))
	copy(out, r.stamped)
	return out
}

func (r *fakeRepo) Create(ctx context.Context, m *model.MedicationReminder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[m.ID] = *m
	return nil
}

func (r *fakeRepo) ListByUser(ctx context.Context, userID string) ([]model.MedicationReminder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.queryErr != nil {
		return nil, r.queryErr
	}
	var out []model.MedicationReminder
	for _, m := range r.rows {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	sortMeds(out)
	return out, nil
}

func (r *fakeRepo) FindFirstCallDue(ctx context.Context, clock string) ([]model.MedicationReminder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.queryErr != nil {
		return nil, r.queryErr
	}
	var out []model.MedicationReminder
	for _, m := range r.rows {
		if !m.IsTaken && m.RetryCount == 0 && m.Time == clock {
			out = append(out, m)
		}
	}
	sortMeds(out)
	return out, nil
}

func (r *fakeRepo) FindRetryDue(ctx context.Context, calledBefore time.Time) ([]model.MedicationReminder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.queryErr != nil {
		return nil, r.queryErr
	}
	var out []model.MedicationReminder
	for _, m := range r.rows {
		if !m.IsTaken && m.LastCalledAt != nil && !m.LastCalledAt.After(calledBefore) && m.RetryCount < model.MaxRetryCount {
			out = append(out, m)
		}
	}
	sortMeds(out)
	return out, nil
}

func (r *fakeRepo) FindDueInWindow(ctx context.Context, from, to string) ([]model.MedicationReminder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.queryErr != nil {
		return nil, r.queryErr
	}
	wraps := model.ClockWindowWraps(from, to)
	var out []model.MedicationReminder
	for _, m := range r.rows {
		if m.IsTaken || m.RetryCount >= model.MaxRetryCount {
			continue
		}
		var in bool
		if wraps {
			in = m.Time >= from || m.Time <= to
		} else {
			in = m.Time >= from && m.Time <= to
		}
		if in {
			out = append(out, m)
		}
	}
	sortMeds(out)
	return out, nil
}

func (r *fakeRepo) FindOverdueRetries(ctx context.Context, calledBefore time.Time, beforeClock string) ([]model.MedicationReminder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.queryErr != nil {
		return nil, r.queryErr
	}
	var out []model.MedicationReminder
	for _, m := range r.rows {
		if !m.IsTaken && m.LastCalledAt != nil && !m.LastCalledAt.After(calledBefore) &&
			m.Time < beforeClock && m.RetryCount < model.MaxRetryCount {
			out = append(out, m)
		}
	}
	sortMeds(out)
	return out, nil
}

func (r *fakeRepo) GetByIDs(ctx context.Context, ids []string) ([]model.MedicationReminder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.queryErr != nil {
		return nil, r.queryErr
	}
	var out []model.MedicationReminder
	for _, id := range ids {
		if m, ok := r.rows[id]; ok {
			out = append(out, m)
		}
	}
	sortMeds(out)
	return out, nil
}

func (r *fakeRepo) StampAttempt(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.stampErr[id]; err != nil {
		return err
	}
	m, ok := r.rows[id]
	if !ok {
		return repo.ErrMedicationNotFound
	}
	stamped := at.UTC()
	m.LastCalledAt = &stamped
	m.RetryCount++
	m.UpdatedAt = stamped
	r.rows[id] = m
	r.stamped = append(r.stamped, id)
	return nil
}

func (r *fakeRepo) MarkTaken(ctx context.Context, ids []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		if m, ok := r.rows[id]; ok {
			m.IsTaken = true
			r.rows[id] = m
		}
	}
	return nil
}

func (r *fakeRepo) ResetDaily(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, m := range r.rows {
		m.IsTaken = false
		m.RetryCount = 0
		m.LastCalledAt = nil
		r.rows[id] = m
		n++
	}
	return n, nil
}

func sortMeds(meds []model.MedicationReminder) {
	sort.Slice(meds, func(i, j int) bool {
		if meds[i].Time != meds[j].Time {
			return meds[i].Time < meds[j].Time
		}
		return meds[i].ID < meds[j].ID
	})
}

func med(id, userID, name, clock string) model.MedicationReminder {
	created := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	return model.MedicationReminder{
		ID:        id,
		UserID:    userID,
		Name:      name,
		Dosage:    "1 tablet",
		Time:      clock,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

type directoryEntry struct {
	phone string
	name  string
	err   error
}

// fakeDirectory resolves user ids from a fixed table.
type fakeDirectory struct {
	mu       sync.Mutex
	users    map[string]directoryEntry
	resolved []string
}

var _ service.Directory = (*fakeDirectory)(nil)

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{users: make(map[string]directoryEntry)}
}

func (d *fakeDirectory) add(userID, phone, name string) *fakeDirectory {
	d.users[userID] = directoryEntry{phone: phone, name: name}
	return d
}

func (d *fakeDirectory) fail(userID string, err error) *fakeDirectory {
	d.users[userID] = directoryEntry{err: err}
	return d
}

func (d *fakeDirectory) Resolve(ctx context.Context, userID string) (string, string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resolved = append(d.resolved, userID)
	e, ok := d.users[userID]
	if !ok {
		return "", "", fmt.Errorf("no directory entry for %s", userID)
	}
	if e.err != nil {
		return "", "", e.err
	}
	return e.phone, e.name, nil
}

type placedCall struct {
	Phone string
	Name  string
	Items []model.CallItem
}

// fakeCalls records placed calls and hands out sequential call references.
type fakeCalls struct {
	mu    sync.Mutex
	err   error
	calls []placedCall
}

var _ service.CallClient = (*fakeCalls)(nil)

func (c *fakeCalls) PlaceCall(ctx context.Context, phone, name string, items []model.CallItem) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return "", c.err
	}
	c.calls = append(c.calls, placedCall{Phone: phone, Name: name, Items: items})
	return fmt.Sprintf("CA%03d", len(c.calls)), nil
}

func (c *fakeCalls) placed() []placedCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]placedCall, len(c.calls))
	copy(out, c.calls)
	return out
}

// fakeJournal records placed calls in memory.
type fakeJournal struct {
	mu   sync.Mutex
	err  error
	recs map[string]cache.CallRecord
}

var _ cache.CallJournal = (*fakeJournal)(nil)

func newFakeJournal() *fakeJournal {
	return &fakeJournal{recs: make(map[string]cache.CallRecord)}
}

func (j *fakeJournal) RecordCall(ctx context.Context, callRef string, rec cache.CallRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return j.err
	}
	j.recs[callRef] = rec
	return nil
}

func (j *fakeJournal) LookupCall(ctx context.Context, callRef string) (cache.CallRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	rec, ok := j.recs[callRef]
	if !ok {
		return cache.CallRecord{}, cache.ErrCallNotFound
	}
	return rec, nil
}

// fakeCommitter stands in for the accountant in dispatcher tests.
type fakeCommitter struct {
	mu      sync.Mutex
	err     error
	batches [][]string
}

var _ service.Committer = (*fakeCommitter)(nil)

func (c *fakeCommitter) CommitAttempt(ctx context.Context, ids []string, now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	batch := make([]string, len(ids))
	copy(batch, ids)
	c.batches = append(c.batches, batch)
	return c.err
}

func (c *fakeCommitter) committed() [][]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]string, len(c.batches))
	copy(out, c.batches)
	return out
}
