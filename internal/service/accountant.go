package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/medremind/callsched/internal/repo"
)

// Accountant records call attempts before any call goes out. A stamped row
// has consumed a retry strike whether or not the call later succeeds.
type Accountant struct {
	repo repo.MedicationRepository
}

func NewAccountant(r repo.MedicationRepository) *Accountant {
	return &Accountant{repo: r}
}

// CommitAttempt stamps lastCalledAt and advances retryCount for every id in
// the batch. The stamps run concurrently and the result is the AND of all of
// them: one failed stamp fails the whole batch even though sibling stamps may
// already be durable. Rows whose stamp did land have consumed a strike; rows
// whose stamp failed are picked up again by the next run.
func (a *Accountant) CommitAttempt(ctx context.Context, ids []string, now time.Time) error {
	if len(ids) == 0 {
		return errors.New("empty medication batch")
	}

	rows, err := a.repo.GetByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("reading batch rows: %w", err)
	}
	if len(rows) != len(ids) {
		return fmt.Errorf("batch incomplete: found %d of %d medications", len(rows), len(ids))
	}

	errs := make([]error, len(ids))

	var wg sync.WaitGroup
	for i, id := range ids {
		i, id := i, id
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.repo.StampAttempt(ctx, id, now); err != nil {
				errs[i] = fmt.Errorf("%s: %w", id, err)
			}
		}()
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("stamping attempts: %w", err)
	}
	return nil
}
