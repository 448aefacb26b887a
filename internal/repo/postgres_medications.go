package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/medremind/callsched/internal/model"
)

const medicationColumns = `id, user_id, name, dosage, time_of_day, is_taken, last_called_at, retry_count, created_at, updated_at`

type PostgresMedicationRepo struct {
	db *sql.DB
}

func NewPostgresMedicationRepo(db *sql.DB) *PostgresMedicationRepo {
	return &PostgresMedicationRepo{db: db}
}

func (r *PostgresMedicationRepo) Create(ctx context.Context, m *model.MedicationReminder) error {
	if err := model.ValidateClock(m.Time); err != nil {
		return err
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}

	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO medication_reminders
			(id, user_id, name, dosage, time_of_day, is_taken, last_called_at, retry_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, m.ID, m.UserID, m.Name, m.Dosage, m.Time, m.IsTaken, nullableTime(m.LastCalledAt), m.RetryCount, m.CreatedAt, m.UpdatedAt)
	return err
}

func (r *PostgresMedicationRepo) ListByUser(ctx context.Context, userID string) ([]model.MedicationReminder, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+medicationColumns+`
		FROM medication_reminders
		WHERE user_id = $1
		ORDER BY time_of_day ASC, name ASC
	`, userID)
	if err != nil {
		return nil, err
	}
	return collectMedications(rows)
}

func (r *PostgresMedicationRepo) FindFirstCallDue(ctx context.Context, clock string) ([]model.MedicationReminder, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+medicationColumns+`
		FROM medication_reminders
		WHERE is_taken = FALSE
		  AND retry_count = 0
		  AND time_of_day = $1
		ORDER BY user_id ASC, id ASC
	`, clock)
	if err != nil {
		return nil, err
	}
	return collectMedications(rows)
}

func (r *PostgresMedicationRepo) FindRetryDue(ctx context.Context, calledBefore time.Time) ([]model.MedicationReminder, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+medicationColumns+`
		FROM medication_reminders
		WHERE is_taken = FALSE
		  AND last_called_at IS NOT NULL
		  AND last_called_at <= $1
		  AND retry_count < $2
		ORDER BY user_id ASC, id ASC
	`, calledBefore.UTC(), model.MaxRetryCount)
	if err != nil {
		return nil, err
	}
	return collectMedications(rows)
}

func (r *PostgresMedicationRepo) FindDueInWindow(ctx context.Context, from, to string) ([]model.MedicationReminder, error) {
	// A window that crosses midnight collapses lexically; the range predicate
	// would return nothing, so it becomes a disjunction over both day edges.
	predicate := `time_of_day >= $2 AND time_of_day <= $3`
	if model.ClockWindowWraps(from, to) {
		predicate = `(time_of_day >= $2 OR time_of_day <= $3)`
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+medicationColumns+`
		FROM medication_reminders
		WHERE is_taken = FALSE
		  AND retry_count < $1
		  AND `+predicate+`
		ORDER BY user_id ASC, time_of_day ASC
	`, model.MaxRetryCount, from, to)
	if err != nil {
		return nil, err
	}
	return collectMedications(rows)
}

func (r *PostgresMedicationRepo) FindOverdueRetries(ctx context.Context, calledBefore time.Time, beforeClock string) ([]model.MedicationReminder, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+medicationColumns+`
		FROM medication_reminders
		WHERE is_taken = FALSE
		  AND last_called_at IS NOT NULL
		  AND last_called_at <= $1
		  AND time_of_day < $2
		  AND retry_count < $3
		ORDER BY user_id ASC, time_of_day ASC
	`, calledBefore.UTC(), beforeClock, model.MaxRetryCount)
	if err != nil {
		return nil, err
	}
	return collectMedications(rows)
}

func (r *PostgresMedicationRepo) GetByIDs(ctx context.Context, ids []string) ([]model.MedicationReminder, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders, args := inArgs(ids)
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+medicationColumns+`
		FROM medication_reminders
		WHERE id IN (`+placeholders+`)
	`, args...)
	if err != nil {
		return nil, err
	}
	return collectMedications(rows)
}

func (r *PostgresMedicationRepo) StampAttempt(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE medication_reminders
		SET last_called_at = $2,
		    retry_count = retry_count + 1,
		    updated_at = now()
		WHERE id = $1
	`, id, at.UTC())
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("stamp attempt for %s: %w", id, ErrMedicationNotFound)
	}
	return nil
}

func (r *PostgresMedicationRepo) MarkTaken(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders, args := inArgs(ids)
	_, err := r.db.ExecContext(ctx, `
		UPDATE medication_reminders
		SET is_taken = TRUE,
		    updated_at = now()
		WHERE id IN (`+placeholders+`)
	`, args...)
	return err
}

func (r *PostgresMedicationRepo) ResetDaily(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE medication_reminders
		SET is_taken = FALSE,
		    retry_count = 0,
		    last_called_at = NULL,
		    updated_at = now()
		WHERE is_taken = TRUE
		   OR retry_count > 0
		   OR last_called_at IS NOT NULL
	`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func collectMedications(rows *sql.Rows) ([]model.MedicationReminder, error) {
	defer rows.Close()

	var out []model.MedicationReminder
	for rows.Next() {
		var m model.MedicationReminder
		var lastCalled sql.NullTime

		if err := rows.Scan(
			&m.ID,
			&m.UserID,
			&m.Name,
			&m.Dosage,
			&m.Time,
			&m.IsTaken,
			&lastCalled,
			&m.RetryCount,
			&m.CreatedAt,
			&m.UpdatedAt,
		); err != nil {
			return nil, err
		}

		if lastCalled.Valid {
			t := lastCalled.Time
			m.LastCalledAt = &t
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func inArgs(ids []string) (string, []any) {
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	return strings.Join(placeholders, ", "), args
}
