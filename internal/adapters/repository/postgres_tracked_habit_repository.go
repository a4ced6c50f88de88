package repository

import (
	"context"

	"github.com/comitanigiacomo/kanso-discipline-engine/internal/core/domain"
)

type PostgresTrackedHabitRepository struct {
	q executor
}

const trackedHabitColumns = `
	id, user_id, habit_key, base_weight, current_weight,
	percent, streak, last_slip_at, target_value, created_at, updated_at`

// GetTrackedHabit locks the row for the remainder of the enclosing transaction.
func (r *PostgresTrackedHabitRepository) GetTrackedHabit(ctx context.Context, userID, habitKey string) (*domain.TrackedHabit, error) {
	key := domain.NormalizeHabitKey(habitKey)

	var h domain.TrackedHabit
	query := `SELECT ` + trackedHabitColumns + `
		FROM tracked_habits
		WHERE user_id = $1 AND habit_key = $2
		FOR UPDATE`

	if err := r.q.GetContext(ctx, &h, query, userID, key); err != nil {
		return nil, mapError("get tracked habit", err, domain.ErrHabitNotFound.WithID(userID+"/"+key))
	}
	return &h, nil
}

func (r *PostgresTrackedHabitRepository) GetByID(ctx context.Context, id string) (*domain.TrackedHabit, error) {
	var h domain.TrackedHabit
	query := `SELECT ` + trackedHabitColumns + ` FROM tracked_habits WHERE id = $1`

	if err := r.q.GetContext(ctx, &h, query, id); err != nil {
		return nil, mapError("get tracked habit", err, domain.ErrHabitNotFound.WithID(id))
	}
	return &h, nil
}

func (r *PostgresTrackedHabitRepository) ListByUserID(ctx context.Context, userID string) ([]*domain.TrackedHabit, error) {
	habits := []*domain.TrackedHabit{}
	query := `SELECT ` + trackedHabitColumns + `
		FROM tracked_habits
		WHERE user_id = $1
		ORDER BY habit_key ASC`

	if err := r.q.SelectContext(ctx, &habits, query, userID); err != nil {
		return nil, mapError("list tracked habits", err, nil)
	}
	return habits, nil
}

func (r *PostgresTrackedHabitRepository) UpdateSettlement(ctx context.Context, h *domain.TrackedHabit) error {
	query := `
		UPDATE tracked_habits
		SET current_weight = :current_weight,
		    percent = :percent,
		    streak = :streak,
		    last_slip_at = :last_slip_at,
		    updated_at = :updated_at
		WHERE id = :id`

	result, err := r.q.NamedExecContext(ctx, query, h)
	if err != nil {
		return mapError("update tracked habit", err, nil)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return domain.NewStorageError("update tracked habit", err)
	}
	if rows == 0 {
		return domain.ErrHabitNotFound.WithID(h.ID)
	}
	return nil
}
