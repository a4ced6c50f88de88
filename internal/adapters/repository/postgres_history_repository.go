package repository

import (
	"context"
	"time"

	"github.com/comitanigiacomo/kanso-discipline-engine/internal/core/domain"
)

type PostgresHistoryRepository struct {
	q executor
}

const historyColumns = `
	id, tracked_habit_id, user_id, report_date,
	percent_before, percent_after, weight_before, weight_after,
	percent_delta, weight_delta, outcome, created_at`

func (r *PostgresHistoryRepository) GetHistoryWindow(ctx context.Context, habitID string, from, to time.Time) ([]*domain.HabitHistoryEntry, error) {
	entries := []*domain.HabitHistoryEntry{}
	query := `SELECT ` + historyColumns + `
		FROM habit_history
		WHERE tracked_habit_id = $1
		  AND report_date >= $2::date
		  AND report_date <= $3::date
		ORDER BY report_date DESC`

	if err := r.q.SelectContext(ctx, &entries, query, habitID, dateArg(from), dateArg(to)); err != nil {
		return nil, mapError("get history window", err, nil)
	}
	for _, e := range entries {
		e.ReportDate = domain.DateOf(e.ReportDate)
	}
	return entries, nil
}

func (r *PostgresHistoryRepository) GetEntry(ctx context.Context, habitID string, date time.Time) (*domain.HabitHistoryEntry, error) {
	var e domain.HabitHistoryEntry
	query := `SELECT ` + historyColumns + `
		FROM habit_history
		WHERE tracked_habit_id = $1 AND report_date = $2::date`

	err := r.q.GetContext(ctx, &e, query, habitID, dateArg(date))
	if err != nil {
		return nil, mapError("get history entry", err, &domain.NotFoundError{Entity: "history entry", ID: habitID + "@" + dateArg(date)})
	}
	e.ReportDate = domain.DateOf(e.ReportDate)
	return &e, nil
}

func (r *PostgresHistoryRepository) Append(ctx context.Context, e *domain.HabitHistoryEntry) error {
	query := `
		INSERT INTO habit_history (
			id, tracked_habit_id, user_id, report_date,
			percent_before, percent_after, weight_before, weight_after,
			percent_delta, weight_delta, outcome, created_at
		) VALUES ($1, $2, $3, $4::date, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.q.ExecContext(ctx, query,
		e.ID, e.TrackedHabitID, e.UserID, dateArg(e.ReportDate),
		e.PercentBefore, e.PercentAfter, e.WeightBefore, e.WeightAfter,
		e.PercentDelta, e.WeightDelta, string(e.Outcome), e.CreatedAt,
	)
	return mapError("append history entry", err, nil)
}
