package repository

import (
	"context"
	"time"

	"github.com/comitanigiacomo/kanso-discipline-engine/internal/core/domain"
)

type PostgresReportRepository struct {
	q executor
}

const habitReportColumns = `
	id, report_id, tracked_habit_id, habit_key, report_date,
	value, slip, is_win, is_partial_win, outcome, settled_at`

func (r *PostgresReportRepository) GetReport(ctx context.Context, reportID string) (*domain.DailyReport, error) {
	var report domain.DailyReport
	err := r.q.GetContext(ctx, &report,
		`SELECT id, user_id, report_date, created_at FROM daily_reports WHERE id = $1`, reportID)
	if err != nil {
		return nil, mapError("get report", err, domain.ErrReportNotFound.WithID(reportID))
	}
	report.ReportDate = domain.DateOf(report.ReportDate)

	habits := []*domain.DailyHabitReport{}
	query := `SELECT ` + habitReportColumns + `
		FROM daily_habit_reports
		WHERE report_id = $1
		ORDER BY habit_key ASC`
	if err := r.q.SelectContext(ctx, &habits, query, reportID); err != nil {
		return nil, mapError("list habit reports", err, nil)
	}
	for _, hr := range habits {
		hr.ReportDate = domain.DateOf(hr.ReportDate)
	}
	report.Habits = habits

	return &report, nil
}

func (r *PostgresReportRepository) GetHabitReport(ctx context.Context, habitID string, date time.Time) (*domain.DailyHabitReport, error) {
	var hr domain.DailyHabitReport
	query := `SELECT ` + habitReportColumns + `
		FROM daily_habit_reports
		WHERE tracked_habit_id = $1 AND report_date = $2::date`

	err := r.q.GetContext(ctx, &hr, query, habitID, dateArg(date))
	if err != nil {
		return nil, mapError("get habit report", err, domain.ErrReportNotFound.WithID(habitID+"@"+dateArg(date)))
	}
	hr.ReportDate = domain.DateOf(hr.ReportDate)
	return &hr, nil
}

func (r *PostgresReportRepository) MarkHabitReportSettled(ctx context.Context, hr *domain.DailyHabitReport) error {
	query := `
		UPDATE daily_habit_reports
		SET is_win = $1,
		    is_partial_win = $2,
		    outcome = $3,
		    settled_at = $4
		WHERE id = $5`

	result, err := r.q.ExecContext(ctx, query, hr.IsWin, hr.IsPartialWin, outcomeArg(hr.Outcome), hr.SettledAt, hr.ID)
	if err != nil {
		return mapError("mark habit report settled", err, nil)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return domain.NewStorageError("mark habit report settled", err)
	}
	if rows == 0 {
		return domain.ErrReportNotFound.WithID(hr.ID)
	}
	return nil
}
