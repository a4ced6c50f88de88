package repository

import (
	"context"
	"time"

	"github.com/comitanigiacomo/kanso-discipline-engine/internal/core/domain"
)

type PostgresMetricsRepository struct {
	q executor
}

func (r *PostgresMetricsRepository) GetSystemMetrics(ctx context.Context, userID string) (*domain.SystemMetrics, error) {
	var m domain.SystemMetrics
	query := `
		SELECT user_id, discipline_health, total_xp, last_report_date, updated_at
		FROM system_metrics
		WHERE user_id = $1`

	if err := r.q.GetContext(ctx, &m, query, userID); err != nil {
		return nil, mapError("get system metrics", err, domain.ErrMetricsNotFound.WithID(userID))
	}
	if m.LastReportDate != nil {
		d := domain.DateOf(*m.LastReportDate)
		m.LastReportDate = &d
	}
	return &m, nil
}

func (r *PostgresMetricsRepository) UpsertSystemMetrics(ctx context.Context, m *domain.SystemMetrics) error {
	query := `
		INSERT INTO system_metrics (user_id, discipline_health, total_xp, last_report_date, updated_at)
		VALUES ($1, $2, $3, $4::date, $5)
		ON CONFLICT (user_id) DO UPDATE
		SET discipline_health = EXCLUDED.discipline_health,
		    total_xp = EXCLUDED.total_xp,
		    last_report_date = EXCLUDED.last_report_date,
		    updated_at = EXCLUDED.updated_at`

	_, err := r.q.ExecContext(ctx, query,
		m.UserID, m.DisciplineHealth, m.TotalXP, nullableDateArg(m.LastReportDate), m.UpdatedAt,
	)
	return mapError("upsert system metrics", err, nil)
}

func (r *PostgresMetricsRepository) SnapshotExists(ctx context.Context, userID string, date time.Time) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (
		SELECT 1 FROM daily_metrics_snapshots WHERE user_id = $1 AND report_date = $2::date
	)`

	if err := r.q.GetContext(ctx, &exists, query, userID, dateArg(date)); err != nil {
		return false, mapError("check snapshot", err, nil)
	}
	return exists, nil
}

func (r *PostgresMetricsRepository) AppendSnapshot(ctx context.Context, s *domain.DailyMetricsSnapshot) error {
	query := `
		INSERT INTO daily_metrics_snapshots (
			id, user_id, report_date, discipline_health, delta_health,
			raw_delta_health, sum_wins, sum_fails, xp_delta, created_at
		) VALUES ($1, $2, $3::date, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.q.ExecContext(ctx, query,
		s.ID, s.UserID, dateArg(s.ReportDate), s.DisciplineHealth, s.DeltaHealth,
		s.RawDeltaHealth, s.SumWins, s.SumFails, s.XPDelta, s.CreatedAt,
	)
	return mapError("append snapshot", err, nil)
}

func (r *PostgresMetricsRepository) ListSnapshots(ctx context.Context, userID string, limit int) ([]*domain.DailyMetricsSnapshot, error) {
	snapshots := []*domain.DailyMetricsSnapshot{}
	query := `
		SELECT id, user_id, report_date, discipline_health, delta_health,
		       raw_delta_health, sum_wins, sum_fails, xp_delta, created_at
		FROM daily_metrics_snapshots
		WHERE user_id = $1
		ORDER BY report_date DESC
		LIMIT NULLIF($2::int, 0)`

	if limit < 0 {
		limit = 0
	}
	if err := r.q.SelectContext(ctx, &snapshots, query, userID, limit); err != nil {
		return nil, mapError("list snapshots", err, nil)
	}
	for _, s := range snapshots {
		s.ReportDate = domain.DateOf(s.ReportDate)
	}
	return snapshots, nil
}
