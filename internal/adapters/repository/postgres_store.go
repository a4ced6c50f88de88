package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/comitanigiacomo/kanso-discipline-engine/internal/core/domain"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
)

var _ domain.UnitOfWork = (*PostgresStore)(nil)

// executor is satisfied by both *sqlx.DB and *sqlx.Tx.
type executor interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
}

type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const (
	DriverPgx = "pgx"
	DriverPq  = "postgres"
)

// OpenPostgres connects and verifies the connection. driver is DriverPgx
// (the default when empty) or DriverPq.
func OpenPostgres(ctx context.Context, driver, dsn string, maxOpen, maxIdle int) (*sqlx.DB, error) {
	if driver == "" {
		driver = DriverPgx
	}
	if driver != DriverPgx && driver != DriverPq {
		return nil, fmt.Errorf("unsupported postgres driver %q", driver)
	}
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func (s *PostgresStore) DB() *sqlx.DB { return s.db }

func (s *PostgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.NewStorageError("begin", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, repositoriesFor(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, domain.NewStorageError("rollback", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return domain.NewStorageError("commit", err)
	}
	return nil
}

// Repositories returns repositories bound to the pool, outside any transaction.
func (s *PostgresStore) Repositories() domain.Repositories {
	return repositoriesFor(s.db)
}

func repositoriesFor(q executor) domain.Repositories {
	return domain.Repositories{
		Reports: &PostgresReportRepository{q: q},
		Habits:  &PostgresTrackedHabitRepository{q: q},
		History: &PostgresHistoryRepository{q: q},
		Metrics: &PostgresMetricsRepository{q: q},
	}
}

// CreateTrackedHabit inserts a new habit row.
func (s *PostgresStore) CreateTrackedHabit(ctx context.Context, h *domain.TrackedHabit) error {
	query := `
		INSERT INTO tracked_habits (
			id, user_id, habit_key, base_weight, current_weight,
			percent, streak, last_slip_at, target_value, created_at, updated_at
		) VALUES (
			:id, :user_id, :habit_key, :base_weight, :current_weight,
			:percent, :streak, :last_slip_at, :target_value, :created_at, :updated_at
		)`

	_, err := s.db.NamedExecContext(ctx, query, h)
	return mapError("create tracked habit", err, nil)
}

// CreateReport inserts a report and its sub-reports atomically.
func (s *PostgresStore) CreateReport(ctx context.Context, r *domain.DailyReport) error {
	if err := r.Validate(); err != nil {
		return err
	}
	date := dateArg(r.ReportDate)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.NewStorageError("begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO daily_reports (id, user_id, report_date, created_at) VALUES ($1, $2, $3::date, $4)`,
		r.ID, r.UserID, date, createdAt,
	)
	if err != nil {
		return mapError("create report", err, nil)
	}

	for _, hr := range r.Habits {
		value := []byte(hr.Value)
		if len(value) == 0 {
			value = []byte("{}")
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO daily_habit_reports (
				id, report_id, tracked_habit_id, habit_key, report_date,
				value, slip, is_win, is_partial_win, outcome, settled_at
			) VALUES ($1, $2, $3, $4, $5::date, $6, $7, $8, $9, $10, $11)`,
			hr.ID, r.ID, hr.TrackedHabitID, domain.NormalizeHabitKey(hr.HabitKey), date,
			string(value), hr.Slip, hr.IsWin, hr.IsPartialWin, outcomeArg(hr.Outcome), hr.SettledAt,
		)
		if err != nil {
			return mapError("create habit report", err, nil)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.NewStorageError("commit", err)
	}
	return nil
}

// dateArg renders a calendar date so DATE columns never depend on the session time zone.
func dateArg(t time.Time) string {
	return domain.DateOf(t).Format(domain.DateLayout)
}

func nullableDateArg(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return dateArg(*t)
}

func outcomeArg(o *domain.Outcome) interface{} {
	if o == nil {
		return nil
	}
	return string(*o)
}
