package domain

import (
	"context"
	"time"
)

type ReportRepository interface {
	// GetReport loads a daily report together with its per-habit sub-reports.
	GetReport(ctx context.Context, reportID string) (*DailyReport, error)

	// GetHabitReport returns the sub-report of a habit for a given date, or ErrReportNotFound.
	// Settlement uses it to read yesterday's value.
	GetHabitReport(ctx context.Context, habitID string, date time.Time) (*DailyHabitReport, error)

	// MarkHabitReportSettled writes back the evaluated flags and the durable settled marker.
	MarkHabitReportSettled(ctx context.Context, r *DailyHabitReport) error
}

type TrackedHabitRepository interface {
	// GetTrackedHabit retrieves the habit a user tracks under habitKey.
	GetTrackedHabit(ctx context.Context, userID, habitKey string) (*TrackedHabit, error)

	// GetByID retrieves a habit by its unique identifier.
	GetByID(ctx context.Context, id string) (*TrackedHabit, error)

	// ListByUserID retrieves all habits tracked by a user.
	ListByUserID(ctx context.Context, userID string) ([]*TrackedHabit, error)

	// UpdateSettlement persists percent, current weight, streak and last slip.
	UpdateSettlement(ctx context.Context, h *TrackedHabit) error
}

type HabitHistoryRepository interface {
	// GetHistoryWindow returns settled history for a habit with report dates in [from, to].
	GetHistoryWindow(ctx context.Context, habitID string, from, to time.Time) ([]*HabitHistoryEntry, error)

	// GetEntry returns the entry for (habit, date), or ErrNotFound.
	GetEntry(ctx context.Context, habitID string, date time.Time) (*HabitHistoryEntry, error)

	// Append adds an entry. Entries are never updated or deleted.
	Append(ctx context.Context, e *HabitHistoryEntry) error
}

type MetricsRepository interface {
	// GetSystemMetrics returns the user's metrics row, or ErrMetricsNotFound when none exists yet.
	GetSystemMetrics(ctx context.Context, userID string) (*SystemMetrics, error)

	UpsertSystemMetrics(ctx context.Context, m *SystemMetrics) error

	// SnapshotExists is the idempotency check: true once (user, date) has been settled.
	SnapshotExists(ctx context.Context, userID string, date time.Time) (bool, error)

	AppendSnapshot(ctx context.Context, s *DailyMetricsSnapshot) error

	// ListSnapshots returns the most recent snapshots, newest first.
	ListSnapshots(ctx context.Context, userID string, limit int) ([]*DailyMetricsSnapshot, error)
}

// Repositories groups the stores bound to one transaction.
type Repositories struct {
	Reports ReportRepository
	Habits  TrackedHabitRepository
	History HabitHistoryRepository
	Metrics MetricsRepository
}

type UnitOfWork interface {
	// WithinTx runs fn against repositories bound to a single transaction.
	// The transaction commits when fn returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

type ConfigProvider interface {
	// GetCoefficients returns a fresh snapshot; callers must not cache it across runs.
	GetCoefficients(ctx context.Context) (Coefficients, error)

	GetThresholds(ctx context.Context) (ThresholdSet, error)
}

type UserLocker interface {
	// Acquire takes the single-writer lock for a user. It returns ErrLockHeld
	// when another worker owns it. The returned release func is safe to call once.
	Acquire(ctx context.Context, userID string) (release func(), err error)
}

type Notifier interface {
	PublishSettlement(ctx context.Context, result *SettlementResult) error
}
