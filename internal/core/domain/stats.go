package domain

import (
	"time"

	"github.com/google/uuid"
)

const DefaultBaselineHealth = 50.0

// SystemMetrics is the per-user aggregate the dashboard reads.
type SystemMetrics struct {
	UserID           string     `json:"user_id" db:"user_id"`
	DisciplineHealth float64    `json:"discipline_health" db:"discipline_health"`
	TotalXP          int64      `json:"total_xp" db:"total_xp"`
	LastReportDate   *time.Time `json:"last_report_date,omitempty" db:"last_report_date"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}

func NewSystemMetrics(userID string, baseline float64) *SystemMetrics {
	return &SystemMetrics{
		UserID:           userID,
		DisciplineHealth: Clamp(baseline, PercentMin, PercentMax),
		UpdatedAt:        time.Now().UTC(),
	}
}

// DailyMetricsSnapshot is appended once per (user, date); its presence marks the day as settled.
type DailyMetricsSnapshot struct {
	ID               string    `json:"id" db:"id"`
	UserID           string    `json:"user_id" db:"user_id"`
	ReportDate       time.Time `json:"report_date" db:"report_date"`
	DisciplineHealth float64   `json:"discipline_health" db:"discipline_health"`
	DeltaHealth      float64   `json:"delta_health" db:"delta_health"`
	RawDeltaHealth   float64   `json:"raw_delta_health" db:"raw_delta_health"`
	SumWins          float64   `json:"sum_wins" db:"sum_wins"`
	SumFails         float64   `json:"sum_fails" db:"sum_fails"`
	XPDelta          int64     `json:"xp_delta" db:"xp_delta"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// NewDailyMetricsSnapshot records the health actually applied for the day.
// DeltaHealth is the clamped change oldHealth -> newHealth; rawDelta keeps
// the unclamped aggregate so a day pinned at a bound still shows its pull.
func NewDailyMetricsSnapshot(userID string, date time.Time, oldHealth, newHealth, rawDelta, sumWins, sumFails float64, xp int64, at time.Time) *DailyMetricsSnapshot {
	return &DailyMetricsSnapshot{
		ID:               uuid.NewString(),
		UserID:           userID,
		ReportDate:       DateOf(date),
		DisciplineHealth: newHealth,
		DeltaHealth:      newHealth - oldHealth,
		RawDeltaHealth:   rawDelta,
		SumWins:          sumWins,
		SumFails:         sumFails,
		XPDelta:          xp,
		CreatedAt:        at.UTC(),
	}
}

// Dashboard is the read model served to presentation clients.
type Dashboard struct {
	Metrics   *SystemMetrics          `json:"metrics"`
	Snapshots []*DailyMetricsSnapshot `json:"snapshots"`
}
