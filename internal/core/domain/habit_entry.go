package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx/types"
)

var (
	ErrInvalidReport = errors.New("invalid daily report data")
)

// DailyReport is one user's self-report for a calendar day.
type DailyReport struct {
	ID         string    `json:"id" db:"id"`
	UserID     string    `json:"user_id" db:"user_id"`
	ReportDate time.Time `json:"report_date" db:"report_date"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`

	Habits []*DailyHabitReport `json:"habits" db:"-"`
}

// DailyHabitReport is the per-habit part of a DailyReport.
// Value is a habit-specific JSON payload (counts, hours, booleans).
type DailyHabitReport struct {
	ID             string         `json:"id" db:"id"`
	ReportID       string         `json:"report_id" db:"report_id"`
	TrackedHabitID string         `json:"tracked_habit_id" db:"tracked_habit_id"`
	HabitKey       string         `json:"habit_key" db:"habit_key"`
	ReportDate     time.Time      `json:"report_date" db:"report_date"`
	Value          types.JSONText `json:"value" db:"value"`
	Slip           bool           `json:"slip" db:"slip"`

	IsWin        bool       `json:"is_win" db:"is_win"`
	IsPartialWin bool       `json:"is_partial_win" db:"is_partial_win"`
	Outcome      *Outcome   `json:"outcome,omitempty" db:"outcome"`
	SettledAt    *time.Time `json:"settled_at,omitempty" db:"settled_at"`
}

func (r *DailyReport) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("report id is required")
	}
	if strings.TrimSpace(r.UserID) == "" {
		return errors.New("user_id is required")
	}
	if r.ReportDate.IsZero() {
		return errors.New("report_date is required")
	}
	return nil
}

func (r *DailyHabitReport) Settled() bool {
	return r.SettledAt != nil
}

// MarkSettled records the evaluated outcome and the durable settled marker.
func (r *DailyHabitReport) MarkSettled(outcome Outcome, at time.Time) {
	o := outcome
	r.Outcome = &o
	r.IsWin = outcome == OutcomeFullWin
	r.IsPartialWin = outcome == OutcomePartialWin
	t := at.UTC()
	r.SettledAt = &t
}
