package domain

import (
	"time"

	"github.com/google/uuid"
)

// HabitHistoryEntry is one immutable line of the percent ledger.
type HabitHistoryEntry struct {
	ID             string    `json:"id" db:"id"`
	TrackedHabitID string    `json:"tracked_habit_id" db:"tracked_habit_id"`
	UserID         string    `json:"user_id" db:"user_id"`
	ReportDate     time.Time `json:"report_date" db:"report_date"`
	PercentBefore  float64   `json:"percent_before" db:"percent_before"`
	PercentAfter   float64   `json:"percent_after" db:"percent_after"`
	WeightBefore   float64   `json:"weight_before" db:"weight_before"`
	WeightAfter    float64   `json:"weight_after" db:"weight_after"`
	PercentDelta   float64   `json:"percent_delta" db:"percent_delta"`
	WeightDelta    float64   `json:"weight_delta" db:"weight_delta"`
	Outcome        Outcome   `json:"outcome" db:"outcome"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

func NewHabitHistoryEntry(h *TrackedHabit, date time.Time, outcome Outcome, percentAfter, weightAfter float64, at time.Time) *HabitHistoryEntry {
	return &HabitHistoryEntry{
		ID:             uuid.NewString(),
		TrackedHabitID: h.ID,
		UserID:         h.UserID,
		ReportDate:     DateOf(date),
		PercentBefore:  h.Percent,
		PercentAfter:   percentAfter,
		WeightBefore:   h.CurrentWeight,
		WeightAfter:    weightAfter,
		PercentDelta:   percentAfter - h.Percent,
		WeightDelta:    weightAfter - h.CurrentWeight,
		Outcome:        outcome,
		CreatedAt:      at.UTC(),
	}
}
