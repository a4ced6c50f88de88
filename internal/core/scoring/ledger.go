package scoring

import (
	"time"

	"github.com/comitanigiacomo/kanso-discipline-engine/internal/core/domain"
)

type LedgerResult struct {
	NewPercent float64
	// Delta is the unclamped change the outcome asked for.
	Delta float64
	Entry *domain.HabitHistoryEntry
}

// ApplyOutcome converts an outcome and the current weight into a percent
// change and builds the history entry describing it. The habit itself is not
// modified; the entry is produced even when the change is zero.
func ApplyOutcome(h *domain.TrackedHabit, date time.Time, outcome domain.Outcome, currentWeight float64, c domain.Coefficients, at time.Time) LedgerResult {
	ratio := currentWeight / c.WeightMax
	delta := ratio * c.PercentFactor(outcome)
	newPercent := domain.Clamp(h.Percent+delta, domain.PercentMin, domain.PercentMax)

	return LedgerResult{
		NewPercent: newPercent,
		Delta:      delta,
		Entry:      domain.NewHabitHistoryEntry(h, date, outcome, newPercent, currentWeight, at),
	}
}

type StreakResult struct {
	Streak     int
	LastSlipAt *time.Time
}

// UpdateStreak extends the streak on any win and resets it on any fail,
// stamping the slip time. Weight computation must read the streak before this.
func UpdateStreak(h *domain.TrackedHabit, outcome domain.Outcome, now time.Time) StreakResult {
	if outcome.IsWin() {
		return StreakResult{Streak: h.Streak + 1, LastSlipAt: h.LastSlipAt}
	}
	t := now.UTC()
	return StreakResult{Streak: 0, LastSlipAt: &t}
}
