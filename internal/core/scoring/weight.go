package scoring

import (
	"math"
	"time"

	"github.com/comitanigiacomo/kanso-discipline-engine/internal/core/domain"
)

// HistoryLookback is the widest trailing window, in calendar days.
const HistoryLookback = 30

// Windows holds fail (P) and win (W) counts over trailing 3/7/30-day windows.
type Windows struct {
	P3, P7, P30 int
	W3, W7, W30 int
}

// CountWindows counts settled outcomes whose report date lies within the
// trailing windows ending on asOf (inclusive). Distance is measured in
// calendar days; at most one entry per date is counted.
func CountWindows(history []*domain.HabitHistoryEntry, asOf time.Time) Windows {
	var w Windows
	seen := make(map[string]bool, len(history))

	for _, e := range history {
		if e == nil {
			continue
		}
		d := domain.DaysBetween(e.ReportDate, asOf)
		if d < 0 || d >= HistoryLookback {
			continue
		}

		key := domain.DateOf(e.ReportDate).Format(domain.DateLayout)
		if seen[key] {
			continue
		}
		seen[key] = true

		switch {
		case e.Outcome.IsFail():
			w.P30++
			if d < 7 {
				w.P7++
			}
			if d < 3 {
				w.P3++
			}
		case e.Outcome.IsWin():
			w.W30++
			if d < 7 {
				w.W7++
			}
			if d < 3 {
				w.W3++
			}
		}
	}
	return w
}

// WindowRange returns the [from, to] dates to fetch history for asOf.
func WindowRange(asOf time.Time) (time.Time, time.Time) {
	to := domain.DateOf(asOf)
	return to.AddDate(0, 0, -(HistoryLookback - 1)), to
}

type WeightResult struct {
	CurrentWeight float64
	RawWeight     float64
	Penalty       float64
	Reward        float64
	StreakFactor  float64
}

// ComputeWeight derives present-day difficulty from the base weight, the
// windowed history and the streak. It is a pure function of its inputs.
func ComputeWeight(baseWeight float64, w Windows, streak int, c domain.Coefficients) WeightResult {
	penalty := float64(w.P3)*c.PenaltyP3 + float64(w.P7)*c.PenaltyP7 + float64(w.P30)*c.PenaltyP30
	reward := float64(w.W3)*c.RewardW3 + float64(w.W7)*c.RewardW7 + float64(w.W30)*c.RewardW30

	sf := StreakFactor(streak)
	raw := baseWeight + penalty - reward - sf

	return WeightResult{
		CurrentWeight: domain.Clamp(raw, c.WeightMin, c.WeightMax),
		RawWeight:     raw,
		Penalty:       penalty,
		Reward:        reward,
		StreakFactor:  sf,
	}
}

// StreakFactor is log2(streak+1): zero for no streak, growing slowly after.
func StreakFactor(streak int) float64 {
	if streak <= 0 {
		return 0
	}
	return math.Log2(float64(streak) + 1)
}
