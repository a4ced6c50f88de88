package scoring

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/comitanigiacomo/kanso-discipline-engine/internal/core/domain"
)

func TestCountWindows(t *testing.T) {
	asOf := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	daysAgo := func(n int) time.Time { return asOf.AddDate(0, 0, -n) }
	entry := func(n int, o domain.Outcome) *domain.HabitHistoryEntry {
		return &domain.HabitHistoryEntry{ReportDate: daysAgo(n), Outcome: o}
	}

	tests := []struct {
		name    string
		history []*domain.HabitHistoryEntry
		want    Windows
	}{
		{
			name: "Empty history",
			want: Windows{},
		},
		{
			name: "Window edges are calendar days",
			history: []*domain.HabitHistoryEntry{
				entry(0, domain.OutcomeFail),
				entry(2, domain.OutcomeFail),
				entry(3, domain.OutcomeFail),
				entry(6, domain.OutcomeCriticalFail),
				entry(7, domain.OutcomeFail),
				entry(29, domain.OutcomeFail),
				entry(30, domain.OutcomeFail),
			},
			want: Windows{P3: 2, P7: 4, P30: 6},
		},
		{
			name: "Wins and partial wins count as W",
			history: []*domain.HabitHistoryEntry{
				entry(1, domain.OutcomeFullWin),
				entry(4, domain.OutcomePartialWin),
				entry(10, domain.OutcomeFullWin),
			},
			want: Windows{W3: 1, W7: 2, W30: 3},
		},
		{
			name: "Future entries are ignored",
			history: []*domain.HabitHistoryEntry{
				entry(-1, domain.OutcomeFail),
			},
			want: Windows{},
		},
		{
			name: "Duplicate dates count once",
			history: []*domain.HabitHistoryEntry{
				entry(1, domain.OutcomeFail),
				{ReportDate: daysAgo(1).Add(15 * time.Hour), Outcome: domain.OutcomeFail},
			},
			want: Windows{P3: 1, P7: 1, P30: 1},
		},
		{
			name: "Time of day does not shift the distance",
			history: []*domain.HabitHistoryEntry{
				{ReportDate: daysAgo(3).Add(23*time.Hour + 59*time.Minute), Outcome: domain.OutcomeFail},
			},
			want: Windows{P7: 1, P30: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CountWindows(tt.history, asOf))
		})
	}
}

func TestWindowRange(t *testing.T) {
	from, to := WindowRange(time.Date(2026, 3, 15, 18, 30, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), to)
}

func TestComputeWeight(t *testing.T) {
	c := domain.DefaultCoefficients()

	t.Run("Penalty from fail windows", func(t *testing.T) {
		res := ComputeWeight(10, Windows{P3: 2, P7: 3, P30: 5}, 0, c)

		assert.InDelta(t, 4.5, res.Penalty, 1e-9)
		assert.InDelta(t, 0, res.Reward, 1e-9)
		assert.InDelta(t, 0, res.StreakFactor, 1e-9)
		assert.InDelta(t, 14.5, res.RawWeight, 1e-9)
		assert.InDelta(t, 14.5, res.CurrentWeight, 1e-9)
	})

	t.Run("Reward and streak dampen the weight", func(t *testing.T) {
		res := ComputeWeight(10, Windows{W3: 3, W7: 7, W30: 7}, 7, c)

		assert.InDelta(t, 3+3.5+1.4, res.Reward, 1e-9)
		assert.InDelta(t, 3, res.StreakFactor, 1e-9)
		assert.InDelta(t, 10-7.9-3, res.RawWeight, 1e-9)
		assert.Equal(t, c.WeightMin, res.CurrentWeight)
	})

	t.Run("Clamped to the upper bound", func(t *testing.T) {
		res := ComputeWeight(18, Windows{P3: 3, P7: 7, P30: 30}, 0, c)
		assert.Equal(t, c.WeightMax, res.CurrentWeight)
	})

	t.Run("Custom bounds are respected", func(t *testing.T) {
		custom := c
		custom.WeightMin, custom.WeightMax = 2, 8
		res := ComputeWeight(10, Windows{}, 0, custom)
		assert.Equal(t, 8.0, res.CurrentWeight)
	})

	t.Run("Deterministic for identical inputs", func(t *testing.T) {
		w := Windows{P3: 1, P7: 2, P30: 4, W3: 1, W7: 3, W30: 9}
		first := ComputeWeight(12, w, 5, c)
		for i := 0; i < 10; i++ {
			assert.Equal(t, first, ComputeWeight(12, w, 5, c))
		}
	})

	t.Run("Always within bounds", func(t *testing.T) {
		for base := 0.0; base <= 40; base += 2.5 {
			for streak := 0; streak < 50; streak += 7 {
				for p := 0; p < 30; p += 6 {
					res := ComputeWeight(base, Windows{P3: p % 3, P7: p % 7, P30: p, W30: 30 - p}, streak, c)
					assert.GreaterOrEqual(t, res.CurrentWeight, c.WeightMin)
					assert.LessOrEqual(t, res.CurrentWeight, c.WeightMax)
				}
			}
		}
	})
}

func TestStreakFactor(t *testing.T) {
	assert.Equal(t, 0.0, StreakFactor(0))
	assert.Equal(t, 0.0, StreakFactor(-3))
	assert.InDelta(t, 1, StreakFactor(1), 1e-9)
	assert.InDelta(t, math.Log2(11), StreakFactor(10), 1e-9)

	prev := StreakFactor(0)
	for s := 1; s < 100; s++ {
		cur := StreakFactor(s)
		assert.Greater(t, cur, prev)
		prev = cur
	}
}
