package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/comitanigiacomo/kanso-discipline-engine/internal/core/domain"
)

func TestAggregate(t *testing.T) {
	c := domain.DefaultCoefficients()

	t.Run("Blend of wins and fails", func(t *testing.T) {
		old := 50.0
		outcomes := []WeightedOutcome{
			{Outcome: domain.OutcomeFullWin, Weight: 6},
			{Outcome: domain.OutcomePartialWin, Weight: 4},
			{Outcome: domain.OutcomeFail, Weight: 3},
		}

		res := Aggregate(&old, outcomes, c)

		assert.InDelta(t, 8, res.SumWins, 1e-9)
		assert.InDelta(t, 3, res.SumFails, 1e-9)
		assert.InDelta(t, 4.6, res.DeltaHealth, 1e-9)
		assert.InDelta(t, 54.6, res.NewHealth, 1e-9)
		assert.Equal(t, c.XPWin+c.XPPartialWin+c.XPFail, res.XPDelta)
	})

	t.Run("Critical fail weighs heavier", func(t *testing.T) {
		old := 50.0
		res := Aggregate(&old, []WeightedOutcome{{Outcome: domain.OutcomeCriticalFail, Weight: 10}}, c)

		assert.InDelta(t, 15, res.SumFails, 1e-9)
		assert.InDelta(t, -9, res.DeltaHealth, 1e-9)
		assert.InDelta(t, 41, res.NewHealth, 1e-9)
		assert.Equal(t, c.XPCriticalFail, res.XPDelta)
	})

	t.Run("Missing metrics start from the baseline", func(t *testing.T) {
		res := Aggregate(nil, []WeightedOutcome{{Outcome: domain.OutcomeFullWin, Weight: 5}}, c)

		assert.Equal(t, domain.DefaultBaselineHealth, res.OldHealth)
		assert.InDelta(t, 54, res.NewHealth, 1e-9)
	})

	t.Run("Clamped at both ends", func(t *testing.T) {
		high, low := 99.0, 1.0
		up := Aggregate(&high, []WeightedOutcome{{Outcome: domain.OutcomeFullWin, Weight: 20}}, c)
		down := Aggregate(&low, []WeightedOutcome{{Outcome: domain.OutcomeCriticalFail, Weight: 20}}, c)

		assert.Equal(t, 100.0, up.NewHealth)
		assert.Equal(t, 0.0, down.NewHealth)
		assert.InDelta(t, 16, up.DeltaHealth, 1e-9, "delta is reported unclamped")
		assert.InDelta(t, 1, up.AppliedDelta, 1e-9)
		assert.InDelta(t, -1, down.AppliedDelta, 1e-9)
	})

	t.Run("No outcomes leaves health untouched", func(t *testing.T) {
		old := 63.0
		res := Aggregate(&old, nil, c)

		assert.Equal(t, 63.0, res.NewHealth)
		assert.Equal(t, 0.0, res.DeltaHealth)
		assert.Equal(t, int64(0), res.XPDelta)
	})

	t.Run("XP can be negative", func(t *testing.T) {
		old := 50.0
		res := Aggregate(&old, []WeightedOutcome{
			{Outcome: domain.OutcomeFail, Weight: 1},
			{Outcome: domain.OutcomeCriticalFail, Weight: 1},
		}, c)
		assert.Less(t, res.XPDelta, int64(0))
	})
}

func TestAggregate_CustomBlend(t *testing.T) {
	c := domain.DefaultCoefficients()
	c.Alpha, c.Beta = 0.8, 0.6

	old := 50.0
	res := Aggregate(&old, []WeightedOutcome{
		{Outcome: domain.OutcomeFullWin, Weight: 8},
		{Outcome: domain.OutcomeFail, Weight: 3},
	}, c)

	assert.InDelta(t, 6.4-1.8, res.DeltaHealth, 1e-9)
	assert.InDelta(t, 54.6, res.NewHealth, 1e-9)
}
