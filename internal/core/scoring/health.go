package scoring

import "github.com/comitanigiacomo/kanso-discipline-engine/internal/core/domain"

// WeightedOutcome is one settled habit as seen by the aggregator: its outcome
// and the post-update current weight.
type WeightedOutcome struct {
	Outcome domain.Outcome
	Weight  float64
}

type HealthResult struct {
	OldHealth float64
	NewHealth float64
	// DeltaHealth is sumWins·α − sumFails·β before clamping.
	DeltaHealth float64
	// AppliedDelta is NewHealth − OldHealth, zero when health is pinned at a bound.
	AppliedDelta float64
	SumWins      float64
	SumFails     float64
	XPDelta      int64
}

// Aggregate folds a user's settled outcomes for one day into the discipline
// health score. oldHealth is nil when the user has no metrics row yet.
func Aggregate(oldHealth *float64, outcomes []WeightedOutcome, c domain.Coefficients) HealthResult {
	res := HealthResult{OldHealth: c.BaselineHealth}
	if oldHealth != nil {
		res.OldHealth = *oldHealth
	}

	for _, o := range outcomes {
		contribution := o.Weight * c.HealthMultiplier(o.Outcome)
		switch {
		case o.Outcome.IsWin():
			res.SumWins += contribution
		case o.Outcome.IsFail():
			res.SumFails += contribution
		}
		res.XPDelta += c.XP(o.Outcome)
	}

	res.DeltaHealth = res.SumWins*c.Alpha - res.SumFails*c.Beta
	res.NewHealth = domain.Clamp(res.OldHealth+res.DeltaHealth, domain.PercentMin, domain.PercentMax)
	res.AppliedDelta = res.NewHealth - res.OldHealth
	return res
}
