package domain

import (
	"fmt"
)

// Coefficients is the operator-tuned snapshot a single settlement run works with.
// It is fetched once per run and never mutated by the engine.
type Coefficients struct {
	PenaltyP3  float64 `json:"penalty_p3" mapstructure:"penalty_p3"`
	PenaltyP7  float64 `json:"penalty_p7" mapstructure:"penalty_p7"`
	PenaltyP30 float64 `json:"penalty_p30" mapstructure:"penalty_p30"`
	RewardW3   float64 `json:"reward_w3" mapstructure:"reward_w3"`
	RewardW7   float64 `json:"reward_w7" mapstructure:"reward_w7"`
	RewardW30  float64 `json:"reward_w30" mapstructure:"reward_w30"`

	WeightMin float64 `json:"weight_min" mapstructure:"weight_min"`
	WeightMax float64 `json:"weight_max" mapstructure:"weight_max"`

	WinFactor          float64 `json:"win_factor" mapstructure:"win_factor"`
	PartialWinFactor   float64 `json:"partial_win_factor" mapstructure:"partial_win_factor"`
	FailFactor         float64 `json:"fail_factor" mapstructure:"fail_factor"`
	CriticalFailFactor float64 `json:"critical_fail_factor" mapstructure:"critical_fail_factor"`

	Alpha              float64 `json:"alpha" mapstructure:"alpha"`
	Beta               float64 `json:"beta" mapstructure:"beta"`
	HealthWin          float64 `json:"health_win" mapstructure:"health_win"`
	HealthPartialWin   float64 `json:"health_partial_win" mapstructure:"health_partial_win"`
	HealthFail         float64 `json:"health_fail" mapstructure:"health_fail"`
	HealthCriticalFail float64 `json:"health_critical_fail" mapstructure:"health_critical_fail"`
	BaselineHealth     float64 `json:"baseline_health" mapstructure:"baseline_health"`

	XPWin          int64 `json:"xp_win" mapstructure:"xp_win"`
	XPPartialWin   int64 `json:"xp_partial_win" mapstructure:"xp_partial_win"`
	XPFail         int64 `json:"xp_fail" mapstructure:"xp_fail"`
	XPCriticalFail int64 `json:"xp_critical_fail" mapstructure:"xp_critical_fail"`
}

func DefaultCoefficients() Coefficients {
	return Coefficients{
		PenaltyP3:  1.0,
		PenaltyP7:  0.5,
		PenaltyP30: 0.2,
		RewardW3:   1.0,
		RewardW7:   0.5,
		RewardW30:  0.2,

		WeightMin: DefaultWeightMin,
		WeightMax: DefaultWeightMax,

		WinFactor:          5,
		PartialWinFactor:   2.5,
		FailFactor:         5,
		CriticalFailFactor: 10,

		Alpha:              0.8,
		Beta:               0.6,
		HealthWin:          1.0,
		HealthPartialWin:   0.5,
		HealthFail:         1.0,
		HealthCriticalFail: 1.5,
		BaselineHealth:     DefaultBaselineHealth,

		XPWin:          10,
		XPPartialWin:   5,
		XPFail:         -5,
		XPCriticalFail: -15,
	}
}

func (c Coefficients) Validate() error {
	if c.WeightMin <= 0 || c.WeightMax <= c.WeightMin {
		return fmt.Errorf("%w: weight bounds must satisfy 0 < min < max (got %v, %v)", ErrInvalidCoefficients, c.WeightMin, c.WeightMax)
	}
	if c.BaselineHealth < PercentMin || c.BaselineHealth > PercentMax {
		return fmt.Errorf("%w: baseline health %v outside [0,100]", ErrInvalidCoefficients, c.BaselineHealth)
	}

	nonNegative := map[string]float64{
		"penalty_p3": c.PenaltyP3, "penalty_p7": c.PenaltyP7, "penalty_p30": c.PenaltyP30,
		"reward_w3": c.RewardW3, "reward_w7": c.RewardW7, "reward_w30": c.RewardW30,
		"win_factor": c.WinFactor, "partial_win_factor": c.PartialWinFactor,
		"fail_factor": c.FailFactor, "critical_fail_factor": c.CriticalFailFactor,
		"alpha": c.Alpha, "beta": c.Beta,
		"health_win": c.HealthWin, "health_partial_win": c.HealthPartialWin,
		"health_fail": c.HealthFail, "health_critical_fail": c.HealthCriticalFail,
	}
	for name, v := range nonNegative {
		if v < 0 {
			return fmt.Errorf("%w: %s cannot be negative", ErrInvalidCoefficients, name)
		}
	}
	return nil
}

// HealthMultiplier is the share of a habit's weight an outcome contributes to the health sums.
func (c Coefficients) HealthMultiplier(o Outcome) float64 {
	switch o {
	case OutcomeFullWin:
		return c.HealthWin
	case OutcomePartialWin:
		return c.HealthPartialWin
	case OutcomeFail:
		return c.HealthFail
	case OutcomeCriticalFail:
		return c.HealthCriticalFail
	}
	return 0
}

func (c Coefficients) PercentFactor(o Outcome) float64 {
	switch o {
	case OutcomeFullWin:
		return c.WinFactor
	case OutcomePartialWin:
		return c.PartialWinFactor
	case OutcomeFail:
		return -c.FailFactor
	case OutcomeCriticalFail:
		return -c.CriticalFailFactor
	}
	return 0
}

func (c Coefficients) XP(o Outcome) int64 {
	switch o {
	case OutcomeFullWin:
		return c.XPWin
	case OutcomePartialWin:
		return c.XPPartialWin
	case OutcomeFail:
		return c.XPFail
	case OutcomeCriticalFail:
		return c.XPCriticalFail
	}
	return 0
}

type HabitPolicy string

const (
	PolicyZeroTolerance         HabitPolicy = "zero_tolerance"
	PolicyTargetBased           HabitPolicy = "target_based"
	PolicyZeroToleranceOverride HabitPolicy = "zero_tolerance_override"
	PolicyGeneric               HabitPolicy = "generic"
)

func (p HabitPolicy) Valid() bool {
	switch p {
	case PolicyZeroTolerance, PolicyTargetBased, PolicyZeroToleranceOverride, PolicyGeneric:
		return true
	}
	return false
}

// HabitThresholds configures evaluation for one habit key.
// Zero Target means "use the tracked habit's own target"; zero Danger disables CRITICAL_FAIL.
type HabitThresholds struct {
	Policy HabitPolicy `json:"policy,omitempty" db:"policy" mapstructure:"policy"`
	Target float64     `json:"target" db:"target" mapstructure:"target"`
	Danger float64     `json:"danger" db:"danger" mapstructure:"danger"`
}

// ThresholdSet maps a normalized habit key to its thresholds.
type ThresholdSet map[string]HabitThresholds

func (s ThresholdSet) For(habitKey string) HabitThresholds {
	if s == nil {
		return HabitThresholds{}
	}
	return s[NormalizeHabitKey(habitKey)]
}

func DefaultThresholds() ThresholdSet {
	return ThresholdSet{
		"smoking":      {Danger: 20},
		"vaping":       {Danger: 20},
		"alcohol":      {Danger: 6},
		"phone":        {Target: 3, Danger: 10},
		"screen_time":  {Target: 3, Danger: 10},
		"social_media": {Target: 1, Danger: 6},
		"gaming":       {Target: 2, Danger: 8},
	}
}
