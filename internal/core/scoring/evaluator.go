// Package scoring holds the pure arithmetic of daily settlement: outcome
// evaluation, windowed counts, weight, percent ledger, streaks and the
// discipline health aggregate. Nothing in here touches storage or blocks.
package scoring

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/comitanigiacomo/kanso-discipline-engine/internal/core/domain"
)

var defaultPolicies = map[string]domain.HabitPolicy{
	"smoking": domain.PolicyZeroTolerance,
	"vaping":  domain.PolicyZeroTolerance,
	"alcohol": domain.PolicyZeroTolerance,
	"sugar":   domain.PolicyZeroTolerance,

	"phone":        domain.PolicyTargetBased,
	"screen_time":  domain.PolicyTargetBased,
	"social_media": domain.PolicyTargetBased,
	"gaming":       domain.PolicyTargetBased,
	"gambling":     domain.PolicyTargetBased,

	"drugs":      domain.PolicyZeroToleranceOverride,
	"hard_drugs": domain.PolicyZeroToleranceOverride,
	"opioids":    domain.PolicyZeroToleranceOverride,
}

// PolicyFor resolves the evaluation policy of a habit key. An explicit policy
// in the thresholds wins; unknown keys fall back to the generic policy.
func PolicyFor(habitKey string, th domain.HabitThresholds) domain.HabitPolicy {
	if th.Policy.Valid() {
		return th.Policy
	}
	if p, ok := defaultPolicies[domain.NormalizeHabitKey(habitKey)]; ok {
		return p
	}
	return domain.PolicyGeneric
}

type EvaluationRequest struct {
	HabitKey    string
	Payload     []byte
	Slip        bool
	Yesterday   *float64
	Thresholds  domain.HabitThresholds
	HabitTarget float64
}

type Evaluation struct {
	Outcome      domain.Outcome
	Measure      float64
	RequiresHelp bool
	SlipOverride bool
	Diagnostic   string
	// Err is a *domain.ValidationError when the payload could not be read.
	Err error
}

type policy interface {
	read(habitKey string, payload map[string]any) (float64, error)
	classify(today float64, yesterday *float64, slip bool, target, danger float64) Evaluation
}

func policyOf(p domain.HabitPolicy) policy {
	switch p {
	case domain.PolicyZeroTolerance:
		return zeroTolerance{}
	case domain.PolicyTargetBased:
		return targetBased{}
	case domain.PolicyZeroToleranceOverride:
		return zeroToleranceOverride{}
	default:
		return generic{}
	}
}

// Evaluate classifies one day's report for one habit. It never returns an
// error: malformed payloads degrade to FAIL with a diagnostic attached.
func Evaluate(req EvaluationRequest) Evaluation {
	kind := PolicyFor(req.HabitKey, req.Thresholds)
	pol := policyOf(kind)

	target := req.HabitTarget
	if req.Thresholds.Target > 0 {
		target = req.Thresholds.Target
	}

	var ev Evaluation
	today, err := readPayload(pol, req.HabitKey, req.Payload)
	switch {
	case err != nil && req.Slip && kind == domain.PolicyZeroToleranceOverride:
		// A reported slip on an override habit is critical whatever the payload says.
		ev = Evaluation{Outcome: domain.OutcomeCriticalFail, RequiresHelp: true, Diagnostic: err.Error(), Err: err}
	case err != nil:
		ev = Evaluation{Outcome: domain.OutcomeFail, Diagnostic: err.Error(), Err: err}
	default:
		ev = pol.classify(today, req.Yesterday, req.Slip, target, req.Thresholds.Danger)
	}

	if req.Slip && ev.Outcome != domain.OutcomeCriticalFail {
		ev.Outcome = domain.OutcomeFail
		ev.SlipOverride = true
	}
	return ev
}

// MeasuredValue reads the comparable value of a previous report so it can be
// used as "yesterday". A missing or unreadable report yields nil.
func MeasuredValue(habitKey string, th domain.HabitThresholds, r *domain.DailyHabitReport) *float64 {
	if r == nil {
		return nil
	}
	v, err := readPayload(policyOf(PolicyFor(habitKey, th)), habitKey, r.Value)
	if err != nil {
		return nil
	}
	return &v
}

func readPayload(pol policy, habitKey string, raw []byte) (float64, error) {
	if len(raw) == 0 {
		return 0, &domain.ValidationError{HabitKey: habitKey, Reason: "empty payload"}
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return 0, &domain.ValidationError{HabitKey: habitKey, Reason: "payload is not a JSON object"}
	}
	return pol.read(habitKey, payload)
}

func number(habitKey string, payload map[string]any, field string) (float64, bool, error) {
	raw, ok := payload[field]
	if !ok || raw == nil {
		return 0, false, nil
	}
	v, ok := raw.(float64)
	if !ok {
		return 0, true, &domain.ValidationError{HabitKey: habitKey, Field: field, Reason: fmt.Sprintf("must be a number, got %T", raw)}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, true, &domain.ValidationError{HabitKey: habitKey, Field: field, Reason: "must be a non-negative number"}
	}
	return v, true, nil
}

func firstNumber(habitKey string, payload map[string]any, fields ...string) (float64, error) {
	for _, f := range fields {
		v, found, err := number(habitKey, payload, f)
		if err != nil {
			return 0, err
		}
		if found {
			return v, nil
		}
	}
	return 0, &domain.ValidationError{HabitKey: habitKey, Field: fields[0], Reason: "is required"}
}

func crossed(v, danger float64) bool {
	return danger > 0 && v >= danger
}

func improved(today float64, yesterday *float64) bool {
	return yesterday != nil && today < *yesterday
}

type zeroTolerance struct{}

func (zeroTolerance) read(habitKey string, payload map[string]any) (float64, error) {
	return firstNumber(habitKey, payload, "count")
}

func (zeroTolerance) classify(today float64, yesterday *float64, _ bool, _, danger float64) Evaluation {
	ev := Evaluation{Measure: today}
	switch {
	case today == 0:
		ev.Outcome = domain.OutcomeFullWin
	case crossed(today, danger):
		ev.Outcome = domain.OutcomeCriticalFail
	case improved(today, yesterday):
		ev.Outcome = domain.OutcomePartialWin
	default:
		ev.Outcome = domain.OutcomeFail
	}
	return ev
}

type targetBased struct{}

func (targetBased) read(habitKey string, payload map[string]any) (float64, error) {
	if v, found, err := number(habitKey, payload, "minutes"); err != nil || found {
		return v / 60, err
	}
	return firstNumber(habitKey, payload, "hours", "value")
}

func (targetBased) classify(today float64, yesterday *float64, _ bool, target, danger float64) Evaluation {
	return classifyAgainstTarget(today, yesterday, target, danger)
}

type generic struct{}

func (generic) read(habitKey string, payload map[string]any) (float64, error) {
	return firstNumber(habitKey, payload, "value", "count")
}

func (generic) classify(today float64, yesterday *float64, _ bool, target, danger float64) Evaluation {
	return classifyAgainstTarget(today, yesterday, target, danger)
}

func classifyAgainstTarget(today float64, yesterday *float64, target, danger float64) Evaluation {
	ev := Evaluation{Measure: math.Max(0, today-target)}
	switch {
	case today <= target:
		ev.Outcome = domain.OutcomeFullWin
	case crossed(today, danger):
		ev.Outcome = domain.OutcomeCriticalFail
	case improved(today, yesterday):
		ev.Outcome = domain.OutcomePartialWin
	default:
		ev.Outcome = domain.OutcomeFail
	}
	return ev
}

type zeroToleranceOverride struct{}

func (zeroToleranceOverride) read(habitKey string, payload map[string]any) (float64, error) {
	if raw, ok := payload["used"]; ok && raw != nil {
		used, ok := raw.(bool)
		if !ok {
			return 0, &domain.ValidationError{HabitKey: habitKey, Field: "used", Reason: fmt.Sprintf("must be a boolean, got %T", raw)}
		}
		if used {
			if n, found, err := number(habitKey, payload, "count"); err == nil && found && n > 0 {
				return n, nil
			}
			return 1, nil
		}
	}
	if v, found, err := number(habitKey, payload, "count"); err != nil || found {
		return v, err
	}
	if _, ok := payload["used"]; ok {
		return 0, nil
	}
	return 0, &domain.ValidationError{HabitKey: habitKey, Field: "used", Reason: "is required"}
}

func (zeroToleranceOverride) classify(today float64, _ *float64, slip bool, _, _ float64) Evaluation {
	if today > 0 || slip {
		return Evaluation{Outcome: domain.OutcomeCriticalFail, Measure: today, RequiresHelp: true}
	}
	return Evaluation{Outcome: domain.OutcomeFullWin, Measure: 0}
}
