package domain

import "fmt"

type Outcome string

const (
	OutcomeFullWin      Outcome = "FULL_WIN"
	OutcomePartialWin   Outcome = "PARTIAL_WIN"
	OutcomeFail         Outcome = "FAIL"
	OutcomeCriticalFail Outcome = "CRITICAL_FAIL"
)

func (o Outcome) Valid() bool {
	switch o {
	case OutcomeFullWin, OutcomePartialWin, OutcomeFail, OutcomeCriticalFail:
		return true
	}
	return false
}

// IsWin reports whether the outcome counts towards a streak and the W windows.
func (o Outcome) IsWin() bool {
	return o == OutcomeFullWin || o == OutcomePartialWin
}

// IsFail reports whether the outcome resets the streak and counts in the P windows.
func (o Outcome) IsFail() bool {
	return o == OutcomeFail || o == OutcomeCriticalFail
}

func ParseOutcome(s string) (Outcome, error) {
	o := Outcome(s)
	if !o.Valid() {
		return "", fmt.Errorf("unknown outcome %q", s)
	}
	return o, nil
}
