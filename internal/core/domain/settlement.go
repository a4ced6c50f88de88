package domain

import "time"

// RunState is the Report Processor state for one (user, report) run.
type RunState string

const (
	StateLoaded     RunState = "LOADED"
	StateEvaluating RunState = "EVALUATING"
	StateSettling   RunState = "SETTLING"
	StateAggregated RunState = "AGGREGATED"
	StateDone       RunState = "DONE"
	StateFailed     RunState = "FAILED"
)

type HabitStatus string

const (
	HabitSettled  HabitStatus = "settled"
	HabitDegraded HabitStatus = "degraded"
	HabitResumed  HabitStatus = "resumed"
	HabitFailed   HabitStatus = "failed"
)

type HabitSettlement struct {
	TrackedHabitID string      `json:"tracked_habit_id"`
	HabitKey       string      `json:"habit_key"`
	Status         HabitStatus `json:"status"`
	Outcome        Outcome     `json:"outcome,omitempty"`
	Measure        float64     `json:"measure"`
	RequiresHelp   bool        `json:"requires_help,omitempty"`
	SlipOverride   bool        `json:"slip_override,omitempty"`
	Weight         float64     `json:"weight"`
	Percent        float64     `json:"percent"`
	PercentDelta   float64     `json:"percent_delta"`
	Streak         int         `json:"streak"`
	Diagnostic     string      `json:"diagnostic,omitempty"`
}

// SettlementResult is what downstream notification collaborators receive.
type SettlementResult struct {
	UserID         string            `json:"user_id"`
	ReportID       string            `json:"report_id"`
	ReportDate     time.Time         `json:"report_date"`
	State          RunState          `json:"state"`
	AlreadySettled bool              `json:"already_settled,omitempty"`
	DeltaHealth    float64           `json:"delta_health"`
	NewHealth      float64           `json:"new_health"`
	XPGained       int64             `json:"xp_gained"`
	Habits         []HabitSettlement `json:"habits"`
}
