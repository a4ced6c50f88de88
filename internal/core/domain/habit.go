package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrHabitKeyEmpty      = errors.New("habit key cannot be empty")
	ErrHabitInvalidUserID = errors.New("invalid user id")
	ErrInvalidBaseWeight  = errors.New("base weight must be positive")
	ErrInvalidTarget      = errors.New("target cannot be negative")
)

const (
	DefaultWeightMin = 1.0
	DefaultWeightMax = 20.0
	PercentMin       = 0.0
	PercentMax       = 100.0
)

// TrackedHabit is one dependency or behavior a user is working on.
// Percent, CurrentWeight and Streak are only mutated by report settlement.
type TrackedHabit struct {
	ID            string     `json:"id" db:"id"`
	UserID        string     `json:"user_id" db:"user_id"`
	HabitKey      string     `json:"habit_key" db:"habit_key"`
	BaseWeight    float64    `json:"base_weight" db:"base_weight"`
	CurrentWeight float64    `json:"current_weight" db:"current_weight"`
	Percent       float64    `json:"percent" db:"percent"`
	Streak        int        `json:"streak" db:"streak"`
	LastSlipAt    *time.Time `json:"last_slip_at,omitempty" db:"last_slip_at"`
	TargetValue   float64    `json:"target_value" db:"target_value"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

func NewTrackedHabit(userID, habitKey string, baseWeight, target float64) (*TrackedHabit, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrHabitInvalidUserID
	}

	key := NormalizeHabitKey(habitKey)
	if key == "" {
		return nil, ErrHabitKeyEmpty
	}
	if baseWeight <= 0 {
		return nil, ErrInvalidBaseWeight
	}
	if target < 0 {
		return nil, ErrInvalidTarget
	}

	now := time.Now().UTC()

	return &TrackedHabit{
		ID:            uuid.New().String(),
		UserID:        userID,
		HabitKey:      key,
		BaseWeight:    baseWeight,
		CurrentWeight: Clamp(baseWeight, DefaultWeightMin, DefaultWeightMax),
		Percent:       PercentMin,
		TargetValue:   target,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// NormalizeHabitKey lowercases and trims a habit key so lookups are stable.
func NormalizeHabitKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// Settle writes the result of one day's settlement onto the habit.
// Values are clamped to keep the stored invariants regardless of caller input.
func (h *TrackedHabit) Settle(weight, percent float64, streak int, lastSlipAt *time.Time, weightMin, weightMax float64, at time.Time) {
	h.CurrentWeight = Clamp(weight, weightMin, weightMax)
	h.Percent = Clamp(percent, PercentMin, PercentMax)
	if streak < 0 {
		streak = 0
	}
	h.Streak = streak
	h.LastSlipAt = lastSlipAt
	h.UpdatedAt = at.UTC()
}

func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
