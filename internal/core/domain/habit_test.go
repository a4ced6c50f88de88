package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comitanigiacomo/kanso-discipline-engine/internal/core/domain"
)

func TestNewTrackedHabit(t *testing.T) {
	t.Run("Success: normalizes key and starts at zero percent", func(t *testing.T) {
		h, err := domain.NewTrackedHabit("u1", "  Social_Media ", 6, 1)

		require.NoError(t, err)
		assert.NotEmpty(t, h.ID)
		assert.Equal(t, "social_media", h.HabitKey)
		assert.Equal(t, 6.0, h.CurrentWeight)
		assert.Equal(t, 0.0, h.Percent)
		assert.Equal(t, 0, h.Streak)
		assert.Nil(t, h.LastSlipAt)
		assert.WithinDuration(t, time.Now().UTC(), h.CreatedAt, 2*time.Second)
	})

	t.Run("Success: initial weight is clamped into bounds", func(t *testing.T) {
		h, err := domain.NewTrackedHabit("u1", "smoking", 35, 0)

		require.NoError(t, err)
		assert.Equal(t, 35.0, h.BaseWeight)
		assert.Equal(t, domain.DefaultWeightMax, h.CurrentWeight)
	})

	tests := []struct {
		name    string
		userID  string
		key     string
		weight  float64
		target  float64
		wantErr error
	}{
		{"empty user", " ", "smoking", 10, 0, domain.ErrHabitInvalidUserID},
		{"empty key", "u1", "   ", 10, 0, domain.ErrHabitKeyEmpty},
		{"zero weight", "u1", "smoking", 0, 0, domain.ErrInvalidBaseWeight},
		{"negative target", "u1", "phone", 5, -1, domain.ErrInvalidTarget},
	}
	for _, tt := range tests {
		t.Run("Error: "+tt.name, func(t *testing.T) {
			_, err := domain.NewTrackedHabit(tt.userID, tt.key, tt.weight, tt.target)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestTrackedHabit_Settle(t *testing.T) {
	at := time.Date(2026, 3, 15, 21, 0, 0, 0, time.FixedZone("CET", 3600))

	t.Run("clamps percent and weight", func(t *testing.T) {
		h, err := domain.NewTrackedHabit("u1", "smoking", 10, 0)
		require.NoError(t, err)

		h.Settle(42, 130, 3, nil, domain.DefaultWeightMin, domain.DefaultWeightMax, at)

		assert.Equal(t, domain.DefaultWeightMax, h.CurrentWeight)
		assert.Equal(t, domain.PercentMax, h.Percent)
		assert.Equal(t, 3, h.Streak)
		assert.Equal(t, time.UTC, h.UpdatedAt.Location())

		h.Settle(-4, -12, -1, nil, domain.DefaultWeightMin, domain.DefaultWeightMax, at)

		assert.Equal(t, domain.DefaultWeightMin, h.CurrentWeight)
		assert.Equal(t, domain.PercentMin, h.Percent)
		assert.Equal(t, 0, h.Streak)
	})

	t.Run("records last slip", func(t *testing.T) {
		h, err := domain.NewTrackedHabit("u1", "alcohol", 8, 0)
		require.NoError(t, err)

		slip := at.Add(-2 * time.Hour)
		h.Settle(9, 0, 0, &slip, domain.DefaultWeightMin, domain.DefaultWeightMax, at)

		require.NotNil(t, h.LastSlipAt)
		assert.True(t, slip.Equal(*h.LastSlipAt))
	})
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 1.0, domain.Clamp(-3, 1, 20))
	assert.Equal(t, 20.0, domain.Clamp(21, 1, 20))
	assert.Equal(t, 7.5, domain.Clamp(7.5, 1, 20))
}

func TestDates(t *testing.T) {
	late := time.Date(2026, 3, 15, 23, 30, 0, 0, time.UTC)
	rome := time.Date(2026, 3, 16, 0, 30, 0, 0, time.FixedZone("CET", 3600))

	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), domain.DateOf(late))
	assert.Equal(t, domain.DateOf(late), domain.DateOf(rome), "dates are taken in UTC")

	assert.Equal(t, 1, domain.DaysBetween(late, late.Add(time.Hour)))
	assert.Equal(t, -30, domain.DaysBetween(late, late.AddDate(0, 0, -30)))

	d, err := domain.ParseDate("2026-02-28")
	require.NoError(t, err)
	assert.Equal(t, 1, domain.DaysBetween(d, d.AddDate(0, 0, 1)))

	_, err = domain.ParseDate("28/02/2026")
	assert.Error(t, err)
}
