package services

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comitanigiacomo/kanso-discipline-engine/internal/adapters/lock"
	"github.com/comitanigiacomo/kanso-discipline-engine/internal/adapters/repository"
	"github.com/comitanigiacomo/kanso-discipline-engine/internal/core/domain"
	"github.com/comitanigiacomo/kanso-discipline-engine/internal/core/scoring"
)

func TestReportProcessor_EvaluationPanicIsIsolated(t *testing.T) {
	ctx := context.Background()
	day := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	store := repository.NewInMemoryStore()
	smoking, err := domain.NewTrackedHabit("u1", "smoking", 10, 0)
	require.NoError(t, err)
	gaming, err := domain.NewTrackedHabit("u1", "gaming", 6, 2)
	require.NoError(t, err)
	require.NoError(t, store.CreateTrackedHabit(ctx, smoking))
	require.NoError(t, store.CreateTrackedHabit(ctx, gaming))
	require.NoError(t, store.CreateReport(ctx, &domain.DailyReport{
		ID: "r1", UserID: "u1", ReportDate: day,
		Habits: []*domain.DailyHabitReport{
			{ID: "hr-smoking", TrackedHabitID: smoking.ID, HabitKey: "smoking", Value: types.JSONText(`{"count":0}`)},
			{ID: "hr-gaming", TrackedHabitID: gaming.ID, HabitKey: "gaming", Value: types.JSONText(`{"hours":1}`)},
		},
	}))

	config := repository.NewStaticConfigProvider(domain.DefaultCoefficients(), domain.DefaultThresholds())
	p := NewReportProcessor(store.Repositories().Reports, store, config, lock.NewMemoryLocker())
	p.evaluate = func(req scoring.EvaluationRequest) scoring.Evaluation {
		if req.HabitKey == "smoking" {
			panic("boom")
		}
		return scoring.Evaluate(req)
	}

	res, err := p.Process(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateDone, res.State)

	byKey := map[string]domain.HabitSettlement{}
	for _, s := range res.Habits {
		byKey[s.HabitKey] = s
	}
	assert.Equal(t, domain.HabitFailed, byKey["smoking"].Status)
	assert.Contains(t, byKey["smoking"].Diagnostic, "boom")
	assert.Equal(t, domain.HabitSettled, byKey["gaming"].Status)

	hr, err := store.Repositories().Reports.GetHabitReport(ctx, smoking.ID, day)
	require.NoError(t, err)
	assert.False(t, hr.Settled(), "a failed habit keeps no settled marker")

	// Only gaming contributes: 6 * 1.0 * 0.8
	assert.InDelta(t, 4.8, res.DeltaHealth, 1e-9)
}

func TestReportProcessor_DuplicateSubReportIsSkipped(t *testing.T) {
	ctx := context.Background()
	day := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	store := repository.NewInMemoryStore()
	h, err := domain.NewTrackedHabit("u1", "smoking", 10, 0)
	require.NoError(t, err)
	require.NoError(t, store.CreateTrackedHabit(ctx, h))
	require.NoError(t, store.CreateReport(ctx, &domain.DailyReport{
		ID: "r1", UserID: "u1", ReportDate: day,
		Habits: []*domain.DailyHabitReport{
			{ID: "a", TrackedHabitID: h.ID, HabitKey: "smoking", Value: types.JSONText(`{"count":0}`)},
			{ID: "b", TrackedHabitID: h.ID, HabitKey: "smoking", Value: types.JSONText(`{"count":9}`)},
		},
	}))

	p := NewReportProcessor(store.Repositories().Reports, store,
		repository.NewStaticConfigProvider(domain.DefaultCoefficients(), nil), lock.NewMemoryLocker())

	res, err := p.Process(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, res.Habits, 2)

	var settled, failed int
	for _, s := range res.Habits {
		switch s.Status {
		case domain.HabitSettled:
			settled++
		case domain.HabitFailed:
			failed++
			assert.Contains(t, s.Diagnostic, "duplicate")
		}
	}
	assert.Equal(t, 1, settled)
	assert.Equal(t, 1, failed)
}
