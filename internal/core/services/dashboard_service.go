package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/comitanigiacomo/kanso-discipline-engine/internal/core/domain"
)

const (
	DefaultDashboardDays = 30
	MaxRangeDays         = 366
)

// DashboardService is the read side: it never writes and never takes the
// settlement lock, so it may observe the state just before a commit.
type DashboardService struct {
	habits   domain.TrackedHabitRepository
	history  domain.HabitHistoryRepository
	metrics  domain.MetricsRepository
	baseline float64
}

func NewDashboardService(habits domain.TrackedHabitRepository, history domain.HabitHistoryRepository, metrics domain.MetricsRepository, baseline float64) *DashboardService {
	return &DashboardService{
		habits:   habits,
		history:  history,
		metrics:  metrics,
		baseline: baseline,
	}
}

func (s *DashboardService) ListHabits(ctx context.Context, userID string) ([]*domain.TrackedHabit, error) {
	return s.habits.ListByUserID(ctx, userID)
}

// GetHabitHistory returns the ledger of one of the user's habits, newest first.
func (s *DashboardService) GetHabitHistory(ctx context.Context, userID, habitID string, from, to time.Time) ([]*domain.HabitHistoryEntry, error) {
	from, to = domain.DateOf(from), domain.DateOf(to)
	if to.Before(from) {
		return nil, &domain.ValidationError{Field: "from", Reason: "must not be after to"}
	}
	if domain.DaysBetween(from, to) >= MaxRangeDays {
		return nil, &domain.ValidationError{Field: "to", Reason: fmt.Sprintf("range cannot exceed %d days", MaxRangeDays)}
	}

	h, err := s.habits.GetByID(ctx, habitID)
	if err != nil {
		return nil, err
	}
	if h.UserID != userID {
		return nil, domain.ErrUnauthorized
	}

	return s.history.GetHistoryWindow(ctx, habitID, from, to)
}

// GetDashboard returns the user's metrics and the last days snapshots. A user
// who was never settled sees the baseline health.
func (s *DashboardService) GetDashboard(ctx context.Context, userID string, days int) (*domain.Dashboard, error) {
	if days <= 0 {
		days = DefaultDashboardDays
	}
	if days > MaxRangeDays {
		days = MaxRangeDays
	}

	metrics, err := s.metrics.GetSystemMetrics(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		metrics = domain.NewSystemMetrics(userID, s.baseline)
	} else if err != nil {
		return nil, err
	}

	snapshots, err := s.metrics.ListSnapshots(ctx, userID, days)
	if err != nil {
		return nil, err
	}

	return &domain.Dashboard{Metrics: metrics, Snapshots: snapshots}, nil
}
