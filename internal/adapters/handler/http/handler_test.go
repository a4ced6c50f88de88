package http_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	adapterHTTP "github.com/comitanigiacomo/kanso-discipline-engine/internal/adapters/handler/http"
	"github.com/comitanigiacomo/kanso-discipline-engine/internal/adapters/handler/http/middleware"
	"github.com/comitanigiacomo/kanso-discipline-engine/internal/adapters/repository"
	"github.com/comitanigiacomo/kanso-discipline-engine/internal/core/domain"
	"github.com/comitanigiacomo/kanso-discipline-engine/internal/core/services"
	"github.com/comitanigiacomo/kanso-discipline-engine/internal/core/workers"
)

type MockQueue struct {
	mock.Mock
}

func (m *MockQueue) Enqueue(job workers.SettlementJob) bool {
	return m.Called(job).Bool(0)
}

var reportDay = time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

type fixture struct {
	router *gin.Engine
	queue  *MockQueue
	store  *repository.InMemoryStore
	habit  *domain.TrackedHabit
}

func setupRouter(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	store := repository.NewInMemoryStore()
	habit, err := domain.NewTrackedHabit("user-1", "smoking", 10, 0)
	require.NoError(t, err)
	require.NoError(t, store.CreateTrackedHabit(ctx, habit))
	require.NoError(t, store.CreateReport(ctx, &domain.DailyReport{
		ID: "r1", UserID: "user-1", ReportDate: reportDay,
		Habits: []*domain.DailyHabitReport{
			{ID: "hr1", TrackedHabitID: habit.ID, HabitKey: "smoking", Value: types.JSONText(`{"count":0}`)},
		},
	}))
	repos := store.Repositories()
	require.NoError(t, repos.History.Append(ctx,
		domain.NewHabitHistoryEntry(habit, reportDay.AddDate(0, 0, -1), domain.OutcomeFullWin, 5, 10, reportDay)))

	dashboard := services.NewDashboardService(repos.Habits, repos.History, repos.Metrics, domain.DefaultBaselineHealth)
	queue := new(MockQueue)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		if userID := c.GetHeader("X-User-ID"); userID != "" {
			c.Set(middleware.ContextUserIDKey, userID)
		}
		c.Next()
	})
	api := r.Group("/api/v1")
	adapterHTTP.NewSettlementHandler(repos.Reports, queue, nil).RegisterRoutes(api)
	adapterHTTP.NewHabitHandler(dashboard).RegisterRoutes(api)
	adapterHTTP.NewMetricsHandler(dashboard).RegisterRoutes(api)

	return &fixture{router: r, queue: queue, store: store, habit: habit}
}

func (f *fixture) do(method, path, userID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestSettlementHandler(t *testing.T) {
	t.Run("Success: enqueues and returns 202", func(t *testing.T) {
		f := setupRouter(t)
		f.queue.On("Enqueue", workers.SettlementJob{ReportID: "r1", UserID: "user-1"}).Return(true).Once()

		w := f.do(http.MethodPost, "/api/v1/reports/r1/settle", "user-1")

		assert.Equal(t, http.StatusAccepted, w.Code)
		assert.Contains(t, w.Body.String(), `"status":"queued"`)
		assert.Contains(t, w.Body.String(), `"report_date":"2026-03-15"`)
		f.queue.AssertExpectations(t)
	})

	t.Run("Fail: queue full returns 503", func(t *testing.T) {
		f := setupRouter(t)
		f.queue.On("Enqueue", mock.Anything).Return(false).Once()

		w := f.do(http.MethodPost, "/api/v1/reports/r1/settle", "user-1")

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "30", w.Header().Get("Retry-After"))
	})

	t.Run("Fail: another user's report is forbidden", func(t *testing.T) {
		f := setupRouter(t)

		w := f.do(http.MethodPost, "/api/v1/reports/r1/settle", "user-2")

		assert.Equal(t, http.StatusForbidden, w.Code)
		f.queue.AssertNotCalled(t, "Enqueue", mock.Anything)
	})

	t.Run("Fail: unknown report returns 404", func(t *testing.T) {
		f := setupRouter(t)

		w := f.do(http.MethodPost, "/api/v1/reports/missing/settle", "user-1")

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Fail: no user in context", func(t *testing.T) {
		f := setupRouter(t)

		w := f.do(http.MethodPost, "/api/v1/reports/r1/settle", "")

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestHabitHandler(t *testing.T) {
	t.Run("List returns the user's habits", func(t *testing.T) {
		f := setupRouter(t)

		w := f.do(http.MethodGet, "/api/v1/habits", "user-1")
		require.Equal(t, http.StatusOK, w.Code)

		var habits []domain.TrackedHabit
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &habits))
		require.Len(t, habits, 1)
		assert.Equal(t, "smoking", habits[0].HabitKey)
	})

	t.Run("List returns an empty array for a new user", func(t *testing.T) {
		f := setupRouter(t)

		w := f.do(http.MethodGet, "/api/v1/habits", "user-new")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, "[]", w.Body.String())
	})

	t.Run("History returns the ledger in range", func(t *testing.T) {
		f := setupRouter(t)

		w := f.do(http.MethodGet, "/api/v1/habits/"+f.habit.ID+"/history?from=2026-03-01&to=2026-03-15", "user-1")
		require.Equal(t, http.StatusOK, w.Code)

		var body struct {
			From    string                     `json:"from"`
			To      string                     `json:"to"`
			Entries []domain.HabitHistoryEntry `json:"entries"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "2026-03-01", body.From)
		require.Len(t, body.Entries, 1)
		assert.Equal(t, domain.OutcomeFullWin, body.Entries[0].Outcome)
	})

	t.Run("History rejects bad input", func(t *testing.T) {
		f := setupRouter(t)
		base := "/api/v1/habits/" + f.habit.ID + "/history"

		tests := []struct {
			name  string
			query string
		}{
			{"bad from", "?from=15-03-2026&to=2026-03-15"},
			{"bad to", "?from=2026-03-01&to=yesterday"},
			{"inverted", "?from=2026-03-15&to=2026-03-01"},
			{"too long", "?from=2024-01-01&to=2026-03-15"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				w := f.do(http.MethodGet, base+tt.query, "user-1")
				assert.Equal(t, http.StatusBadRequest, w.Code)
			})
		}
	})

	t.Run("History of another user's habit is forbidden", func(t *testing.T) {
		f := setupRouter(t)

		w := f.do(http.MethodGet, "/api/v1/habits/"+f.habit.ID+"/history?from=2026-03-01&to=2026-03-15", "user-2")

		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("History of unknown habit returns 404", func(t *testing.T) {
		f := setupRouter(t)

		w := f.do(http.MethodGet, "/api/v1/habits/nope/history?from=2026-03-01&to=2026-03-15", "user-1")

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestMetricsHandler(t *testing.T) {
	t.Run("New user sees the baseline", func(t *testing.T) {
		f := setupRouter(t)

		w := f.do(http.MethodGet, "/api/v1/metrics?days=7", "user-1")
		require.Equal(t, http.StatusOK, w.Code)

		var dash domain.Dashboard
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &dash))
		require.NotNil(t, dash.Metrics)
		assert.InDelta(t, domain.DefaultBaselineHealth, dash.Metrics.DisciplineHealth, 1e-9)
	})

	t.Run("Invalid days returns 400", func(t *testing.T) {
		f := setupRouter(t)

		for _, q := range []string{"abc", "-3"} {
			w := f.do(http.MethodGet, "/api/v1/metrics?days="+q, "user-1")
			assert.Equal(t, http.StatusBadRequest, w.Code, q)
		}
	})
}
