package http_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	adapterHTTP "github.com/comitanigiacomo/kanso-discipline-engine/internal/adapters/handler/http"
	"github.com/comitanigiacomo/kanso-discipline-engine/internal/adapters/repository"
	"github.com/comitanigiacomo/kanso-discipline-engine/internal/core/domain"
	"github.com/comitanigiacomo/kanso-discipline-engine/internal/core/services"
)

func newTestRouter(t *testing.T, tokens *services.TokenService) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := repository.NewInMemoryStore()
	repos := store.Repositories()
	dashboard := services.NewDashboardService(repos.Habits, repos.History, repos.Metrics, domain.DefaultBaselineHealth)

	return adapterHTTP.NewRouter(adapterHTTP.RouterDependencies{
		SettlementHandler: adapterHTTP.NewSettlementHandler(repos.Reports, new(MockQueue), nil),
		HabitHandler:      adapterHTTP.NewHabitHandler(dashboard),
		MetricsHandler:    adapterHTTP.NewMetricsHandler(dashboard),
		TokenValidator:    tokens,
		StartTime:         time.Now(),
	})
}

func TestRouter(t *testing.T) {
	tokens := services.NewTokenService("router-test-secret", "kanso-auth", time.Hour)
	router := newTestRouter(t, tokens)

	t.Run("Health without backing stores", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"database":"disabled"`)
		assert.Contains(t, w.Body.String(), `"redis":"disabled"`)
	})

	t.Run("API requires a token", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/habits", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("API accepts a valid token", func(t *testing.T) {
		token, err := tokens.GenerateToken("user-1")
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/metrics", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
	})

	t.Run("CORS preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/habits", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		req.Header.Set("Access-Control-Request-Method", "GET")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	})
}
