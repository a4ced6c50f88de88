package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/comitanigiacomo/kanso-discipline-engine/internal/adapters/handler/http/middleware"
	"github.com/comitanigiacomo/kanso-discipline-engine/internal/platform/logger"
)

const tracingService = "kanso-discipline-engine"

type RouterDependencies struct {
	SettlementHandler *SettlementHandler
	HabitHandler      *HabitHandler
	MetricsHandler    *MetricsHandler
	TokenValidator    middleware.TokenValidator
	Log               *logger.Logger

	// DB and Redis are only used by /health. A nil Redis reports "disabled".
	DB    *sqlx.DB
	Redis *redis.Client

	RateLimit  int
	RateWindow time.Duration
	StartTime  time.Time
}

func NewRouter(deps RouterDependencies) *gin.Engine {
	router := gin.New()
	router.Use(
		gin.Recovery(),
		otelgin.Middleware(tracingService),
		middleware.CORS(),
		middleware.RequestLogger(deps.Log),
	)

	router.GET("/health", healthHandler(deps))

	apiV1 := router.Group("/api/v1")
	apiV1.Use(middleware.AuthMiddleware(deps.TokenValidator))
	if deps.Redis != nil && deps.RateLimit > 0 {
		apiV1.Use(middleware.RateLimiterMiddleware(deps.Redis, deps.RateLimit, deps.RateWindow, deps.Log))
	}
	{
		deps.SettlementHandler.RegisterRoutes(apiV1)
		deps.HabitHandler.RegisterRoutes(apiV1)
		deps.MetricsHandler.RegisterRoutes(apiV1)
	}

	return router
}

func healthHandler(deps RouterDependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		healthy := true

		dbStatus := "disabled"
		if deps.DB != nil {
			dbStatus = "connected"
			if err := deps.DB.PingContext(ctx); err != nil {
				dbStatus = "unreachable"
				healthy = false
			}
		}

		redisStatus := "disabled"
		if deps.Redis != nil {
			redisStatus = "connected"
			if err := deps.Redis.Ping(ctx).Err(); err != nil {
				redisStatus = "unreachable"
				healthy = false
			}
		}

		status, code := "ok", http.StatusOK
		if !healthy {
			status, code = "degraded", http.StatusServiceUnavailable
		}

		c.JSON(code, gin.H{
			"status":   status,
			"database": dbStatus,
			"redis":    redisStatus,
			"uptime":   time.Since(deps.StartTime).Round(time.Second).String(),
		})
	}
}
