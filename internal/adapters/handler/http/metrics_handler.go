package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/comitanigiacomo/kanso-discipline-engine/internal/adapters/handler/http/middleware"
	"github.com/comitanigiacomo/kanso-discipline-engine/internal/core/services"
)

type MetricsHandler struct {
	svc *services.DashboardService
}

func NewMetricsHandler(svc *services.DashboardService) *MetricsHandler {
	return &MetricsHandler{svc: svc}
}

func (h *MetricsHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/metrics", h.Get)
}

func (h *MetricsHandler) Get(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	days := 0
	if s := c.Query("days"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be a non-negative integer"})
			return
		}
		days = n
	}

	dashboard, err := h.svc.GetDashboard(c.Request.Context(), userID, days)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dashboard)
}
