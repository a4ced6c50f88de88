package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/comitanigiacomo/kanso-discipline-engine/internal/adapters/handler/http/middleware"
	"github.com/comitanigiacomo/kanso-discipline-engine/internal/core/domain"
	"github.com/comitanigiacomo/kanso-discipline-engine/internal/core/services"
)

type HabitHandler struct {
	svc *services.DashboardService
	now func() time.Time
}

func NewHabitHandler(svc *services.DashboardService) *HabitHandler {
	return &HabitHandler{svc: svc, now: time.Now}
}

func (h *HabitHandler) RegisterRoutes(router *gin.RouterGroup) {
	habits := router.Group("/habits")
	{
		habits.GET("", h.List)
		habits.GET("/:id/history", h.History)
	}
}

func (h *HabitHandler) List(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	habits, err := h.svc.ListHabits(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	if habits == nil {
		habits = []*domain.TrackedHabit{}
	}

	c.JSON(http.StatusOK, habits)
}

// History serves the settled ledger of one habit. Without query parameters
// it covers the last DefaultDashboardDays days ending today (UTC).
func (h *HabitHandler) History(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	to := domain.DateOf(h.now())
	if s := c.Query("to"); s != "" {
		d, err := time.Parse(dateLayout, s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to format, expected YYYY-MM-DD"})
			return
		}
		to = d
	}

	from := to.AddDate(0, 0, -(services.DefaultDashboardDays - 1))
	if s := c.Query("from"); s != "" {
		d, err := time.Parse(dateLayout, s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from format, expected YYYY-MM-DD"})
			return
		}
		from = d
	}

	entries, err := h.svc.GetHabitHistory(c.Request.Context(), userID, c.Param("id"), from, to)
	if err != nil {
		respondError(c, err)
		return
	}
	if entries == nil {
		entries = []*domain.HabitHistoryEntry{}
	}

	c.JSON(http.StatusOK, gin.H{
		"from":    from.Format(dateLayout),
		"to":      to.Format(dateLayout),
		"entries": entries,
	})
}
