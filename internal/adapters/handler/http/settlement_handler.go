package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/comitanigiacomo/kanso-discipline-engine/internal/adapters/handler/http/middleware"
	"github.com/comitanigiacomo/kanso-discipline-engine/internal/core/domain"
	"github.com/comitanigiacomo/kanso-discipline-engine/internal/core/workers"
	"github.com/comitanigiacomo/kanso-discipline-engine/internal/platform/logger"
)

type SettlementQueue interface {
	Enqueue(job workers.SettlementJob) bool
}

// SettlementHandler accepts settlement requests. It only checks ownership and
// hands the report to the worker; the outcome is published asynchronously.
type SettlementHandler struct {
	reports domain.ReportRepository
	queue   SettlementQueue
	log     *logger.Logger
}

func NewSettlementHandler(reports domain.ReportRepository, queue SettlementQueue, log *logger.Logger) *SettlementHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &SettlementHandler{reports: reports, queue: queue, log: log}
}

func (h *SettlementHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/reports/:id/settle", h.Settle)
}

func (h *SettlementHandler) Settle(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	reportID := c.Param("id")
	report, err := h.reports.GetReport(c.Request.Context(), reportID)
	if err != nil {
		respondError(c, err)
		return
	}
	if report.UserID != userID {
		respondError(c, domain.ErrUnauthorized)
		return
	}

	if !h.queue.Enqueue(workers.SettlementJob{ReportID: report.ID, UserID: report.UserID}) {
		c.Header("Retry-After", "30")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "settlement queue is full, retry later"})
		return
	}

	h.log.Debug("settlement enqueued", "report_id", report.ID, "user_id", userID)
	c.JSON(http.StatusAccepted, gin.H{
		"report_id":   report.ID,
		"report_date": report.ReportDate.Format(dateLayout),
		"status":      "queued",
	})
}
