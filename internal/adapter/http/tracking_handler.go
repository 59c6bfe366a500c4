package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/YelzhanWeb/restaurant/internal/adapter/logger"
	"github.com/YelzhanWeb/restaurant/internal/interfaces"
)

type TrackingHandler struct {
	service interfaces.TrackingService
	logger  logger.Logger
}

func NewTrackingHandler(service interfaces.TrackingService, logger logger.Logger) *TrackingHandler {
	return &TrackingHandler{
		service: service,
		logger:  logger,
	}
}

func (h *TrackingHandler) GetOrderStatus(c *gin.Context) {
	result, err := h.service.GetOrderStatus(c.Request.Context(), c.Param("number"))
	if err != nil {
		respondError(c, h.logger, "order_status_failed", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *TrackingHandler) GetOrderTimeline(c *gin.Context) {
	timeline, err := h.service.GetOrderTimeline(c.Request.Context(), c.Param("number"))
	if err != nil {
		respondError(c, h.logger, "order_timeline_failed", err)
		return
	}
	c.JSON(http.StatusOK, timeline)
}

func (h *TrackingHandler) GetDashboards(c *gin.Context) {
	dashboards := h.service.GetDashboards(c.Request.Context())
	if dashboards == nil {
		dashboards = []interfaces.SubscriberInfo{}
	}
	c.JSON(http.StatusOK, gin.H{"dashboards": dashboards, "count": len(dashboards)})
}
