package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/YelzhanWeb/restaurant/internal/adapter/logger"
	"github.com/YelzhanWeb/restaurant/internal/interfaces"
)

type AdminHandler struct {
	outbox  interfaces.OutboxMonitor
	logger  logger.Logger
	started time.Time
}

func NewAdminHandler(outbox interfaces.OutboxMonitor, logger logger.Logger) *AdminHandler {
	return &AdminHandler{
		outbox:  outbox,
		logger:  logger,
		started: time.Now().UTC(),
	}
}

func (h *AdminHandler) OutboxStats(c *gin.Context) {
	stats, err := h.outbox.Stats(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, "outbox_stats_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": stats})
}

func (h *AdminHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"started": h.started,
	})
}
