package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"

	"github.com/YelzhanWeb/restaurant/internal/adapter/logger"
	"github.com/YelzhanWeb/restaurant/internal/app/broadcast"
	"github.com/YelzhanWeb/restaurant/internal/interfaces"
)

// KitchenHub is the part of the broadcast hub the stream endpoint needs.
type KitchenHub interface {
	Subscribe(ctx context.Context, meta broadcast.SubscriberMeta) (*broadcast.Subscription, error)
	Unsubscribe(id string)
}

type KitchenHandler struct {
	hub       KitchenHub
	heartbeat time.Duration
	logger    logger.Logger
}

func NewKitchenHandler(hub KitchenHub, heartbeat time.Duration, logger logger.Logger) *KitchenHandler {
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	return &KitchenHandler{
		hub:       hub,
		heartbeat: heartbeat,
		logger:    logger,
	}
}

// Stream serves the kitchen dashboard feed as server-sent events until the
// client disconnects.
func (h *KitchenHandler) Stream(c *gin.Context) {
	ctx := c.Request.Context()

	sub, err := h.hub.Subscribe(ctx, broadcast.SubscriberMeta{
		RemoteAddr: c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
	})
	if err != nil {
		// Client already gone.
		return
	}
	defer h.hub.Unsubscribe(sub.ID())

	c.Header("Content-Type", sse.ContentType)
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	events := sub.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !h.write(c, interfaces.NewOrderEvent(interfaces.EventHeartbeat, nil, "")) {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !h.write(c, ev) {
				return
			}
		}
	}
}

func (h *KitchenHandler) write(c *gin.Context, ev interfaces.OrderEvent) bool {
	if err := sse.Encode(c.Writer, sse.Event{Data: ev}); err != nil {
		h.logger.Debug("sse_write_failed", "Dashboard connection lost", logger.RequestIDFrom(c.Request.Context()), map[string]interface{}{
			"error": err.Error(),
		})
		return false
	}
	c.Writer.Flush()
	return true
}
