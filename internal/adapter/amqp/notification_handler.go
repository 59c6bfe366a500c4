package amqp

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/YelzhanWeb/restaurant/internal/adapter/logger"
	"github.com/YelzhanWeb/restaurant/internal/interfaces"
)

// NotificationHandler prints order events received from the fan-out.
type NotificationHandler struct {
	logger logger.Logger
	out    io.Writer
}

func NewNotificationHandler(logger logger.Logger, out io.Writer) *NotificationHandler {
	if out == nil {
		out = os.Stdout
	}
	return &NotificationHandler{
		logger: logger,
		out:    out,
	}
}

func (h *NotificationHandler) HandleEvent(ctx context.Context, event interfaces.OrderEvent) error {
	if event.Order == nil {
		return nil
	}
	o := event.Order

	h.logger.Debug("notification_received", fmt.Sprintf("Received %s for order %s", event.Type, o.Number),
		logger.RequestIDFrom(ctx), map[string]interface{}{
			"order_number":   o.Number,
			"status":         o.Status,
			"kitchen_status": o.KitchenStatus,
		})

	_, err := fmt.Fprintf(h.out, "Notification for order %s: %s (status %s, kitchen %s, payment %s)\n",
		o.Number, describe(event), o.Status, o.KitchenStatus, o.PaymentStatus)
	return err
}

func describe(event interfaces.OrderEvent) string {
	if event.Message != "" {
		return event.Message
	}
	return string(event.Type)
}
