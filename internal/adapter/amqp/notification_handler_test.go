package amqp

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YelzhanWeb/restaurant/internal/adapter/logger"
	"github.com/YelzhanWeb/restaurant/internal/domain"
	"github.com/YelzhanWeb/restaurant/internal/interfaces"
)

func TestNotificationHandler_HandleEvent(t *testing.T) {
	var out bytes.Buffer
	h := NewNotificationHandler(logger.NewNop(), &out)

	order := &domain.Order{
		Number:        "ORD-260101-042",
		Status:        domain.StatusPreparing,
		KitchenStatus: domain.KitchenPreparing,
		PaymentStatus: domain.PaymentConfirmed,
	}

	require.NoError(t, h.HandleEvent(context.Background(), interfaces.NewOrderEvent(interfaces.EventKitchenStatusUpdate, order, "")))
	require.NoError(t, h.HandleEvent(context.Background(), interfaces.NewOrderEvent(interfaces.EventOrderUpdate, order, "payment confirmed")))

	lines := bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	assert.Equal(t, "Notification for order ORD-260101-042: kitchen_status_update (status Preparing, kitchen Preparing, payment confirmed)", string(lines[0]))
	assert.Contains(t, string(lines[1]), ": payment confirmed (")
}

func TestNotificationHandler_IgnoresEventsWithoutOrder(t *testing.T) {
	var out bytes.Buffer
	h := NewNotificationHandler(logger.NewNop(), &out)

	require.NoError(t, h.HandleEvent(context.Background(), interfaces.NewOrderEvent(interfaces.EventHeartbeat, nil, "")))
	assert.Zero(t, out.Len())
}
