package broadcast

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/YelzhanWeb/restaurant/internal/adapter/logger"
	"github.com/YelzhanWeb/restaurant/internal/domain"
	"github.com/YelzhanWeb/restaurant/internal/interfaces"
)

const DefaultBuffer = 64

// KitchenOrderSource provides the orders a new dashboard starts from.
type KitchenOrderSource interface {
	FindKitchenVisible(ctx context.Context) ([]*domain.Order, error)
}

type SubscriberMeta struct {
	RemoteAddr string
	UserAgent  string
}

// Hub owns the set of connected kitchen dashboards on this instance.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]*Subscription
	orders KitchenOrderSource
	logger logger.Logger
	buffer int
}

func NewHub(orders KitchenOrderSource, logger logger.Logger, buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		subs:   make(map[string]*Subscription),
		orders: orders,
		logger: logger,
		buffer: buffer,
	}
}

// Subscribe registers a dashboard. The returned subscription yields
// connection_established, then one initial_order per kitchen-visible order,
// then live events in publish order.
func (h *Hub) Subscribe(ctx context.Context, meta SubscriberMeta) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sub := newSubscription(uuid.NewString(), meta, h.buffer)

	// Register before querying so nothing published meanwhile is lost.
	h.mu.Lock()
	h.subs[sub.id] = sub
	total := len(h.subs)
	h.mu.Unlock()

	reqID := logger.RequestIDFrom(ctx)
	h.logger.Info("dashboard_connected", "Kitchen dashboard connected", reqID, map[string]interface{}{
		"subscriber_id": sub.id,
		"remote_addr":   meta.RemoteAddr,
		"subscribers":   total,
	})

	initial := []interfaces.OrderEvent{
		interfaces.NewOrderEvent(interfaces.EventConnectionEstablished, nil, "connected to kitchen stream"),
	}
	orders, err := h.orders.FindKitchenVisible(ctx)
	if err != nil {
		h.logger.Error("initial_orders_failed", "Failed to load kitchen orders for dashboard", reqID, map[string]interface{}{"subscriber_id": sub.id}, err)
		initial = append(initial, interfaces.NewOrderEvent(interfaces.EventError, nil, "failed to load current kitchen orders"))
	} else {
		for _, o := range orders {
			initial = append(initial, interfaces.NewOrderEvent(interfaces.EventInitialOrder, o, ""))
		}
	}

	if dropped := sub.start(initial); dropped > 0 {
		h.logger.Error("subscriber_write_failed", "Live events dropped while dashboard was initialising", reqID, map[string]interface{}{
			"subscriber_id": sub.id,
			"dropped":       dropped,
		}, errBufferFull)
	}
	return sub, nil
}

func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	delete(h.subs, id)
	total := len(h.subs)
	h.mu.Unlock()

	if !ok {
		return
	}
	sub.close()
	h.logger.Info("dashboard_disconnected", "Kitchen dashboard disconnected", "", map[string]interface{}{
		"subscriber_id": id,
		"subscribers":   total,
		"delivered":     sub.delivered.Load(),
		"dropped":       sub.dropped.Load(),
	})
}

// Publish delivers the event to every dashboard unless the order is not
// kitchen relevant. A full subscriber buffer is logged and skipped; the
// subscriber stays registered. Returns the number of subscribers reached.
func (h *Hub) Publish(ctx context.Context, event interfaces.OrderEvent) int {
	reqID := logger.RequestIDFrom(ctx)
	if event.Order == nil || !event.Order.IsKitchenRelevant() {
		details := map[string]interface{}{"event_type": event.Type}
		if event.Order != nil {
			details["order_number"] = event.Order.Number
		}
		h.logger.Debug("broadcast_skipped", "Order not sent to kitchen, event not broadcast", reqID, details)
		return 0
	}

	h.mu.RLock()
	subs := make([]*Subscription, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	reached := 0
	for _, s := range subs {
		if s.push(event) {
			reached++
			continue
		}
		h.logger.Error("subscriber_write_failed", "Failed to deliver event to dashboard", reqID, map[string]interface{}{
			"subscriber_id": s.id,
			"order_number":  event.Order.Number,
			"event_type":    event.Type,
		}, errBufferFull)
	}
	return reached
}

// HandleRelayed is the relay consumer entry point.
func (h *Hub) HandleRelayed(ctx context.Context, event interfaces.OrderEvent) error {
	h.Publish(ctx, event)
	return nil
}

func (h *Hub) Subscribers() []interfaces.SubscriberInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]interfaces.SubscriberInfo, 0, len(h.subs))
	for _, s := range h.subs {
		out = append(out, s.info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConnectedAt.Before(out[j].ConnectedAt) })
	return out
}

// Close disconnects every dashboard.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[string]*Subscription)
	h.mu.Unlock()

	for _, s := range subs {
		s.close()
	}
}
