package interfaces

import (
	"context"
	"time"

	"github.com/YelzhanWeb/restaurant/internal/domain"
)

type EventType string

const (
	EventInitialOrder          EventType = "initial_order"
	EventOrderUpdate           EventType = "order_update"
	EventKitchenStatusUpdate   EventType = "kitchen_status_update"
	EventHeartbeat             EventType = "heartbeat"
	EventConnectionEstablished EventType = "connection_established"
	EventError                 EventType = "error"
)

// OrderEvent is the payload pushed to kitchen dashboards and across instances.
type OrderEvent struct {
	Type      EventType     `json:"type"`
	Order     *domain.Order `json:"order,omitempty"`
	Message   string        `json:"message,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

func NewOrderEvent(t EventType, order *domain.Order, message string) OrderEvent {
	return OrderEvent{Type: t, Order: order, Message: message, Timestamp: time.Now().UTC()}
}

// EventRelay carries order events between service instances. Every event
// published on any instance is handed to Consume handlers on all instances.
type EventRelay interface {
	Publish(ctx context.Context, event OrderEvent) error
	Consume(ctx context.Context, handler EventHandler) error
	Close() error
}

type EventHandler func(ctx context.Context, event OrderEvent) error

// TaskQueue accepts side effects for at-least-once execution.
type TaskQueue interface {
	Enqueue(ctx context.Context, task *domain.OutboxTask) error
}

type ArchivePayload struct {
	OrderID string `json:"orderId"`
}

type RecomputePayload struct {
	RestaurantID string `json:"restaurantId"`
}

// Commands for services
type CreateOrderCommand struct {
	UserID         string
	RestaurantID   string
	RestaurantName string
	RestaurantSlug string
	Items          []CreateOrderItemCommand
	TotalPrice     float64
	PaymentMethod  string
	TransactionID  string
	CustomerNotes  string
}

type CreateOrderItemCommand struct {
	ItemID              string
	Name                string
	Price               float64
	Quantity            int
	SpecialInstructions string
}

type ConfirmPaymentCommand struct {
	OrderID  string
	StaffID  string
	Verified bool
	Note     string
}

type SubmitReviewCommand struct {
	UserID      string
	OrderID     string
	Rating      int
	Comment     string
	ItemRatings []domain.ItemRating
}
