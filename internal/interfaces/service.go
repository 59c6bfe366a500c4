package interfaces

import (
	"context"
	"time"

	"github.com/YelzhanWeb/restaurant/internal/domain"
)

type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (*domain.Order, error)
	ConfirmPayment(ctx context.Context, cmd ConfirmPaymentCommand) (*domain.Order, error)
	MarkPaymentFailed(ctx context.Context, orderID, staffID, reason string) (*domain.Order, error)
	UpdateKitchenStatus(ctx context.Context, orderID string, status domain.KitchenStatus, staffID string) (*domain.Order, error)
	HideFromKitchen(ctx context.Context, orderID, staffID string) (*domain.Order, error)
	CancelOrder(ctx context.Context, orderID, actor, reason string) (*domain.Order, error)
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]*domain.Order, int64, error)
	KitchenOrders(ctx context.Context) ([]*domain.Order, error)
	PendingPayments(ctx context.Context) ([]*domain.Order, error)
}

type TrackingService interface {
	GetOrderStatus(ctx context.Context, orderNumber string) (*TrackingOrderResponse, error)
	GetOrderTimeline(ctx context.Context, orderNumber string) ([]domain.StatusLog, error)
	GetDashboards(ctx context.Context) []SubscriberInfo
}

type HistoryService interface {
	UserHistory(ctx context.Context, userID string) ([]*domain.HistoryEntry, error)
}

type ReviewService interface {
	Submit(ctx context.Context, cmd SubmitReviewCommand) (*domain.Review, error)
	RestaurantRatings(ctx context.Context, restaurantID string) (*RestaurantRatings, error)
}

type OutboxMonitor interface {
	Stats(ctx context.Context) (map[domain.TaskStatus]int64, error)
}

// Tracking responses
type TrackingOrderResponse struct {
	OrderNumber      string               `json:"orderNumber"`
	CurrentStatus    domain.Status        `json:"currentStatus"`
	KitchenStatus    domain.KitchenStatus `json:"kitchenStatus"`
	PaymentStatus    domain.PaymentStatus `json:"paymentStatus"`
	UpdatedAt        time.Time            `json:"updatedAt"`
	EstimatedReadyAt *time.Time           `json:"estimatedReadyAt,omitempty"`
	ConfirmedBy      *string              `json:"confirmedBy,omitempty"`
}

// SubscriberInfo describes one connected kitchen dashboard.
type SubscriberInfo struct {
	ID          string    `json:"id"`
	RemoteAddr  string    `json:"remoteAddr"`
	UserAgent   string    `json:"userAgent,omitempty"`
	ConnectedAt time.Time `json:"connectedAt"`
	Delivered   int64     `json:"delivered"`
	Dropped     int64     `json:"dropped"`
}

type RestaurantRatings struct {
	RestaurantID string                `json:"restaurantId"`
	Restaurant   *domain.RatingStats   `json:"restaurant"`
	Items        []*domain.RatingStats `json:"items"`
}
