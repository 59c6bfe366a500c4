package interfaces

import (
	"context"
	"time"

	"github.com/YelzhanWeb/restaurant/internal/domain"
)

// OrderFilter narrows List. Zero values mean "any".
type OrderFilter struct {
	UserID        string
	RestaurantID  string
	Status        domain.Status
	PaymentStatus domain.PaymentStatus
	KitchenStatus domain.KitchenStatus
	Page          int
	Limit         int
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Normalize clamps paging to sane bounds.
func (f OrderFilter) Normalize() OrderFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = DefaultPageLimit
	}
	if f.Limit > MaxPageLimit {
		f.Limit = MaxPageLimit
	}
	return f
}

func (f OrderFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// OrderRepository persists live orders. Update is a compare-and-swap on
// Version: it fails with domain.ErrVersionConflict when the stored version
// differs and increments Version on success.
type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order) error
	FindByID(ctx context.Context, id string) (*domain.Order, error)
	FindByNumber(ctx context.Context, number string) (*domain.Order, error)
	Update(ctx context.Context, order *domain.Order) error
	List(ctx context.Context, filter OrderFilter) ([]*domain.Order, int64, error)
	FindKitchenVisible(ctx context.Context) ([]*domain.Order, error)
	FindPendingPayments(ctx context.Context) ([]*domain.Order, error)
	// FindDeliveredUnarchived returns delivered orders without a history
	// snapshot. An empty userID matches every user.
	FindDeliveredUnarchived(ctx context.Context, userID string) ([]*domain.Order, error)
	// MarkArchived sets ArchivedToHistory and increments Version.
	MarkArchived(ctx context.Context, id string) error
}

type HistoryRepository interface {
	// Insert fails with domain.ErrAlreadyArchived when a snapshot with the
	// same original order id exists.
	Insert(ctx context.Context, h *domain.OrderHistory) error
	FindByUser(ctx context.Context, userID string) ([]*domain.OrderHistory, error)
	FindByOrderID(ctx context.Context, orderID string) (*domain.OrderHistory, error)
}

type ReviewRepository interface {
	// Create fails with domain.ErrDuplicateReview for a second review of the
	// same order by the same user.
	Create(ctx context.Context, r *domain.Review) error
	FindByUser(ctx context.Context, userID string) ([]*domain.Review, error)
	FindByRestaurant(ctx context.Context, restaurantID string) ([]*domain.Review, error)
}

type RatingRepository interface {
	Upsert(ctx context.Context, stats []*domain.RatingStats) error
	FindByRestaurant(ctx context.Context, restaurantID string) ([]*domain.RatingStats, error)
}

type OutboxRepository interface {
	Insert(ctx context.Context, task *domain.OutboxTask) error
	// ClaimDue leases up to limit pending tasks whose NextAttemptAt is not
	// after now, moving them to processing until now+lease.
	ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*domain.OutboxTask, error)
	Save(ctx context.Context, task *domain.OutboxTask) error
	CountByStatus(ctx context.Context) (map[domain.TaskStatus]int64, error)
}
