// Package memory keeps every record in process memory. It backs tests and the
// "memory" storage driver for local development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/YelzhanWeb/restaurant/internal/domain"
	"github.com/YelzhanWeb/restaurant/internal/interfaces"
)

type OrderRepository struct {
	mu     sync.RWMutex
	orders map[string]*domain.Order
}

func NewOrderRepository() *OrderRepository {
	return &OrderRepository{orders: make(map[string]*domain.Order)}
}

func (r *OrderRepository) Create(_ context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, o := range r.orders {
		if o.Number == order.Number {
			return domain.ErrDuplicateOrderNumber
		}
		if o.TransactionID == order.TransactionID {
			return domain.ErrDuplicateTransaction
		}
	}

	order.ID = uuid.NewString()
	order.Version = 1
	r.orders[order.ID] = order.Clone()
	return nil
}

func (r *OrderRepository) FindByID(_ context.Context, id string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, domain.NewNotFoundError("order", id)
	}
	return o.Clone(), nil
}

func (r *OrderRepository) FindByNumber(_ context.Context, number string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, o := range r.orders {
		if o.Number == number {
			return o.Clone(), nil
		}
	}
	return nil, domain.NewNotFoundError("order", number)
}

func (r *OrderRepository) Update(_ context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.orders[order.ID]
	if !ok {
		return domain.NewNotFoundError("order", order.ID)
	}
	if stored.Version != order.Version {
		return domain.ErrVersionConflict
	}
	order.Version++
	r.orders[order.ID] = order.Clone()
	return nil
}

func (r *OrderRepository) List(_ context.Context, f interfaces.OrderFilter) ([]*domain.Order, int64, error) {
	f = f.Normalize()
	matched := r.filter(func(o *domain.Order) bool {
		return (f.UserID == "" || o.UserID == f.UserID) &&
			(f.RestaurantID == "" || o.RestaurantID == f.RestaurantID) &&
			(f.Status == "" || o.Status == f.Status) &&
			(f.PaymentStatus == "" || o.PaymentStatus == f.PaymentStatus) &&
			(f.KitchenStatus == "" || o.KitchenStatus == f.KitchenStatus)
	})
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := int64(len(matched))
	start := f.Offset()
	if start >= len(matched) {
		return []*domain.Order{}, total, nil
	}
	end := start + f.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (r *OrderRepository) FindKitchenVisible(_ context.Context) ([]*domain.Order, error) {
	out := r.filter((*domain.Order).IsReadyForKitchen)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].KitchenPriority != out[j].KitchenPriority {
			return out[i].KitchenPriority
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *OrderRepository) FindPendingPayments(_ context.Context) ([]*domain.Order, error) {
	out := r.filter(func(o *domain.Order) bool {
		return o.PaymentStatus == domain.PaymentPending && o.Status != domain.StatusCancelled
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *OrderRepository) FindDeliveredUnarchived(_ context.Context, userID string) ([]*domain.Order, error) {
	out := r.filter(func(o *domain.Order) bool {
		return o.NeedsArchival() && (userID == "" || o.UserID == userID)
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// MarkArchived sets the flag and bumps the version, so a writer holding a copy
// read before archival fails its CAS instead of clearing the flag.
func (r *OrderRepository) MarkArchived(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return domain.NewNotFoundError("order", id)
	}
	o.ArchivedToHistory = true
	o.Version++
	o.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *OrderRepository) filter(keep func(*domain.Order) bool) []*domain.Order {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Order, 0)
	for _, o := range r.orders {
		if keep(o) {
			out = append(out, o.Clone())
		}
	}
	return out
}
