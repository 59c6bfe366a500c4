package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/YelzhanWeb/restaurant/internal/domain"
)

type HistoryRepository struct {
	mu      sync.RWMutex
	byOrder map[string]*domain.OrderHistory
}

func NewHistoryRepository() *HistoryRepository {
	return &HistoryRepository{byOrder: make(map[string]*domain.OrderHistory)}
}

func (r *HistoryRepository) Insert(_ context.Context, h *domain.OrderHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byOrder[h.OriginalOrderID]; ok {
		return domain.ErrAlreadyArchived
	}
	h.ID = uuid.NewString()
	r.byOrder[h.OriginalOrderID] = cloneHistory(h)
	return nil
}

func (r *HistoryRepository) FindByUser(_ context.Context, userID string) ([]*domain.OrderHistory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.OrderHistory, 0)
	for _, h := range r.byOrder {
		if h.UserID == userID {
			out = append(out, cloneHistory(h))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OrderCreatedAt.After(out[j].OrderCreatedAt) })
	return out, nil
}

func (r *HistoryRepository) FindByOrderID(_ context.Context, orderID string) (*domain.OrderHistory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.byOrder[orderID]
	if !ok {
		return nil, domain.NewNotFoundError("order history", orderID)
	}
	return cloneHistory(h), nil
}

// Count is used by tests to assert exactly-once archival.
func (r *HistoryRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byOrder)
}

func cloneHistory(h *domain.OrderHistory) *domain.OrderHistory {
	c := *h
	c.Order = *h.Order.Clone()
	return &c
}
