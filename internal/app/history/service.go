package history

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/YelzhanWeb/restaurant/internal/adapter/logger"
	"github.com/YelzhanWeb/restaurant/internal/domain"
	"github.com/YelzhanWeb/restaurant/internal/interfaces"
)

// Service copies delivered orders into the history store.
type Service struct {
	orders    interfaces.OrderRepository
	histories interfaces.HistoryRepository
	reviews   interfaces.ReviewRepository
	logger    logger.Logger
}

func NewService(
	orders interfaces.OrderRepository,
	histories interfaces.HistoryRepository,
	reviews interfaces.ReviewRepository,
	logger logger.Logger,
) *Service {
	return &Service{
		orders:    orders,
		histories: histories,
		reviews:   reviews,
		logger:    logger,
	}
}

// Archive snapshots a delivered order. Archiving twice is a no-op. Returns
// whether a new snapshot was written.
func (s *Service) Archive(ctx context.Context, orderID string) (bool, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return false, err
	}
	return s.archive(ctx, order)
}

func (s *Service) archive(ctx context.Context, order *domain.Order) (bool, error) {
	if order.ArchivedToHistory {
		return false, nil
	}
	if order.Status != domain.StatusDelivered {
		return false, domain.NewPreconditionError("order %s is %s, only delivered orders are archived", order.Number, order.Status)
	}

	created := true
	snapshot := domain.NewOrderHistory(order, domain.ArchiveReasonDelivered, time.Now())
	if err := s.histories.Insert(ctx, snapshot); err != nil {
		if !errors.Is(err, domain.ErrAlreadyArchived) {
			return false, fmt.Errorf("failed to insert history for order %s: %w", order.Number, err)
		}
		// A previous attempt wrote the snapshot but not the flag.
		created = false
	}

	if err := s.orders.MarkArchived(ctx, order.ID); err != nil {
		return false, fmt.Errorf("failed to flag order %s as archived: %w", order.Number, err)
	}

	if created {
		s.logger.Info("order_archived", "Order archived to history", logger.RequestIDFrom(ctx), map[string]interface{}{
			"order_number": order.Number,
			"order_id":     order.ID,
		})
	}
	return created, nil
}

// HandleArchiveTask is the outbox handler for archive_order tasks.
func (s *Service) HandleArchiveTask(ctx context.Context, task *domain.OutboxTask) error {
	var p interfaces.ArchivePayload
	if err := task.Decode(&p); err != nil {
		return err
	}
	_, err := s.Archive(ctx, p.OrderID)
	return err
}

// UserHistory lazily archives the user's delivered orders that missed
// archival, then returns the history newest first with the user's reviews.
func (s *Service) UserHistory(ctx context.Context, userID string) ([]*domain.HistoryEntry, error) {
	if userID == "" {
		return nil, domain.NewValidationError("validation failed", domain.FieldError{Field: "userId", Message: "user id is required"})
	}
	reqID := logger.RequestIDFrom(ctx)

	// 1. Lazy migration. Failures do not fail the query.
	pending, err := s.orders.FindDeliveredUnarchived(ctx, userID)
	if err != nil {
		s.logger.Error("lazy_archive_failed", "Failed to find unarchived orders", reqID, map[string]interface{}{"user_id": userID}, err)
	}
	for _, o := range pending {
		if _, err := s.archive(ctx, o); err != nil {
			s.logger.Error("lazy_archive_failed", "Failed to archive order during history query", reqID, map[string]interface{}{
				"user_id":      userID,
				"order_number": o.Number,
			}, err)
		}
	}

	// 2. History
	histories, err := s.histories.FindByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	// 3. Join with reviews
	reviews, err := s.reviews.FindByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load reviews: %w", err)
	}
	byOrder := make(map[string]*domain.Review, len(reviews))
	for _, r := range reviews {
		byOrder[r.OrderID] = r
	}

	entries := make([]*domain.HistoryEntry, 0, len(histories))
	for _, h := range histories {
		entries = append(entries, &domain.HistoryEntry{History: h, Review: byOrder[h.OriginalOrderID]})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].History.OrderCreatedAt.After(entries[j].History.OrderCreatedAt)
	})
	return entries, nil
}

// Reconcile archives every delivered order that is still missing from
// history. Returns the number of snapshots written.
func (s *Service) Reconcile(ctx context.Context) (int, error) {
	pending, err := s.orders.FindDeliveredUnarchived(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("failed to find unarchived orders: %w", err)
	}

	archived := 0
	var errs []error
	for _, o := range pending {
		if err := ctx.Err(); err != nil {
			return archived, err
		}
		created, err := s.archive(ctx, o)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if created {
			archived++
		}
	}

	s.logger.Info("reconcile_finished", "Archive reconciliation finished", "", map[string]interface{}{
		"candidates": len(pending),
		"archived":   archived,
		"failed":     len(errs),
	})
	return archived, errors.Join(errs...)
}
