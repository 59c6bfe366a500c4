package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/YelzhanWeb/restaurant/internal/adapter/logger"
	"github.com/YelzhanWeb/restaurant/internal/domain"
	"github.com/YelzhanWeb/restaurant/internal/interfaces"
)

const (
	// Short numbers are tried first; after that the suffix widens.
	shortNumberAttempts = 5
	maxNumberAttempts   = 10
	maxCASAttempts    = 3
)

type Service struct {
	repo        interfaces.OrderRepository
	tasks       interfaces.TaskQueue
	logger      logger.Logger
	maxAttempts int
}

// NewService wires the order state machine. maxAttempts bounds the retries of
// each side effect enqueued on tasks.
func NewService(repo interfaces.OrderRepository, tasks interfaces.TaskQueue, logger logger.Logger, maxAttempts int) *Service {
	return &Service{
		repo:        repo,
		tasks:       tasks,
		logger:      logger,
		maxAttempts: maxAttempts,
	}
}

func (s *Service) CreateOrder(ctx context.Context, cmd interfaces.CreateOrderCommand) (*domain.Order, error) {
	reqID := logger.RequestIDFrom(ctx)

	// 1. Commands to domain model
	items := make([]domain.OrderItem, len(cmd.Items))
	for i, item := range cmd.Items {
		items[i] = domain.OrderItem{
			ItemID:              item.ItemID,
			Name:                item.Name,
			Price:               item.Price,
			Quantity:            item.Quantity,
			SpecialInstructions: item.SpecialInstructions,
		}
	}

	// 2. Validation and kitchen fields
	order, err := domain.NewOrder(domain.NewOrderParams{
		UserID:         cmd.UserID,
		RestaurantID:   cmd.RestaurantID,
		RestaurantName: cmd.RestaurantName,
		RestaurantSlug: cmd.RestaurantSlug,
		Items:          items,
		TotalPrice:     cmd.TotalPrice,
		PaymentMethod:  domain.PaymentMethod(cmd.PaymentMethod),
		TransactionID:  cmd.TransactionID,
		CustomerNotes:  cmd.CustomerNotes,
	})
	if err != nil {
		s.logger.Debug("validation_failed", "Order validation failed", reqID, map[string]interface{}{"error": err.Error()})
		return nil, err
	}

	// 3. Persist, drawing a new number on collision
	for attempt := 1; ; attempt++ {
		digits := domain.OrderNumberDigits
		if attempt > shortNumberAttempts {
			digits = domain.LongOrderNumberDigits
		}
		order.Number = domain.GenerateOrderNumber(order.CreatedAt, digits)
		err = s.repo.Create(ctx, order)
		if err == nil {
			break
		}
		switch {
		case errors.Is(err, domain.ErrDuplicateTransaction):
			return nil, domain.NewValidationError("validation failed", domain.FieldError{
				Field:   "transactionId",
				Message: "transaction reference has already been used",
			})
		case errors.Is(err, domain.ErrDuplicateOrderNumber) && attempt < maxNumberAttempts:
			s.logger.Debug("order_number_collision", "Order number taken, retrying", reqID, map[string]interface{}{"order_number": order.Number})
			continue
		}
		s.logger.Error("db_create_failed", "Failed to create order", reqID, nil, err)
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	s.logger.Info("order_created", "Order created", reqID, map[string]interface{}{
		"order_number": order.Number,
		"order_id":     order.ID,
		"priority":     order.KitchenPriority,
	})
	return order, nil
}

// ConfirmPayment confirms the payment and sends the order to the kitchen.
// A second confirmation returns the order unchanged and broadcasts nothing.
func (s *Service) ConfirmPayment(ctx context.Context, cmd interfaces.ConfirmPaymentCommand) (*domain.Order, error) {
	order, changed, err := s.mutate(ctx, cmd.OrderID, func(o *domain.Order) (bool, error) {
		return o.ConfirmPayment(cmd.StaffID, domain.PaymentVerification{Verified: cmd.Verified, Note: cmd.Note})
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.logger.Info("payment_confirmed", "Payment confirmed, order sent to kitchen", logger.RequestIDFrom(ctx), map[string]interface{}{
			"order_number": order.Number,
			"staff_id":     cmd.StaffID,
		})
		s.broadcast(ctx, interfaces.EventOrderUpdate, order, "payment confirmed")
	}
	return order, nil
}

func (s *Service) MarkPaymentFailed(ctx context.Context, orderID, staffID, reason string) (*domain.Order, error) {
	order, _, err := s.mutate(ctx, orderID, func(o *domain.Order) (bool, error) {
		return true, o.FailPayment(staffID, reason)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("payment_failed", "Payment marked as failed", logger.RequestIDFrom(ctx), map[string]interface{}{
		"order_number": order.Number,
		"reason":       reason,
	})
	return order, nil
}

func (s *Service) UpdateKitchenStatus(ctx context.Context, orderID string, status domain.KitchenStatus, staffID string) (*domain.Order, error) {
	if !status.Valid() {
		return nil, domain.NewValidationError("invalid kitchen status", domain.FieldError{
			Field:   "status",
			Message: "kitchen status must be one of: Pending, Preparing, Ready, Delivered",
		})
	}

	order, changed, err := s.mutate(ctx, orderID, func(o *domain.Order) (bool, error) {
		return o.AdvanceKitchenStatus(status, staffID)
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return order, nil
	}

	s.logger.Info("kitchen_status_updated", "Kitchen status updated", logger.RequestIDFrom(ctx), map[string]interface{}{
		"order_number":   order.Number,
		"kitchen_status": order.KitchenStatus,
		"changed_by":     staffID,
	})
	s.broadcast(ctx, interfaces.EventKitchenStatusUpdate, order, "kitchen status "+string(order.KitchenStatus))

	if order.NeedsArchival() {
		s.enqueue(ctx, domain.TaskArchiveOrder, interfaces.ArchivePayload{OrderID: order.ID}, order.Number)
	}
	return order, nil
}

func (s *Service) HideFromKitchen(ctx context.Context, orderID, staffID string) (*domain.Order, error) {
	order, changed, err := s.mutate(ctx, orderID, func(o *domain.Order) (bool, error) {
		return o.HideFromKitchen(staffID), nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.broadcast(ctx, interfaces.EventOrderUpdate, order, "hidden from kitchen")
	}
	return order, nil
}

func (s *Service) CancelOrder(ctx context.Context, orderID, actor, reason string) (*domain.Order, error) {
	order, _, err := s.mutate(ctx, orderID, func(o *domain.Order) (bool, error) {
		return true, o.Cancel(actor, reason)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("order_cancelled", "Order cancelled", logger.RequestIDFrom(ctx), map[string]interface{}{
		"order_number": order.Number,
		"actor":        actor,
	})
	s.broadcast(ctx, interfaces.EventOrderUpdate, order, "order cancelled")
	return order, nil
}

func (s *Service) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *Service) GetOrderByNumber(ctx context.Context, number string) (*domain.Order, error) {
	return s.repo.FindByNumber(ctx, number)
}

func (s *Service) ListOrders(ctx context.Context, filter interfaces.OrderFilter) ([]*domain.Order, int64, error) {
	return s.repo.List(ctx, filter.Normalize())
}

func (s *Service) KitchenOrders(ctx context.Context) ([]*domain.Order, error) {
	return s.repo.FindKitchenVisible(ctx)
}

func (s *Service) PendingPayments(ctx context.Context) ([]*domain.Order, error) {
	return s.repo.FindPendingPayments(ctx)
}

// mutate loads the order, applies the transition and stores it with a version
// check. Losing a race re-reads and re-applies the transition.
func (s *Service) mutate(ctx context.Context, id string, apply func(*domain.Order) (bool, error)) (*domain.Order, bool, error) {
	for attempt := 1; attempt <= maxCASAttempts; attempt++ {
		order, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return nil, false, err
		}

		changed, err := apply(order)
		if err != nil {
			return nil, false, err
		}
		if !changed {
			return order, false, nil
		}

		err = s.repo.Update(ctx, order)
		if err == nil {
			return order, true, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			s.logger.Error("db_update_failed", "Failed to update order", logger.RequestIDFrom(ctx), map[string]interface{}{"order_id": id}, err)
			return nil, false, fmt.Errorf("failed to update order: %w", err)
		}
		s.logger.Debug("version_conflict", "Concurrent update detected, retrying", logger.RequestIDFrom(ctx), map[string]interface{}{
			"order_id": id,
			"attempt":  attempt,
		})
	}
	return nil, false, domain.NewConflictError("order", id)
}

func (s *Service) broadcast(ctx context.Context, t interfaces.EventType, order *domain.Order, message string) {
	s.enqueue(ctx, domain.TaskBroadcastEvent, interfaces.NewOrderEvent(t, order.Clone(), message), order.Number)
}

// enqueue hands a side effect to the outbox. The transition is already
// committed, so a failure here is logged and not returned.
func (s *Service) enqueue(ctx context.Context, t domain.TaskType, payload any, orderNumber string) {
	task, err := domain.NewOutboxTask(t, payload, s.maxAttempts)
	if err == nil {
		err = s.tasks.Enqueue(ctx, task)
	}
	if err != nil {
		s.logger.Error("outbox_enqueue_failed", "Failed to enqueue side effect", logger.RequestIDFrom(ctx), map[string]interface{}{
			"order_number": orderNumber,
			"task_type":    t,
		}, err)
	}
}
