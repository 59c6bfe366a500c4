package tracking

import (
	"context"

	"github.com/YelzhanWeb/restaurant/internal/adapter/logger"
	"github.com/YelzhanWeb/restaurant/internal/domain"
	"github.com/YelzhanWeb/restaurant/internal/interfaces"
)

// DashboardLister reports the kitchen dashboards connected to this instance.
type DashboardLister interface {
	Subscribers() []interfaces.SubscriberInfo
}

type Service struct {
	orderRepo  interfaces.OrderRepository
	dashboards DashboardLister
	logger     logger.Logger
}

func NewService(orderRepo interfaces.OrderRepository, dashboards DashboardLister, logger logger.Logger) *Service {
	return &Service{
		orderRepo:  orderRepo,
		dashboards: dashboards,
		logger:     logger,
	}
}

func (s *Service) GetOrderStatus(ctx context.Context, orderNumber string) (*interfaces.TrackingOrderResponse, error) {
	order, err := s.orderRepo.FindByNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}

	resp := &interfaces.TrackingOrderResponse{
		OrderNumber:      order.Number,
		CurrentStatus:    order.Status,
		KitchenStatus:    order.KitchenStatus,
		PaymentStatus:    order.PaymentStatus,
		UpdatedAt:        order.UpdatedAt,
		EstimatedReadyAt: order.EstimatedReadyAt(),
	}
	if order.PaymentConfirmedBy != "" {
		by := order.PaymentConfirmedBy
		resp.ConfirmedBy = &by
	}

	return resp, nil
}

func (s *Service) GetOrderTimeline(ctx context.Context, orderNumber string) ([]domain.StatusLog, error) {
	order, err := s.orderRepo.FindByNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	if order.StatusLog == nil {
		return []domain.StatusLog{}, nil
	}
	return order.StatusLog, nil
}

func (s *Service) GetDashboards(ctx context.Context) []interfaces.SubscriberInfo {
	subs := s.dashboards.Subscribers()
	s.logger.Debug("dashboards_listed", "Listed kitchen dashboards", logger.RequestIDFrom(ctx), map[string]interface{}{"count": len(subs)})
	return subs
}
