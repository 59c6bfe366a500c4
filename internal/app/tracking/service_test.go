package tracking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YelzhanWeb/restaurant/internal/adapter/logger"
	"github.com/YelzhanWeb/restaurant/internal/adapter/memory"
	"github.com/YelzhanWeb/restaurant/internal/domain"
	"github.com/YelzhanWeb/restaurant/internal/interfaces"
)

type staticDashboards []interfaces.SubscriberInfo

func (d staticDashboards) Subscribers() []interfaces.SubscriberInfo { return d }

func storeConfirmed(t *testing.T, repo *memory.OrderRepository) *domain.Order {
	t.Helper()
	o, err := domain.NewOrder(domain.NewOrderParams{
		UserID:        "user-1",
		Items:         []domain.OrderItem{{ItemID: "i1", Name: "Manty", Price: 1500, Quantity: 2}},
		TotalPrice:    3000,
		PaymentMethod: domain.PaymentMethodMobileBanking,
		TransactionID: "tx-1",
	})
	require.NoError(t, err)
	o.Number = "ORD-260101-007"
	_, err = o.ConfirmPayment("staff-7", domain.PaymentVerification{})
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), o))
	return o
}

func TestGetOrderStatus(t *testing.T) {
	repo := memory.NewOrderRepository()
	o := storeConfirmed(t, repo)
	svc := NewService(repo, staticDashboards{}, logger.NewNop())

	resp, err := svc.GetOrderStatus(context.Background(), o.Number)
	require.NoError(t, err)
	assert.Equal(t, o.Number, resp.OrderNumber)
	assert.Equal(t, domain.StatusConfirmed, resp.CurrentStatus)
	assert.Equal(t, domain.PaymentConfirmed, resp.PaymentStatus)
	require.NotNil(t, resp.ConfirmedBy)
	assert.Equal(t, "staff-7", *resp.ConfirmedBy)
	require.NotNil(t, resp.EstimatedReadyAt)
	assert.Equal(t, o.SentToKitchenAt.Add(15*time.Minute), *resp.EstimatedReadyAt)

	_, err = svc.GetOrderStatus(context.Background(), "ORD-000000-000")
	assert.True(t, domain.IsNotFound(err))
}

func TestGetOrderTimeline(t *testing.T) {
	repo := memory.NewOrderRepository()
	o := storeConfirmed(t, repo)
	svc := NewService(repo, staticDashboards{}, logger.NewNop())

	timeline, err := svc.GetOrderTimeline(context.Background(), o.Number)
	require.NoError(t, err)
	require.Len(t, timeline, 2)
	assert.Equal(t, domain.StatusPending, timeline[0].Status)
	assert.Equal(t, domain.StatusConfirmed, timeline[1].Status)
	assert.Equal(t, "staff-7", timeline[1].ChangedBy)
}

func TestGetDashboards(t *testing.T) {
	dashboards := staticDashboards{{ID: "a", RemoteAddr: "10.0.0.1"}}
	svc := NewService(memory.NewOrderRepository(), dashboards, logger.NewNop())

	got := svc.GetDashboards(context.Background())
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)
}
