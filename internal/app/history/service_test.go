package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YelzhanWeb/restaurant/internal/adapter/logger"
	"github.com/YelzhanWeb/restaurant/internal/adapter/memory"
	"github.com/YelzhanWeb/restaurant/internal/domain"
	"github.com/YelzhanWeb/restaurant/internal/interfaces"
)

type fixture struct {
	svc       *Service
	orders    *memory.OrderRepository
	histories *memory.HistoryRepository
	reviews   *memory.ReviewRepository
}

func newFixture() *fixture {
	f := &fixture{
		orders:    memory.NewOrderRepository(),
		histories: memory.NewHistoryRepository(),
		reviews:   memory.NewReviewRepository(),
	}
	f.svc = NewService(f.orders, f.histories, f.reviews, logger.NewNop())
	return f
}

// storeOrder saves an order for userID advanced to the given kitchen status.
// An empty status leaves it unpaid.
func (f *fixture) storeOrder(t *testing.T, userID, tx string, createdAt time.Time, status domain.KitchenStatus) *domain.Order {
	t.Helper()
	o, err := domain.NewOrder(domain.NewOrderParams{
		UserID:        userID,
		RestaurantID:  "rest-1",
		Items:         []domain.OrderItem{{ItemID: "i1", Name: "Lagman", Price: 1800, Quantity: 1}},
		TotalPrice:    1800,
		PaymentMethod: domain.PaymentMethodCash,
		TransactionID: tx,
	})
	require.NoError(t, err)
	o.Number = "ORD-260101-" + tx[len(tx)-3:]
	o.CreatedAt = createdAt

	if status != "" {
		_, err = o.ConfirmPayment("staff-1", domain.PaymentVerification{})
		require.NoError(t, err)
		_, err = o.AdvanceKitchenStatus(status, "chef")
		require.NoError(t, err)
	}
	require.NoError(t, f.orders.Create(context.Background(), o))
	return o
}

func TestArchive_Idempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	o := f.storeOrder(t, "user-1", "tx-001", time.Now(), domain.KitchenDelivered)

	created, err := f.svc.Archive(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = f.svc.Archive(ctx, o.ID)
	require.NoError(t, err)
	assert.False(t, created)

	assert.Equal(t, 1, f.histories.Count())

	h, err := f.histories.FindByOrderID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.Number, h.OrderNumber)
	assert.Equal(t, domain.ArchiveReasonDelivered, h.ArchiveReason)
	assert.Equal(t, domain.StatusDelivered, h.Order.Status)
}

func TestArchive_SnapshotWithoutFlag(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	o := f.storeOrder(t, "user-1", "tx-001", time.Now(), domain.KitchenDelivered)

	// Simulate a crash between the history insert and the flag update.
	require.NoError(t, f.histories.Insert(ctx, domain.NewOrderHistory(o, domain.ArchiveReasonDelivered, time.Now())))

	created, err := f.svc.Archive(ctx, o.ID)
	require.NoError(t, err)
	assert.False(t, created)

	stored, err := f.orders.FindByID(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, stored.ArchivedToHistory)
	assert.Equal(t, 1, f.histories.Count())
}

func TestArchive_RejectsUndelivered(t *testing.T) {
	f := newFixture()
	o := f.storeOrder(t, "user-1", "tx-001", time.Now(), domain.KitchenReady)

	_, err := f.svc.Archive(context.Background(), o.ID)
	assert.True(t, domain.IsPrecondition(err))
	assert.Equal(t, 0, f.histories.Count())
}

func TestHandleArchiveTask(t *testing.T) {
	f := newFixture()
	o := f.storeOrder(t, "user-1", "tx-001", time.Now(), domain.KitchenDelivered)

	task, err := domain.NewOutboxTask(domain.TaskArchiveOrder, interfaces.ArchivePayload{OrderID: o.ID}, 3)
	require.NoError(t, err)
	require.NoError(t, f.svc.HandleArchiveTask(context.Background(), task))
	assert.Equal(t, 1, f.histories.Count())

	missing, err := domain.NewOutboxTask(domain.TaskArchiveOrder, interfaces.ArchivePayload{OrderID: "nope"}, 3)
	require.NoError(t, err)
	assert.True(t, domain.IsNotFound(f.svc.HandleArchiveTask(context.Background(), missing)))
}

func TestUserHistory_LazyMigrationAndReviewJoin(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	older := f.storeOrder(t, "user-1", "tx-001", base, domain.KitchenDelivered)
	newer := f.storeOrder(t, "user-1", "tx-002", base.Add(time.Hour), domain.KitchenDelivered)
	f.storeOrder(t, "user-1", "tx-003", base.Add(2*time.Hour), domain.KitchenPreparing)
	f.storeOrder(t, "user-2", "tx-004", base, domain.KitchenDelivered)

	require.NoError(t, f.reviews.Create(ctx, &domain.Review{OrderID: older.ID, UserID: "user-1", RestaurantID: "rest-1", Rating: 5}))

	entries, err := f.svc.UserHistory(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, newer.ID, entries[0].History.OriginalOrderID)
	assert.Nil(t, entries[0].Review)
	assert.Equal(t, older.ID, entries[1].History.OriginalOrderID)
	require.NotNil(t, entries[1].Review)
	assert.Equal(t, 5, entries[1].Review.Rating)

	// Other users' orders are left for their own query or the reconciler.
	assert.Equal(t, 2, f.histories.Count())

	again, err := f.svc.UserHistory(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, again, 2)
	assert.Equal(t, 2, f.histories.Count())
}

func TestUserHistory_RequiresUser(t *testing.T) {
	f := newFixture()
	_, err := f.svc.UserHistory(context.Background(), "")
	assert.True(t, domain.IsValidation(err))
}

type failingHistories struct {
	*memory.HistoryRepository
}

func (failingHistories) Insert(context.Context, *domain.OrderHistory) error {
	return errors.New("disk full")
}

func TestUserHistory_LazyFailureDoesNotFailQuery(t *testing.T) {
	orders := memory.NewOrderRepository()
	f := &fixture{orders: orders, histories: memory.NewHistoryRepository(), reviews: memory.NewReviewRepository()}
	f.svc = NewService(orders, failingHistories{f.histories}, f.reviews, logger.NewNop())
	f.storeOrder(t, "user-1", "tx-001", time.Now(), domain.KitchenDelivered)

	entries, err := f.svc.UserHistory(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestReconcile(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.storeOrder(t, "user-1", "tx-001", time.Now(), domain.KitchenDelivered)
	f.storeOrder(t, "user-2", "tx-002", time.Now(), domain.KitchenDelivered)
	f.storeOrder(t, "user-3", "tx-003", time.Now(), domain.KitchenReady)

	archived, err := f.svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, archived)

	archived, err = f.svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, archived)
	assert.Equal(t, 2, f.histories.Count())
}
