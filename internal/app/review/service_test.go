package review

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YelzhanWeb/restaurant/internal/adapter/logger"
	"github.com/YelzhanWeb/restaurant/internal/adapter/memory"
	"github.com/YelzhanWeb/restaurant/internal/domain"
	"github.com/YelzhanWeb/restaurant/internal/interfaces"
)

type recordingQueue struct {
	mu    sync.Mutex
	tasks []*domain.OutboxTask
}

func (q *recordingQueue) Enqueue(_ context.Context, task *domain.OutboxTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
	return nil
}

type fixture struct {
	svc     *Service
	orders  *memory.OrderRepository
	ratings *memory.RatingRepository
	queue   *recordingQueue
}

func newFixture() *fixture {
	f := &fixture{
		orders:  memory.NewOrderRepository(),
		ratings: memory.NewRatingRepository(),
		queue:   &recordingQueue{},
	}
	f.svc = NewService(f.orders, memory.NewReviewRepository(), f.ratings, f.queue, logger.NewNop(), 3)
	return f
}

func (f *fixture) deliveredOrder(t *testing.T, userID, tx string) *domain.Order {
	t.Helper()
	o, err := domain.NewOrder(domain.NewOrderParams{
		UserID:       userID,
		RestaurantID: "rest-1",
		Items: []domain.OrderItem{
			{ItemID: "i1", Name: "Beshbarmak", Price: 3500, Quantity: 1},
			{ItemID: "i2", Name: "Baursak", Price: 500, Quantity: 3},
		},
		TotalPrice:    5000,
		PaymentMethod: domain.PaymentMethodCard,
		TransactionID: tx,
	})
	require.NoError(t, err)
	o.Number = "ORD-260101-" + tx[len(tx)-3:]
	_, err = o.ConfirmPayment("staff-1", domain.PaymentVerification{})
	require.NoError(t, err)
	_, err = o.AdvanceKitchenStatus(domain.KitchenDelivered, "chef")
	require.NoError(t, err)
	require.NoError(t, f.orders.Create(context.Background(), o))
	return o
}

func TestSubmit_StoresAndSchedulesRecompute(t *testing.T) {
	f := newFixture()
	o := f.deliveredOrder(t, "user-1", "tx-001")

	r, err := f.svc.Submit(context.Background(), interfaces.SubmitReviewCommand{
		UserID:      "user-1",
		OrderID:     o.ID,
		Rating:      5,
		Comment:     "great",
		ItemRatings: []domain.ItemRating{{ItemID: "i2", Rating: 4}},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, "Baursak", r.ItemRatings[0].Name)

	require.Len(t, f.queue.tasks, 1)
	assert.Equal(t, domain.TaskRecomputeRatings, f.queue.tasks[0].Type)
	var p interfaces.RecomputePayload
	require.NoError(t, f.queue.tasks[0].Decode(&p))
	assert.Equal(t, "rest-1", p.RestaurantID)
}

func TestSubmit_Duplicate(t *testing.T) {
	f := newFixture()
	o := f.deliveredOrder(t, "user-1", "tx-001")
	cmd := interfaces.SubmitReviewCommand{UserID: "user-1", OrderID: o.ID, Rating: 4}

	_, err := f.svc.Submit(context.Background(), cmd)
	require.NoError(t, err)

	_, err = f.svc.Submit(context.Background(), cmd)
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "orderId", ve.Fields[0].Field)
}

func TestSubmit_Rejections(t *testing.T) {
	f := newFixture()
	o := f.deliveredOrder(t, "user-1", "tx-001")

	_, err := f.svc.Submit(context.Background(), interfaces.SubmitReviewCommand{UserID: "user-1", OrderID: "missing", Rating: 4})
	assert.True(t, domain.IsNotFound(err))

	_, err = f.svc.Submit(context.Background(), interfaces.SubmitReviewCommand{UserID: "user-2", OrderID: o.ID, Rating: 4})
	assert.True(t, domain.IsPrecondition(err))

	_, err = f.svc.Submit(context.Background(), interfaces.SubmitReviewCommand{UserID: "user-1", OrderID: o.ID, Rating: 0})
	assert.True(t, domain.IsValidation(err))

	assert.Empty(t, f.queue.tasks)
}

func TestRecomputeAndRestaurantRatings(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.RestaurantRatings(ctx, "rest-1")
	assert.True(t, domain.IsNotFound(err))

	a := f.deliveredOrder(t, "user-1", "tx-001")
	b := f.deliveredOrder(t, "user-2", "tx-002")
	_, err = f.svc.Submit(ctx, interfaces.SubmitReviewCommand{UserID: "user-1", OrderID: a.ID, Rating: 5,
		ItemRatings: []domain.ItemRating{{ItemID: "i1", Rating: 5}}})
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, interfaces.SubmitReviewCommand{UserID: "user-2", OrderID: b.ID, Rating: 2,
		ItemRatings: []domain.ItemRating{{ItemID: "i1", Rating: 3}, {ItemID: "i2", Rating: 4}}})
	require.NoError(t, err)

	for _, task := range f.queue.tasks {
		require.NoError(t, f.svc.HandleRecomputeTask(ctx, task))
	}

	ratings, err := f.svc.RestaurantRatings(ctx, "rest-1")
	require.NoError(t, err)
	assert.Equal(t, 3.5, ratings.Restaurant.Average)
	assert.Equal(t, int64(2), ratings.Restaurant.Count)
	require.Len(t, ratings.Items, 2)
	assert.Equal(t, "i1", ratings.Items[0].SubjectID)
	assert.Equal(t, "Beshbarmak", ratings.Items[0].Name)
	assert.Equal(t, 4.0, ratings.Items[0].Average)
	assert.Equal(t, 4.0, ratings.Items[1].Average)
	assert.WithinDuration(t, time.Now(), ratings.Restaurant.UpdatedAt, time.Minute)
}
