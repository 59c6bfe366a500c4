package http_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpAdapter "github.com/YelzhanWeb/restaurant/internal/adapter/http"
	"github.com/YelzhanWeb/restaurant/internal/adapter/logger"
	"github.com/YelzhanWeb/restaurant/internal/adapter/memory"
	"github.com/YelzhanWeb/restaurant/internal/app/broadcast"
	"github.com/YelzhanWeb/restaurant/internal/app/history"
	"github.com/YelzhanWeb/restaurant/internal/app/order"
	"github.com/YelzhanWeb/restaurant/internal/app/outbox"
	"github.com/YelzhanWeb/restaurant/internal/app/review"
	"github.com/YelzhanWeb/restaurant/internal/app/tracking"
	"github.com/YelzhanWeb/restaurant/internal/domain"
	"github.com/YelzhanWeb/restaurant/internal/interfaces"
)

// ---- helpers ----

type testEnv struct {
	router     *gin.Engine
	dispatcher *outbox.Dispatcher
	hub        *broadcast.Hub
}

func setupEnv(t *testing.T, limiter *httpAdapter.RateLimiter) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.NewNop()

	orders := memory.NewOrderRepository()
	histories := memory.NewHistoryRepository()
	reviews := memory.NewReviewRepository()
	ratings := memory.NewRatingRepository()

	dispatcher := outbox.NewDispatcher(memory.NewOutboxRepository(), log, outbox.Config{},
		outbox.WithClock(func() time.Time { return time.Now().UTC().Add(time.Second) }))
	hub := broadcast.NewHub(orders, log, 16)
	relay := broadcast.NewLocalRelay()

	orderSvc := order.NewService(orders, dispatcher, log, 3)
	historySvc := history.NewService(orders, histories, reviews, log)
	reviewSvc := review.NewService(orders, reviews, ratings, dispatcher, log, 3)
	trackingSvc := tracking.NewService(orders, hub, log)

	dispatcher.Register(domain.TaskBroadcastEvent, broadcast.RelayTask(relay))
	dispatcher.Register(domain.TaskArchiveOrder, historySvc.HandleArchiveTask)
	dispatcher.Register(domain.TaskRecomputeRatings, reviewSvc.HandleRecomputeTask)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = relay.Consume(ctx, hub.HandleRelayed) }()
	require.Eventually(t, func() bool { return relay.Consumers() == 1 }, time.Second, 5*time.Millisecond)
	t.Cleanup(func() {
		cancel()
		hub.Close()
	})

	router := httpAdapter.NewRouter(httpAdapter.Handlers{
		Orders:   httpAdapter.NewOrderHandler(orderSvc, log),
		Tracking: httpAdapter.NewTrackingHandler(trackingSvc, log),
		Kitchen:  httpAdapter.NewKitchenHandler(hub, time.Minute, log),
		History:  httpAdapter.NewHistoryHandler(historySvc, reviewSvc, log),
		Admin:    httpAdapter.NewAdminHandler(dispatcher, log),
	}, log, limiter)

	return &testEnv{router: router, dispatcher: dispatcher, hub: hub}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) flushOutbox(t *testing.T) {
	t.Helper()
	_, err := e.dispatcher.RunOnce(context.Background())
	require.NoError(t, err)
}

var (
	user  = map[string]string{"X-User-ID": "user-1"}
	staff = map[string]string{"X-Staff-ID": "staff-1"}
)

func orderBody(tx string) map[string]any {
	return map[string]any{
		"restaurantId": "rest-1",
		"items": []map[string]any{
			{"itemId": "i1", "name": "Plov", "price": 2500, "quantity": 1},
			{"itemId": "i2", "name": "Tea", "price": 300, "quantity": 2, "specialInstructions": "no sugar"},
		},
		"totalPrice":    3100,
		"paymentMethod": "Bank Transfer",
		"transactionId": tx,
	}
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (e *testEnv) createOrder(t *testing.T, tx string) domain.Order {
	t.Helper()
	w := e.do(t, http.MethodPost, "/orders", orderBody(tx), user)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[domain.Order](t, w)
}

// ---- tests ----

func TestCreateOrder(t *testing.T) {
	env := setupEnv(t, nil)

	w := env.do(t, http.MethodPost, "/orders", orderBody("tx-1"), user)
	require.Equal(t, http.StatusCreated, w.Code)

	o := decode[domain.Order](t, w)
	assert.Regexp(t, `^ORD-\d{6}-\d{3}$`, o.Number)
	assert.Equal(t, "user-1", o.UserID)
	assert.Equal(t, domain.PaymentPending, o.PaymentStatus)
	assert.True(t, o.KitchenPriority)
	assert.Equal(t, 20, o.EstimatedPreparationTime)
	assert.NotEmpty(t, w.Header().Get(httpAdapter.RequestIDHeader))
}

func TestCreateOrder_Validation(t *testing.T) {
	env := setupEnv(t, nil)

	w := env.do(t, http.MethodPost, "/orders", orderBody("tx-1"), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body := orderBody("tx-1")
	body["items"] = []map[string]any{{"name": "", "quantity": 0}}
	body["paymentMethod"] = "Crypto"
	w = env.do(t, http.MethodPost, "/orders", body, user)
	require.Equal(t, http.StatusBadRequest, w.Code)

	resp := decode[httpAdapter.ErrorResponse](t, w)
	fields := map[string]bool{}
	for _, f := range resp.Errors {
		fields[f.Field] = true
	}
	assert.True(t, fields["items[0].name"], resp.Errors)
	assert.True(t, fields["items[0].quantity"], resp.Errors)
	assert.True(t, fields["paymentMethod"], resp.Errors)

	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader("{not json"))
	req.Header.Set("X-User-ID", "user-1")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateOrder_DuplicateTransaction(t *testing.T) {
	env := setupEnv(t, nil)
	env.createOrder(t, "tx-1")

	w := env.do(t, http.MethodPost, "/orders", orderBody("tx-1"), user)
	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decode[httpAdapter.ErrorResponse](t, w)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "transactionId", resp.Errors[0].Field)
}

func TestOrderLifecycle(t *testing.T) {
	env := setupEnv(t, nil)
	o := env.createOrder(t, "tx-1")
	base := "/orders/" + o.ID

	// Unpaid orders are not in the kitchen.
	w := env.do(t, http.MethodPatch, base+"/kitchen-status", map[string]string{"status": "Preparing"}, staff)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = env.do(t, http.MethodGet, "/payments/pending", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode[map[string]any](t, w)["count"])

	w = env.do(t, http.MethodPost, base+"/confirm-payment", map[string]any{"transactionVerified": true}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "staff header required")

	w = env.do(t, http.MethodPost, base+"/confirm-payment", map[string]any{"transactionVerified": true}, staff)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	confirmed := decode[domain.Order](t, w)
	assert.Equal(t, domain.StatusConfirmed, confirmed.Status)
	assert.True(t, confirmed.TransactionVerified)

	// Idempotent.
	w = env.do(t, http.MethodPost, base+"/confirm-payment", nil, staff)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, confirmed.Version, decode[domain.Order](t, w).Version)

	w = env.do(t, http.MethodGet, "/kitchen/orders", nil, nil)
	assert.EqualValues(t, 1, decode[map[string]any](t, w)["count"])

	w = env.do(t, http.MethodPatch, base+"/kitchen-status", map[string]string{"status": "Cooking"}, staff)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	for _, s := range []string{"Preparing", "Ready"} {
		w = env.do(t, http.MethodPatch, base+"/kitchen-status", map[string]string{"status": s}, staff)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	w = env.do(t, http.MethodPatch, base+"/kitchen-status", map[string]string{"status": "Preparing"}, staff)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, "no going back")

	w = env.do(t, http.MethodPost, base+"/cancel", map[string]string{"reason": "late"}, user)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = env.do(t, http.MethodGet, "/orders/number/"+o.Number+"/status", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	status := decode[interfaces.TrackingOrderResponse](t, w)
	assert.Equal(t, domain.StatusReady, status.CurrentStatus)
	assert.Equal(t, domain.KitchenReady, status.KitchenStatus)

	w = env.do(t, http.MethodGet, "/orders/number/"+o.Number+"/timeline", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]domain.StatusLog](t, w), 4)

	w = env.do(t, http.MethodPost, base+"/hide", nil, staff)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[domain.Order](t, w).KitchenHidden)

	w = env.do(t, http.MethodGet, "/kitchen/orders", nil, nil)
	assert.EqualValues(t, 0, decode[map[string]any](t, w)["count"])
}

func TestPaymentFailedAndCancel(t *testing.T) {
	env := setupEnv(t, nil)
	o := env.createOrder(t, "tx-1")

	w := env.do(t, http.MethodPost, "/orders/"+o.ID+"/payment-failed", map[string]string{}, staff)
	assert.Equal(t, http.StatusBadRequest, w.Code, "reason required")

	w = env.do(t, http.MethodPost, "/orders/"+o.ID+"/payment-failed", map[string]string{"reason": "declined"}, staff)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.PaymentFailed, decode[domain.Order](t, w).PaymentStatus)

	w = env.do(t, http.MethodPost, "/orders/"+o.ID+"/cancel", nil, user)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.StatusCancelled, decode[domain.Order](t, w).Status)
}

func TestGetOrder_NotFound(t *testing.T) {
	env := setupEnv(t, nil)

	w := env.do(t, http.MethodGet, "/orders/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/orders/number/ORD-000000-000/status", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListOrders(t *testing.T) {
	env := setupEnv(t, nil)
	env.createOrder(t, "tx-1")
	env.createOrder(t, "tx-2")
	env.createOrder(t, "tx-3")

	w := env.do(t, http.MethodGet, "/orders?userId=user-1&limit=2", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[httpAdapter.ListOrdersResponse](t, w)
	assert.EqualValues(t, 3, resp.Total)
	assert.Len(t, resp.Orders, 2)
	assert.Equal(t, 1, resp.Page)

	w = env.do(t, http.MethodGet, "/orders?paymentStatus=confirmed", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[httpAdapter.ListOrdersResponse](t, w).Orders)

	w = env.do(t, http.MethodGet, "/orders?page=abc&kitchenStatus=Cold", nil, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Len(t, decode[httpAdapter.ErrorResponse](t, w).Errors, 2)
}

func TestHistoryReviewsAndRatings(t *testing.T) {
	env := setupEnv(t, nil)
	o := env.createOrder(t, "tx-1")
	base := "/orders/" + o.ID

	w := env.do(t, http.MethodPost, base+"/review", map[string]any{"rating": 5}, user)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, "not delivered yet")

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, base+"/confirm-payment", nil, staff).Code)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPatch, base+"/kitchen-status", map[string]string{"status": "Delivered"}, staff).Code)

	w = env.do(t, http.MethodPost, base+"/review", map[string]any{"rating": 9}, user)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, base+"/review", map[string]any{
		"rating":      4,
		"comment":     "good",
		"itemRatings": []map[string]any{{"itemId": "i1", "rating": 5}},
	}, user)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.do(t, http.MethodPost, base+"/review", map[string]any{"rating": 4}, user)
	assert.Equal(t, http.StatusBadRequest, w.Code, "one review per order")

	env.flushOutbox(t)

	w = env.do(t, http.MethodGet, "/users/user-1/history", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var hist struct {
		History []domain.HistoryEntry `json:"history"`
		Count   int                   `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &hist))
	require.Equal(t, 1, hist.Count)
	assert.Equal(t, o.ID, hist.History[0].History.OriginalOrderID)
	require.NotNil(t, hist.History[0].Review)
	assert.Equal(t, 4, hist.History[0].Review.Rating)

	w = env.do(t, http.MethodGet, "/restaurants/rest-1/ratings", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	ratings := decode[interfaces.RestaurantRatings](t, w)
	assert.Equal(t, 4.0, ratings.Restaurant.Average)
	require.Len(t, ratings.Items, 1)
	assert.Equal(t, "Plov", ratings.Items[0].Name)

	w = env.do(t, http.MethodGet, "/restaurants/unknown/ratings", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminEndpoints(t *testing.T) {
	env := setupEnv(t, nil)

	w := env.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	o := env.createOrder(t, "tx-1")
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/orders/"+o.ID+"/confirm-payment", nil, staff).Code)

	w = env.do(t, http.MethodGet, "/admin/outbox", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats struct {
		Tasks map[domain.TaskStatus]int64 `json:"tasks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.EqualValues(t, 1, stats.Tasks[domain.TaskPending])
	assert.EqualValues(t, 0, stats.Tasks[domain.TaskDead])
}

func TestRateLimit(t *testing.T) {
	env := setupEnv(t, httpAdapter.NewRateLimiter(1, 2, time.Minute))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := env.do(t, http.MethodPost, "/orders", orderBody("tx-rl"), nil)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusBadRequest, http.StatusBadRequest, http.StatusTooManyRequests}, codes)

	// Reads are not limited.
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/healthz", nil, nil).Code)
}

func TestKitchenStream(t *testing.T) {
	env := setupEnv(t, nil)
	o := env.createOrder(t, "tx-1")
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/orders/"+o.ID+"/confirm-payment", nil, staff).Code)

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/kitchen/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	events := make(chan interfaces.OrderEvent, 8)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			var ev interfaces.OrderEvent
			if json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))), &ev) == nil {
				events <- ev
			}
		}
		close(events)
	}()

	next := func() interfaces.OrderEvent {
		t.Helper()
		select {
		case ev, ok := <-events:
			require.True(t, ok, "stream closed")
			return ev
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for event")
		}
		return interfaces.OrderEvent{}
	}

	assert.Equal(t, interfaces.EventConnectionEstablished, next().Type)
	initial := next()
	assert.Equal(t, interfaces.EventInitialOrder, initial.Type)
	assert.Equal(t, o.Number, initial.Order.Number)

	w := env.do(t, http.MethodGet, "/kitchen/dashboards", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode[map[string]any](t, w)["count"])

	// The confirm broadcast was enqueued before the dashboard connected, so
	// it arrives now as a live update, followed by the status change.
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPatch, "/orders/"+o.ID+"/kitchen-status", map[string]string{"status": "Preparing"}, staff).Code)
	env.flushOutbox(t)

	update := next()
	assert.Equal(t, interfaces.EventOrderUpdate, update.Type)
	update = next()
	assert.Equal(t, interfaces.EventKitchenStatusUpdate, update.Type)
	assert.Equal(t, domain.KitchenPreparing, update.Order.KitchenStatus)

	cancel()
	require.Eventually(t, func() bool { return len(env.hub.Subscribers()) == 0 }, 2*time.Second, 10*time.Millisecond)
}
