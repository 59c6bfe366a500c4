package http

import (
	"github.com/gin-gonic/gin"

	"github.com/YelzhanWeb/restaurant/internal/adapter/logger"
)

type Handlers struct {
	Orders   *OrderHandler
	Tracking *TrackingHandler
	Kitchen  *KitchenHandler
	History  *HistoryHandler
	Admin    *AdminHandler
}

// NewRouter builds the gin engine. limiter may be nil.
func NewRouter(h Handlers, log logger.Logger, limiter *RateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(RequestID(), Recovery(log), Logging(log))
	if limiter != nil {
		r.Use(limiter.Middleware())
	}

	r.GET("/healthz", h.Admin.Health)
	r.GET("/admin/outbox", h.Admin.OutboxStats)

	orders := r.Group("/orders")
	{
		orders.POST("", h.Orders.CreateOrder)
		orders.GET("", h.Orders.ListOrders)
		orders.GET("/:id", h.Orders.GetOrder)
		orders.POST("/:id/confirm-payment", h.Orders.ConfirmPayment)
		orders.POST("/:id/payment-failed", h.Orders.MarkPaymentFailed)
		orders.PATCH("/:id/kitchen-status", h.Orders.UpdateKitchenStatus)
		orders.POST("/:id/hide", h.Orders.HideFromKitchen)
		orders.POST("/:id/cancel", h.Orders.CancelOrder)
		orders.POST("/:id/review", h.History.SubmitReview)
		orders.GET("/number/:number/status", h.Tracking.GetOrderStatus)
		orders.GET("/number/:number/timeline", h.Tracking.GetOrderTimeline)
	}

	r.GET("/payments/pending", h.Orders.PendingPayments)

	kitchen := r.Group("/kitchen")
	{
		kitchen.GET("/orders", h.Orders.KitchenOrders)
		kitchen.GET("/stream", h.Kitchen.Stream)
		kitchen.GET("/dashboards", h.Tracking.GetDashboards)
	}

	r.GET("/users/:userId/history", h.History.UserHistory)
	r.GET("/restaurants/:id/ratings", h.History.RestaurantRatings)

	return r
}
