package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/YelzhanWeb/restaurant/internal/adapter/logger"
	"github.com/YelzhanWeb/restaurant/internal/domain"
	"github.com/YelzhanWeb/restaurant/internal/interfaces"
)

const (
	UserIDHeader  = "X-User-ID"
	StaffIDHeader = "X-Staff-ID"
)

type OrderHandler struct {
	service interfaces.OrderService
	logger  logger.Logger
}

func NewOrderHandler(service interfaces.OrderService, logger logger.Logger) *OrderHandler {
	return &OrderHandler{
		service: service,
		logger:  logger,
	}
}

type CreateOrderRequest struct {
	RestaurantID   string             `json:"restaurantId"`
	RestaurantName string             `json:"restaurantName"`
	RestaurantSlug string             `json:"restaurantSlug"`
	Items          []OrderItemRequest `json:"items" binding:"required,min=1,dive"`
	TotalPrice     float64            `json:"totalPrice" binding:"required,gt=0"`
	PaymentMethod  string             `json:"paymentMethod" binding:"required,oneof=Cash Card 'Bank Transfer' 'Mobile Banking'"`
	TransactionID  string             `json:"transactionId" binding:"required"`
	CustomerNotes  string             `json:"customerNotes" binding:"max=500"`
}

type OrderItemRequest struct {
	ItemID              string  `json:"itemId"`
	Name                string  `json:"name" binding:"required"`
	Price               float64 `json:"price" binding:"gte=0"`
	Quantity            int     `json:"quantity" binding:"required,min=1"`
	SpecialInstructions string  `json:"specialInstructions"`
}

type ConfirmPaymentRequest struct {
	TransactionVerified bool   `json:"transactionVerified"`
	Note                string `json:"note"`
}

type PaymentFailedRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type KitchenStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type CancelOrderRequest struct {
	Reason string `json:"reason"`
}

type ListOrdersResponse struct {
	Orders []*domain.Order `json:"orders"`
	Total  int64           `json:"total"`
	Page   int             `json:"page"`
	Limit  int             `json:"limit"`
}

func (h *OrderHandler) CreateOrder(c *gin.Context) {
	userID, ok := requireHeader(c, UserIDHeader, "userId")
	if !ok {
		return
	}

	var req CreateOrderRequest
	if !bindJSON(c, &req) {
		return
	}

	items := make([]interfaces.CreateOrderItemCommand, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, interfaces.CreateOrderItemCommand{
			ItemID:              item.ItemID,
			Name:                strings.TrimSpace(item.Name),
			Price:               item.Price,
			Quantity:            item.Quantity,
			SpecialInstructions: item.SpecialInstructions,
		})
	}

	order, err := h.service.CreateOrder(c.Request.Context(), interfaces.CreateOrderCommand{
		UserID:         userID,
		RestaurantID:   req.RestaurantID,
		RestaurantName: req.RestaurantName,
		RestaurantSlug: req.RestaurantSlug,
		Items:          items,
		TotalPrice:     req.TotalPrice,
		PaymentMethod:  req.PaymentMethod,
		TransactionID:  req.TransactionID,
		CustomerNotes:  req.CustomerNotes,
	})
	if err != nil {
		respondError(c, h.logger, "order_creation_failed", err)
		return
	}

	c.JSON(http.StatusCreated, order)
}

func (h *OrderHandler) ListOrders(c *gin.Context) {
	filter := interfaces.OrderFilter{
		UserID:        c.Query("userId"),
		RestaurantID:  c.Query("restaurantId"),
		Status:        domain.Status(c.Query("status")),
		PaymentStatus: domain.PaymentStatus(c.Query("paymentStatus")),
	}

	var fields []domain.FieldError
	if filter.Status != "" && !filter.Status.Valid() {
		fields = append(fields, domain.FieldError{Field: "status", Message: "unknown order status"})
	}
	if ks := c.Query("kitchenStatus"); ks != "" {
		parsed, err := domain.ParseKitchenStatus(ks)
		if err != nil {
			fields = append(fields, domain.FieldError{Field: "kitchenStatus", Message: "unknown kitchen status"})
		}
		filter.KitchenStatus = parsed
	}
	filter.Page, fields = queryInt(c, "page", fields)
	filter.Limit, fields = queryInt(c, "limit", fields)

	if len(fields) > 0 {
		respondError(c, h.logger, "list_orders_failed", domain.NewValidationError("invalid query", fields...))
		return
	}

	filter = filter.Normalize()
	orders, total, err := h.service.ListOrders(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.logger, "list_orders_failed", err)
		return
	}

	if orders == nil {
		orders = []*domain.Order{}
	}
	c.JSON(http.StatusOK, ListOrdersResponse{
		Orders: orders,
		Total:  total,
		Page:   filter.Page,
		Limit:  filter.Limit,
	})
}

func queryInt(c *gin.Context, key string, fields []domain.FieldError) (int, []domain.FieldError) {
	raw := c.Query(key)
	if raw == "" {
		return 0, fields
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, append(fields, domain.FieldError{Field: key, Message: "must be a non-negative integer"})
	}
	return n, fields
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	order, err := h.service.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, "get_order_failed", err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) ConfirmPayment(c *gin.Context) {
	staffID, ok := requireHeader(c, StaffIDHeader, "staffId")
	if !ok {
		return
	}

	// Body is optional.
	var req ConfirmPaymentRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}

	order, err := h.service.ConfirmPayment(c.Request.Context(), interfaces.ConfirmPaymentCommand{
		OrderID:  c.Param("id"),
		StaffID:  staffID,
		Verified: req.TransactionVerified,
		Note:     req.Note,
	})
	if err != nil {
		respondError(c, h.logger, "confirm_payment_failed", err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) MarkPaymentFailed(c *gin.Context) {
	staffID, ok := requireHeader(c, StaffIDHeader, "staffId")
	if !ok {
		return
	}

	var req PaymentFailedRequest
	if !bindJSON(c, &req) {
		return
	}

	order, err := h.service.MarkPaymentFailed(c.Request.Context(), c.Param("id"), staffID, req.Reason)
	if err != nil {
		respondError(c, h.logger, "payment_failed_update_failed", err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) UpdateKitchenStatus(c *gin.Context) {
	staffID, ok := requireHeader(c, StaffIDHeader, "staffId")
	if !ok {
		return
	}

	var req KitchenStatusRequest
	if !bindJSON(c, &req) {
		return
	}

	status, err := domain.ParseKitchenStatus(req.Status)
	if err != nil {
		respondError(c, h.logger, "kitchen_status_update_failed", err)
		return
	}

	order, err := h.service.UpdateKitchenStatus(c.Request.Context(), c.Param("id"), status, staffID)
	if err != nil {
		respondError(c, h.logger, "kitchen_status_update_failed", err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) HideFromKitchen(c *gin.Context) {
	staffID, ok := requireHeader(c, StaffIDHeader, "staffId")
	if !ok {
		return
	}

	order, err := h.service.HideFromKitchen(c.Request.Context(), c.Param("id"), staffID)
	if err != nil {
		respondError(c, h.logger, "hide_from_kitchen_failed", err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// CancelOrder accepts either a staff member or the owning user.
func (h *OrderHandler) CancelOrder(c *gin.Context) {
	actor := strings.TrimSpace(c.GetHeader(StaffIDHeader))
	if actor == "" {
		var ok bool
		if actor, ok = requireHeader(c, UserIDHeader, "userId"); !ok {
			return
		}
	}

	var req CancelOrderRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}

	order, err := h.service.CancelOrder(c.Request.Context(), c.Param("id"), actor, req.Reason)
	if err != nil {
		respondError(c, h.logger, "cancel_order_failed", err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) PendingPayments(c *gin.Context) {
	orders, err := h.service.PendingPayments(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, "pending_payments_failed", err)
		return
	}
	respondOrders(c, orders)
}

func (h *OrderHandler) KitchenOrders(c *gin.Context) {
	orders, err := h.service.KitchenOrders(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, "kitchen_orders_failed", err)
		return
	}
	respondOrders(c, orders)
}

func respondOrders(c *gin.Context, orders []*domain.Order) {
	if orders == nil {
		orders = []*domain.Order{}
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders, "count": len(orders)})
}
