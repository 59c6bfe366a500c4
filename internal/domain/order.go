package domain

import (
	"fmt"
	"math/rand"
	"strings"
	"time"
)

const (
	basePreparationMinutes    = 10
	perItemPreparationMinutes = 5
	maxPreparationMinutes     = 60
	priorityItemThreshold     = 3
)

// Order represents a restaurant order entity
type Order struct {
	ID             string        `json:"id" bson:"_id,omitempty"`
	Number         string        `json:"orderNumber" bson:"orderNumber"`
	UserID         string        `json:"userId" bson:"userId"`
	RestaurantID   string        `json:"restaurantId,omitempty" bson:"restaurantId,omitempty"`
	RestaurantName string        `json:"restaurantName,omitempty" bson:"restaurantName,omitempty"`
	RestaurantSlug string        `json:"restaurantSlug,omitempty" bson:"restaurantSlug,omitempty"`
	Items          []OrderItem   `json:"items" bson:"items"`
	TotalPrice     float64       `json:"totalPrice" bson:"totalPrice"`
	PaymentMethod  PaymentMethod `json:"paymentMethod" bson:"paymentMethod"`
	TransactionID  string        `json:"transactionId" bson:"transactionId"`
	CustomerNotes  string        `json:"customerNotes,omitempty" bson:"customerNotes,omitempty"`

	PaymentStatus PaymentStatus `json:"paymentStatus" bson:"paymentStatus"`
	Status        Status        `json:"status" bson:"status"`
	KitchenStatus KitchenStatus `json:"kitchenStatus" bson:"kitchenStatus"`
	SentToKitchen bool          `json:"sentToKitchen" bson:"sentToKitchen"`
	KitchenHidden bool          `json:"kitchenHidden" bson:"kitchenHidden"`

	PaymentConfirmedAt    *time.Time `json:"paymentConfirmedAt,omitempty" bson:"paymentConfirmedAt,omitempty"`
	PaymentConfirmedBy    string     `json:"paymentConfirmedBy,omitempty" bson:"paymentConfirmedBy,omitempty"`
	SentToKitchenAt       *time.Time `json:"sentToKitchenAt,omitempty" bson:"sentToKitchenAt,omitempty"`
	TransactionVerified   bool       `json:"transactionVerified" bson:"transactionVerified"`
	VerificationTimestamp *time.Time `json:"verificationTimestamp,omitempty" bson:"verificationTimestamp,omitempty"`
	VerifiedBy            string     `json:"verifiedBy,omitempty" bson:"verifiedBy,omitempty"`
	PaymentFailureReason  string     `json:"paymentFailureReason,omitempty" bson:"paymentFailureReason,omitempty"`
	CancelledAt           *time.Time `json:"cancelledAt,omitempty" bson:"cancelledAt,omitempty"`
	CancellationReason    string     `json:"cancellationReason,omitempty" bson:"cancellationReason,omitempty"`

	EstimatedPreparationTime int  `json:"estimatedPreparationTime" bson:"estimatedPreparationTime"`
	KitchenPriority          bool `json:"kitchenPriority" bson:"kitchenPriority"`
	ArchivedToHistory        bool `json:"archivedToHistory" bson:"archivedToHistory"`

	StatusLog []StatusLog `json:"statusLog,omitempty" bson:"statusLog,omitempty"`
	Version   int64       `json:"version" bson:"version"`
	CreatedAt time.Time   `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt" bson:"updatedAt"`
}

// OrderItem represents an item in an order
type OrderItem struct {
	ItemID              string  `json:"itemId" bson:"itemId"`
	Name                string  `json:"name" bson:"name"`
	Price               float64 `json:"price" bson:"price"`
	Quantity            int     `json:"quantity" bson:"quantity"`
	SpecialInstructions string  `json:"specialInstructions,omitempty" bson:"specialInstructions,omitempty"`
}

type NewOrderParams struct {
	UserID         string
	RestaurantID   string
	RestaurantName string
	RestaurantSlug string
	Items          []OrderItem
	TotalPrice     float64
	PaymentMethod  PaymentMethod
	TransactionID  string
	CustomerNotes  string
}

// PaymentVerification carries the optional transaction check done by staff
// while confirming a payment.
type PaymentVerification struct {
	Verified bool
	Note     string
}

// NewOrder creates a new order with business rules applied
func NewOrder(p NewOrderParams) (*Order, error) {
	now := time.Now().UTC()
	order := &Order{
		UserID:         strings.TrimSpace(p.UserID),
		RestaurantID:   p.RestaurantID,
		RestaurantName: p.RestaurantName,
		RestaurantSlug: p.RestaurantSlug,
		Items:          p.Items,
		TotalPrice:     p.TotalPrice,
		PaymentMethod:  p.PaymentMethod,
		TransactionID:  strings.TrimSpace(p.TransactionID),
		CustomerNotes:  p.CustomerNotes,
		PaymentStatus:  PaymentPending,
		Status:         StatusPending,
		KitchenStatus:  KitchenPending,
		SentToKitchen:  false,
		KitchenHidden:  true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := order.Validate(); err != nil {
		return nil, err
	}

	order.DeriveKitchenFields()
	order.appendLog("customer", "order placed", now)

	return order, nil
}

// Validate applies business validation rules
func (o *Order) Validate() error {
	var fields []FieldError

	if o.UserID == "" {
		fields = append(fields, FieldError{Field: "userId", Message: "owning user is required"})
	}

	if len(o.Items) == 0 {
		fields = append(fields, FieldError{Field: "items", Message: "order must contain at least 1 item"})
	}

	for i, item := range o.Items {
		prefix := fmt.Sprintf("items[%d]", i)
		if strings.TrimSpace(item.Name) == "" {
			fields = append(fields, FieldError{Field: prefix + ".name", Message: "item name is required"})
		}
		if item.Price < 0 {
			fields = append(fields, FieldError{Field: prefix + ".price", Message: "item price must not be negative"})
		}
		if item.Quantity < 1 {
			fields = append(fields, FieldError{Field: prefix + ".quantity", Message: "item quantity must be at least 1"})
		}
	}

	if o.TotalPrice <= 0 {
		fields = append(fields, FieldError{Field: "totalPrice", Message: "total price must be positive"})
	}

	if !o.PaymentMethod.Valid() {
		fields = append(fields, FieldError{
			Field:   "paymentMethod",
			Message: "payment method must be one of: Cash, Card, Bank Transfer, Mobile Banking",
		})
	}

	if o.TransactionID == "" {
		fields = append(fields, FieldError{Field: "transactionId", Message: "transaction reference is required"})
	}

	if len(fields) > 0 {
		return NewValidationError("validation failed", fields...)
	}
	return nil
}

// DeriveKitchenFields computes priority and preparation time from the items.
func (o *Order) DeriveKitchenFields() {
	o.KitchenPriority = len(o.Items) > priorityItemThreshold
	for _, item := range o.Items {
		if strings.TrimSpace(item.SpecialInstructions) != "" {
			o.KitchenPriority = true
			break
		}
	}

	minutes := basePreparationMinutes + perItemPreparationMinutes*len(o.Items)
	if minutes > maxPreparationMinutes {
		minutes = maxPreparationMinutes
	}
	o.EstimatedPreparationTime = minutes
}

// IsReadyForKitchen reports whether the order is visible on the kitchen
// dashboard and may have its kitchen status advanced.
func (o *Order) IsReadyForKitchen() bool {
	return o.PaymentStatus == PaymentConfirmed &&
		o.SentToKitchen &&
		!o.KitchenHidden &&
		!o.Status.IsTerminal()
}

// IsKitchenRelevant reports whether kitchen dashboards care about changes to
// this order at all. Unlike IsReadyForKitchen it stays true after the order is
// hidden or delivered so dashboards can drop the card.
func (o *Order) IsKitchenRelevant() bool {
	return o.PaymentStatus == PaymentConfirmed && o.SentToKitchen
}

// ConfirmPayment confirms the payment and sends the order to the kitchen.
// Confirming an already confirmed order is a no-op and reports changed=false.
func (o *Order) ConfirmPayment(staffID string, v PaymentVerification) (bool, error) {
	if o.PaymentStatus == PaymentConfirmed {
		return false, nil
	}
	if o.Status == StatusCancelled {
		return false, NewPreconditionError("order %s is cancelled", o.Number)
	}
	if strings.TrimSpace(staffID) == "" {
		return false, NewValidationError("validation failed", FieldError{Field: "staffId", Message: "staff id is required"})
	}

	now := time.Now().UTC()
	o.PaymentStatus = PaymentConfirmed
	o.Status = StatusConfirmed
	o.SentToKitchen = true
	o.KitchenHidden = false
	o.PaymentConfirmedAt = &now
	o.PaymentConfirmedBy = staffID
	o.SentToKitchenAt = &now
	o.PaymentFailureReason = ""

	if v.Verified {
		o.TransactionVerified = true
		o.VerificationTimestamp = &now
		o.VerifiedBy = staffID
	}

	o.touch(staffID, firstNonEmpty(v.Note, "payment confirmed, sent to kitchen"), now)
	return true, nil
}

// FailPayment records a rejected payment. Only pending payments can fail.
func (o *Order) FailPayment(staffID, reason string) error {
	if o.PaymentStatus != PaymentPending {
		return NewPreconditionError("payment for order %s is %s, not pending", o.Number, o.PaymentStatus)
	}
	if o.Status == StatusCancelled {
		return NewPreconditionError("order %s is cancelled", o.Number)
	}

	now := time.Now().UTC()
	o.PaymentStatus = PaymentFailed
	o.PaymentFailureReason = reason
	o.touch(staffID, firstNonEmpty(reason, "payment failed"), now)
	return nil
}

// AdvanceKitchenStatus moves the kitchen status forward and mirrors it into the
// order status. The order is left untouched when an error is returned.
func (o *Order) AdvanceKitchenStatus(next KitchenStatus, changedBy string) (bool, error) {
	if !next.Valid() {
		return false, NewValidationError("invalid kitchen status", FieldError{Field: "status", Message: string(next) + " is not a kitchen status"})
	}
	if !o.IsReadyForKitchen() {
		return false, NewPreconditionError("order %s is not ready for kitchen", o.Number)
	}
	if next == o.KitchenStatus {
		return false, nil
	}
	if kitchenRank[next] < kitchenRank[o.KitchenStatus] {
		return false, NewPreconditionError("kitchen status cannot move back from %s to %s", o.KitchenStatus, next)
	}

	now := time.Now().UTC()
	o.KitchenStatus = next
	if s, ok := next.orderStatus(); ok {
		o.Status = s
	}
	o.touch(changedBy, "kitchen status "+string(next), now)
	return true, nil
}

// HideFromKitchen removes the order from the kitchen view without touching
// any other status field.
func (o *Order) HideFromKitchen(changedBy string) bool {
	if o.KitchenHidden {
		return false
	}
	o.KitchenHidden = true
	o.touch(changedBy, "hidden from kitchen", time.Now().UTC())
	return true
}

// Cancel cancels an order that has not yet left the kitchen.
func (o *Order) Cancel(actor, reason string) error {
	switch o.Status {
	case StatusCancelled:
		return NewPreconditionError("order %s is already cancelled", o.Number)
	case StatusReady, StatusDelivered:
		return NewPreconditionError("order %s is %s and can no longer be cancelled", o.Number, o.Status)
	}

	now := time.Now().UTC()
	o.Status = StatusCancelled
	o.KitchenHidden = true
	o.CancelledAt = &now
	o.CancellationReason = reason
	o.touch(actor, firstNonEmpty(reason, "order cancelled"), now)
	return nil
}

// NeedsArchival reports a delivered order whose history snapshot is missing.
func (o *Order) NeedsArchival() bool {
	return o.Status == StatusDelivered && !o.ArchivedToHistory
}

// EstimatedReadyAt is only known while the kitchen works on the order.
func (o *Order) EstimatedReadyAt() *time.Time {
	if o.SentToKitchenAt == nil {
		return nil
	}
	if o.Status != StatusConfirmed && o.Status != StatusPreparing {
		return nil
	}
	t := o.SentToKitchenAt.Add(time.Duration(o.EstimatedPreparationTime) * time.Minute)
	return &t
}

// Clone returns a deep copy so stored records never alias caller state.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.Items = append([]OrderItem(nil), o.Items...)
	c.StatusLog = append([]StatusLog(nil), o.StatusLog...)
	c.PaymentConfirmedAt = cloneTime(o.PaymentConfirmedAt)
	c.SentToKitchenAt = cloneTime(o.SentToKitchenAt)
	c.VerificationTimestamp = cloneTime(o.VerificationTimestamp)
	c.CancelledAt = cloneTime(o.CancelledAt)
	return &c
}

func (o *Order) touch(changedBy, note string, at time.Time) {
	o.UpdatedAt = at
	o.appendLog(changedBy, note, at)
}

func (o *Order) appendLog(changedBy, note string, at time.Time) {
	o.StatusLog = append(o.StatusLog, StatusLog{
		Status:        o.Status,
		KitchenStatus: o.KitchenStatus,
		PaymentStatus: o.PaymentStatus,
		ChangedBy:     changedBy,
		ChangedAt:     at,
		Note:          note,
	})
}

// Order number suffix widths. The long form is the fallback for busy days
// when short numbers keep colliding.
const (
	OrderNumberDigits     = 3
	LongOrderNumberDigits = 6
)

// GenerateOrderNumber builds ORD-<YYMMDD>-<digits random digits>. Uniqueness
// is enforced by storage; callers retry on collision.
func GenerateOrderNumber(at time.Time, digits int) string {
	if digits < 1 {
		digits = OrderNumberDigits
	}
	limit := 1
	for i := 0; i < digits; i++ {
		limit *= 10
	}
	return fmt.Sprintf("ORD-%s-%0*d", at.UTC().Format("060102"), digits, rand.Intn(limit))
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
