package domain

import (
	"fmt"
	"time"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentConfirmed PaymentStatus = "confirmed"
	PaymentFailed    PaymentStatus = "failed"
)

// Status is the customer-facing order lifecycle.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusConfirmed Status = "Confirmed"
	StatusPreparing Status = "Preparing"
	StatusReady     Status = "Ready"
	StatusDelivered Status = "Delivered"
	StatusCancelled Status = "Cancelled"
)

// IsTerminal reports whether no further kitchen transitions are permitted.
func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusPreparing, StatusReady, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

type KitchenStatus string

const (
	KitchenPending   KitchenStatus = "Pending"
	KitchenPreparing KitchenStatus = "Preparing"
	KitchenReady     KitchenStatus = "Ready"
	KitchenDelivered KitchenStatus = "Delivered"
)

var kitchenRank = map[KitchenStatus]int{
	KitchenPending:   0,
	KitchenPreparing: 1,
	KitchenReady:     2,
	KitchenDelivered: 3,
}

func (k KitchenStatus) Valid() bool {
	_, ok := kitchenRank[k]
	return ok
}

// ParseKitchenStatus accepts the exact enum spelling only.
func ParseKitchenStatus(s string) (KitchenStatus, error) {
	k := KitchenStatus(s)
	if !k.Valid() {
		return "", NewValidationError("invalid kitchen status", FieldError{
			Field:   "status",
			Message: fmt.Sprintf("kitchen status must be one of: Pending, Preparing, Ready, Delivered (got %q)", s),
		})
	}
	return k, nil
}

// orderStatus returns the lifecycle status mirrored from a kitchen status.
// Pending does not move the order status.
func (k KitchenStatus) orderStatus() (Status, bool) {
	switch k {
	case KitchenPreparing:
		return StatusPreparing, true
	case KitchenReady:
		return StatusReady, true
	case KitchenDelivered:
		return StatusDelivered, true
	}
	return "", false
}

type PaymentMethod string

const (
	PaymentMethodCash          PaymentMethod = "Cash"
	PaymentMethodCard          PaymentMethod = "Card"
	PaymentMethodBankTransfer  PaymentMethod = "Bank Transfer"
	PaymentMethodMobileBanking PaymentMethod = "Mobile Banking"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodBankTransfer, PaymentMethodMobileBanking:
		return true
	}
	return false
}

// StatusLog represents a log entry for order status changes
type StatusLog struct {
	Status        Status        `json:"status" bson:"status"`
	KitchenStatus KitchenStatus `json:"kitchenStatus" bson:"kitchenStatus"`
	PaymentStatus PaymentStatus `json:"paymentStatus" bson:"paymentStatus"`
	ChangedBy     string        `json:"changedBy" bson:"changedBy"`
	ChangedAt     time.Time     `json:"changedAt" bson:"changedAt"`
	Note          string        `json:"note,omitempty" bson:"note,omitempty"`
}
