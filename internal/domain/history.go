package domain

import "time"

const ArchiveReasonDelivered = "delivered"

// OrderHistory is the archived snapshot of a delivered order.
type OrderHistory struct {
	ID              string    `json:"id" bson:"_id,omitempty"`
	OriginalOrderID string    `json:"originalOrderId" bson:"originalOrderId"`
	UserID          string    `json:"userId" bson:"userId"`
	OrderNumber     string    `json:"orderNumber" bson:"orderNumber"`
	OrderCreatedAt  time.Time `json:"orderCreatedAt" bson:"orderCreatedAt"`
	Order           Order     `json:"order" bson:"order"`
	ArchivedAt      time.Time `json:"archivedAt" bson:"archivedAt"`
	ArchiveReason   string    `json:"archiveReason" bson:"archiveReason"`
}

// NewOrderHistory copies every field of the order into a history record.
func NewOrderHistory(o *Order, reason string, at time.Time) *OrderHistory {
	snapshot := o.Clone()
	snapshot.ArchivedToHistory = true
	return &OrderHistory{
		OriginalOrderID: o.ID,
		UserID:          o.UserID,
		OrderNumber:     o.Number,
		OrderCreatedAt:  o.CreatedAt,
		Order:           *snapshot,
		ArchivedAt:      at.UTC(),
		ArchiveReason:   reason,
	}
}

// HistoryEntry is an archived order joined with the customer's review of it.
type HistoryEntry struct {
	History *OrderHistory `json:"history"`
	Review  *Review       `json:"review,omitempty"`
}
