package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/YelzhanWeb/restaurant/internal/domain"
	"github.com/YelzhanWeb/restaurant/internal/interfaces"
)

type orderRepository struct {
	db DB
}

func NewOrderRepository(db DB) interfaces.OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) Create(ctx context.Context, order *domain.Order) error {
	order.ID = uuid.NewString()
	order.Version = 1

	doc, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("failed to encode order: %w", err)
	}

	query := `
		INSERT INTO orders (id, number, transaction_id, user_id, restaurant_id, status, payment_status,
		                    kitchen_status, sent_to_kitchen, kitchen_hidden, kitchen_priority, archived,
		                    version, created_at, doc)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err = r.db.Exec(ctx, query,
		order.ID, order.Number, order.TransactionID, order.UserID, order.RestaurantID, order.Status,
		order.PaymentStatus, order.KitchenStatus, order.SentToKitchen, order.KitchenHidden,
		order.KitchenPriority, order.ArchivedToHistory, order.Version, order.CreatedAt, doc,
	)
	if err != nil {
		order.ID = ""
		switch uniqueConstraint(err) {
		case constraintTransactionID:
			return domain.ErrDuplicateTransaction
		case constraintOrderNumber:
			return domain.ErrDuplicateOrderNumber
		}
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

func (r *orderRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.NewNotFoundError("order", id)
	}
	return r.findOne(ctx, `SELECT doc FROM orders WHERE id = $1`, id)
}

func (r *orderRepository) FindByNumber(ctx context.Context, number string) (*domain.Order, error) {
	return r.findOne(ctx, `SELECT doc FROM orders WHERE number = $1`, number)
}

func (r *orderRepository) findOne(ctx context.Context, query, key string) (*domain.Order, error) {
	var doc []byte
	err := r.db.QueryRow(ctx, query, key).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NewNotFoundError("order", key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find order %s: %w", key, err)
	}
	return decodeOrder(doc)
}

// Update writes the order only if the stored version matches.
func (r *orderRepository) Update(ctx context.Context, order *domain.Order) error {
	expected := order.Version
	next := order.Clone()
	next.Version = expected + 1

	doc, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to encode order: %w", err)
	}

	query := `
		UPDATE orders
		SET status = $3, payment_status = $4, kitchen_status = $5, sent_to_kitchen = $6,
		    kitchen_hidden = $7, kitchen_priority = $8, archived = $9, version = $10, doc = $11
		WHERE id = $1 AND version = $2
	`
	tag, err := r.db.Exec(ctx, query,
		order.ID, expected, next.Status, next.PaymentStatus, next.KitchenStatus, next.SentToKitchen,
		next.KitchenHidden, next.KitchenPriority, next.ArchivedToHistory, next.Version, doc,
	)
	if err != nil {
		return fmt.Errorf("failed to update order %s: %w", order.Number, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, order.ID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check order %s: %w", order.Number, err)
		}
		if !exists {
			return domain.NewNotFoundError("order", order.ID)
		}
		return domain.ErrVersionConflict
	}
	order.Version = next.Version
	return nil
}

func (r *orderRepository) List(ctx context.Context, f interfaces.OrderFilter) ([]*domain.Order, int64, error) {
	f = f.Normalize()

	var (
		conds []string
		args  []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if f.UserID != "" {
		add("user_id", f.UserID)
	}
	if f.RestaurantID != "" {
		add("restaurant_id", f.RestaurantID)
	}
	if f.Status != "" {
		add("status", f.Status)
	}
	if f.PaymentStatus != "" {
		add("payment_status", f.PaymentStatus)
	}
	if f.KitchenStatus != "" {
		add("kitchen_status", f.KitchenStatus)
	}
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	var total int64
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM orders "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	args = append(args, f.Limit, f.Offset())
	query := fmt.Sprintf("SELECT doc FROM orders %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d", where, len(args)-1, len(args))
	orders, err := r.queryOrders(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (r *orderRepository) FindKitchenVisible(ctx context.Context) ([]*domain.Order, error) {
	query := `
		SELECT doc FROM orders
		WHERE payment_status = $1 AND sent_to_kitchen AND NOT kitchen_hidden AND status NOT IN ($2, $3)
		ORDER BY kitchen_priority DESC, created_at ASC
	`
	return r.queryOrders(ctx, query, domain.PaymentConfirmed, domain.StatusDelivered, domain.StatusCancelled)
}

func (r *orderRepository) FindPendingPayments(ctx context.Context) ([]*domain.Order, error) {
	query := `SELECT doc FROM orders WHERE payment_status = $1 AND status <> $2 ORDER BY created_at ASC`
	return r.queryOrders(ctx, query, domain.PaymentPending, domain.StatusCancelled)
}

func (r *orderRepository) FindDeliveredUnarchived(ctx context.Context, userID string) ([]*domain.Order, error) {
	query := `
		SELECT doc FROM orders
		WHERE status = $1 AND NOT archived AND ($2 = '' OR user_id = $2)
		ORDER BY created_at ASC
	`
	return r.queryOrders(ctx, query, domain.StatusDelivered, userID)
}

// MarkArchived bumps the version too, so a stale Update cannot clear the flag.
func (r *orderRepository) MarkArchived(ctx context.Context, id string) error {
	query := `
		UPDATE orders
		SET archived = TRUE,
		    version = version + 1,
		    doc = jsonb_set(
		        jsonb_set(jsonb_set(doc, '{archivedToHistory}', 'true'), '{updatedAt}', to_jsonb($2::timestamptz)),
		        '{version}', to_jsonb(version + 1))
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to mark order %s archived: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("order", id)
	}
	return nil
}

func (r *orderRepository) queryOrders(ctx context.Context, query string, args ...any) ([]*domain.Order, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	orders := make([]*domain.Order, 0)
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		o, err := decodeOrder(doc)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read orders: %w", err)
	}
	return orders, nil
}

func decodeOrder(doc []byte) (*domain.Order, error) {
	var o domain.Order
	if err := json.Unmarshal(doc, &o); err != nil {
		return nil, fmt.Errorf("failed to decode order: %w", err)
	}
	return &o, nil
}
