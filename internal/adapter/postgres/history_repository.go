package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/YelzhanWeb/restaurant/internal/domain"
	"github.com/YelzhanWeb/restaurant/internal/interfaces"
)

type historyRepository struct {
	db DB
}

func NewHistoryRepository(db DB) interfaces.HistoryRepository {
	return &historyRepository{db: db}
}

func (r *historyRepository) Insert(ctx context.Context, h *domain.OrderHistory) error {
	h.ID = uuid.NewString()
	doc, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("failed to encode order history: %w", err)
	}

	query := `
		INSERT INTO order_history (id, original_order_id, user_id, order_created_at, doc)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := r.db.Exec(ctx, query, h.ID, h.OriginalOrderID, h.UserID, h.OrderCreatedAt, doc); err != nil {
		h.ID = ""
		if uniqueConstraint(err) != "" {
			return domain.ErrAlreadyArchived
		}
		return fmt.Errorf("failed to insert order history: %w", err)
	}
	return nil
}

func (r *historyRepository) FindByUser(ctx context.Context, userID string) ([]*domain.OrderHistory, error) {
	rows, err := r.db.Query(ctx, `SELECT doc FROM order_history WHERE user_id = $1 ORDER BY order_created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query order history: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.OrderHistory, 0)
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan order history: %w", err)
		}
		var h domain.OrderHistory
		if err := json.Unmarshal(doc, &h); err != nil {
			return nil, fmt.Errorf("failed to decode order history: %w", err)
		}
		out = append(out, &h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read order history: %w", err)
	}
	return out, nil
}

func (r *historyRepository) FindByOrderID(ctx context.Context, orderID string) (*domain.OrderHistory, error) {
	if _, err := uuid.Parse(orderID); err != nil {
		return nil, domain.NewNotFoundError("order history", orderID)
	}

	var doc []byte
	err := r.db.QueryRow(ctx, `SELECT doc FROM order_history WHERE original_order_id = $1`, orderID).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NewNotFoundError("order history", orderID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find order history: %w", err)
	}

	var h domain.OrderHistory
	if err := json.Unmarshal(doc, &h); err != nil {
		return nil, fmt.Errorf("failed to decode order history: %w", err)
	}
	return &h, nil
}
