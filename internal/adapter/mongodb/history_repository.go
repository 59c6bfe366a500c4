package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/YelzhanWeb/restaurant/internal/domain"
)

type HistoryRepository struct {
	collection *mongo.Collection
}

func NewHistoryRepository(db *mongo.Database) *HistoryRepository {
	return &HistoryRepository{collection: db.Collection(historyCollection)}
}

func (r *HistoryRepository) Insert(ctx context.Context, h *domain.OrderHistory) error {
	h.ID = primitive.NewObjectID().Hex()
	if _, err := r.collection.InsertOne(ctx, h); err != nil {
		h.ID = ""
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrAlreadyArchived
		}
		return fmt.Errorf("failed to insert order history: %w", err)
	}
	return nil
}

func (r *HistoryRepository) FindByUser(ctx context.Context, userID string) ([]*domain.OrderHistory, error) {
	opts := options.Find().SetSort(bson.D{{Key: "orderCreatedAt", Value: -1}})
	cursor, err := r.collection.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query order history: %w", err)
	}
	defer cursor.Close(ctx)

	out := make([]*domain.OrderHistory, 0)
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode order history: %w", err)
	}
	return out, nil
}

func (r *HistoryRepository) FindByOrderID(ctx context.Context, orderID string) (*domain.OrderHistory, error) {
	var h domain.OrderHistory
	err := r.collection.FindOne(ctx, bson.M{"originalOrderId": orderID}).Decode(&h)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.NewNotFoundError("order history", orderID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find order history: %w", err)
	}
	return &h, nil
}
