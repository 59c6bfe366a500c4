package mongodb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/YelzhanWeb/restaurant/internal/domain"
	"github.com/YelzhanWeb/restaurant/internal/interfaces"
)

type OrderRepository struct {
	collection *mongo.Collection
}

func NewOrderRepository(db *mongo.Database) *OrderRepository {
	return &OrderRepository{collection: db.Collection(ordersCollection)}
}

func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) error {
	order.ID = primitive.NewObjectID().Hex()
	order.Version = 1

	if _, err := r.collection.InsertOne(ctx, order); err != nil {
		order.ID = ""
		if mongo.IsDuplicateKeyError(err) {
			if strings.Contains(err.Error(), idxTransactionID) {
				return domain.ErrDuplicateTransaction
			}
			return domain.ErrDuplicateOrderNumber
		}
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

func (r *OrderRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	return r.findOne(ctx, bson.M{"_id": id}, id)
}

func (r *OrderRepository) FindByNumber(ctx context.Context, number string) (*domain.Order, error) {
	return r.findOne(ctx, bson.M{"orderNumber": number}, number)
}

func (r *OrderRepository) findOne(ctx context.Context, filter bson.M, key string) (*domain.Order, error) {
	var order domain.Order
	err := r.collection.FindOne(ctx, filter).Decode(&order)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.NewNotFoundError("order", key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find order %s: %w", key, err)
	}
	return &order, nil
}

// Update replaces the document only if its stored version still matches.
func (r *OrderRepository) Update(ctx context.Context, order *domain.Order) error {
	expected := order.Version
	next := order.Clone()
	next.Version = expected + 1

	res, err := r.collection.ReplaceOne(ctx, bson.M{"_id": order.ID, "version": expected}, next)
	if err != nil {
		return fmt.Errorf("failed to update order %s: %w", order.Number, err)
	}
	if res.MatchedCount == 0 {
		n, err := r.collection.CountDocuments(ctx, bson.M{"_id": order.ID})
		if err != nil {
			return fmt.Errorf("failed to check order %s: %w", order.Number, err)
		}
		if n == 0 {
			return domain.NewNotFoundError("order", order.ID)
		}
		return domain.ErrVersionConflict
	}
	order.Version = next.Version
	return nil
}

func (r *OrderRepository) List(ctx context.Context, f interfaces.OrderFilter) ([]*domain.Order, int64, error) {
	f = f.Normalize()
	filter := bson.M{}
	if f.UserID != "" {
		filter["userId"] = f.UserID
	}
	if f.RestaurantID != "" {
		filter["restaurantId"] = f.RestaurantID
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.PaymentStatus != "" {
		filter["paymentStatus"] = f.PaymentStatus
	}
	if f.KitchenStatus != "" {
		filter["kitchenStatus"] = f.KitchenStatus
	}

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(int64(f.Offset())).
		SetLimit(int64(f.Limit))
	orders, err := r.find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (r *OrderRepository) FindKitchenVisible(ctx context.Context) ([]*domain.Order, error) {
	filter := bson.M{
		"paymentStatus": domain.PaymentConfirmed,
		"sentToKitchen": true,
		"kitchenHidden": false,
		"status":        bson.M{"$nin": bson.A{domain.StatusDelivered, domain.StatusCancelled}},
	}
	opts := options.Find().SetSort(bson.D{{Key: "kitchenPriority", Value: -1}, {Key: "createdAt", Value: 1}})
	return r.find(ctx, filter, opts)
}

func (r *OrderRepository) FindPendingPayments(ctx context.Context) ([]*domain.Order, error) {
	filter := bson.M{
		"paymentStatus": domain.PaymentPending,
		"status":        bson.M{"$ne": domain.StatusCancelled},
	}
	return r.find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
}

func (r *OrderRepository) FindDeliveredUnarchived(ctx context.Context, userID string) ([]*domain.Order, error) {
	filter := bson.M{
		"status":            domain.StatusDelivered,
		"archivedToHistory": bson.M{"$ne": true},
	}
	if userID != "" {
		filter["userId"] = userID
	}
	return r.find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
}

// MarkArchived bumps the version too, so a stale Update cannot clear the flag.
func (r *OrderRepository) MarkArchived(ctx context.Context, id string) error {
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{
			"$set": bson.M{"archivedToHistory": true, "updatedAt": time.Now().UTC()},
			"$inc": bson.M{"version": 1},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to mark order %s archived: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return domain.NewNotFoundError("order", id)
	}
	return nil
}

func (r *OrderRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*domain.Order, error) {
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer cursor.Close(ctx)

	orders := make([]*domain.Order, 0)
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, fmt.Errorf("failed to decode orders: %w", err)
	}
	return orders, nil
}
