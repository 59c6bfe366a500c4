package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/google/uuid"

	"github.com/YelzhanWeb/restaurant/internal/domain"
)

type OutboxRepository struct {
	collection *mongo.Collection
}

func NewOutboxRepository(db *mongo.Database) *OutboxRepository {
	return &OutboxRepository{collection: db.Collection(outboxCollection)}
}

func (r *OutboxRepository) Insert(ctx context.Context, task *domain.OutboxTask) error {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if _, err := r.collection.InsertOne(ctx, task); err != nil {
		return fmt.Errorf("failed to insert outbox task: %w", err)
	}
	return nil
}

// ClaimDue leases tasks one at a time with FindOneAndUpdate so concurrent
// dispatchers never claim the same task.
func (r *OutboxRepository) ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*domain.OutboxTask, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"status": domain.TaskPending, "nextAttemptAt": bson.M{"$lte": now}},
		bson.M{"status": domain.TaskProcessing, "leaseUntil": bson.M{"$lt": now}},
	}}
	update := bson.M{"$set": bson.M{
		"status":     domain.TaskProcessing,
		"leaseUntil": now.Add(lease),
		"updatedAt":  now,
	}}
	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "createdAt", Value: 1}}).
		SetReturnDocument(options.After)

	tasks := make([]*domain.OutboxTask, 0)
	for limit <= 0 || len(tasks) < limit {
		var task domain.OutboxTask
		err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&task)
		if errors.Is(err, mongo.ErrNoDocuments) {
			break
		}
		if err != nil {
			return tasks, fmt.Errorf("failed to claim outbox task: %w", err)
		}
		tasks = append(tasks, &task)
	}
	return tasks, nil
}

func (r *OutboxRepository) Save(ctx context.Context, task *domain.OutboxTask) error {
	res, err := r.collection.ReplaceOne(ctx, bson.M{"_id": task.ID}, task)
	if err != nil {
		return fmt.Errorf("failed to save outbox task: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.NewNotFoundError("outbox task", task.ID)
	}
	return nil
}

func (r *OutboxRepository) CountByStatus(ctx context.Context) (map[domain.TaskStatus]int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{{Key: "_id", Value: "$status"}, {Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}}}}},
	}
	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate outbox tasks: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Status domain.TaskStatus `bson:"_id"`
		Count  int64             `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode outbox counts: %w", err)
	}

	counts := make(map[domain.TaskStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
