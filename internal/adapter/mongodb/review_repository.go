package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/YelzhanWeb/restaurant/internal/domain"
)

type ReviewRepository struct {
	collection *mongo.Collection
}

func NewReviewRepository(db *mongo.Database) *ReviewRepository {
	return &ReviewRepository{collection: db.Collection(reviewsCollection)}
}

func (r *ReviewRepository) Create(ctx context.Context, review *domain.Review) error {
	review.ID = primitive.NewObjectID().Hex()
	if _, err := r.collection.InsertOne(ctx, review); err != nil {
		review.ID = ""
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrDuplicateReview
		}
		return fmt.Errorf("failed to insert review: %w", err)
	}
	return nil
}

func (r *ReviewRepository) FindByUser(ctx context.Context, userID string) ([]*domain.Review, error) {
	return r.find(ctx, bson.M{"userId": userID})
}

func (r *ReviewRepository) FindByRestaurant(ctx context.Context, restaurantID string) ([]*domain.Review, error) {
	return r.find(ctx, bson.M{"restaurantId": restaurantID})
}

func (r *ReviewRepository) find(ctx context.Context, filter bson.M) ([]*domain.Review, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query reviews: %w", err)
	}
	defer cursor.Close(ctx)

	out := make([]*domain.Review, 0)
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode reviews: %w", err)
	}
	return out, nil
}

type RatingRepository struct {
	collection *mongo.Collection
}

func NewRatingRepository(db *mongo.Database) *RatingRepository {
	return &RatingRepository{collection: db.Collection(ratingsCollection)}
}

// Upsert replaces every subject's stats in a single unordered bulk write.
func (r *RatingRepository) Upsert(ctx context.Context, stats []*domain.RatingStats) error {
	if len(stats) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, 0, len(stats))
	for _, st := range stats {
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"restaurantId": st.RestaurantID, "subjectType": st.SubjectType, "subjectId": st.SubjectID}).
			SetReplacement(st).
			SetUpsert(true))
	}
	if _, err := r.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("failed to upsert rating stats: %w", err)
	}
	return nil
}

func (r *RatingRepository) FindByRestaurant(ctx context.Context, restaurantID string) ([]*domain.RatingStats, error) {
	opts := options.Find().SetSort(bson.D{{Key: "subjectType", Value: -1}, {Key: "subjectId", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"restaurantId": restaurantID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query rating stats: %w", err)
	}
	defer cursor.Close(ctx)

	out := make([]*domain.RatingStats, 0)
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode rating stats: %w", err)
	}
	return out, nil
}
