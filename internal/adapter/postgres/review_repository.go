package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/YelzhanWeb/restaurant/internal/domain"
	"github.com/YelzhanWeb/restaurant/internal/interfaces"
)

type reviewRepository struct {
	db DB
}

func NewReviewRepository(db DB) interfaces.ReviewRepository {
	return &reviewRepository{db: db}
}

func (r *reviewRepository) Create(ctx context.Context, review *domain.Review) error {
	review.ID = uuid.NewString()
	doc, err := json.Marshal(review)
	if err != nil {
		return fmt.Errorf("failed to encode review: %w", err)
	}

	query := `
		INSERT INTO reviews (id, order_id, user_id, restaurant_id, created_at, doc)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = r.db.Exec(ctx, query, review.ID, review.OrderID, review.UserID, review.RestaurantID, review.CreatedAt, doc)
	if err != nil {
		review.ID = ""
		if uniqueConstraint(err) != "" {
			return domain.ErrDuplicateReview
		}
		return fmt.Errorf("failed to insert review: %w", err)
	}
	return nil
}

func (r *reviewRepository) FindByUser(ctx context.Context, userID string) ([]*domain.Review, error) {
	return r.find(ctx, `SELECT doc FROM reviews WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

func (r *reviewRepository) FindByRestaurant(ctx context.Context, restaurantID string) ([]*domain.Review, error) {
	return r.find(ctx, `SELECT doc FROM reviews WHERE restaurant_id = $1 ORDER BY created_at DESC`, restaurantID)
}

func (r *reviewRepository) find(ctx context.Context, query, key string) ([]*domain.Review, error) {
	rows, err := r.db.Query(ctx, query, key)
	if err != nil {
		return nil, fmt.Errorf("failed to query reviews: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.Review, 0)
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		var rv domain.Review
		if err := json.Unmarshal(doc, &rv); err != nil {
			return nil, fmt.Errorf("failed to decode review: %w", err)
		}
		out = append(out, &rv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read reviews: %w", err)
	}
	return out, nil
}

type ratingRepository struct {
	db DB
}

func NewRatingRepository(db DB) interfaces.RatingRepository {
	return &ratingRepository{db: db}
}

// Upsert writes all stats in one transaction.
func (r *ratingRepository) Upsert(ctx context.Context, stats []*domain.RatingStats) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO rating_stats (restaurant_id, subject_type, subject_id, doc)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (restaurant_id, subject_type, subject_id) DO UPDATE SET doc = EXCLUDED.doc
	`
	for _, st := range stats {
		doc, err := json.Marshal(st)
		if err != nil {
			return fmt.Errorf("failed to encode rating stats: %w", err)
		}
		if _, err := tx.Exec(ctx, query, st.RestaurantID, st.SubjectType, st.SubjectID, doc); err != nil {
			return fmt.Errorf("failed to upsert rating stats: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (r *ratingRepository) FindByRestaurant(ctx context.Context, restaurantID string) ([]*domain.RatingStats, error) {
	query := `
		SELECT doc FROM rating_stats
		WHERE restaurant_id = $1
		ORDER BY subject_type DESC, subject_id ASC
	`
	rows, err := r.db.Query(ctx, query, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rating stats: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.RatingStats, 0)
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan rating stats: %w", err)
		}
		var st domain.RatingStats
		if err := json.Unmarshal(doc, &st); err != nil {
			return nil, fmt.Errorf("failed to decode rating stats: %w", err)
		}
		out = append(out, &st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rating stats: %w", err)
	}
	return out, nil
}
