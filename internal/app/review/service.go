package review

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/YelzhanWeb/restaurant/internal/adapter/logger"
	"github.com/YelzhanWeb/restaurant/internal/domain"
	"github.com/YelzhanWeb/restaurant/internal/interfaces"
)

type Service struct {
	orders      interfaces.OrderRepository
	reviews     interfaces.ReviewRepository
	ratings     interfaces.RatingRepository
	tasks       interfaces.TaskQueue
	logger      logger.Logger
	maxAttempts int
}

func NewService(
	orders interfaces.OrderRepository,
	reviews interfaces.ReviewRepository,
	ratings interfaces.RatingRepository,
	tasks interfaces.TaskQueue,
	logger logger.Logger,
	maxAttempts int,
) *Service {
	return &Service{
		orders:      orders,
		reviews:     reviews,
		ratings:     ratings,
		tasks:       tasks,
		logger:      logger,
		maxAttempts: maxAttempts,
	}
}

// Submit stores the review of a delivered order and schedules the rating
// recomputation for its restaurant.
func (s *Service) Submit(ctx context.Context, cmd interfaces.SubmitReviewCommand) (*domain.Review, error) {
	reqID := logger.RequestIDFrom(ctx)

	order, err := s.orders.FindByID(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}

	review, err := domain.NewReview(order, cmd.UserID, cmd.Rating, cmd.Comment, namedItems(order, cmd.ItemRatings))
	if err != nil {
		return nil, err
	}

	if err := s.reviews.Create(ctx, review); err != nil {
		if errors.Is(err, domain.ErrDuplicateReview) {
			return nil, domain.NewValidationError("validation failed", domain.FieldError{
				Field:   "orderId",
				Message: "order has already been reviewed",
			})
		}
		return nil, fmt.Errorf("failed to save review: %w", err)
	}

	s.logger.Info("review_submitted", "Review submitted", reqID, map[string]interface{}{
		"order_number": order.Number,
		"rating":       review.Rating,
	})

	if review.RestaurantID != "" {
		task, err := domain.NewOutboxTask(domain.TaskRecomputeRatings, interfaces.RecomputePayload{RestaurantID: review.RestaurantID}, s.maxAttempts)
		if err == nil {
			err = s.tasks.Enqueue(ctx, task)
		}
		if err != nil {
			s.logger.Error("outbox_enqueue_failed", "Failed to schedule rating recomputation", reqID, map[string]interface{}{
				"restaurant_id": review.RestaurantID,
			}, err)
		}
	}
	return review, nil
}

// Recompute rebuilds the restaurant and item rating stats from all reviews.
func (s *Service) Recompute(ctx context.Context, restaurantID string) ([]*domain.RatingStats, error) {
	reviews, err := s.reviews.FindByRestaurant(ctx, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load reviews: %w", err)
	}

	stats := domain.ComputeRatingStats(restaurantID, reviews, time.Now().UTC())
	if err := s.ratings.Upsert(ctx, stats); err != nil {
		return nil, fmt.Errorf("failed to store rating stats: %w", err)
	}

	s.logger.Debug("ratings_recomputed", "Rating stats recomputed", logger.RequestIDFrom(ctx), map[string]interface{}{
		"restaurant_id": restaurantID,
		"reviews":       len(reviews),
		"subjects":      len(stats),
	})
	return stats, nil
}

// HandleRecomputeTask is the outbox handler for recompute_ratings tasks.
func (s *Service) HandleRecomputeTask(ctx context.Context, task *domain.OutboxTask) error {
	var p interfaces.RecomputePayload
	if err := task.Decode(&p); err != nil {
		return err
	}
	_, err := s.Recompute(ctx, p.RestaurantID)
	return err
}

func (s *Service) RestaurantRatings(ctx context.Context, restaurantID string) (*interfaces.RestaurantRatings, error) {
	stats, err := s.ratings.FindByRestaurant(ctx, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load rating stats: %w", err)
	}

	out := &interfaces.RestaurantRatings{RestaurantID: restaurantID, Items: []*domain.RatingStats{}}
	for _, st := range stats {
		if st.SubjectType == domain.SubjectRestaurant {
			out.Restaurant = st
			continue
		}
		out.Items = append(out.Items, st)
	}
	if out.Restaurant == nil {
		return nil, domain.NewNotFoundError("ratings for restaurant", restaurantID)
	}
	return out, nil
}

// namedItems fills missing item names from the order lines.
func namedItems(order *domain.Order, ratings []domain.ItemRating) []domain.ItemRating {
	names := make(map[string]string, len(order.Items))
	for _, it := range order.Items {
		names[it.ItemID] = it.Name
	}
	out := make([]domain.ItemRating, len(ratings))
	for i, r := range ratings {
		if r.Name == "" {
			r.Name = names[r.ItemID]
		}
		out[i] = r
	}
	return out
}
