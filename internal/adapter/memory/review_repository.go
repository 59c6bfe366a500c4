package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/YelzhanWeb/restaurant/internal/domain"
)

type ReviewRepository struct {
	mu      sync.RWMutex
	reviews []*domain.Review
}

func NewReviewRepository() *ReviewRepository {
	return &ReviewRepository{}
}

func (r *ReviewRepository) Create(_ context.Context, review *domain.Review) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.reviews {
		if existing.OrderID == review.OrderID && existing.UserID == review.UserID {
			return domain.ErrDuplicateReview
		}
	}
	review.ID = uuid.NewString()
	r.reviews = append(r.reviews, cloneReview(review))
	return nil
}

func (r *ReviewRepository) FindByUser(_ context.Context, userID string) ([]*domain.Review, error) {
	return r.find(func(rv *domain.Review) bool { return rv.UserID == userID }), nil
}

func (r *ReviewRepository) FindByRestaurant(_ context.Context, restaurantID string) ([]*domain.Review, error) {
	return r.find(func(rv *domain.Review) bool { return rv.RestaurantID == restaurantID }), nil
}

func (r *ReviewRepository) find(keep func(*domain.Review) bool) []*domain.Review {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Review, 0)
	for _, rv := range r.reviews {
		if keep(rv) {
			out = append(out, cloneReview(rv))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func cloneReview(rv *domain.Review) *domain.Review {
	c := *rv
	c.ItemRatings = append([]domain.ItemRating(nil), rv.ItemRatings...)
	return &c
}

type RatingRepository struct {
	mu    sync.RWMutex
	stats map[string]*domain.RatingStats
}

func NewRatingRepository() *RatingRepository {
	return &RatingRepository{stats: make(map[string]*domain.RatingStats)}
}

func (r *RatingRepository) Upsert(_ context.Context, stats []*domain.RatingStats) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, st := range stats {
		c := *st
		r.stats[st.RestaurantID+"/"+st.SubjectType+"/"+st.SubjectID] = &c
	}
	return nil
}

func (r *RatingRepository) FindByRestaurant(_ context.Context, restaurantID string) ([]*domain.RatingStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.RatingStats, 0)
	for _, st := range r.stats {
		if st.RestaurantID == restaurantID {
			c := *st
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SubjectType != out[j].SubjectType {
			return out[i].SubjectType == domain.SubjectRestaurant
		}
		return out[i].SubjectID < out[j].SubjectID
	})
	return out, nil
}
