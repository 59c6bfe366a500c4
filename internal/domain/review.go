package domain

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

const (
	minRating = 1
	maxRating = 5

	SubjectRestaurant = "restaurant"
	SubjectItem       = "item"
)

// Review is a customer's rating of a delivered order, keyed by (order, user).
type Review struct {
	ID           string       `json:"id" bson:"_id,omitempty"`
	OrderID      string       `json:"orderId" bson:"orderId"`
	UserID       string       `json:"userId" bson:"userId"`
	RestaurantID string       `json:"restaurantId,omitempty" bson:"restaurantId,omitempty"`
	Rating       int          `json:"rating" bson:"rating"`
	Comment      string       `json:"comment,omitempty" bson:"comment,omitempty"`
	ItemRatings  []ItemRating `json:"itemRatings,omitempty" bson:"itemRatings,omitempty"`
	CreatedAt    time.Time    `json:"createdAt" bson:"createdAt"`
}

type ItemRating struct {
	ItemID  string `json:"itemId" bson:"itemId"`
	Name    string `json:"name,omitempty" bson:"name,omitempty"`
	Rating  int    `json:"rating" bson:"rating"`
	Comment string `json:"comment,omitempty" bson:"comment,omitempty"`
}

// NewReview validates a review of the given order.
func NewReview(order *Order, userID string, rating int, comment string, items []ItemRating) (*Review, error) {
	var fields []FieldError
	if rating < minRating || rating > maxRating {
		fields = append(fields, FieldError{Field: "rating", Message: "rating must be between 1 and 5"})
	}

	ordered := make(map[string]bool, len(order.Items))
	for _, it := range order.Items {
		ordered[it.ItemID] = true
	}
	for i, ir := range items {
		prefix := fmt.Sprintf("itemRatings[%d]", i)
		if strings.TrimSpace(ir.ItemID) == "" {
			fields = append(fields, FieldError{Field: prefix + ".itemId", Message: "item id is required"})
		} else if !ordered[ir.ItemID] {
			fields = append(fields, FieldError{Field: prefix + ".itemId", Message: "item was not part of the order"})
		}
		if ir.Rating < minRating || ir.Rating > maxRating {
			fields = append(fields, FieldError{Field: prefix + ".rating", Message: "rating must be between 1 and 5"})
		}
	}
	if len(fields) > 0 {
		return nil, NewValidationError("validation failed", fields...)
	}

	if order.UserID != userID {
		return nil, NewPreconditionError("order %s does not belong to user %s", order.Number, userID)
	}
	if order.Status != StatusDelivered {
		return nil, NewPreconditionError("order %s is %s, only delivered orders can be reviewed", order.Number, order.Status)
	}

	return &Review{
		OrderID:      order.ID,
		UserID:       userID,
		RestaurantID: order.RestaurantID,
		Rating:       rating,
		Comment:      comment,
		ItemRatings:  items,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// RatingStats is the aggregate rating of a restaurant or one of its items.
type RatingStats struct {
	SubjectType  string    `json:"subjectType" bson:"subjectType"`
	SubjectID    string    `json:"subjectId" bson:"subjectId"`
	RestaurantID string    `json:"restaurantId" bson:"restaurantId"`
	Name         string    `json:"name,omitempty" bson:"name,omitempty"`
	Average      float64   `json:"average" bson:"average"`
	Count        int64     `json:"count" bson:"count"`
	UpdatedAt    time.Time `json:"updatedAt" bson:"updatedAt"`
}

// ComputeRatingStats aggregates all reviews of a restaurant into restaurant
// stats (first) followed by per-item stats ordered by item id.
func ComputeRatingStats(restaurantID string, reviews []*Review, at time.Time) []*RatingStats {
	type acc struct {
		name  string
		sum   int
		count int64
	}

	restaurant := &acc{}
	items := map[string]*acc{}
	for _, r := range reviews {
		restaurant.sum += r.Rating
		restaurant.count++
		for _, ir := range r.ItemRatings {
			a, ok := items[ir.ItemID]
			if !ok {
				a = &acc{}
				items[ir.ItemID] = a
			}
			if ir.Name != "" {
				a.name = ir.Name
			}
			a.sum += ir.Rating
			a.count++
		}
	}

	stats := []*RatingStats{{
		SubjectType:  SubjectRestaurant,
		SubjectID:    restaurantID,
		RestaurantID: restaurantID,
		Average:      average(restaurant.sum, restaurant.count),
		Count:        restaurant.count,
		UpdatedAt:    at,
	}}

	ids := make([]string, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		a := items[id]
		stats = append(stats, &RatingStats{
			SubjectType:  SubjectItem,
			SubjectID:    id,
			RestaurantID: restaurantID,
			Name:         a.name,
			Average:      average(a.sum, a.count),
			Count:        a.count,
			UpdatedAt:    at,
		})
	}
	return stats
}

func average(sum int, count int64) float64 {
	if count == 0 {
		return 0
	}
	return math.Round(float64(sum)/float64(count)*100) / 100
}
