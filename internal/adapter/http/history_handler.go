package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/YelzhanWeb/restaurant/internal/adapter/logger"
	"github.com/YelzhanWeb/restaurant/internal/domain"
	"github.com/YelzhanWeb/restaurant/internal/interfaces"
)

type HistoryHandler struct {
	history interfaces.HistoryService
	reviews interfaces.ReviewService
	logger  logger.Logger
}

func NewHistoryHandler(history interfaces.HistoryService, reviews interfaces.ReviewService, logger logger.Logger) *HistoryHandler {
	return &HistoryHandler{
		history: history,
		reviews: reviews,
		logger:  logger,
	}
}

type SubmitReviewRequest struct {
	Rating      int                 `json:"rating" binding:"required,min=1,max=5"`
	Comment     string              `json:"comment" binding:"max=1000"`
	ItemRatings []ItemRatingRequest `json:"itemRatings" binding:"dive"`
}

type ItemRatingRequest struct {
	ItemID  string `json:"itemId" binding:"required"`
	Rating  int    `json:"rating" binding:"required,min=1,max=5"`
	Comment string `json:"comment" binding:"max=500"`
}

// UserHistory returns the user's delivered orders, archiving any that were
// missed on the way.
func (h *HistoryHandler) UserHistory(c *gin.Context) {
	entries, err := h.history.UserHistory(c.Request.Context(), c.Param("userId"))
	if err != nil {
		respondError(c, h.logger, "user_history_failed", err)
		return
	}
	if entries == nil {
		entries = []*domain.HistoryEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"history": entries, "count": len(entries)})
}

func (h *HistoryHandler) SubmitReview(c *gin.Context) {
	userID, ok := requireHeader(c, UserIDHeader, "userId")
	if !ok {
		return
	}

	var req SubmitReviewRequest
	if !bindJSON(c, &req) {
		return
	}

	items := make([]domain.ItemRating, 0, len(req.ItemRatings))
	for _, ir := range req.ItemRatings {
		items = append(items, domain.ItemRating{ItemID: ir.ItemID, Rating: ir.Rating, Comment: ir.Comment})
	}

	review, err := h.reviews.Submit(c.Request.Context(), interfaces.SubmitReviewCommand{
		UserID:      userID,
		OrderID:     c.Param("id"),
		Rating:      req.Rating,
		Comment:     req.Comment,
		ItemRatings: items,
	})
	if err != nil {
		respondError(c, h.logger, "submit_review_failed", err)
		return
	}
	c.JSON(http.StatusCreated, review)
}

func (h *HistoryHandler) RestaurantRatings(c *gin.Context) {
	ratings, err := h.reviews.RestaurantRatings(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, "restaurant_ratings_failed", err)
		return
	}
	c.JSON(http.StatusOK, ratings)
}
