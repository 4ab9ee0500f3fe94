package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"circles-service/internal/models"
	"circles-service/internal/repositories"
	"circles-service/internal/telemetry"
)

// SocialHandler manages friend requests and ratings.
type SocialHandler struct {
	friendRepo repositories.FriendRepository
	ratingRepo repositories.RatingRepository
	audit      *telemetry.AuditEmitter
}

// NewSocialHandler constructs a SocialHandler.
func NewSocialHandler(friendRepo repositories.FriendRepository, ratingRepo repositories.RatingRepository, audit *telemetry.AuditEmitter) *SocialHandler {
	return &SocialHandler{friendRepo: friendRepo, ratingRepo: ratingRepo, audit: audit}
}

// SendFriendRequest handles POST /rpc/send-friend-request.
func (h *SocialHandler) SendFriendRequest(c *gin.Context) {
	userID := c.GetString("userID")

	var req struct {
		ToUserID string `json:"to_user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.ToUserID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot friend yourself"})
		return
	}

	request, err := h.friendRepo.CreateRequest(c.Request.Context(), userID, req.ToUserID)
	if err != nil {
		if errors.Is(err, repositories.ErrRequestExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "request already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not send request"})
		return
	}

	h.emitAudit(c, "INFO", "Friend request sent")
	c.JSON(http.StatusCreated, request)
}

// RespondFriendRequest handles POST /rpc/respond-friend-request.
func (h *SocialHandler) RespondFriendRequest(c *gin.Context) {
	userID := c.GetString("userID")

	var req struct {
		RequestID string `json:"request_id" binding:"required"`
		Accept    bool   `json:"accept"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	status := models.FriendRequestDeclined
	if req.Accept {
		status = models.FriendRequestAccepted
	}

	request, err := h.friendRepo.RespondRequest(c.Request.Context(), req.RequestID, userID, status)
	if err != nil {
		if errors.Is(err, repositories.ErrRequestNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "request not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not respond to request"})
		return
	}

	h.emitAudit(c, "INFO", "Friend request resolved")
	c.JSON(http.StatusOK, request)
}

// ListFriendRequests returns the caller's requests, sent and received.
func (h *SocialHandler) ListFriendRequests(c *gin.Context) {
	userID := c.GetString("userID")

	requests, err := h.friendRepo.ListRequestsForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load requests"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": requests})
}

// SubmitRating handles POST /rpc/submit-rating.
func (h *SocialHandler) SubmitRating(c *gin.Context) {
	userID := c.GetString("userID")

	var req struct {
		RatedID string `json:"rated_id" binding:"required"`
		Score   int    `json:"score" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.RatedID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot rate yourself"})
		return
	}

	rating, err := h.ratingRepo.SubmitRating(c.Request.Context(), userID, req.RatedID, req.Score)
	if err != nil {
		switch {
		case errors.Is(err, repositories.ErrInvalidScore):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, repositories.ErrRatingCooldown):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not submit rating"})
		}
		return
	}

	h.emitAudit(c, "INFO", "Rating submitted")
	c.JSON(http.StatusCreated, rating)
}

func (h *SocialHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}
