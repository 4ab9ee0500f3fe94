package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"circles-service/internal/mocks"
	"circles-service/internal/models"
	"circles-service/internal/repositories"
)

func setupSocialRouter(handler *SocialHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", "u1")
		c.Next()
	})
	r.POST("/rpc/send-friend-request", handler.SendFriendRequest)
	r.POST("/rpc/respond-friend-request", handler.RespondFriendRequest)
	r.POST("/rpc/submit-rating", handler.SubmitRating)
	return r
}

func TestSendFriendRequestSuccess(t *testing.T) {
	friendRepo := new(mocks.FriendRepositoryMock)
	handler := NewSocialHandler(friendRepo, new(mocks.RatingRepositoryMock), nil)
	router := setupSocialRouter(handler)

	friendRepo.On("CreateRequest", mock.Anything, "u1", "u2").
		Return(models.FriendRequest{ID: "fr1", FromUserID: "u1", ToUserID: "u2"}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/rpc/send-friend-request", bytes.NewBufferString(`{"to_user_id":"u2"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	friendRepo.AssertExpectations(t)
}

func TestSendFriendRequestToSelf(t *testing.T) {
	handler := NewSocialHandler(new(mocks.FriendRepositoryMock), new(mocks.RatingRepositoryMock), nil)
	router := setupSocialRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/rpc/send-friend-request", bytes.NewBufferString(`{"to_user_id":"u1"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendFriendRequestDuplicate(t *testing.T) {
	friendRepo := new(mocks.FriendRepositoryMock)
	handler := NewSocialHandler(friendRepo, new(mocks.RatingRepositoryMock), nil)
	router := setupSocialRouter(handler)

	friendRepo.On("CreateRequest", mock.Anything, "u1", "u2").
		Return(models.FriendRequest{}, repositories.ErrRequestExists).Once()

	req := httptest.NewRequest(http.MethodPost, "/rpc/send-friend-request", bytes.NewBufferString(`{"to_user_id":"u2"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestRespondFriendRequestAccept(t *testing.T) {
	friendRepo := new(mocks.FriendRepositoryMock)
	handler := NewSocialHandler(friendRepo, new(mocks.RatingRepositoryMock), nil)
	router := setupSocialRouter(handler)

	friendRepo.On("RespondRequest", mock.Anything, "fr1", "u1", models.FriendRequestAccepted).
		Return(models.FriendRequest{ID: "fr1", Status: models.FriendRequestAccepted}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/rpc/respond-friend-request", bytes.NewBufferString(`{"request_id":"fr1","accept":true}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	friendRepo.AssertExpectations(t)
}

func TestSubmitRatingCooldown(t *testing.T) {
	ratingRepo := new(mocks.RatingRepositoryMock)
	handler := NewSocialHandler(new(mocks.FriendRepositoryMock), ratingRepo, nil)
	router := setupSocialRouter(handler)

	ratingRepo.On("SubmitRating", mock.Anything, "u1", "u2", 4).
		Return(models.Rating{}, repositories.ErrRatingCooldown).Once()

	req := httptest.NewRequest(http.MethodPost, "/rpc/submit-rating", bytes.NewBufferString(`{"rated_id":"u2","score":4}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestSubmitRatingInvalidScore(t *testing.T) {
	ratingRepo := new(mocks.RatingRepositoryMock)
	handler := NewSocialHandler(new(mocks.FriendRepositoryMock), ratingRepo, nil)
	router := setupSocialRouter(handler)

	ratingRepo.On("SubmitRating", mock.Anything, "u1", "u2", 9).
		Return(models.Rating{}, repositories.ErrInvalidScore).Once()

	req := httptest.NewRequest(http.MethodPost, "/rpc/submit-rating", bytes.NewBufferString(`{"rated_id":"u2","score":9}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
