package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"circles-service/internal/models"
)

var (
	ErrRequestNotFound = errors.New("friend request not found")
	ErrRequestExists   = errors.New("friend request already exists")
)

// FriendRepository abstracts the friend-request lifecycle.
type FriendRepository interface {
	CreateRequest(ctx context.Context, fromUserID, toUserID string) (models.FriendRequest, error)
	RespondRequest(ctx context.Context, requestID, toUserID, status string) (models.FriendRequest, error)
	ListRequestsForUser(ctx context.Context, userID string) ([]models.FriendRequest, error)
}

// FriendRepo is a sqlx implementation of FriendRepository.
type FriendRepo struct {
	db *sqlx.DB
}

// NewFriendRepo constructs a FriendRepo.
func NewFriendRepo(db *sqlx.DB) *FriendRepo {
	return &FriendRepo{db: db}
}

// CreateRequest inserts a pending request. Duplicate requests between the same
// pair are rejected.
func (r *FriendRepo) CreateRequest(ctx context.Context, fromUserID, toUserID string) (models.FriendRequest, error) {
	var existing bool
	err := r.db.GetContext(ctx, &existing,
		`SELECT EXISTS(SELECT 1 FROM friend_requests
         WHERE ((from_user_id=$1 AND to_user_id=$2) OR (from_user_id=$2 AND to_user_id=$1))
           AND status IN ('pending', 'accepted'))`,
		fromUserID, toUserID)
	if err != nil {
		return models.FriendRequest{}, err
	}
	if existing {
		return models.FriendRequest{}, ErrRequestExists
	}

	var req models.FriendRequest
	err = r.db.QueryRowxContext(ctx,
		`INSERT INTO friend_requests (id, from_user_id, to_user_id, status) VALUES ($1, $2, $3, 'pending')
         RETURNING id, from_user_id, to_user_id, status, created_at`,
		uuid.NewString(), fromUserID, toUserID).
		Scan(&req.ID, &req.FromUserID, &req.ToUserID, &req.Status, &req.CreatedAt)
	return req, err
}

// RespondRequest resolves a pending request. Only the recipient may respond.
func (r *FriendRepo) RespondRequest(ctx context.Context, requestID, toUserID, status string) (models.FriendRequest, error) {
	var req models.FriendRequest
	err := r.db.QueryRowxContext(ctx,
		`UPDATE friend_requests SET status=$3 WHERE id=$1 AND to_user_id=$2 AND status='pending'
         RETURNING id, from_user_id, to_user_id, status, created_at`,
		requestID, toUserID, status).
		Scan(&req.ID, &req.FromUserID, &req.ToUserID, &req.Status, &req.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.FriendRequest{}, ErrRequestNotFound
	}
	return req, err
}

// ListRequestsForUser returns requests sent to or by the user.
func (r *FriendRepo) ListRequestsForUser(ctx context.Context, userID string) ([]models.FriendRequest, error) {
	var reqs []models.FriendRequest
	err := r.db.SelectContext(ctx, &reqs,
		`SELECT id, from_user_id, to_user_id, status, created_at FROM friend_requests
         WHERE from_user_id=$1 OR to_user_id=$1 ORDER BY created_at DESC`, userID)
	return reqs, err
}
