package models

import "time"

// Friend request lifecycle states.
const (
	FriendRequestPending  = "pending"
	FriendRequestAccepted = "accepted"
	FriendRequestDeclined = "declined"
)

// FriendRequest is a pending or resolved friendship request between users.
type FriendRequest struct {
	ID         string    `db:"id" json:"id"`
	FromUserID string    `db:"from_user_id" json:"from_user_id"`
	ToUserID   string    `db:"to_user_id" json:"to_user_id"`
	Status     string    `db:"status" json:"status"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Rating is a user-to-user score submission. One rating per pair per cooldown
// window.
type Rating struct {
	RaterID   string    `db:"rater_id" json:"rater_id"`
	RatedID   string    `db:"rated_id" json:"rated_id"`
	Score     int       `db:"score" json:"score"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
