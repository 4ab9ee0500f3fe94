package models

import "time"

// Group represents an interest-based group.
type Group struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	Interest    string    `db:"interest" json:"interest"`
	JoinCode    string    `db:"join_code" json:"join_code,omitempty"`
	OwnerID     string    `db:"owner_id" json:"owner_id"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Member is a group membership row joined with display info.
type Member struct {
	UserID      string `db:"user_id" json:"user_id"`
	DisplayName string `db:"display_name" json:"display_name"`
	AvatarURL   string `db:"avatar_url" json:"avatar_url"`
	Role        string `db:"role" json:"role"`
}
