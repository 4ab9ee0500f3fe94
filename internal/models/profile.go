package models

// Profile is the display identity of a user. The client cache of profiles is
// advisory and may be stale.
type Profile struct {
	UserID      string `db:"user_id" json:"user_id"`
	DisplayName string `db:"display_name" json:"display_name"`
	AvatarURL   string `db:"avatar_url" json:"avatar_url"`
}
