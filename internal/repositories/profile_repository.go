package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"

	"circles-service/internal/models"
)

// ProfileRepository abstracts profile persistence.
type ProfileRepository interface {
	GetProfiles(ctx context.Context, userIDs []string) ([]models.Profile, error)
	UpsertProfile(ctx context.Context, profile models.Profile) (models.Profile, error)
}

// ProfileRepo is a sqlx implementation of ProfileRepository.
type ProfileRepo struct {
	db *sqlx.DB
}

// NewProfileRepo constructs a ProfileRepo.
func NewProfileRepo(db *sqlx.DB) *ProfileRepo {
	return &ProfileRepo{db: db}
}

// GetProfiles bulk-loads profiles by user id. Unknown ids are simply absent
// from the result.
func (r *ProfileRepo) GetProfiles(ctx context.Context, userIDs []string) ([]models.Profile, error) {
	if len(userIDs) == 0 {
		return []models.Profile{}, nil
	}
	query, args, err := sqlx.In(
		`SELECT user_id, display_name, avatar_url FROM profiles WHERE user_id IN (?)`, userIDs)
	if err != nil {
		return nil, err
	}
	query = r.db.Rebind(query)

	var profiles []models.Profile
	err = r.db.SelectContext(ctx, &profiles, query, args...)
	return profiles, err
}

// UpsertProfile writes a profile row, last write wins.
func (r *ProfileRepo) UpsertProfile(ctx context.Context, profile models.Profile) (models.Profile, error) {
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO profiles (user_id, display_name, avatar_url) VALUES ($1, $2, $3)
         ON CONFLICT (user_id) DO UPDATE SET display_name=EXCLUDED.display_name, avatar_url=EXCLUDED.avatar_url
         RETURNING user_id, display_name, avatar_url`,
		profile.UserID, profile.DisplayName, profile.AvatarURL).
		Scan(&profile.UserID, &profile.DisplayName, &profile.AvatarURL)
	return profile, err
}
