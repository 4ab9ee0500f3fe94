package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"circles-service/internal/models"
)

var (
	ErrInvalidScore   = errors.New("score must be between 1 and 5")
	ErrRatingCooldown = errors.New("rating cooldown active")
)

// RatingCooldown is the minimum interval between ratings for the same pair.
const RatingCooldown = 24 * time.Hour

// RatingRepository abstracts rating submissions.
type RatingRepository interface {
	SubmitRating(ctx context.Context, raterID, ratedID string, score int) (models.Rating, error)
}

// RatingRepo is a sqlx implementation of RatingRepository.
type RatingRepo struct {
	db *sqlx.DB
}

// NewRatingRepo constructs a RatingRepo.
func NewRatingRepo(db *sqlx.DB) *RatingRepo {
	return &RatingRepo{db: db}
}

// SubmitRating validates and stores a rating, enforcing the per-pair cooldown.
func (r *RatingRepo) SubmitRating(ctx context.Context, raterID, ratedID string, score int) (models.Rating, error) {
	if score < 1 || score > 5 {
		return models.Rating{}, ErrInvalidScore
	}

	var last time.Time
	err := r.db.GetContext(ctx, &last,
		`SELECT created_at FROM ratings WHERE rater_id=$1 AND rated_id=$2 ORDER BY created_at DESC LIMIT 1`,
		raterID, ratedID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return models.Rating{}, err
	}
	if err == nil && time.Since(last) < RatingCooldown {
		return models.Rating{}, ErrRatingCooldown
	}

	var rating models.Rating
	err = r.db.QueryRowxContext(ctx,
		`INSERT INTO ratings (rater_id, rated_id, score) VALUES ($1, $2, $3)
         RETURNING rater_id, rated_id, score, created_at`,
		raterID, ratedID, score).
		Scan(&rating.RaterID, &rating.RatedID, &rating.Score, &rating.CreatedAt)
	return rating, err
}
