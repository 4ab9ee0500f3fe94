package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"

	"circles-service/internal/models"
)

// ReactionRepository abstracts reaction persistence.
type ReactionRepository interface {
	Toggle(ctx context.Context, messageID, userID, emoji string) (models.Reaction, bool, error)
	ListForMessages(ctx context.Context, groupID string, messageIDs []string) ([]models.Reaction, error)
}

// ReactionRepo is a sqlx implementation of ReactionRepository.
type ReactionRepo struct {
	db *sqlx.DB
}

// NewReactionRepo constructs a ReactionRepo.
func NewReactionRepo(db *sqlx.DB) *ReactionRepo {
	return &ReactionRepo{db: db}
}

// Toggle removes the (message, user, emoji) reaction if present, otherwise
// inserts it. The returned bool is true when the reaction was added. The
// delete and insert run in one transaction so two concurrent toggles cannot
// both miss the delete and race on the primary key.
func (r *ReactionRepo) Toggle(ctx context.Context, messageID, userID, emoji string) (models.Reaction, bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Reaction{}, false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM reactions WHERE message_id=$1 AND user_id=$2 AND emoji=$3`, messageID, userID, emoji)
	if err != nil {
		return models.Reaction{}, false, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return models.Reaction{}, false, err
	}
	if count > 0 {
		if err := tx.Commit(); err != nil {
			return models.Reaction{}, false, err
		}
		return models.Reaction{MessageID: messageID, UserID: userID, Emoji: emoji}, false, nil
	}

	var reaction models.Reaction
	err = tx.QueryRowxContext(ctx,
		`INSERT INTO reactions (message_id, user_id, emoji) VALUES ($1, $2, $3)
         ON CONFLICT (message_id, user_id, emoji) DO UPDATE SET emoji=EXCLUDED.emoji
         RETURNING message_id, user_id, emoji, created_at`, messageID, userID, emoji).
		Scan(&reaction.MessageID, &reaction.UserID, &reaction.Emoji, &reaction.CreatedAt)
	if err != nil {
		return models.Reaction{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return models.Reaction{}, false, err
	}
	return reaction, true, nil
}

// ListForMessages bulk-loads reactions for a set of messages. Ids pointing
// outside the group are silently dropped so callers cannot read across groups.
func (r *ReactionRepo) ListForMessages(ctx context.Context, groupID string, messageIDs []string) ([]models.Reaction, error) {
	if len(messageIDs) == 0 {
		return []models.Reaction{}, nil
	}
	query, args, err := sqlx.In(
		`SELECT r.message_id, r.user_id, r.emoji, r.created_at FROM reactions r
         JOIN messages m ON m.id = r.message_id
         WHERE m.group_id = ? AND r.message_id IN (?) ORDER BY r.created_at ASC`, groupID, messageIDs)
	if err != nil {
		return nil, err
	}
	query = r.db.Rebind(query)

	var reactions []models.Reaction
	err = r.db.SelectContext(ctx, &reactions, query, args...)
	return reactions, err
}
