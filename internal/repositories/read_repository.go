package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"

	"circles-service/internal/models"
)

// ReadRepository abstracts read-receipt persistence.
type ReadRepository interface {
	AdvanceCursor(ctx context.Context, groupID, userID, upToMessageID string) ([]models.ReadReceipt, error)
	ListForMessages(ctx context.Context, groupID string, messageIDs []string) ([]models.ReadReceipt, error)
}

// ReadRepo is a sqlx implementation of ReadRepository.
type ReadRepo struct {
	db *sqlx.DB
}

// NewReadRepo constructs a ReadRepo.
func NewReadRepo(db *sqlx.DB) *ReadRepo {
	return &ReadRepo{db: db}
}

// AdvanceCursor marks every message up to and including the given one as read
// by the user, skipping the user's own messages. Returns only the receipts
// created by this call so they can be broadcast.
func (r *ReadRepo) AdvanceCursor(ctx context.Context, groupID, userID, upToMessageID string) ([]models.ReadReceipt, error) {
	rows, err := r.db.QueryxContext(ctx,
		`INSERT INTO read_receipts (message_id, user_id)
         SELECT m.id, $2 FROM messages m
         WHERE m.group_id=$1 AND m.author_id <> $2
           AND (m.created_at, m.id) <= (SELECT created_at, id FROM messages WHERE id=$3)
         ON CONFLICT (message_id, user_id) DO NOTHING
         RETURNING message_id, user_id, read_at`,
		groupID, userID, upToMessageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var receipts []models.ReadReceipt
	for rows.Next() {
		var receipt models.ReadReceipt
		if err := rows.Scan(&receipt.MessageID, &receipt.UserID, &receipt.ReadAt); err != nil {
			return nil, err
		}
		receipts = append(receipts, receipt)
	}
	return receipts, rows.Err()
}

// ListForMessages bulk-loads read receipts for a set of messages. Ids pointing
// outside the group are silently dropped so callers cannot read across groups.
func (r *ReadRepo) ListForMessages(ctx context.Context, groupID string, messageIDs []string) ([]models.ReadReceipt, error) {
	if len(messageIDs) == 0 {
		return []models.ReadReceipt{}, nil
	}
	query, args, err := sqlx.In(
		`SELECT r.message_id, r.user_id, r.read_at FROM read_receipts r
         JOIN messages m ON m.id = r.message_id
         WHERE m.group_id = ? AND r.message_id IN (?)`, groupID, messageIDs)
	if err != nil {
		return nil, err
	}
	query = r.db.Rebind(query)

	var receipts []models.ReadReceipt
	err = r.db.SelectContext(ctx, &receipts, query, args...)
	return receipts, err
}
