package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"circles-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository defines interactions for group messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, groupID, authorID, content string, replyToID *string, attachments []models.Attachment) (models.Message, error)
	ListPage(ctx context.Context, groupID string, before *Cursor, limit int) ([]models.Message, bool, error)
	GetMessage(ctx context.Context, messageID string) (models.Message, error)
	DeleteMessage(ctx context.Context, messageID, authorID string) error
}

// MessageRepo is a sqlx-backed implementation.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage persists a message and its attachment rows.
func (r *MessageRepo) CreateMessage(ctx context.Context, groupID, authorID, content string, replyToID *string, attachments []models.Attachment) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO messages (id, group_id, author_id, content, reply_to_id) VALUES ($1, $2, $3, $4, $5)
         RETURNING id, group_id, author_id, content, reply_to_id, created_at`,
		uuid.NewString(), groupID, authorID, content, replyToID).
		Scan(&msg.ID, &msg.GroupID, &msg.AuthorID, &msg.Content, &msg.ReplyToID, &msg.CreatedAt)
	if err != nil {
		return models.Message{}, err
	}

	for _, a := range attachments {
		if _, err := r.db.ExecContext(ctx,
			`INSERT INTO message_attachments (message_id, bucket, path, url, name, size, content_type) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			msg.ID, a.Bucket, a.Path, a.URL, a.Name, a.Size, a.ContentType); err != nil {
			return models.Message{}, err
		}
	}
	msg.Attachments = attachments
	return msg, nil
}

// ListPage returns up to limit messages strictly older than the cursor,
// ascending by (created_at, id), plus whether older messages remain. A nil
// cursor starts from the newest message.
func (r *MessageRepo) ListPage(ctx context.Context, groupID string, before *Cursor, limit int) ([]models.Message, bool, error) {
	var msgs []models.Message
	var err error
	// limit+1 gives an exact has-more answer instead of the short-page heuristic.
	if before == nil {
		err = r.db.SelectContext(ctx, &msgs,
			`SELECT id, group_id, author_id, content, reply_to_id, created_at FROM messages
             WHERE group_id=$1 ORDER BY created_at DESC, id DESC LIMIT $2`,
			groupID, limit+1)
	} else {
		err = r.db.SelectContext(ctx, &msgs,
			`SELECT id, group_id, author_id, content, reply_to_id, created_at FROM messages
             WHERE group_id=$1 AND (created_at, id) < ($2, $3)
             ORDER BY created_at DESC, id DESC LIMIT $4`,
			groupID, before.CreatedAt, before.ID, limit+1)
	}
	if err != nil {
		return nil, false, err
	}

	hasMore := len(msgs) > limit
	if hasMore {
		msgs = msgs[:limit]
	}

	// reverse into ascending display order
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	if err := r.loadAttachments(ctx, msgs); err != nil {
		return nil, false, err
	}
	return msgs, hasMore, nil
}

// GetMessage fetches a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID string) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg,
		`SELECT id, group_id, author_id, content, reply_to_id, created_at FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, err
	}
	page := []models.Message{msg}
	if err := r.loadAttachments(ctx, page); err != nil {
		return models.Message{}, err
	}
	return page[0], nil
}

// DeleteMessage removes a message (author only).
func (r *MessageRepo) DeleteMessage(ctx context.Context, messageID, authorID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE id=$1 AND author_id=$2`, messageID, authorID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}

func (r *MessageRepo) loadAttachments(ctx context.Context, msgs []models.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	ids := make([]string, 0, len(msgs))
	byID := make(map[string]*models.Message, len(msgs))
	for i := range msgs {
		ids = append(ids, msgs[i].ID)
		byID[msgs[i].ID] = &msgs[i]
	}

	query, args, err := sqlx.In(
		`SELECT message_id, bucket, path, url, name, size, content_type FROM message_attachments WHERE message_id IN (?)`, ids)
	if err != nil {
		return err
	}
	query = r.db.Rebind(query)

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var messageID string
		var a models.Attachment
		if err := rows.Scan(&messageID, &a.Bucket, &a.Path, &a.URL, &a.Name, &a.Size, &a.ContentType); err != nil {
			return err
		}
		if msg, ok := byID[messageID]; ok {
			msg.Attachments = append(msg.Attachments, a)
		}
	}
	return rows.Err()
}
