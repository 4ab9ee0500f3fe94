package session

import (
	"context"
	"io"

	"circles-service/internal/models"
)

// Page is one slice of message history, ascending by (created_at, id).
type Page struct {
	Messages   []models.Message
	HasMore    bool
	NextCursor string
}

// Upload is a pending attachment handed to the send pipeline.
type Upload struct {
	Name        string
	ContentType string
	Content     io.Reader
}

// UserInfo identifies the acting user.
type UserInfo struct {
	UserID string
	Email  string
}

// Backend is the remote query/RPC surface the session depends on. The cursor
// is opaque to the session; it round-trips whatever the backend returned.
type Backend interface {
	MessagesPage(ctx context.Context, groupID, cursor string, limit int) (Page, error)
	SendMessage(ctx context.Context, groupID, content string, replyToID *string, attachments []models.Attachment) error
	ToggleReaction(ctx context.Context, messageID, emoji string) error
	AdvanceReadCursor(ctx context.Context, groupID, messageID string) error
	Members(ctx context.Context, groupID string) ([]models.Member, error)
	Profiles(ctx context.Context, userIDs []string) ([]models.Profile, error)
	ReactionsFor(ctx context.Context, groupID string, messageIDs []string) ([]models.Reaction, error)
	ReadsFor(ctx context.Context, groupID string, messageIDs []string) ([]models.ReadReceipt, error)
}

// Uploader stores attachment files and returns signed descriptors.
type Uploader interface {
	Upload(ctx context.Context, groupID string, upload Upload) (models.Attachment, error)
}

// Identity resolves the acting user when the session was not configured with
// one.
type Identity interface {
	CurrentUser(ctx context.Context) (UserInfo, error)
}

// Feed is one open realtime subscription for a group. Events ends when the
// feed closes.
type Feed interface {
	Events() <-chan models.GroupEvent
	SendTyping(typing bool) error
	Close() error
}

// FeedOpener opens realtime feeds per group.
type FeedOpener interface {
	Open(ctx context.Context, groupID string) (Feed, error)
}
