package models

import (
	"strings"
	"time"
)

// PhantomPrefix marks locally generated placeholder message ids. Server ids are
// UUIDs, so prefixed ids can never collide with them.
const PhantomPrefix = "phantom-"

// Attachment describes a stored file referenced by a message.
type Attachment struct {
	Bucket      string `json:"bucket"`
	Path        string `json:"path"`
	URL         string `json:"url"`
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

// Message represents a group chat message.
type Message struct {
	ID          string       `db:"id" json:"id"`
	GroupID     string       `db:"group_id" json:"group_id"`
	AuthorID    string       `db:"author_id" json:"author_id"`
	Content     string       `db:"content" json:"content"`
	ReplyToID   *string      `db:"reply_to_id" json:"reply_to_id,omitempty"`
	Attachments []Attachment `db:"-" json:"attachments,omitempty"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
}

// IsPhantom reports whether the message is a local placeholder awaiting its
// authoritative row.
func (m Message) IsPhantom() bool {
	return strings.HasPrefix(m.ID, PhantomPrefix)
}
