package models

import "errors"

// Realtime event classes broadcast over group websocket channels.
const (
	EventMessage         = "message"
	EventMessageDeleted  = "message_deleted"
	EventReactionAdded   = "reaction_added"
	EventReactionRemoved = "reaction_removed"
	EventReadAdded       = "read_added"
	EventMemberChanged   = "member_changed"
	EventProfileChanged  = "profile_changed"
	EventPresence        = "presence"
	EventTyping          = "typing"
)

var ErrInvalidEvent = errors.New("invalid group event")

// GroupEvent is the tagged union emitted over group websocket channels. Exactly
// the payload field matching Type is set.
type GroupEvent struct {
	Type      string       `json:"type"`
	GroupID   string       `json:"group_id,omitempty"`
	Message   *Message     `json:"message,omitempty"`
	MessageID string       `json:"message_id,omitempty"`
	Reaction  *Reaction    `json:"reaction,omitempty"`
	Receipt   *ReadReceipt `json:"receipt,omitempty"`
	Profile   *Profile     `json:"profile,omitempty"`
	UserID    string       `json:"user_id,omitempty"`
	Online    int          `json:"online,omitempty"`
	Typing    bool         `json:"typing,omitempty"`
}

// Validate checks that the event carries the payload its tag requires. Events
// arrive as loose JSON from the transport and must be validated before they
// reach session state.
func (e GroupEvent) Validate() error {
	switch e.Type {
	case EventMessage:
		if e.Message == nil {
			return ErrInvalidEvent
		}
	case EventMessageDeleted:
		if e.MessageID == "" {
			return ErrInvalidEvent
		}
	case EventReactionAdded, EventReactionRemoved:
		if e.Reaction == nil {
			return ErrInvalidEvent
		}
	case EventReadAdded:
		if e.Receipt == nil {
			return ErrInvalidEvent
		}
	case EventProfileChanged:
		if e.Profile == nil {
			return ErrInvalidEvent
		}
	case EventMemberChanged:
		if e.GroupID == "" {
			return ErrInvalidEvent
		}
	case EventPresence:
	case EventTyping:
		if e.UserID == "" {
			return ErrInvalidEvent
		}
	default:
		return ErrInvalidEvent
	}
	return nil
}
