package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGroupEventValidate(t *testing.T) {
	msg := &Message{ID: "m1"}
	reaction := &Reaction{MessageID: "m1", UserID: "u1", Emoji: "👍"}
	receipt := &ReadReceipt{MessageID: "m1", UserID: "u1"}
	profile := &Profile{UserID: "u1"}

	valid := []GroupEvent{
		{Type: EventMessage, Message: msg},
		{Type: EventMessageDeleted, MessageID: "m1"},
		{Type: EventReactionAdded, Reaction: reaction},
		{Type: EventReactionRemoved, Reaction: reaction},
		{Type: EventReadAdded, Receipt: receipt},
		{Type: EventProfileChanged, Profile: profile},
		{Type: EventMemberChanged, GroupID: "g1"},
		{Type: EventPresence, Online: 3},
		{Type: EventTyping, UserID: "u1"},
	}
	for _, event := range valid {
		assert.NoError(t, event.Validate(), "type %s", event.Type)
	}

	invalid := []GroupEvent{
		{Type: EventMessage},
		{Type: EventMessageDeleted},
		{Type: EventReactionAdded},
		{Type: EventReadAdded},
		{Type: EventProfileChanged},
		{Type: EventMemberChanged},
		{Type: EventTyping},
		{Type: "bogus"},
		{},
	}
	for _, event := range invalid {
		assert.ErrorIs(t, event.Validate(), ErrInvalidEvent, "type %q", event.Type)
	}
}

func TestIsPhantom(t *testing.T) {
	assert.True(t, Message{ID: PhantomPrefix + "abc"}.IsPhantom())
	assert.False(t, Message{ID: "abc"}.IsPhantom())
}
