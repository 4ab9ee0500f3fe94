package session

import (
	"time"

	"circles-service/internal/models"
)

// MessageStore is the ordered in-memory message list for the active group.
// It holds no duplicate ids and stays ascending by (created_at, id). Callers
// serialize access; the store itself does no locking.
type MessageStore struct {
	messages []models.Message
	ids      map[string]struct{}
}

// NewMessageStore creates an empty store.
func NewMessageStore() *MessageStore {
	return &MessageStore{ids: make(map[string]struct{})}
}

// Insert adds a message in sorted position. Returns false when the id is
// already present.
func (s *MessageStore) Insert(msg models.Message) bool {
	if _, ok := s.ids[msg.ID]; ok {
		return false
	}
	s.ids[msg.ID] = struct{}{}

	pos := len(s.messages)
	for pos > 0 && less(msg, s.messages[pos-1]) {
		pos--
	}
	s.messages = append(s.messages, models.Message{})
	copy(s.messages[pos+1:], s.messages[pos:])
	s.messages[pos] = msg
	return true
}

// PrependPage merges an older page, skipping ids already loaded. Returns how
// many messages were added.
func (s *MessageStore) PrependPage(msgs []models.Message) int {
	added := 0
	for _, msg := range msgs {
		if s.Insert(msg) {
			added++
		}
	}
	return added
}

// Remove deletes a message by id.
func (s *MessageStore) Remove(id string) bool {
	if _, ok := s.ids[id]; !ok {
		return false
	}
	delete(s.ids, id)
	for i := range s.messages {
		if s.messages[i].ID == id {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			break
		}
	}
	return true
}

// RemoveMatchingPhantom drops the placeholder that the given authoritative
// message supersedes: same author, same content, created within the window.
func (s *MessageStore) RemoveMatchingPhantom(authoritative models.Message, window time.Duration) bool {
	for _, msg := range s.messages {
		if !msg.IsPhantom() {
			continue
		}
		if msg.AuthorID != authoritative.AuthorID || msg.Content != authoritative.Content {
			continue
		}
		delta := authoritative.CreatedAt.Sub(msg.CreatedAt)
		if delta < 0 {
			delta = -delta
		}
		if delta <= window {
			return s.Remove(msg.ID)
		}
	}
	return false
}

// Contains reports whether an id is loaded.
func (s *MessageStore) Contains(id string) bool {
	_, ok := s.ids[id]
	return ok
}

// Get returns a loaded message by id.
func (s *MessageStore) Get(id string) (models.Message, bool) {
	if _, ok := s.ids[id]; !ok {
		return models.Message{}, false
	}
	for _, msg := range s.messages {
		if msg.ID == id {
			return msg, true
		}
	}
	return models.Message{}, false
}

// Messages returns a copy of the list in display order.
func (s *MessageStore) Messages() []models.Message {
	out := make([]models.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len reports the number of loaded messages.
func (s *MessageStore) Len() int {
	return len(s.messages)
}

// Reset drops all state for a group switch.
func (s *MessageStore) Reset() {
	s.messages = nil
	s.ids = make(map[string]struct{})
}

func less(a, b models.Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
