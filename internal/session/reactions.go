package session

import "circles-service/internal/models"

// ReactionAggregate maps message id to emoji to the ordered set of reactors.
// A (message, user, emoji) triple appears at most once.
type ReactionAggregate struct {
	byMessage map[string]map[string][]string
}

// NewReactionAggregate creates an empty aggregate.
func NewReactionAggregate() *ReactionAggregate {
	return &ReactionAggregate{byMessage: make(map[string]map[string][]string)}
}

// Seed loads bulk-fetched reactions.
func (a *ReactionAggregate) Seed(reactions []models.Reaction) {
	for _, r := range reactions {
		a.Add(r.MessageID, r.Emoji, r.UserID)
	}
}

// Add records a reactor. Duplicate inserts are no-ops.
func (a *ReactionAggregate) Add(messageID, emoji, userID string) bool {
	emojis, ok := a.byMessage[messageID]
	if !ok {
		emojis = make(map[string][]string)
		a.byMessage[messageID] = emojis
	}
	for _, existing := range emojis[emoji] {
		if existing == userID {
			return false
		}
	}
	emojis[emoji] = append(emojis[emoji], userID)
	return true
}

// Remove drops a reactor. Removing an absent reactor is a no-op. The emoji key
// disappears once its reactor set empties.
func (a *ReactionAggregate) Remove(messageID, emoji, userID string) bool {
	emojis, ok := a.byMessage[messageID]
	if !ok {
		return false
	}
	reactors := emojis[emoji]
	for i, existing := range reactors {
		if existing == userID {
			reactors = append(reactors[:i], reactors[i+1:]...)
			if len(reactors) == 0 {
				delete(emojis, emoji)
				if len(emojis) == 0 {
					delete(a.byMessage, messageID)
				}
			} else {
				emojis[emoji] = reactors
			}
			return true
		}
	}
	return false
}

// HasReacted reports whether a user already reacted with the emoji.
func (a *ReactionAggregate) HasReacted(messageID, emoji, userID string) bool {
	for _, existing := range a.byMessage[messageID][emoji] {
		if existing == userID {
			return true
		}
	}
	return false
}

// Reactors returns the ordered reactor set for a message and emoji.
func (a *ReactionAggregate) Reactors(messageID, emoji string) []string {
	reactors := a.byMessage[messageID][emoji]
	out := make([]string, len(reactors))
	copy(out, reactors)
	return out
}

// Emojis returns the emoji keys present on a message.
func (a *ReactionAggregate) Emojis(messageID string) []string {
	var out []string
	for emoji := range a.byMessage[messageID] {
		out = append(out, emoji)
	}
	return out
}

// DropMessage clears all reactions for a deleted message.
func (a *ReactionAggregate) DropMessage(messageID string) {
	delete(a.byMessage, messageID)
}

// Reset drops all state for a group switch.
func (a *ReactionAggregate) Reset() {
	a.byMessage = make(map[string]map[string][]string)
}
