package session

// ReadAggregate maps message id to the set of users who read it. The message
// author is never counted; a self-read event is ignored.
type ReadAggregate struct {
	byMessage map[string]map[string]struct{}
}

// NewReadAggregate creates an empty aggregate.
func NewReadAggregate() *ReadAggregate {
	return &ReadAggregate{byMessage: make(map[string]map[string]struct{})}
}

// AddReceipt records a reader for a message. Returns false for duplicates and
// self-reads.
func (a *ReadAggregate) AddReceipt(messageID, readerID, authorID string) bool {
	if readerID == authorID {
		return false
	}
	readers, ok := a.byMessage[messageID]
	if !ok {
		readers = make(map[string]struct{})
		a.byMessage[messageID] = readers
	}
	if _, dup := readers[readerID]; dup {
		return false
	}
	readers[readerID] = struct{}{}
	return true
}

// SeenBy reports how many users other than the author read the message.
func (a *ReadAggregate) SeenBy(messageID string) int {
	return len(a.byMessage[messageID])
}

// Readers returns the reader set for a message.
func (a *ReadAggregate) Readers(messageID string) []string {
	var out []string
	for reader := range a.byMessage[messageID] {
		out = append(out, reader)
	}
	return out
}

// DropMessage clears all receipts for a deleted message.
func (a *ReadAggregate) DropMessage(messageID string) {
	delete(a.byMessage, messageID)
}

// Reset drops all state for a group switch.
func (a *ReadAggregate) Reset() {
	a.byMessage = make(map[string]map[string]struct{})
}
