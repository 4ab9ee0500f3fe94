package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"circles-service/internal/models"
)

// SendMessage runs the optimistic send pipeline: append a phantom placeholder
// immediately, upload attachments one by one, then post the message. Any
// failure removes the placeholder; on success the placeholder stays until the
// authoritative message arrives on the feed and reconciles it away.
func (s *Session) SendMessage(ctx context.Context, content string, replyToID *string, uploads []Upload) error {
	if content == "" && len(uploads) == 0 {
		return nil
	}

	userID, err := s.resolveUserID(ctx)
	if err != nil {
		return err
	}
	if userID == "" {
		// No identity available. Nothing to attribute the message to.
		return nil
	}

	s.mu.Lock()
	groupID := s.groupID
	if groupID == "" {
		s.mu.Unlock()
		return nil
	}
	phantom := models.Message{
		ID:        models.PhantomPrefix + uuid.NewString(),
		GroupID:   groupID,
		AuthorID:  userID,
		Content:   content,
		ReplyToID: replyToID,
		CreatedAt: time.Now().UTC(),
	}
	s.store.Insert(phantom)
	scroll := s.OnScrollToEnd
	s.mu.Unlock()

	if scroll != nil {
		scroll()
	}

	attachments := make([]models.Attachment, 0, len(uploads))
	for _, upload := range uploads {
		attachment, err := s.uploader.Upload(ctx, groupID, upload)
		if err != nil {
			s.removePhantom(phantom.ID)
			return fmt.Errorf("upload %s: %w", upload.Name, err)
		}
		attachments = append(attachments, attachment)
	}

	if err := s.backend.SendMessage(ctx, groupID, content, replyToID, attachments); err != nil {
		s.removePhantom(phantom.ID)
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func (s *Session) removePhantom(id string) {
	s.mu.Lock()
	s.store.Remove(id)
	s.mu.Unlock()
}
