package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"circles-service/internal/models"
	"circles-service/internal/observability"
	"circles-service/internal/repositories"
	"circles-service/internal/telemetry"
	"circles-service/internal/ws"
)

// DefaultPageSize bounds the history page returned when no limit is given.
const DefaultPageSize = 30

// MessageHandler manages message history, sends, reactions and read receipts.
type MessageHandler struct {
	groupRepo    repositories.GroupRepository
	messageRepo  repositories.MessageRepository
	reactionRepo repositories.ReactionRepository
	readRepo     repositories.ReadRepository
	hub          *ws.Hub
	audit        *telemetry.AuditEmitter
}

// NewMessageHandler constructs a MessageHandler.
func NewMessageHandler(groupRepo repositories.GroupRepository, messageRepo repositories.MessageRepository, reactionRepo repositories.ReactionRepository, readRepo repositories.ReadRepository, hub *ws.Hub, audit *telemetry.AuditEmitter) *MessageHandler {
	return &MessageHandler{
		groupRepo:    groupRepo,
		messageRepo:  messageRepo,
		reactionRepo: reactionRepo,
		readRepo:     readRepo,
		hub:          hub,
		audit:        audit,
	}
}

// GetMessages returns one keyset page of messages, ascending by (created_at, id).
func (h *MessageHandler) GetMessages(c *gin.Context) {
	groupID := c.Param("group_id")
	userID := c.GetString("userID")

	if !h.requireMember(c, groupID, userID) {
		return
	}

	cursor, err := repositories.DecodeCursor(c.Query("cursor"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cursor"})
		return
	}

	limit := DefaultPageSize
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 100 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	msgs, hasMore, err := h.messageRepo.ListPage(c.Request.Context(), groupID, cursor, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	resp := gin.H{"messages": msgs, "has_more": hasMore}
	if hasMore && len(msgs) > 0 {
		oldest := msgs[0]
		next, err := repositories.EncodeCursor(repositories.Cursor{CreatedAt: oldest.CreatedAt, ID: oldest.ID})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode cursor"})
			return
		}
		resp["next_cursor"] = next
	}
	c.JSON(http.StatusOK, resp)
}

// PostMessage persists and broadcasts a group message.
func (h *MessageHandler) PostMessage(c *gin.Context) {
	groupID := c.Param("group_id")
	userID := c.GetString("userID")

	if !h.requireMember(c, groupID, userID) {
		return
	}

	var req struct {
		Content     string              `json:"content" binding:"required"`
		ReplyToID   *string             `json:"reply_to_id"`
		Attachments []models.Attachment `json:"attachments"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.messageRepo.CreateMessage(c.Request.Context(), groupID, userID, req.Content, req.ReplyToID, req.Attachments)
	if err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		return
	}

	observability.IncMessageStored()
	h.hub.BroadcastGroupEvent(groupID, models.GroupEvent{
		Type:    models.EventMessage,
		GroupID: groupID,
		Message: &msg,
	})
	h.emitAudit(c, "INFO", "Group message sent")
	c.JSON(http.StatusCreated, msg)
}

// DeleteMessage removes a message for everyone when invoked by the author.
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	groupID := c.Param("group_id")
	messageID := c.Param("message_id")
	userID := c.GetString("userID")

	if !h.requireMember(c, groupID, userID) {
		return
	}

	msg, err := h.messageRepo.GetMessage(c.Request.Context(), messageID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrMessageNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "message not found"})
		return
	}
	if msg.GroupID != groupID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message does not belong to group"})
		return
	}
	if msg.AuthorID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the author may delete"})
		return
	}

	if err := h.messageRepo.DeleteMessage(c.Request.Context(), messageID, userID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrMessageNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "could not delete message"})
		return
	}

	h.hub.BroadcastGroupEvent(groupID, models.GroupEvent{
		Type:      models.EventMessageDeleted,
		GroupID:   groupID,
		MessageID: messageID,
	})
	h.emitAudit(c, "INFO", "Group message deleted")
	c.Status(http.StatusNoContent)
}

// GetReactions bulk-loads reactions for the requested messages.
func (h *MessageHandler) GetReactions(c *gin.Context) {
	groupID := c.Param("group_id")
	userID := c.GetString("userID")

	if !h.requireMember(c, groupID, userID) {
		return
	}

	reactions, err := h.reactionRepo.ListForMessages(c.Request.Context(), groupID, c.QueryArray("message_ids"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load reactions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reactions": reactions})
}

// GetReads bulk-loads read receipts for the requested messages.
func (h *MessageHandler) GetReads(c *gin.Context) {
	groupID := c.Param("group_id")
	userID := c.GetString("userID")

	if !h.requireMember(c, groupID, userID) {
		return
	}

	receipts, err := h.readRepo.ListForMessages(c.Request.Context(), groupID, c.QueryArray("message_ids"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load read receipts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reads": receipts})
}

// ToggleReaction handles POST /rpc/toggle-reaction.
func (h *MessageHandler) ToggleReaction(c *gin.Context) {
	userID := c.GetString("userID")

	var req struct {
		MessageID string `json:"message_id" binding:"required"`
		Emoji     string `json:"emoji" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.messageRepo.GetMessage(c.Request.Context(), req.MessageID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrMessageNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "message not found"})
		return
	}
	if !h.requireMember(c, msg.GroupID, userID) {
		return
	}

	reaction, added, err := h.reactionRepo.Toggle(c.Request.Context(), req.MessageID, userID, req.Emoji)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not toggle reaction"})
		return
	}

	eventType := models.EventReactionRemoved
	if added {
		eventType = models.EventReactionAdded
	}
	h.hub.BroadcastGroupEvent(msg.GroupID, models.GroupEvent{
		Type:     eventType,
		GroupID:  msg.GroupID,
		Reaction: &reaction,
	})
	c.JSON(http.StatusOK, gin.H{"added": added})
}

// AdvanceReadCursor handles POST /rpc/advance-read-cursor, marking everything
// up to a message as read and broadcasting the receipts created.
func (h *MessageHandler) AdvanceReadCursor(c *gin.Context) {
	userID := c.GetString("userID")

	var req struct {
		GroupID   string `json:"group_id" binding:"required"`
		MessageID string `json:"message_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !h.requireMember(c, req.GroupID, userID) {
		return
	}

	receipts, err := h.readRepo.AdvanceCursor(c.Request.Context(), req.GroupID, userID, req.MessageID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not advance read cursor"})
		return
	}

	for i := range receipts {
		h.hub.BroadcastGroupEvent(req.GroupID, models.GroupEvent{
			Type:    models.EventReadAdded,
			GroupID: req.GroupID,
			Receipt: &receipts[i],
		})
	}
	c.JSON(http.StatusOK, gin.H{"marked": len(receipts)})
}

func (h *MessageHandler) requireMember(c *gin.Context, groupID, userID string) bool {
	member, err := h.groupRepo.IsMember(c.Request.Context(), groupID, userID)
	if err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "membership check failed"})
		return false
	}
	if !member {
		h.emitAudit(c, "ERROR", "not allowed")
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member"})
		return false
	}
	return true
}

func (h *MessageHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}
