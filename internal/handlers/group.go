package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"circles-service/internal/models"
	"circles-service/internal/repositories"
	"circles-service/internal/telemetry"
	"circles-service/internal/ws"
)

// GroupHandler manages group discovery and membership endpoints.
type GroupHandler struct {
	groupRepo repositories.GroupRepository
	hub       *ws.Hub
	audit     *telemetry.AuditEmitter
}

// NewGroupHandler constructs a GroupHandler.
func NewGroupHandler(groupRepo repositories.GroupRepository, hub *ws.Hub, audit *telemetry.AuditEmitter) *GroupHandler {
	return &GroupHandler{groupRepo: groupRepo, hub: hub, audit: audit}
}

// ListGroups returns discoverable groups. Join codes are stripped from the
// listing; only members learn them.
func (h *GroupHandler) ListGroups(c *gin.Context) {
	groups, err := h.groupRepo.ListGroups(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load groups"})
		return
	}
	for i := range groups {
		groups[i].JoinCode = ""
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

// ListMembers returns the membership list for a group.
func (h *GroupHandler) ListMembers(c *gin.Context) {
	groupID := c.Param("group_id")
	userID := c.GetString("userID")

	member, err := h.groupRepo.IsMember(c.Request.Context(), groupID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "membership check failed"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member"})
		return
	}

	members, err := h.groupRepo.ListMembers(c.Request.Context(), groupID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load members"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

// JoinGroup handles POST /rpc/join-group, resolving an invite code.
func (h *GroupHandler) JoinGroup(c *gin.Context) {
	userID := c.GetString("userID")

	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	group, err := h.groupRepo.GetGroupByJoinCode(c.Request.Context(), req.Code)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrGroupNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "invalid join code"})
		return
	}

	if err := h.groupRepo.AddMember(c.Request.Context(), group.ID, userID, "member"); err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not join group"})
		return
	}

	h.hub.BroadcastGroupEvent(group.ID, models.GroupEvent{
		Type:    models.EventMemberChanged,
		GroupID: group.ID,
		UserID:  userID,
	})
	h.emitAudit(c, "INFO", "Group joined")
	c.JSON(http.StatusOK, gin.H{"group_id": group.ID})
}

func (h *GroupHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}
