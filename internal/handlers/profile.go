package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"circles-service/internal/models"
	"circles-service/internal/repositories"
	"circles-service/internal/ws"
)

// ProfileHandler serves profile reads and updates.
type ProfileHandler struct {
	profileRepo repositories.ProfileRepository
	groupRepo   repositories.GroupRepository
	hub         *ws.Hub
}

// NewProfileHandler constructs a ProfileHandler.
func NewProfileHandler(profileRepo repositories.ProfileRepository, groupRepo repositories.GroupRepository, hub *ws.Hub) *ProfileHandler {
	return &ProfileHandler{profileRepo: profileRepo, groupRepo: groupRepo, hub: hub}
}

// GetProfiles bulk-loads profiles by id.
func (h *ProfileHandler) GetProfiles(c *gin.Context) {
	profiles, err := h.profileRepo.GetProfiles(c.Request.Context(), c.QueryArray("ids"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load profiles"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"profiles": profiles})
}

// UpdateMyProfile upserts the caller's profile and broadcasts the change to
// every group room, since profile events are system-wide.
func (h *ProfileHandler) UpdateMyProfile(c *gin.Context) {
	userID := c.GetString("userID")

	var req struct {
		DisplayName string `json:"display_name" binding:"required"`
		AvatarURL   string `json:"avatar_url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	profile, err := h.profileRepo.UpsertProfile(c.Request.Context(), models.Profile{
		UserID:      userID,
		DisplayName: req.DisplayName,
		AvatarURL:   req.AvatarURL,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update profile"})
		return
	}

	h.hub.BroadcastAll(models.GroupEvent{
		Type:    models.EventProfileChanged,
		Profile: &profile,
	})
	c.JSON(http.StatusOK, profile)
}
