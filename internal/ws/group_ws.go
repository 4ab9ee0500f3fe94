package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"golang.org/x/time/rate"

	"circles-service/internal/models"
	"circles-service/internal/observability"
	"circles-service/internal/repositories"
	"circles-service/internal/security"
)

// GroupWebSocketHandler handles group websocket connections.
type GroupWebSocketHandler struct {
	hub       *Hub
	groupRepo repositories.GroupRepository
	verifier  *security.TokenVerifier
}

// NewGroupWebSocketHandler constructs a GroupWebSocketHandler.
func NewGroupWebSocketHandler(hub *Hub, groupRepo repositories.GroupRepository, verifier *security.TokenVerifier) *GroupWebSocketHandler {
	return &GroupWebSocketHandler{hub: hub, groupRepo: groupRepo, verifier: verifier}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// inbound is the only client-to-server frame shape: ephemeral typing state.
type inbound struct {
	Type   string `json:"type"`
	Typing bool   `json:"typing"`
}

// Handle upgrades the connection and registers the client with the group room.
func (h *GroupWebSocketHandler) Handle(c *gin.Context) {
	groupID := c.Param("group_id")
	if groupID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group id"})
		return
	}

	ctx, span := otel.Tracer("circles-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := c.GetHeader("Authorization")
	if token == "" {
		token = c.Query("token")
		if token != "" {
			token = "Bearer " + token
		}
	}

	userID, err := h.validateToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	member, err := h.groupRepo.IsMember(c.Request.Context(), groupID, userID)
	if err != nil || !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not authorized for group"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	client := observability.ClientMetaFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		DeviceID:    client.DeviceID,
		IP:          client.IP,
		RequestID:   client.RequestID,
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	h.hub.AddGroupClient(groupID, conn, info)
	h.hub.BroadcastPresence(groupID)

	observability.IncWSActive("group")
	observability.IncWSEvent("group", "ws_connect")
	h.publishLifecycle(ctx, "ws_connect", groupID, info, 0, "")

	go h.readLoop(ctx, groupID, conn, info)
}

func (h *GroupWebSocketHandler) readLoop(ctx context.Context, groupID string, conn *websocket.Conn, info ConnInfo) {
	// typing relays are cheap to send but fan out to the whole room
	typingLimiter := rate.NewLimiter(rate.Limit(2), 4)

	var closeReason string
	defer func() {
		h.hub.RemoveGroupClient(groupID, conn)
		h.hub.BroadcastPresence(groupID)
		observability.DecWSActive("group")
		observability.IncWSEvent("group", "ws_disconnect")
		h.publishLifecycle(ctx, "ws_disconnect", groupID, info,
			time.Since(info.ConnectedAt).Milliseconds(), closeReason)
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("group", "ws_error")
				h.publishLifecycle(ctx, "ws_error", groupID, info,
					time.Since(info.ConnectedAt).Milliseconds(), closeReason)
			}
			return
		}

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type == models.EventTyping && typingLimiter.Allow() {
			h.hub.BroadcastTyping(groupID, info.UserID, msg.Typing)
		}
	}
}

func (h *GroupWebSocketHandler) publishLifecycle(ctx context.Context, event, groupID string, info ConnInfo, durationMS int64, reason string) {
	_ = observability.PublishEvent(ctx,
		observability.NewGroupSocketEvent(event, groupID, info.ConnID, info.clientMeta(), durationMS, reason))
}

func (h *GroupWebSocketHandler) validateToken(header string) (string, error) {
	parts := strings.Split(header, " ")
	if len(parts) == 2 {
		claims, err := h.verifier.Verify(parts[1])
		if err != nil {
			return "", err
		}
		return claims.Subject, nil
	}
	return "", fmt.Errorf("invalid token")
}
