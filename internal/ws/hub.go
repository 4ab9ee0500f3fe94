package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"circles-service/internal/models"
	"circles-service/internal/observability"
)

// Hub maintains active websocket rooms, one per group.
type Hub struct {
	groupRooms    map[string]map[*websocket.Conn]bool
	groupConnInfo map[string]map[*websocket.Conn]ConnInfo
	mu            sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		groupRooms:    make(map[string]map[*websocket.Conn]bool),
		groupConnInfo: make(map[string]map[*websocket.Conn]ConnInfo),
	}
}

// AddGroupClient registers a websocket connection to a group room.
func (h *Hub) AddGroupClient(groupID string, conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.groupRooms[groupID]; !ok {
		h.groupRooms[groupID] = make(map[*websocket.Conn]bool)
	}
	h.groupRooms[groupID][conn] = true
	if _, ok := h.groupConnInfo[groupID]; !ok {
		h.groupConnInfo[groupID] = make(map[*websocket.Conn]ConnInfo)
	}
	h.groupConnInfo[groupID][conn] = info
}

// RemoveGroupClient removes a group websocket connection.
func (h *Hub) RemoveGroupClient(groupID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.groupRooms[groupID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.groupRooms, groupID)
		}
	}
	if infos, ok := h.groupConnInfo[groupID]; ok {
		delete(infos, conn)
		if len(infos) == 0 {
			delete(h.groupConnInfo, groupID)
		}
	}
}

// OnlineCount reports the number of distinct users connected to a group.
func (h *Hub) OnlineCount(groupID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	users := make(map[string]struct{})
	for _, info := range h.groupConnInfo[groupID] {
		users[info.UserID] = struct{}{}
	}
	return len(users)
}

// BroadcastGroupEvent sends an event to all clients in a group.
func (h *Hub) BroadcastGroupEvent(groupID string, event models.GroupEvent) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.groupRooms[groupID]))
	for conn := range h.groupRooms[groupID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	payload, _ := json.Marshal(event)
	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.Printf("websocket write error: %v", err)
			conn.Close()
			h.publishWSError(groupID, conn, err)
			h.RemoveGroupClient(groupID, conn)
		}
	}
}

// BroadcastAll sends an event to every room. Profile changes are system-wide.
func (h *Hub) BroadcastAll(event models.GroupEvent) {
	h.mu.RLock()
	groupIDs := make([]string, 0, len(h.groupRooms))
	for groupID := range h.groupRooms {
		groupIDs = append(groupIDs, groupID)
	}
	h.mu.RUnlock()

	for _, groupID := range groupIDs {
		h.BroadcastGroupEvent(groupID, event)
	}
}

// BroadcastPresence pushes the current online count to a group.
func (h *Hub) BroadcastPresence(groupID string) {
	h.BroadcastGroupEvent(groupID, models.GroupEvent{
		Type:    models.EventPresence,
		GroupID: groupID,
		Online:  h.OnlineCount(groupID),
	})
}

// BroadcastTyping relays an ephemeral typing indicator. It is never persisted.
func (h *Hub) BroadcastTyping(groupID, userID string, typing bool) {
	h.BroadcastGroupEvent(groupID, models.GroupEvent{
		Type:    models.EventTyping,
		GroupID: groupID,
		UserID:  userID,
		Typing:  typing,
	})
}

func (h *Hub) publishWSError(groupID string, conn *websocket.Conn, err error) {
	info, ok := h.getConnInfo(groupID, conn)
	if !ok {
		return
	}

	_ = observability.PublishEvent(context.Background(),
		observability.NewGroupSocketEvent("ws_error", groupID, info.ConnID, info.clientMeta(),
			time.Since(info.ConnectedAt).Milliseconds(), err.Error()))
	observability.IncWSEvent("group", "ws_error")
}

func (h *Hub) getConnInfo(groupID string, conn *websocket.Conn) (ConnInfo, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if infos, ok := h.groupConnInfo[groupID]; ok {
		info, exists := infos[conn]
		return info, exists
	}
	return ConnInfo{}, false
}
