package ws

import (
	"time"

	"circles-service/internal/observability"
)

// ConnInfo carries per-connection identity captured at handshake time. It
// follows the connection through the hub so disconnect and error events can be
// correlated back to the originating request.
type ConnInfo struct {
	ConnID      string
	UserID      string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

func (i ConnInfo) clientMeta() observability.ClientMeta {
	return observability.ClientMeta{
		UserID:    i.UserID,
		DeviceID:  i.DeviceID,
		IP:        i.IP,
		RequestID: i.RequestID,
		TraceID:   i.TraceID,
	}
}
