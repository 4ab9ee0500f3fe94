package observability

import "time"

// GroupSocketRoutingKey is the stream group connection lifecycle events are
// published on.
const GroupSocketRoutingKey = "ws_events.groups"

// GroupSocketEvent is the envelope published for every group websocket
// lifecycle transition: connect, disconnect and write errors.
type GroupSocketEvent struct {
	EventType  string     `json:"event_type"`
	EventName  string     `json:"event_name"`
	Service    string     `json:"service"`
	OccurredAt time.Time  `json:"occurred_at"`
	Socket     SocketMeta `json:"socket"`
	Client     ClientMeta `json:"client"`
}

// SocketMeta describes the connection the event is about.
type SocketMeta struct {
	GroupID    string `json:"group_id"`
	ConnID     string `json:"conn_id"`
	DurationMS int64  `json:"duration_ms"`
	Reason     string `json:"reason,omitempty"`
}

// ClientMeta identifies the connected client. RequestID and TraceID travel as
// message headers, not in the body.
type ClientMeta struct {
	UserID    string `json:"user_id"`
	DeviceID  string `json:"device_id,omitempty"`
	IP        string `json:"ip,omitempty"`
	RequestID string `json:"-"`
	TraceID   string `json:"-"`
}

// NewGroupSocketEvent stamps a lifecycle event for the given connection.
func NewGroupSocketEvent(name, groupID, connID string, client ClientMeta, durationMS int64, reason string) GroupSocketEvent {
	return GroupSocketEvent{
		EventType:  "ws_events",
		EventName:  name,
		Service:    "circles-service",
		OccurredAt: time.Now().UTC(),
		Socket: SocketMeta{
			GroupID:    groupID,
			ConnID:     connID,
			DurationMS: durationMS,
			Reason:     reason,
		},
		Client: client,
	}
}

// Headers returns the AMQP headers correlating the event with its originating
// request and trace.
func (e GroupSocketEvent) Headers() map[string]string {
	headers := map[string]string{"x-service": e.Service}
	if e.Client.RequestID != "" {
		headers["x-request-id"] = e.Client.RequestID
	}
	if e.Client.TraceID != "" {
		headers["trace_id"] = e.Client.TraceID
	}
	return headers
}
