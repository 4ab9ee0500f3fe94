package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"circles-service/internal/models"
	"circles-service/internal/session"
)

// Client opens group event feeds against a running service. It implements
// session.FeedOpener.
type Client struct {
	// BaseURL is the service root, e.g. "https://circles.example.com".
	BaseURL string
	// Token is the bearer token presented during the handshake.
	Token string
	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer
}

// NewClient constructs a feed client for the given service root and token.
func NewClient(baseURL, token string) *Client {
	return &Client{BaseURL: baseURL, Token: token}
}

// Open dials the group's websocket endpoint and returns a live feed.
func (c *Client) Open(ctx context.Context, groupID string) (session.Feed, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws/groups/" + groupID
	q := u.Query()
	q.Set("token", c.Token)
	u.RawQuery = q.Encode()

	dialer := c.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial group feed: %w", err)
	}

	feed := &groupFeed{
		conn:   conn,
		events: make(chan models.GroupEvent, 32),
		done:   make(chan struct{}),
	}
	go feed.readLoop()
	return feed, nil
}

// groupFeed is one open websocket subscription.
type groupFeed struct {
	conn    *websocket.Conn
	events  chan models.GroupEvent
	done    chan struct{}
	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// Events returns the inbound event stream. The channel closes when the
// connection drops or Close is called.
func (f *groupFeed) Events() <-chan models.GroupEvent {
	return f.events
}

// SendTyping relays the local typing state to the room.
func (f *groupFeed) SendTyping(typing bool) error {
	frame := struct {
		Type   string `json:"type"`
		Typing bool   `json:"typing"`
	}{Type: models.EventTyping, Typing: typing}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	return f.conn.WriteJSON(frame)
}

// Close shuts the connection down and releases the read loop. The event
// channel closes once the loop exits, even with no consumer left.
func (f *groupFeed) Close() error {
	f.closeOnce.Do(func() {
		close(f.done)
		f.closeErr = f.conn.Close()
	})
	return f.closeErr
}

func (f *groupFeed) readLoop() {
	defer close(f.events)
	for {
		_, data, err := f.conn.ReadMessage()
		if err != nil {
			f.Close()
			return
		}
		var event models.GroupEvent
		if err := json.Unmarshal(data, &event); err != nil {
			log.Printf("realtime: dropping malformed frame: %v", err)
			continue
		}
		// a consumer that stopped receiving must not pin this goroutine
		select {
		case f.events <- event:
		case <-f.done:
			return
		}
	}
}
