package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"circles-service/internal/models"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func TestOpenReceivesEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/ws/groups/g1", r.URL.Path)
		require.Equal(t, "tok", r.URL.Query().Get("token"))

		conn, err := testUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		event := models.GroupEvent{Type: models.EventPresence, GroupID: "g1", Online: 2}
		require.NoError(t, conn.WriteJSON(event))

		// hold the connection open until the client hangs up
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "tok")
	feed, err := client.Open(context.Background(), "g1")
	require.NoError(t, err)
	defer feed.Close()

	select {
	case event := <-feed.Events():
		assert.Equal(t, models.EventPresence, event.Type)
		assert.Equal(t, 2, event.Online)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestSendTypingFrame(t *testing.T) {
	frames := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		_, data, err := conn.ReadMessage()
		if err == nil {
			frames <- data
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "tok")
	feed, err := client.Open(context.Background(), "g1")
	require.NoError(t, err)
	defer feed.Close()

	require.NoError(t, feed.SendTyping(true))

	select {
	case data := <-frames:
		var frame struct {
			Type   string `json:"type"`
			Typing bool   `json:"typing"`
		}
		require.NoError(t, json.Unmarshal(data, &frame))
		assert.Equal(t, models.EventTyping, frame.Type)
		assert.True(t, frame.Typing)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for typing frame")
	}
}

func TestCloseReleasesReadLoopWithoutConsumer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		// overflow the feed buffer so the read loop blocks on the send
		event := models.GroupEvent{Type: models.EventPresence, GroupID: "g1", Online: 1}
		for i := 0; i < 64; i++ {
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "tok")
	feed, err := client.Open(context.Background(), "g1")
	require.NoError(t, err)

	// give the read loop time to fill the buffer and block
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, feed.Close())

	require.Eventually(t, func() bool {
		buf := make([]byte, 1<<20)
		stacks := string(buf[:runtime.Stack(buf, true)])
		return !strings.Contains(stacks, "(*groupFeed).readLoop")
	}, 2*time.Second, 20*time.Millisecond, "read loop still running after Close")
}

func TestEventsChannelClosesOnDisconnect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		conn.Close()
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "tok")
	feed, err := client.Open(context.Background(), "g1")
	require.NoError(t, err)

	select {
	case _, ok := <-feed.Events():
		assert.False(t, ok, "expected channel close, not an event")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel close")
	}
}
