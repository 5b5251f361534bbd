package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type fakeTracker struct {
	mu      sync.Mutex
	focus   map[string]string
	seen    []string
	forgot  []string
	seenErr error
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{focus: make(map[string]string)}
}

func (f *fakeTracker) SetFocus(_ context.Context, userID, counterpartID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.focus[userID] = counterpartID
}

func (f *fakeTracker) MarkSeen(_ context.Context, userID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, userID+":"+messageID)
	return f.seenErr
}

func (f *fakeTracker) Forget(userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forgot = append(f.forgot, userID)
}

func (f *fakeTracker) forgotten() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.forgot...)
}

// drain returns the last getOnlineUsers payload queued on c.
func drain(c *Client) []string {
	var last []string
	for {
		select {
		case msg := <-c.send:
			if msg.Type == EventGetOnlineUsers {
				last = msg.Payload.([]string)
			}
		default:
			return last
		}
	}
}

func TestBindAndUnbind(t *testing.T) {
	req := require.New(t)
	tr := newFakeTracker()
	h := NewHub(Config{})
	h.SetTracker(tr)

	a1 := NewClient(h, nil, "alice")
	a2 := NewClient(h, nil, "alice")
	b := NewClient(h, nil, "bob")

	h.addClient(a1)
	h.addClient(b)
	h.addClient(a2)
	req.True(h.IsOnline("alice"))
	req.Equal([]string{"alice", "bob"}, h.OnlineUsers())
	req.Equal([]string{"alice", "bob"}, drain(b))

	// закрытие одной из вкладок не делает пользователя offline
	h.removeClient(a1)
	req.True(h.IsOnline("alice"))
	req.Empty(tr.forgotten())

	h.removeClient(a2)
	req.False(h.IsOnline("alice"))
	req.Equal([]string{"alice"}, tr.forgotten())
	req.Equal([]string{"bob"}, drain(b))

	// повторный unbind — no-op, без второго broadcast
	h.removeClient(a2)
	req.Nil(drain(b))
	req.Equal([]string{"alice"}, tr.forgotten())
}

func TestDuplicateBind(t *testing.T) {
	req := require.New(t)
	h := NewHub(Config{})
	c := NewClient(h, nil, "alice")

	_, err := h.bind(c)
	req.NoError(err)
	_, err = h.bind(c)
	req.ErrorIs(err, ErrDuplicateBind)

	h.addClient(c)
	req.Nil(drain(c), "duplicate bind must not broadcast")
	req.Equal([]string{"alice"}, h.OnlineUsers())
}

func TestPerUserLimitEvictsOldest(t *testing.T) {
	req := require.New(t)
	h := NewHub(Config{MaxPerUser: 2})

	first := NewClient(h, nil, "alice")
	second := NewClient(h, nil, "alice")
	third := NewClient(h, nil, "alice")
	h.addClient(first)
	h.addClient(second)
	h.addClient(third)

	select {
	case <-first.done:
	default:
		t.Fatal("oldest connection was not closed")
	}
	req.Equal(2, h.total)
	req.Equal(2, h.PushToUser("alice", OutgoingMessage{Type: EventNewMessage}))
}

func TestHubFull(t *testing.T) {
	req := require.New(t)
	h := NewHub(Config{MaxConns: 1})
	a := NewClient(h, nil, "alice")
	b := NewClient(h, nil, "bob")

	h.addClient(a)
	h.addClient(b)
	req.False(h.IsOnline("bob"))
	select {
	case <-b.done:
	default:
		t.Fatal("rejected connection was not closed")
	}
}

func TestPushToUserOffline(t *testing.T) {
	h := NewHub(Config{})
	require.Equal(t, 0, h.PushToUser("nobody", OutgoingMessage{Type: EventNewMessage}))
}

func TestSlowClientClosed(t *testing.T) {
	req := require.New(t)
	h := NewHub(Config{SendBufferSize: 1})
	c := NewClient(h, nil, "alice")
	h.addClient(c) // getOnlineUsers fills the buffer

	req.Equal(0, h.PushToUser("alice", OutgoingMessage{Type: EventNewMessage}))
	select {
	case <-c.done:
	default:
		t.Fatal("slow client was not closed")
	}
}

func TestHandleMessageRoutesToTracker(t *testing.T) {
	req := require.New(t)
	tr := newFakeTracker()
	h := NewHub(Config{})
	h.SetTracker(tr)
	c := NewClient(h, nil, "alice")
	ctx := context.Background()

	h.HandleMessage(ctx, c, IncomingMessage{Type: EventFocusConversation, UserID: "bob"})
	req.Equal("bob", tr.focus["alice"])

	h.HandleMessage(ctx, c, IncomingMessage{Type: EventMarkSeen, MessageID: "m1"})
	req.Equal([]string{"alice:m1"}, tr.seen)

	h.HandleMessage(ctx, c, IncomingMessage{Type: "bogus"})
	msg := <-c.send
	req.Equal(EventError, msg.Type)
}

func TestWebSocketPresenceRoundTrip(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	h := NewHub(Config{})
	go h.Run(ctx)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		cctx, ccancel := context.WithCancel(ctx)
		c := NewClient(h, conn, r.URL.Query().Get("userId"))
		c.Start(cctx, ccancel)
		h.Register(c)
	}))
	defer srv.Close()

	dial := func(userID string) *websocket.Conn {
		url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?userId=" + userID
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		req.NoError(err)
		return conn
	}
	readOnline := func(conn *websocket.Conn) []string {
		req.NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
		_, raw, err := conn.ReadMessage()
		req.NoError(err)
		var frame struct {
			Type    EventType `json:"type"`
			Payload []string  `json:"payload"`
		}
		req.NoError(json.Unmarshal(raw, &frame))
		req.Equal(EventGetOnlineUsers, frame.Type)
		return frame.Payload
	}

	alice := dial("alice")
	defer alice.Close()
	req.Equal([]string{"alice"}, readOnline(alice))

	bob := dial("bob")
	req.Equal([]string{"alice", "bob"}, readOnline(alice))
	req.Equal([]string{"alice", "bob"}, readOnline(bob))

	bob.Close()
	req.Equal([]string{"alice"}, readOnline(alice))
	req.Eventually(func() bool { return !h.IsOnline("bob") }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-h.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("hub did not drain")
	}
}
