package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/quickchat/internal/config"
	"github.com/quickchat/internal/media"
	"github.com/quickchat/internal/model"
	"github.com/quickchat/internal/service"
	"github.com/quickchat/internal/storage/memory"
	"github.com/quickchat/internal/ws"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	t   *testing.T
	srv *httptest.Server
	hub *ws.Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := &config.Config{
		MaxBodySize:        10 << 20,
		MaxImageSize:       2 << 20,
		MaxWSPerUser:       5,
		TokenTTL:           time.Hour,
		CORSAllowedOrigins: "*",
		AllowQueryUserID:   true,
	}
	store := newMemStore()
	users, messages := memUsers{store}, memMessages{store}
	images := media.New(t.TempDir(), cfg.MaxImageSize)

	hub := ws.NewHub(ws.Config{MaxPerUser: cfg.MaxWSPerUser})
	unseen := service.NewUnseenReconciler(messages, hub)
	hub.SetTracker(unseen)
	authSvc := service.NewAuthService(users, memory.New(10, time.Minute), images, "test-secret", cfg.TokenTTL)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(NewRouter(Deps{
		Cfg:      cfg,
		Auth:     authSvc,
		Users:    users,
		Delivery: service.NewDeliveryService(users, messages, images, hub, unseen),
		Unseen:   unseen,
		Hub:      hub,
		Media:    images,
	}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-hub.Done()
	})
	return &testServer{t: t, srv: srv, hub: hub}
}

func (s *testServer) do(method, path, token string, body any, out any) int {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.srv.URL+path, &buf)
	require.NoError(s.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(s.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

type authBody struct {
	Success  bool             `json:"success"`
	Token    string           `json:"token"`
	UserData model.UserPublic `json:"userData"`
	Message  string           `json:"message"`
}

func (s *testServer) signup(name string) authBody {
	s.t.Helper()
	var res authBody
	code := s.do(http.MethodPost, "/api/auth/signup", "", map[string]string{
		"fullName": name,
		"email":    strings.ToLower(name) + "@example.com",
		"password": "secret1",
	}, &res)
	require.Equal(s.t, http.StatusCreated, code)
	require.True(s.t, res.Success)
	return res
}

func (s *testServer) dial(token string) *websocket.Conn {
	s.t.Helper()
	url := "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(s.t, err)
	s.t.Cleanup(func() { conn.Close() })
	return conn
}

type frame struct {
	Type    ws.EventType    `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// waitFor читает кадры до первого с нужным типом.
func waitFor(t *testing.T, conn *websocket.Conn, typ ws.EventType) json.RawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)
		var f frame
		require.NoError(t, json.Unmarshal(raw, &f))
		if f.Type == typ {
			return f.Payload
		}
	}
}

func TestStatusAndHealth(t *testing.T) {
	s := newTestServer(t)
	resp, err := http.Get(s.srv.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	require.Equal(t, "Server is Online", buf.String())
}

func TestAuthFlow(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t)
	alice := s.signup("Alice")

	var check struct {
		Success bool             `json:"success"`
		User    model.UserPublic `json:"user"`
	}
	req.Equal(http.StatusOK, s.do(http.MethodGet, "/api/auth/check", alice.Token, nil, &check))
	req.Equal(alice.UserData.ID, check.User.ID)

	var fail map[string]any
	req.Equal(http.StatusUnauthorized, s.do(http.MethodGet, "/api/auth/check", "garbage", nil, &fail))
	req.Equal("Not authorized", fail["message"])
	req.Equal(http.StatusUnauthorized, s.do(http.MethodGet, "/api/auth/check", "", nil, nil))

	req.Equal(http.StatusConflict, s.do(http.MethodPost, "/api/auth/signup", "", map[string]string{
		"fullName": "Alice", "email": "alice@example.com", "password": "secret1",
	}, nil))

	var login authBody
	req.Equal(http.StatusOK, s.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "secret1",
	}, &login))
	req.Equal(alice.UserData.ID, login.UserData.ID)
	req.Equal(http.StatusUnauthorized, s.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "nope",
	}, nil))

	var updated struct {
		Success bool             `json:"success"`
		User    model.UserPublic `json:"user"`
	}
	req.Equal(http.StatusOK, s.do(http.MethodPut, "/api/auth/update-profile", alice.Token, map[string]string{
		"fullName": "Alice Liddell", "bio": "down the rabbit hole",
	}, &updated))
	req.Equal("Alice Liddell", updated.User.FullName)
}

func TestSendHistoryMarkRoundTrip(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t)
	alice, bob := s.signup("Alice"), s.signup("Bob")

	var sent struct {
		Success    bool          `json:"success"`
		NewMessage model.Message `json:"newMessage"`
	}
	req.Equal(http.StatusCreated, s.do(http.MethodPost, "/api/messages/send/"+bob.UserData.ID, alice.Token,
		map[string]string{"text": "hi"}, &sent))
	req.False(sent.NewMessage.Seen)

	var sidebar struct {
		Users          []model.UserPublic `json:"users"`
		UnseenMessages map[string]int     `json:"unseenMessages"`
	}
	req.Equal(http.StatusOK, s.do(http.MethodGet, "/api/messages/users", bob.Token, nil, &sidebar))
	req.Len(sidebar.Users, 1)
	req.Equal(map[string]int{alice.UserData.ID: 1}, sidebar.UnseenMessages)

	// только получатель может отметить сообщение
	req.Equal(http.StatusForbidden, s.do(http.MethodPut, "/api/messages/mark/"+sent.NewMessage.ID, alice.Token, nil, nil))
	req.Equal(http.StatusOK, s.do(http.MethodPut, "/api/messages/mark/"+sent.NewMessage.ID, bob.Token, nil, nil))
	req.Equal(http.StatusNotFound, s.do(http.MethodPut, "/api/messages/mark/missing", bob.Token, nil, nil))

	var hist struct {
		Messages []model.Message `json:"messages"`
	}
	req.Equal(http.StatusOK, s.do(http.MethodGet, "/api/messages/"+alice.UserData.ID, bob.Token, nil, &hist))
	req.Len(hist.Messages, 1)
	req.Equal(sent.NewMessage.ID, hist.Messages[0].ID)
	req.True(hist.Messages[0].Seen)

	var after struct {
		UnseenMessages map[string]int `json:"unseenMessages"`
	}
	req.Equal(http.StatusOK, s.do(http.MethodGet, "/api/messages/users", bob.Token, nil, &after))
	req.Empty(after.UnseenMessages)
}

func TestSendErrors(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t)
	alice := s.signup("Alice")
	bob := s.signup("Bob")

	req.Equal(http.StatusBadRequest, s.do(http.MethodPost, "/api/messages/send/"+bob.UserData.ID, alice.Token,
		map[string]string{}, nil))
	req.Equal(http.StatusBadRequest, s.do(http.MethodPost, "/api/messages/send/"+alice.UserData.ID, alice.Token,
		map[string]string{"text": "me"}, nil))
	req.Equal(http.StatusNotFound, s.do(http.MethodPost, "/api/messages/send/ghost", alice.Token,
		map[string]string{"text": "boo"}, nil))
	req.Equal(http.StatusUnauthorized, s.do(http.MethodPost, "/api/messages/send/"+bob.UserData.ID, "",
		map[string]string{"text": "anon"}, nil))
}

func TestRealtimeDeliveryAndPresence(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t)
	alice, bob := s.signup("Alice"), s.signup("Bob")

	bobConn := s.dial(bob.Token)
	var online []string
	req.NoError(json.Unmarshal(waitFor(t, bobConn, ws.EventGetOnlineUsers), &online))
	req.Equal([]string{bob.UserData.ID}, online)

	var sent struct {
		NewMessage model.Message `json:"newMessage"`
	}
	req.Equal(http.StatusCreated, s.do(http.MethodPost, "/api/messages/send/"+bob.UserData.ID, alice.Token,
		map[string]string{"text": "hello"}, &sent))

	var pushed model.Message
	req.NoError(json.Unmarshal(waitFor(t, bobConn, ws.EventNewMessage), &pushed))
	req.Equal(sent.NewMessage.ID, pushed.ID)

	var count ws.UnseenCountPayload
	req.NoError(json.Unmarshal(waitFor(t, bobConn, ws.EventUnseenCount), &count))
	req.Equal(ws.UnseenCountPayload{UserID: alice.UserData.ID, Count: 1}, count)

	// отметка через сокет
	req.NoError(bobConn.WriteJSON(ws.IncomingMessage{Type: ws.EventMarkSeen, MessageID: pushed.ID}))
	req.NoError(json.Unmarshal(waitFor(t, bobConn, ws.EventUnseenCount), &count))
	req.Equal(0, count.Count)

	// вторая вкладка alice и её закрытие
	aliceConn := s.dial(alice.Token)
	req.NoError(json.Unmarshal(waitFor(t, bobConn, ws.EventGetOnlineUsers), &online))
	req.ElementsMatch([]string{alice.UserData.ID, bob.UserData.ID}, online)

	aliceConn.Close()
	req.NoError(json.Unmarshal(waitFor(t, bobConn, ws.EventGetOnlineUsers), &online))
	req.Equal([]string{bob.UserData.ID}, online)
}

func TestWebSocketRejectsWithoutIdentity(t *testing.T) {
	s := newTestServer(t)
	url := "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(url+"?userId=ghost", nil)
	require.Error(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
