package ws

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/quickchat/internal/logger"
	"github.com/quickchat/internal/metrics"
)

var (
	ErrDuplicateBind = errors.New("connection already bound")
	ErrHubFull       = errors.New("connection limit reached")
)

// Tracker receives per-user conversation events from sockets.
// Implemented by the unseen-count reconciler.
type Tracker interface {
	SetFocus(ctx context.Context, userID, counterpartID string)
	MarkSeen(ctx context.Context, userID, messageID string) error
	Forget(userID string)
}

// Config bounds the hub and its clients. Zero values fall back to defaults.
type Config struct {
	MaxConns       int
	MaxPerUser     int
	SendBufferSize int
	WriteWait      time.Duration
	PongWait       time.Duration
	MaxMessageSize int64
}

func (c Config) withDefaults() Config {
	if c.MaxConns <= 0 {
		c.MaxConns = 10000
	}
	if c.MaxPerUser <= 0 {
		c.MaxPerUser = 5
	}
	if c.SendBufferSize <= 0 {
		c.SendBufferSize = 256
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 4096
	}
	return c
}

// Hub is the presence registry: user id → set of live connections.
// All bind/unbind mutations run on the Run goroutine, each followed by exactly one
// online-set broadcast computed after the mutation.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]uint64 // value: bind sequence, lowest is oldest
	seq     uint64
	total   int

	cfg     Config
	tracker Tracker

	register   chan *Client
	unregister chan *Client
	stopping   chan struct{}
	stopOnce   sync.Once
	done       chan struct{}
}

func NewHub(cfg Config) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]uint64),
		cfg:        cfg.withDefaults(),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		stopping:   make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// SetTracker must be called before Run.
func (h *Hub) SetTracker(t Tracker) {
	h.tracker = t
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

// Done is closed once Run has drained every connection.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

func (h *Hub) shutdown() {
	h.stopOnce.Do(func() { close(h.stopping) })

	// Collect all clients under the lock, do NOT perform I/O under mutex.
	h.mu.Lock()
	allClients := make([]*Client, 0, h.total)
	for _, clients := range h.clients {
		for c := range clients {
			allClients = append(allClients, c)
		}
	}
	h.clients = make(map[string]map[*Client]uint64)
	h.total = 0
	h.mu.Unlock()

	for _, c := range allClients {
		c.Close()
	}
	for _, c := range allClients {
		c.Wait()
	}
	metrics.WSConnections.Set(0)
	metrics.OnlineUsers.Set(0)
	logger.Infof("ws hub drained, closed %d connections", len(allClients))
}

// bind adds c to its user's handle set. When the user is at MaxPerUser the oldest
// handle is removed and returned so the caller can close it.
func (h *Hub) bind(c *Client) (evicted *Client, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.userID]
	if ok {
		if _, dup := set[c]; dup {
			return nil, ErrDuplicateBind
		}
	}
	if h.total >= h.cfg.MaxConns {
		return nil, ErrHubFull
	}
	if !ok {
		set = make(map[*Client]uint64)
		h.clients[c.userID] = set
	}
	if len(set) >= h.cfg.MaxPerUser {
		var oldestSeq uint64
		for other, seq := range set {
			if evicted == nil || seq < oldestSeq {
				evicted, oldestSeq = other, seq
			}
		}
		delete(set, evicted)
		h.total--
	}
	h.seq++
	set[c] = h.seq
	h.total++
	return evicted, nil
}

// unbind removes c. Unknown handles are a no-op (removed=false).
func (h *Hub) unbind(c *Client) (removed, lastForUser bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.userID]
	if !ok {
		return false, false
	}
	if _, exists := set[c]; !exists {
		return false, false
	}
	delete(set, c)
	h.total--
	if len(set) == 0 {
		delete(h.clients, c.userID)
		return true, true
	}
	return true, false
}

func (h *Hub) addClient(c *Client) {
	select {
	case <-c.done:
		// closed before Run picked it up
		return
	default:
	}
	evicted, err := h.bind(c)
	if err != nil {
		logger.Errorf("ws bind user=%s: %v", c.userID, err)
		if errors.Is(err, ErrHubFull) {
			c.Close()
		}
		return
	}
	if evicted != nil {
		logger.Infof("ws per-user limit (%d) reached, closing oldest connection user=%s", h.cfg.MaxPerUser, c.userID)
		evicted.Close()
	}
	h.broadcastPresence()
}

func (h *Hub) removeClient(c *Client) {
	removed, last := h.unbind(c)
	// Network I/O outside the lock.
	c.Close()
	if !removed {
		return
	}
	if last && h.tracker != nil {
		h.tracker.Forget(c.userID)
	}
	h.broadcastPresence()
}

// broadcastPresence sends the sorted online set to every bound connection.
func (h *Hub) broadcastPresence() {
	h.mu.RLock()
	online := make([]string, 0, len(h.clients))
	targets := make([]*Client, 0, h.total)
	for uid, clients := range h.clients {
		online = append(online, uid)
		for c := range clients {
			targets = append(targets, c)
		}
	}
	total := h.total
	h.mu.RUnlock()

	sort.Strings(online)
	metrics.OnlineUsers.Set(float64(len(online)))
	metrics.WSConnections.Set(float64(total))
	metrics.PresenceBroadcasts.Inc()

	out := OutgoingMessage{Type: EventGetOnlineUsers, Payload: online}
	for _, c := range targets {
		h.sendToClient(c, out)
	}
}

// HandleMessage dispatches incoming WebSocket messages.
func (h *Hub) HandleMessage(ctx context.Context, c *Client, msg IncomingMessage) {
	switch msg.Type {
	case EventFocusConversation:
		if h.tracker != nil {
			h.tracker.SetFocus(ctx, c.userID, msg.UserID)
		}
	case EventMarkSeen:
		if msg.MessageID == "" {
			h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "messageId required"})
			return
		}
		if h.tracker == nil {
			return
		}
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := h.tracker.MarkSeen(ctx, c.userID, msg.MessageID); err != nil {
			logger.Errorf("ws mark seen user=%s message=%s: %v", c.userID, msg.MessageID, err)
			h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "failed to mark message"})
		}
	default:
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "unknown event type"})
	}
}

// IsOnline reports whether userID has at least one live connection.
func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

// OnlineUsers returns the sorted ids of online users.
func (h *Hub) OnlineUsers() []string {
	h.mu.RLock()
	online := make([]string, 0, len(h.clients))
	for uid := range h.clients {
		online = append(online, uid)
	}
	h.mu.RUnlock()
	sort.Strings(online)
	return online
}

// PushToUser enqueues msg on every connection of userID and returns how many accepted it.
// Zero means the user is offline or every connection was already closing.
func (h *Hub) PushToUser(userID string, msg OutgoingMessage) int {
	h.mu.RLock()
	clients, ok := h.clients[userID]
	if !ok {
		h.mu.RUnlock()
		return 0
	}
	targets := make([]*Client, 0, len(clients))
	for c := range clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if h.sendToClient(c, msg) {
			delivered++
		}
	}
	return delivered
}

func (h *Hub) sendToClient(c *Client, msg OutgoingMessage) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	case <-c.done:
		return false
	default:
		// Backpressure: send buffer full, close slow client.
		logger.Errorf("ws send buffer full, closing slow client user=%s", c.userID)
		c.Close()
		return false
	}
}

func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.stopping:
		c.Close()
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.stopping:
	}
}
