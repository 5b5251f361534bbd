package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/quickchat/internal/logger"
)

// Client — одно живое соединение пользователя. У пользователя их может быть несколько.
// NewClient → Start → Hub.Register; Close останавливает оба цикла, Wait дожидается их.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan OutgoingMessage
	userID string

	writeWait      time.Duration
	pongWait       time.Duration
	maxMessageSize int64

	// out принадлежит writePump
	out bytes.Buffer

	done   chan struct{} // закрыт после Close
	cancel context.CancelFunc
	once   sync.Once
	wg     sync.WaitGroup
}

func NewClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		hub:            hub,
		conn:           conn,
		send:           make(chan OutgoingMessage, hub.cfg.SendBufferSize),
		userID:         userID,
		writeWait:      hub.cfg.WriteWait,
		pongWait:       hub.cfg.PongWait,
		maxMessageSize: hub.cfg.MaxMessageSize,
		done:           make(chan struct{}),
	}
}

func (c *Client) UserID() string {
	return c.userID
}

// Start запускает циклы чтения и записи; cancel вызывается из Close.
func (c *Client) Start(ctx context.Context, cancel context.CancelFunc) {
	c.cancel = cancel
	c.wg.Add(2)
	go c.writePump(ctx)
	go c.readPump(ctx)
}

func (c *Client) Wait() {
	c.wg.Wait()
}

// Close идемпотентен.
func (c *Client) Close() {
	c.once.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

func (c *Client) readPump(ctx context.Context) {
	defer c.wg.Done()
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	if err := c.armRead(); err != nil {
		logger.Errorf("ws.readPump user=%s: %v", c.userID, err)
		return
	}
	for ctx.Err() == nil {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Errorf("ws.readPump user=%s: %v", c.userID, err)
			}
			return
		}
		var msg IncomingMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			logger.Debugf("ws.readPump user=%s: bad frame: %v", c.userID, err)
			c.hub.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "malformed frame"})
			continue
		}
		c.hub.HandleMessage(ctx, c, msg)
	}
}

// armRead ставит лимит кадра и продлевает дедлайн чтения на каждый pong.
func (c *Client) armRead() error {
	c.conn.SetReadLimit(c.maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	})
	return c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
}

func (c *Client) writePump(ctx context.Context) {
	defer c.wg.Done()
	ping := time.NewTicker(c.pongWait * 9 / 10)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	for {
		var err error
		select {
		case <-ctx.Done():
			_ = c.writeFrame(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		case msg := <-c.send:
			err = c.writeEvent(msg)
		case <-ping.C:
			err = c.writeFrame(websocket.PingMessage, nil)
		}
		if err != nil {
			logger.Debugf("ws.writePump user=%s: %v", c.userID, err)
			return
		}
	}
}

// writeEvent кодирует событие в один текстовый кадр. Событие, которое не кодируется, пропускается.
func (c *Client) writeEvent(msg OutgoingMessage) error {
	c.out.Reset()
	if err := json.NewEncoder(&c.out).Encode(msg); err != nil {
		logger.Errorf("ws.writeEvent user=%s type=%s: %v", c.userID, msg.Type, err)
		return nil
	}
	return c.writeFrame(websocket.TextMessage, bytes.TrimSuffix(c.out.Bytes(), []byte{'\n'}))
}

func (c *Client) writeFrame(kind int, data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(kind, data)
}
