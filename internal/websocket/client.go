package websocket

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one browser connection. The send channel is never closed;
// done is closed once when the hub drops the client, and every sender
// selects on it.
type Client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

// ClientMessage is a control frame sent by the browser
type ClientMessage struct {
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
}

// NewClient wraps an upgraded connection
func NewClient(hub *Hub, conn *websocket.Conn, logger *slog.Logger) *Client {
	return &Client{
		id:     uuid.New().String(),
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// ValidChannel reports whether name is a channel clients may subscribe to
func ValidChannel(name string) bool {
	if name == ChannelLeaderboard {
		return true
	}
	rsn, ok := strings.CutPrefix(name, CompetitorChannel(""))
	return ok && rsn != ""
}

// shut marks the client as dropped; safe to call more than once
func (c *Client) shut() {
	c.once.Do(func() { close(c.done) })
}

// deliver hands a frame to the writer without blocking. It reports false
// when the buffer is full or the client is gone.
func (c *Client) deliver(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) reply(msg Message) {
	msg.Timestamp = time.Now()
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("failed to marshal reply", "error", err)
		return
	}
	c.deliver(data)
}

// readPump handles control frames until the connection fails
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			var syntaxErr *json.SyntaxError
			if errors.As(err, &syntaxErr) {
				c.reply(Message{Type: MessageTypeError, Data: map[string]string{"error": "invalid message format"}})
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read failed", "client_id", c.id, "error", err)
			}
			return
		}
		c.handle(msg)
	}
}

func (c *Client) handle(msg ClientMessage) {
	switch msg.Type {
	case MessageTypeSubscribe:
		if !ValidChannel(msg.Channel) {
			c.reply(Message{Type: MessageTypeError, Data: map[string]string{"error": "unknown channel"}})
			return
		}
		c.hub.Subscribe(c, msg.Channel)
		c.reply(Message{Type: "subscribed", Channel: msg.Channel, Data: map[string]string{"status": "ok"}})
	case MessageTypeUnsubscribe:
		if msg.Channel == "" {
			return
		}
		c.hub.Unsubscribe(c, msg.Channel)
		c.reply(Message{Type: "unsubscribed", Channel: msg.Channel, Data: map[string]string{"status": "ok"}})
	case MessageTypePing:
		c.reply(Message{Type: MessageTypePong})
	default:
		c.logger.Debug("ignoring client message", "client_id", c.id, "type", msg.Type)
	}
}

// writePump owns every write to the connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWs upgrades the request and registers the client. A "channel" query
// parameter subscribes the client immediately.
func ServeWs(hub *Hub, logger *slog.Logger, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(hub, conn, logger)
	if !hub.Register(client) {
		conn.Close()
		return
	}
	if channel := r.URL.Query().Get("channel"); ValidChannel(channel) {
		hub.Subscribe(client, channel)
	}

	go client.writePump()
	go client.readPump()

	logger.Debug("websocket connected", "client_id", client.id)
}
