package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024 // 64KB

	// Send buffer size per client.
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Client represents a WebSocket client connection subscribed to one review
// request.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	connID   string
	groups   map[string]bool
	compress bool
	logger   *zap.Logger

	mu      sync.RWMutex
	entries string
}

// ConnID returns the connection id.
func (c *Client) ConnID() string { return c.connID }

// Compress reports whether the client asked for zstd-compressed frames.
func (c *Client) Compress() bool { return c.compress }

// Entries returns the client's current entries query.
func (c *Client) Entries() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries
}

func (c *Client) setEntries(q string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = q
}

// upstreamMessage is the only message a client sends: a replacement for its
// watched entries.
type upstreamMessage struct {
	Entries string `json:"entries"`
}

// HandleWS upgrades the request and subscribes the connection to group.
// The "entries" query parameter sets the initial watch set and
// "compression=zstd" requests compressed frames.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request, group string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		connID:   uuid.New().String(),
		groups:   make(map[string]bool),
		compress: r.URL.Query().Get("compression") == "zstd",
		logger:   h.logger,
		entries:  r.URL.Query().Get("entries"),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}
	h.JoinGroup(client, group)

	h.logger.Info("push subscriber connected",
		zap.String("hub", h.name),
		zap.String("connID", client.connID),
		zap.String("group", group),
		zap.Bool("compress", client.compress),
	)

	// Start read/write pumps
	go client.writePump()
	go client.readPump()
}

// readPump reads messages from the WebSocket connection.
func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Debug("websocket read error",
					zap.String("connID", c.connID),
					zap.Error(err),
				)
			}
			break
		}
		c.handleMessage(message)
	}
}

// writePump writes messages to the WebSocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Channel closed, send close message
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.BinaryMessage, message); err != nil {
				c.logger.Debug("websocket write error",
					zap.String("connID", c.connID),
					zap.Error(err),
				)
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

// handleMessage processes an incoming upstream message.
func (c *Client) handleMessage(data []byte) {
	var msg upstreamMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Debug("failed to parse upstream message",
			zap.String("connID", c.connID),
			zap.Error(err),
		)
		return
	}

	c.setEntries(msg.Entries)
	c.logger.Debug("client watch set changed",
		zap.String("connID", c.connID),
		zap.String("entries", msg.Entries),
	)
}
