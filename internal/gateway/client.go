package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/autoreply/pkg/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxReadBytes   = 4096
	sendBufferSize = 64
)

// Client is one dashboard WebSocket connection. It only receives pushed events;
// the sole inbound frame it understands is a ping.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	seq  atomic.Uint64

	closeOnce sync.Once
	done      chan struct{}
}

// NewClient wraps an upgraded connection.
func NewClient(conn *websocket.Conn) *Client {
	return &Client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}
}

// ID returns the client's connection ID.
func (c *Client) ID() string { return c.id }

// SendEvent queues an event frame numbered in this connection's sequence. Slow
// clients drop events rather than block the bus.
func (c *Client) SendEvent(name string, payload interface{}) {
	c.sendJSON(protocol.NewEvent(name, payload, c.seq.Add(1)))
}

func (c *Client) sendJSON(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("ws.marshal_failed", "id", c.id, "error", err)
		return
	}
	select {
	case <-c.done:
	case c.send <- data:
	default:
		slog.Warn("ws.send_buffer_full", "id", c.id)
	}
}

// Run sends the hello frame and serves the connection until it closes or ctx ends.
func (c *Client) Run(ctx context.Context) {
	c.sendJSON(protocol.HelloFrame{
		Type:     protocol.FrameTypeHello,
		Protocol: protocol.ProtocolVersion,
		ClientID: c.id,
	})

	go c.writeLoop(ctx)
	c.readLoop()
}

func (c *Client) readLoop() {
	c.conn.SetReadLimit(maxReadBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("ws.read_error", "id", c.id, "error", err)
			}
			return
		}
		var frame struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(data, &frame) == nil && frame.Type == protocol.FrameTypePing {
			c.sendJSON(map[string]string{"type": protocol.FrameTypePong})
		}
	}
}

func (c *Client) writeLoop(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"),
				time.Now().Add(writeWait))
			c.conn.Close()
			return
		case <-c.done:
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.conn.Close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.conn.Close()
				return
			}
		}
	}
}

// Close stops the write loop and closes the connection.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}
