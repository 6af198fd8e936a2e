package signaling

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Nisarg284/cozy-discussions-hub/internal/metrics"
	"github.com/Nisarg284/cozy-discussions-hub/internal/ratelimit"
)

// Client wraps a single WebSocket connection.
//
// The read pump is the only reader and the write pump the only writer, so no
// locking is needed around the connection itself. name and roomID belong to
// the hub goroutine: they are written only while the hub processes this
// client's commands.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	log  *slog.Logger

	// id uniquely identifies this connection for its lifetime.
	id string

	// name is the client-supplied display name, recorded on join. Empty means
	// anonymous.
	name string

	// roomID is the room this connection is currently a member of. Empty
	// means the connection has not joined a room.
	roomID string

	limiter *ratelimit.TokenBucket

	// send is the outbound frame queue drained by the write pump. Closed by
	// the hub during disconnect cleanup.
	send chan []byte

	pongWait        time.Duration
	pingInterval    time.Duration
	writeWait       time.Duration
	maxMessageBytes int64
}

// ID returns the server-assigned connection identifier.
func (c *Client) ID() string { return c.id }

// readPump pumps inbound messages from the connection to the hub. It runs in
// its own goroutine and is the only place reads happen.
//
// Exiting the loop for any reason (graceful close, timeout, network failure)
// always ends in exactly one unregister, which is the disconnect cleanup path.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.maxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("websocket read failed", "conn_id", c.id, "err", err)
			}
			return
		}

		if c.limiter != nil && !c.limiter.Allow(1) {
			c.hub.metrics.Inc(metrics.DropRateLimited)
			c.log.Warn("message rate limit exceeded, dropping", "conn_id", c.id)
			continue
		}

		msg, err := ParseClientMessage(data)
		if err != nil {
			// Malformed messages are dropped; the connection stays open.
			c.hub.metrics.Inc(metrics.DropBadMessage)
			c.log.Warn("dropping malformed message", "conn_id", c.id, "err", err)
			continue
		}

		c.hub.inbound <- command{client: c, msg: msg}
	}
}

// writePump pumps outbound frames from the send queue to the connection and
// keeps the heartbeat going. It runs in its own goroutine and is the only
// place writes happen.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if !ok {
				// The hub closed the queue during disconnect cleanup.
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enqueue hands a frame to the write pump without blocking. A full queue
// means the recipient is too slow; the frame is dropped for that recipient
// only and delivery to others proceeds.
func (c *Client) enqueue(frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}
