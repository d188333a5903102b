package realtime

import (
	"context"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dinebot-ai/dinebot-backend/pkg/logger"
)

// channel is one live websocket connection belonging to a session. A session
// can hold several channels (multiple tabs); the hub fans outbound frames to
// all of them.
type channel struct {
	id        string
	sessionID string
	conn      *websocket.Conn
	send      chan *Envelope
	hub       *Hub
	logg      *logger.Logger
}

const sendBufferSize = 32

// readPump consumes inbound frames until the connection dies. Runs as its
// own goroutine; closing the connection stops it.
func (c *channel) readPump(ctx context.Context) {
	defer c.hub.unregister(c)

	c.conn.SetReadLimit(c.hub.cfg.MaxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.PongTimeout))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if c.logg != nil && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logg.Warn(ctx, "websocket read failed: "+err.Error())
			}
			return
		}
		c.hub.handleInbound(ctx, c, raw)
	}
}

// writePump serializes all writes for the connection and keeps it alive with
// pings. Closing the send channel stops it.
func (c *channel) writePump(ctx context.Context) {
	ticker := time.NewTicker(c.hub.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case envelope, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(envelope); err != nil {
				if c.logg != nil {
					c.logg.Warn(ctx, "websocket write failed: "+err.Error())
				}
				return
			}
			c.hub.metrics.MessageOut(string(envelope.Type))
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enqueue hands a frame to the write pump, dropping it if the channel's
// buffer is saturated. A reader that slow is better served by reconnecting.
func (c *channel) enqueue(envelope *Envelope) bool {
	select {
	case c.send <- envelope:
		return true
	default:
		return false
	}
}
