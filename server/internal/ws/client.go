package ws

import (
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeTimeout = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10 // must be below pongWait
	sendBufSize  = 32
	maxInbound   = 512
)

// client is one connected dashboard. nodes is nil when it watches every node.
type client struct {
	conn  *websocket.Conn
	send  chan []byte
	nodes map[string]bool
}

func newClient(conn *websocket.Conn, nodes map[string]bool) *client {
	return &client{conn: conn, send: make(chan []byte, sendBufSize), nodes: nodes}
}

func (c *client) watches(nodeID string) bool {
	return c.nodes == nil || c.nodes[nodeID]
}

// trySend queues data without blocking and reports whether it fit.
func (c *client) trySend(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *client) remote() string {
	if c.conn == nil {
		return ""
	}
	return c.conn.RemoteAddr().String()
}

// writePump owns all writes to conn: queued messages and keepalive pings.
// A closed send channel ends the session with a close frame.
func (c *client) writePump() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	for {
		var (
			kind = websocket.TextMessage
			data []byte
		)
		select {
		case msg, ok := <-c.send:
			if !ok {
				kind = websocket.CloseMessage
			}
			data = msg
		case <-ping.C:
			kind = websocket.PingMessage
		}

		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
		if err := c.conn.WriteMessage(kind, data); err != nil || kind == websocket.CloseMessage {
			return
		}
	}
}

// readPump discards inbound frames; it exists to service pongs and notice
// the peer going away. Blocks until the connection fails.
func (c *client) readPump() {
	defer c.conn.Close()

	c.conn.SetReadLimit(maxInbound)
	extend := func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	}
	extend("") //nolint:errcheck
	c.conn.SetPongHandler(extend)

	for {
		if _, _, err := c.conn.NextReader(); err != nil {
			return
		}
	}
}
