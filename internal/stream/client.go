package stream

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client is one websocket connection.
type Client struct {
	id   string
	conn *websocket.Conn
	hub  *Hub

	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(conn *websocket.Conn, h *Hub) *Client {
	return &Client{
		id:   conn.RemoteAddr().String(),
		conn: conn,
		hub:  h,
		out:  make(chan []byte, h.cfg.SendBuffer),
		done: make(chan struct{}),
	}
}

// send queues msg without blocking. Messages for a full buffer are dropped.
func (c *Client) send(msg []byte) {
	select {
	case <-c.done:
		return
	default:
	}

	select {
	case c.out <- msg:
	default:
		c.hub.dropped.Add(1)
		c.hub.logger.Debug("client send buffer full, dropping message", "remote", c.id)
	}
}

func (c *Client) sendJSON(v Response) {
	b, err := json.Marshal(v)
	if err != nil {
		c.hub.logger.Error("encode message", "type", v.Type, "err", err)
		return
	}
	c.send(b)
}

// close sends a close frame and tears down the connection. Safe to call more
// than once.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(c.hub.cfg.WriteWait))
		c.conn.Close()
	})
}

// readPump handles client requests until the connection fails. It owns
// unregistering the client.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.close()
	}()

	cfg := c.hub.cfg
	c.conn.SetReadLimit(cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})

	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("websocket read error", "remote", c.id, "err", err)
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}

		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			c.sendJSON(Response{Type: TypeError, Message: "invalid JSON"})
			continue
		}
		c.hub.handle(c, req)
	}
}

// writePump writes queued messages and keepalive pings.
func (c *Client) writePump() {
	cfg := c.hub.cfg
	ticker := time.NewTicker(cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			return

		case msg := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
