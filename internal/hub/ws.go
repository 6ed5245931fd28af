package hub

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ServeWS upgrades the request and runs the session until the client goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	s := NewSession(&wsConn{conn: conn, writeTimeout: h.opts.WriteTimeout}, r.RemoteAddr)
	conn.SetPongHandler(func(string) error {
		h.MarkAlive(s)
		return nil
	})

	h.OnConnect(s)
	h.readLoop(conn, s)
}

func (h *Hub) readLoop(conn *websocket.Conn, s *Session) {
	defer h.OnDisconnect(s)

	for {
		kind, _, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				h.OnError(s, err)
			}
			return
		}
		if kind == websocket.TextMessage || kind == websocket.BinaryMessage {
			h.SendTo(s, Error("unsupported", "client messages are not accepted"))
		}
	}
}

// wsConn serialises writes to a gorilla connection.
type wsConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	mu           sync.Mutex
}

func (c *wsConn) WriteText(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Ping() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout))
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}
