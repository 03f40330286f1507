package livehub

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketTransport adapts a gorilla connection to Transport using native
// ping/pong control frames for keepalive.
type WebSocketTransport struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

// NewWebSocketTransport wraps conn. Every pong extends the read deadline by
// pongWait, which should exceed the hub's ping interval.
func NewWebSocketTransport(conn *websocket.Conn, writeTimeout, pongWait time.Duration) *WebSocketTransport {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	t := &WebSocketTransport{conn: conn, writeTimeout: writeTimeout}
	if pongWait > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
	}
	return t
}

func (t *WebSocketTransport) WriteMessage(data []byte) error {
	if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *WebSocketTransport) WritePing() error {
	return t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(t.writeTimeout))
}

func (t *WebSocketTransport) ReadMessage() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	return data, err
}

func (t *WebSocketTransport) Close(code int, reason string) error {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(t.writeTimeout))
	return t.conn.Close()
}

// NewUpgrader returns an upgrader that accepts any origin when allowed is
// empty, otherwise only the listed origins.
func NewUpgrader(allowed []string) *websocket.Upgrader {
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[origin] = struct{}{}
	}
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(set) == 0 {
				return true
			}
			_, ok := set[r.Header.Get("Origin")]
			return ok
		},
	}
}
