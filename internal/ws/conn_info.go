package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ConnInfo is the identity snapshot recorded at handshake time.
type ConnInfo struct {
	ConnID      string
	UserID      int
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

// socketConn wraps a gorilla connection with a write lock so the read loop and
// the dispatcher can both send on it.
type socketConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func newSocketConn(conn *websocket.Conn) *socketConn {
	return &socketConn{conn: conn}
}

func (s *socketConn) SendJSON(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(v)
}

func (s *socketConn) Close() error {
	return s.conn.Close()
}
