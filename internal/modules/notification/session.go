// README: WebSocket session: one buffered send queue, one write pump, reads only to detect disconnects.
package notification

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"foodline/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxInboundSize = 512
	sendBuffer     = 32
)

type Session struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func NewSession(conn *websocket.Conn) *Session {
	return &Session{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
}

func (s *Session) Send(data []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- data:
		return true
	default:
		return false
	}
}

func (s *Session) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()
	for {
		select {
		case data := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.Close()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}
		case <-s.done:
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// readPump discards client frames; it exists to process pongs and notice the close.
func (s *Session) readPump() {
	defer s.Close()
	s.conn.SetReadLimit(maxInboundSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Serve registers conn for userID and blocks until the client goes away.
func Serve(registry *Registry, userID types.ID, conn *websocket.Conn, log *slog.Logger) {
	s := NewSession(conn)
	if !registry.Register(userID, s) {
		_ = conn.Close()
		return
	}
	log.Info("session connected", slog.String("action", "ws_connect"), slog.String("user_id", userID.String()))

	go s.writePump()
	s.readPump()

	registry.Unregister(s)
	log.Info("session disconnected", slog.String("action", "ws_disconnect"), slog.String("user_id", userID.String()))
}
