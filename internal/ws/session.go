package ws

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"rtc-service/internal/models"
)

// Session is one authenticated transport connection bound to a user identity.
// A user may own several concurrent sessions (multi-device).
type Session struct {
	ID          string
	UserID      uuid.UUID
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time

	conn    *websocket.Conn
	writeMu sync.Mutex
}

// NewSession binds a websocket connection to a user identity.
func NewSession(userID uuid.UUID, conn *websocket.Conn) *Session {
	return &Session{
		ID:          newSessionID(),
		UserID:      userID,
		ConnectedAt: time.Now(),
		conn:        conn,
	}
}

// Send writes one event to the connection. Writes are serialized per session
// so concurrent fan-outs never interleave frames.
func (s *Session) Send(event models.ServerEvent) error {
	if s.conn == nil {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(event)
}

// Close closes the underlying connection; the read loop then runs cleanup.
func (s *Session) Close() {
	if s.conn != nil {
		s.conn.Close()
	}
}

func newSessionID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}
