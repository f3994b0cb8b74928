package device

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/nirspec-go/internal/frame"
)

// session is one live client connection with its subscription state.
// Exactly one session exists per TCP connection.
type session struct {
	id    string
	conn  net.Conn
	codec *frame.Codec

	connected atomic.Bool

	writeMu sync.Mutex

	mu             sync.Mutex
	subs           map[streamKind]bool
	spectrumCursor int
	lastActivity   time.Time
}

func newSession(conn net.Conn, env *frame.Envelope) *session {
	s := &session{
		id:           uuid.NewString(),
		conn:         conn,
		codec:        frame.NewCodec(env),
		subs:         make(map[streamKind]bool),
		lastActivity: time.Now(),
	}
	s.connected.Store(true)
	return s
}

// isConnected reports whether the peer is still considered live.
func (s *session) isConnected() bool {
	return s.connected.Load()
}

// markDisconnected flags the peer dead; stream iterations drop it.
func (s *session) markDisconnected() {
	s.connected.Store(false)
}

// touch records peer activity.
func (s *session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// send encodes and writes one frame body. A write error marks the session
// disconnected so schedulers clean it up promptly.
func (s *session) send(payload []byte) error {
	if !s.isConnected() {
		return net.ErrClosed
	}

	wire, err := s.codec.Encode(payload)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.conn.Write(wire); err != nil {
		s.markDisconnected()
		return err
	}
	return nil
}

// subscribed reports stream membership.
func (s *session) subscribed(kind streamKind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subs[kind]
}

// setSubscribed toggles stream membership. Double-subscribe is idempotent.
func (s *session) setSubscribed(kind streamKind, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if on {
		s.subs[kind] = true
	} else {
		delete(s.subs, kind)
	}
}

// cursor returns the per-subscriber spectrum cursor.
func (s *session) cursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spectrumCursor
}

// setCursor stores the per-subscriber spectrum cursor.
func (s *session) setCursor(c int) {
	s.mu.Lock()
	s.spectrumCursor = c
	s.mu.Unlock()
}
