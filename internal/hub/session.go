package hub

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

var errSessionClosed = errors.New("session closed")

// Conn is the transport behind a viewer session.
type Conn interface {
	WriteText(data []byte) error
	Ping() error
	Close() error
}

type liveness int

const (
	// stateAlive: answered the last probe (or just connected).
	stateAlive liveness = iota
	// stateAwaitingPong: probed, no answer yet.
	stateAwaitingPong
)

// wireFrame is an encoded envelope. key is the trade identity for new_trade frames.
type wireFrame struct {
	data []byte
	key  string
}

// Session is one connected viewer. Frames delivered before the init snapshot
// has been written are queued and flushed right after it.
type Session struct {
	ID     string
	Remote string

	conn    Conn
	mu      sync.Mutex
	state   liveness
	closed  bool
	ready   bool
	pending []wireFrame
}

// NewSession wraps conn in a fresh, alive session.
func NewSession(conn Conn, remote string) *Session {
	return &Session{ID: uuid.NewString(), Remote: remote, conn: conn, state: stateAlive}
}

func (s *Session) deliver(f wireFrame) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errSessionClosed
	}
	if !s.ready {
		s.pending = append(s.pending, f)
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	return s.conn.WriteText(f.data)
}

// start writes the init frame, then flushes queued frames in arrival order,
// skipping trades the snapshot already carries. The session is ready once the
// queue is observed empty, so later frames can never overtake queued ones.
func (s *Session) start(init []byte, seen map[string]struct{}) error {
	err := s.conn.WriteText(init)
	for err == nil {
		s.mu.Lock()
		if len(s.pending) == 0 || s.closed {
			break
		}
		batch := s.pending
		s.pending = nil
		s.mu.Unlock()

		for _, f := range batch {
			if _, dup := seen[f.key]; dup && f.key != "" {
				continue
			}
			if err = s.conn.WriteText(f.data); err != nil {
				break
			}
		}
	}
	if err != nil {
		s.mu.Lock()
	}
	s.ready = true
	s.pending = nil
	s.mu.Unlock()
	return err
}

func (s *Session) open() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

// probe moves alive -> awaiting-pong and reports true; a session already awaiting
// a pong is stale and probe reports false.
func (s *Session) probe() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateAwaitingPong {
		return false
	}
	s.state = stateAwaitingPong
	return true
}

func (s *Session) markAlive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = stateAlive
}

func (s *Session) close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.conn.Close()
}
