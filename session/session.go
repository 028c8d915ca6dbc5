// session/session.go
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/hectormc-main/casa-playgroundServer/network"
)

// ErrSessionClosed is returned when enqueueing to a closed or overflowing session.
var ErrSessionClosed = errors.New("session closed")

// Session is one connected watcher. Messages are queued and written by WritePump so a
// slow peer never blocks the publisher.
type Session struct {
	ID         string
	Conn       network.Connection
	CreatedAt  time.Time
	LastActive time.Time
	outbound   chan []byte
	closed     chan struct{}
	closeOnce  sync.Once
	mutex      sync.RWMutex
}

func NewSession(id string, conn network.Connection, queueSize int) *Session {
	if queueSize <= 0 {
		queueSize = 16
	}
	now := time.Now()
	return &Session{
		ID:         id,
		Conn:       conn,
		CreatedAt:  now,
		LastActive: now,
		outbound:   make(chan []byte, queueSize),
		closed:     make(chan struct{}),
	}
}

func (s *Session) GetID() string {
	return s.ID
}

// Enqueue queues data for delivery. A full queue means the peer cannot keep up; the
// session is closed instead of buffering without bound.
func (s *Session) Enqueue(data []byte) error {
	select {
	case <-s.closed:
		return ErrSessionClosed
	default:
	}

	select {
	case s.outbound <- data:
		return nil
	default:
		s.Close()
		return ErrSessionClosed
	}
}

// WritePump writes queued messages and heartbeat pings until the session closes or a
// write fails.
func (s *Session) WritePump(heartbeat time.Duration) {
	var ping <-chan time.Time
	if heartbeat > 0 {
		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case data := <-s.outbound:
			if err := s.Conn.Send(data); err != nil {
				s.Close()
				return
			}
			s.touch()
		case <-ping:
			if err := s.Conn.Ping(); err != nil {
				s.Close()
				return
			}
		case <-s.closed:
			return
		}
	}
}

func (s *Session) touch() {
	s.mutex.Lock()
	s.LastActive = time.Now()
	s.mutex.Unlock()
}

// Active returns the time of the last successful write.
func (s *Session) Active() time.Time {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.LastActive
}

// Done is closed once the session is closed.
func (s *Session) Done() <-chan struct{} {
	return s.closed
}

// Close stops the session and its connection. Safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.Conn.Close()
	})
	return err
}

// Manager tracks connected sessions by ID.
type Manager struct {
	sessions map[string]*Session
	mutex    sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) Add(session *Session) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sessions[session.ID] = session
}

func (m *Manager) Remove(sessionID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.sessions, sessionID)
}

func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	session, exists := m.sessions[sessionID]
	return session, exists
}

// All returns a snapshot of the current sessions.
func (m *Manager) All() []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	result := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		result = append(result, session)
	}
	return result
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}

// CloseAll closes and forgets every session.
func (m *Manager) CloseAll() {
	m.mutex.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mutex.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
