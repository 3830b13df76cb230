package domain

import (
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"
)

// SessionState is the protocol state of a connection.
type SessionState int

const (
	StateConnecting SessionState = iota
	StateAuthenticated
	StateJoined
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is the per-connection state machine:
// Connecting -> Authenticated -> Joined(rooms) -> Closed.
type Session struct {
	ID           string
	CreatedAt    time.Time
	LastActiveAt time.Time

	identity Identity
	state    SessionState
	rooms    map[RoomKey]Conversation
	mu       sync.RWMutex
}

func NewSession(id string) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		CreatedAt:    now,
		LastActiveAt: now,
		rooms:        make(map[RoomKey]Conversation),
	}
}

// Authenticate binds the identity. Allowed exactly once, from Connecting.
func (s *Session) Authenticate(identity Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateConnecting:
	case StateClosed:
		return ErrConnectionClosed
	default:
		return ErrAlreadyAuthenticated
	}
	if identity.IsZero() {
		return fmt.Errorf("%w: empty identity", ErrUnauthenticated)
	}

	s.identity = identity
	s.state = StateAuthenticated
	s.LastActiveAt = time.Now()
	return nil
}

// JoinRoom records membership. Joining a room twice is a no-op; added
// reports whether the room is new for this session.
func (s *Session) JoinRoom(key RoomKey, conv Conversation) (added bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateConnecting:
		return false, ErrUnauthenticated
	case StateClosed:
		return false, ErrConnectionClosed
	}

	s.LastActiveAt = time.Now()
	if _, ok := s.rooms[key]; ok {
		return false, nil
	}
	s.rooms[key] = conv
	s.state = StateJoined
	return true, nil
}

// Close moves the session to Closed and returns the rooms it had joined.
// first is false when the session was already closed.
func (s *Session) Close() (rooms []RoomKey, first bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return nil, false
	}
	rooms = lo.Keys(s.rooms)
	s.rooms = make(map[RoomKey]Conversation)
	s.state = StateClosed
	return rooms, true
}

func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) Identity() Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

func (s *Session) IsAuthenticated() bool {
	st := s.State()
	return st == StateAuthenticated || st == StateJoined
}

func (s *Session) IsJoined(key RoomKey) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rooms[key]
	return ok
}

// Conversation returns the descriptor the room was joined with.
func (s *Session) Conversation(key RoomKey) (Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.rooms[key]
	return c, ok
}

func (s *Session) Rooms() []RoomKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.Keys(s.rooms)
}

func (s *Session) RoomCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

func (s *Session) UpdateActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastActiveAt = time.Now()
}
