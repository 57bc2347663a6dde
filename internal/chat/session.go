package chat

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is one live connection and, once negotiation succeeds, its display
// name and presence state.
//
// name and joined are written exactly once by Registry.TryRegister under the
// registry lock, before the session becomes visible to other goroutines.
// afk is only touched under the registry lock.
type Session struct {
	id     uuid.UUID
	addr   string
	out    *Outbox
	name   string
	joined time.Time
	afk    bool

	closeOnce sync.Once
}

// NewSession creates an unregistered session writing to out.
func NewSession(addr string, out *Outbox) *Session {
	return &Session{
		id:   uuid.New(),
		addr: addr,
		out:  out,
	}
}

// ID returns the opaque identity of the connection.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Addr returns the remote address the session was accepted from.
func (s *Session) Addr() string {
	return s.addr
}

// Name returns the negotiated display name, or "" before negotiation.
func (s *Session) Name() string {
	return s.name
}

// Joined returns the time the display name was accepted.
func (s *Session) Joined() time.Time {
	return s.joined
}

// Outbox returns the session's write endpoint.
func (s *Session) Outbox() *Outbox {
	return s.out
}
