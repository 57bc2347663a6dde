package chat

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"
	"unicode/utf8"
)

// MaxNameLength is the longest accepted display name, in characters.
const MaxNameLength = 19

// Registry is the process-wide store of negotiated sessions keyed by display
// name. Every operation is atomic with respect to the others, so callers
// never hold the lock themselves.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	started  time.Time

	// connections counts live sessions, negotiated or not.
	connections atomic.Int64
}

// NewRegistry creates an empty registry for a server started at started.
func NewRegistry(started time.Time) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		started:  started,
	}
}

// Started returns the server start time.
func (r *Registry) Started() time.Time {
	return r.started
}

// Connect records a newly accepted connection.
func (r *Registry) Connect() {
	r.connections.Add(1)
}

// Disconnect records the end of a connection counted by Connect.
func (r *Registry) Disconnect() {
	r.connections.Add(-1)
}

// Connections returns the number of live sessions, including those still
// negotiating a name.
func (r *Registry) Connections() int {
	return int(r.connections.Load())
}

// ValidateName checks the format of a candidate display name. It does not
// check availability.
func ValidateName(name string) error {
	if name == "" || strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty", ErrNameInvalid)
	}
	if n := utf8.RuneCountInString(name); n > MaxNameLength {
		return fmt.Errorf("%w: %d characters, at most %d allowed", ErrNameInvalid, n, MaxNameLength)
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("%w: not valid UTF-8", ErrNameInvalid)
	}
	if strings.HasPrefix(name, CommandMarker) || strings.HasPrefix(name, PrivateMarker) {
		return fmt.Errorf("%w: starts with a reserved marker", ErrNameInvalid)
	}
	if strings.IndexFunc(name, func(r rune) bool { return unicode.IsSpace(r) || unicode.IsControl(r) }) >= 0 {
		return fmt.Errorf("%w: contains whitespace", ErrNameInvalid)
	}
	return nil
}

// TryRegister claims name for s. The availability check and the insert happen
// under one lock, so of several concurrent claims for the same name exactly
// one succeeds. The session's join time is set to at.
func (r *Registry) TryRegister(s *Session, name string, at time.Time) error {
	if err := ValidateName(name); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.sessions[name]; taken {
		return ErrNameTaken
	}
	if s.name != "" {
		return fmt.Errorf("%w: session already registered as %q", ErrNameInvalid, s.name)
	}
	s.name = name
	s.joined = at
	s.afk = false
	r.sessions[name] = s
	return nil
}

// Unregister removes s if it holds its name. It reports whether anything was
// removed, so it is safe to call for sessions that never negotiated.
func (r *Registry) Unregister(s *Session) bool {
	if s == nil || s.name == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.sessions[s.name]; ok && current == s {
		delete(r.sessions, s.name)
		return true
	}
	return false
}

// SetAFK sets the away flag of s and returns the previous value. ok is false
// if s is not registered.
func (r *Registry) SetAFK(s *Session, afk bool) (previous, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, exists := r.sessions[s.name]
	if !exists || current != s {
		return false, false
	}
	previous = s.afk
	s.afk = afk
	return previous, true
}

// IsAFK reports whether the session registered as name is away.
// Unknown names are never away.
func (r *Registry) IsAFK(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[name]
	return ok && s.afk
}

// Lookup resolves a display name by exact match.
func (r *Registry) Lookup(name string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[name]
	return s, ok
}

// Len returns the number of registered sessions. Sessions still at the
// username prompt are not included; see Connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot returns the registered sessions ordered by join time. The slice is
// a copy and may be iterated while sessions come and go.
func (r *Registry) Snapshot() []*Session {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].joined.Equal(sessions[j].joined) {
			return sessions[i].name < sessions[j].name
		}
		return sessions[i].joined.Before(sessions[j].joined)
	})
	return sessions
}

// Names returns the registered display names in Snapshot order.
func (r *Registry) Names() []string {
	snapshot := r.Snapshot()
	names := make([]string, 0, len(snapshot))
	for _, s := range snapshot {
		names = append(names, s.name)
	}
	return names
}
