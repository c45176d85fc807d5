package ipmi

import (
	"sync"

	"codeberg.org/mutker/ipmifanctl/internal/errors"
)

// Registry owns all sessions, keyed by name. Zones refer to sessions by
// name only; the registry is the single owner and outlives every
// referencing control loop.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
	}
}

// Open creates the named session. Opening a name twice is an error.
func (r *Registry) Open(name string, opts Options) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[name]; ok {
		return nil, errors.New().WithData(errors.ErrInvalidOperation, "session already open: "+name)
	}

	session := Open(name, opts)
	r.sessions[name] = session

	return session, nil
}

// Get returns the named session if it is open.
func (r *Registry) Get(name string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[name]

	return session, ok
}

// Close shuts down and removes the named session.
func (r *Registry) Close(name string) {
	r.mu.Lock()
	session, ok := r.sessions[name]
	delete(r.sessions, name)
	r.mu.Unlock()

	if ok {
		session.Close()
	}
}

// CloseAll shuts down every session.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, session := range r.sessions {
		sessions = append(sessions, session)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, session := range sessions {
		session.Close()
	}
}

// Names returns the names of all open sessions.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.sessions))
	for name := range r.sessions {
		names = append(names, name)
	}

	return names
}
