package chip

import (
	"sync"

	"github.com/google/uuid"
)

type entry struct {
	mu      sync.Mutex
	session *Session
}

// Registry owns the live selection sessions, keyed by session id. Each
// session is only reachable through With, which holds that session's lock.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	lock     LockAxes
}

// NewRegistry creates an empty registry. New sessions start with defaultLock
// on every block.
func NewRegistry(defaultLock LockAxes) *Registry {
	return &Registry{
		sessions: make(map[string]*entry),
		lock:     defaultLock,
	}
}

// Open validates g and starts a new session on it.
func (r *Registry) Open(g Geometry) (string, error) {
	grid, err := NewGrid(g)
	if err != nil {
		return "", err
	}
	id := uuid.New().String()

	r.mu.Lock()
	r.sessions[id] = &entry{session: NewSession(id, grid, r.lock)}
	r.mu.Unlock()
	return id, nil
}

// With runs fn with exclusive access to the session id.
func (r *Registry) With(id string, fn func(*Session) error) error {
	r.mu.RLock()
	e, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.session)
}

// Close discards the session id.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(r.sessions, id)
	return nil
}

// Count returns the number of open sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
