package relay

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Conn is a live connection handle. ID is unique per physical connection.
type Conn interface {
	ID() string
	Emit(event string, payload any) error
}

// Registry maps participant ids to their live connection in this process.
// The last connection registered for an id wins.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Conn
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]Conn)}
}

// Register attaches conn to userID and returns the handle it replaced, if any.
func (r *Registry) Register(userID string, conn Conn) (Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.conns[userID]
	r.conns[userID] = conn
	log.Debug().Str("module", "relay.registry").Str("user", userID).Str("conn", conn.ID()).Bool("replaced", ok).Msg("registered")
	return prev, ok
}

// Unregister removes userID whatever connection it points at.
func (r *Registry) Unregister(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.conns[userID]
	delete(r.conns, userID)
	return ok
}

// Release removes userID only while it still points at conn. It returns false
// when the entry is gone or a newer connection has taken it over.
func (r *Registry) Release(userID string, conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.conns[userID]
	if !ok || cur.ID() != conn.ID() {
		return false
	}
	delete(r.conns, userID)
	log.Debug().Str("module", "relay.registry").Str("user", userID).Str("conn", conn.ID()).Msg("released")
	return true
}

// Lookup returns the live connection of userID.
func (r *Registry) Lookup(userID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[userID]
	return c, ok
}

// Len returns the number of registered participants.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
