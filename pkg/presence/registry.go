package presence

import "sync"

// Registry maps a user ID to its currently active connection.
//
// A user has a single canonical live presence: Register replaces any
// previous entry for the same user, and Unregister only removes an entry
// when the caller still holds the connection that entry points at. The map
// is never exposed; all access goes through the four methods below, which
// serialize through one mutex so every read observes a consistent state.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Conn
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]*Conn),
	}
}

// Register inserts or replaces the entry for userID. A previous connection
// for the same user is detached from the registry but not closed - closing
// is the hub's job when its own read loop ends.
func (r *Registry) Register(userID string, conn *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[userID] = conn
}

// Unregister removes the entry for userID only if the stored connection is
// conn itself (pointer identity, not just user equality). A stale close
// event for a superseded connection must not evict the user's newer one.
// Returns whether an entry was actually removed.
func (r *Registry) Unregister(userID string, conn *Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.conns[userID]
	if !ok || current != conn {
		return false
	}
	delete(r.conns, userID)
	return true
}

// Lookup returns the active connection for userID, if any.
func (r *Registry) Lookup(userID string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[userID]
	return conn, ok
}

// Snapshot returns the set of currently online user IDs as a consistent
// point-in-time view. Order is unspecified.
func (r *Registry) Snapshot() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]string, 0, len(r.conns))
	for userID := range r.conns {
		users = append(users, userID)
	}
	return users
}

// Count returns the number of online users.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.conns)
}
