package core

import (
	"sort"
	"sync"
)

// Registry maps a user id to its single active connection.
// Its key set is the set of online users. The underlying map is never exposed.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Conn
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]Conn),
	}
}

// Register stores conn as the active connection of its user.
// A previous connection for the same user is closed and returned.
func (r *Registry) Register(conn Conn) Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID := conn.UserID()
	prev, ok := r.conns[userID]
	if ok && prev != conn {
		prev.Close()
	} else {
		prev = nil
	}
	r.conns[userID] = conn
	return prev
}

// Deregister removes the entry for userID only if it still points at conn.
// A stale handle (the user reconnected meanwhile) is ignored and false is
// returned; callers report it as ErrStaleConnection.
func (r *Registry) Deregister(userID string, conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.conns[userID]
	if !ok || current != conn {
		return false
	}
	delete(r.conns, userID)
	return true
}

// Lookup returns the live connection of userID.
// The handle may go stale as soon as Lookup returns; do not retain it.
func (r *Registry) Lookup(userID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[userID]
	return conn, ok
}

// Snapshot returns the online user ids, sorted.
func (r *Registry) Snapshot() []string {
	ids, _ := r.snapshot()
	return ids
}

// snapshot copies ids and handles out under one read lock.
func (r *Registry) snapshot() ([]string, []Conn) {
	r.mu.RLock()
	ids := make([]string, 0, len(r.conns))
	conns := make([]Conn, 0, len(r.conns))
	for id, conn := range r.conns {
		ids = append(ids, id)
		conns = append(conns, conn)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids, conns
}

// Len returns the number of online users.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// CloseAll closes and removes every connection.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[string]Conn)
	r.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
}
