package core

import "sync"

// Sessions records, per viewer, which peer's conversation is currently open.
// It is a liveness hint only and is never persisted.
type Sessions struct {
	mu   sync.RWMutex
	open map[string]string
}

// NewSessions creates an empty session table.
func NewSessions() *Sessions {
	return &Sessions{open: make(map[string]string)}
}

// Open moves viewer to Open(peer), replacing any previously open peer.
func (s *Sessions) Open(viewer, peer string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open[viewer] = peer
}

// Close moves viewer to Closed.
func (s *Sessions) Close(viewer string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.open, viewer)
}

// Current returns the open peer of viewer, if any.
func (s *Sessions) Current(viewer string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	peer, ok := s.open[viewer]
	return peer, ok
}

// IsOpen reports whether viewer currently has peer open.
func (s *Sessions) IsOpen(viewer, peer string) bool {
	current, ok := s.Current(viewer)
	return ok && current == peer
}
