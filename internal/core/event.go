package core

import "github.com/vovakirdan/wirechat-dm/internal/store"

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventOnlineUsers carries the complete set of online user ids,
	// replacing any view the client had before.
	EventOnlineUsers EventKind = iota
	// EventNewMessage delivers a newly created message to its recipient.
	EventNewMessage
	// EventUnseenCounts delivers the viewer's unseen counts, per peer.
	EventUnseenCounts
	// EventError notifies clients about a domain error.
	EventError
)

// Event is sent to clients to describe what happened in the system.
// Events may be shared between connections and must not be mutated after send.
type Event struct {
	Kind        EventKind
	OnlineUsers []string
	Message     store.Message
	Unseen      map[string]int
	Error       *CoreError
}
