package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandSeenAck reports that the client displayed a message.
	CommandSeenAck CommandKind = iota
	// CommandOpenConversation selects a peer as the currently open conversation.
	CommandOpenConversation
	// CommandCloseConversation deselects the open conversation.
	CommandCloseConversation
)

// Command represents an action requested by a client over its live connection.
type Command struct {
	Kind      CommandKind
	MessageID int64
	Peer      string
}
