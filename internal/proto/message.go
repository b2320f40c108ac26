package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	ProtocolVersion = 1

	InboundTypeSeen  = "seen"
	InboundTypeOpen  = "open"
	InboundTypeClose = "close"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"

	EventOnlineUsers  = "online_users"
	EventNewMessage   = "new_message"
	EventUnseenCounts = "unseen_counts"
)

// SeenData acknowledges that the client displayed a message.
type SeenData struct {
	MessageID int64 `json:"message_id"`
}

// OpenData selects the conversation with peer as the open one.
type OpenData struct {
	Peer string `json:"peer"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// EventOnline carries the complete set of online user ids.
type EventOnline struct {
	Users []string `json:"users"`
}

// EventMessage is a direct message as seen by clients.
type EventMessage struct {
	ID          int64  `json:"id"`
	SenderID    string `json:"sender_id"`
	RecipientID string `json:"recipient_id"`
	Text        string `json:"text,omitempty"`
	Image       string `json:"image,omitempty"`
	Seen        bool   `json:"seen"`
	TS          int64  `json:"ts"`
}

// EventUnseen carries per-peer unseen counts.
type EventUnseen struct {
	Counts map[string]int `json:"counts"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
