package core

import "errors"

// Error codes for errors reported to clients.
const (
	ErrCodeBadRequest    = "bad_request"
	ErrCodeUnauthorized  = "unauthorized"
	ErrCodeNotFound      = "not_found"
	ErrCodeInternal      = "internal_error"
	ErrCodeRateLimited   = "rate_limited"
	ErrCodeInvalidPeer   = "invalid_peer"
	ErrCodeInvalidFormat = "invalid_message"
)

var (
	// ErrUnauthenticated is returned when a connection lacks a valid identity.
	// Such connections never enter the registry.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrStaleConnection marks a close or command from a handle that is no longer current.
	// It is never surfaced to callers; Deregister reports it by returning false.
	ErrStaleConnection = errors.New("stale connection")
	// ErrDeliveryFailed wraps a failed push to a live connection.
	ErrDeliveryFailed = errors.New("delivery failed")
	// ErrConnectionClosed is returned by Send on a closed connection.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrSlowConsumer is returned by Send when the outbox is full.
	ErrSlowConsumer = errors.New("slow consumer")
	// ErrInvalidPeer is returned when a user tries to message or open themselves.
	ErrInvalidPeer = errors.New("invalid peer")
	// ErrEmptyMessage is returned when a message has neither text nor image.
	ErrEmptyMessage = errors.New("message has no content")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}
