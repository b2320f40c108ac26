package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// User represents an account in the system.
type User struct {
	ID           string
	Email        string
	FullName     string
	PasswordHash string
	Bio          string
	ProfilePic   string // URL of an already hosted image
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Message represents a persisted direct message.
// Everything except Seen is immutable once created.
type Message struct {
	ID          int64
	SenderID    string
	RecipientID string
	Text        string
	Image       string // image reference (URL)
	Seen        bool
	CreatedAt   time.Time
}

// ProfileUpdate carries the mutable profile fields.
type ProfileUpdate struct {
	FullName   string
	Bio        string
	ProfilePic string // empty keeps the current picture
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser persists a new user. ID and timestamps are assigned by the store.
	CreateUser(ctx context.Context, user *User) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id string) (*User, error)

	// GetUserByEmail retrieves a user by email.
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// UpdateProfile updates profile fields and returns the updated user.
	UpdateProfile(ctx context.Context, id string, update ProfileUpdate) (*User, error)

	// ListUsers lists all users except the given one, ordered by name.
	ListUsers(ctx context.Context, exceptID string) ([]*User, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// CreateMessage persists a message and assigns its ID and timestamp.
	CreateMessage(ctx context.Context, senderID, recipientID, text, image string) (*Message, error)

	// GetMessage retrieves a message by ID.
	GetMessage(ctx context.Context, id int64) (*Message, error)

	// SetSeen flags a message as seen. Calling it on a seen message is a no-op.
	SetSeen(ctx context.Context, id int64) error

	// ListConversation returns every message exchanged between two users, oldest first.
	ListConversation(ctx context.Context, userA, userB string) ([]*Message, error)

	// MarkConversationSeen flags every unseen message from peer to viewer as seen.
	// Returns the number of messages updated.
	MarkConversationSeen(ctx context.Context, viewerID, peerID string) (int64, error)

	// FetchUnseenCounts returns, per sender, the number of unseen messages addressed to viewer.
	FetchUnseenCounts(ctx context.Context, viewerID string) (map[string]int, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
