package core

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Conn is a live connection handle as seen by the registry.
// Send must not block; Close must be idempotent and must not block either.
type Conn interface {
	UserID() string
	Send(ev *Event) error
	Close()
}

// Client is one authenticated live connection.
// Commands is the bounded inbox drained by Hub.ServeClient;
// Events is the bounded outbox drained by the transport write loop.
type Client struct {
	ID       string
	User     string
	Commands chan *Command
	Events   chan *Event

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient constructs a client with bounded channels.
func NewClient(userID string, inboxSize, outboxSize int) *Client {
	if inboxSize <= 0 {
		inboxSize = 8
	}
	if outboxSize <= 0 {
		outboxSize = 8
	}
	return &Client{
		ID:       uuid.NewString(),
		User:     userID,
		Commands: make(chan *Command, inboxSize),
		Events:   make(chan *Event, outboxSize),
		done:     make(chan struct{}),
	}
}

// UserID returns the owning user.
func (c *Client) UserID() string {
	return c.User
}

// Send enqueues an event without blocking.
// A full outbox is reported as ErrSlowConsumer.
func (c *Client) Send(ev *Event) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}

	select {
	case c.Events <- ev:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	default:
		return fmt.Errorf("client %s: %w", c.ID, ErrSlowConsumer)
	}
}

// Close marks the client closed. The transport observes Done and tears the socket down.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Done is closed once the client has been closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}
