package core

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vovakirdan/wirechat-dm/internal/store"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

// lastEvent drains ch and returns the last event of the given kind, or nil.
func lastEvent(ch <-chan *Event, kind EventKind) *Event {
	var last *Event
	for {
		select {
		case ev := <-ch:
			if ev != nil && ev.Kind == kind {
				last = ev
			}
		default:
			return last
		}
	}
}

// fakeConn records pushes and counts closes.
type fakeConn struct {
	user    string
	failing atomic.Bool
	closes  atomic.Int32

	mu     sync.Mutex
	events []*Event
}

func newFakeConn(user string) *fakeConn {
	return &fakeConn{user: user}
}

func (f *fakeConn) UserID() string { return f.user }

func (f *fakeConn) Send(ev *Event) error {
	if f.failing.Load() || f.closes.Load() > 0 {
		return ErrConnectionClosed
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeConn) Close() { f.closes.Add(1) }

func (f *fakeConn) received(kind EventKind) []*Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Event
	for _, ev := range f.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

// memStorage is an in-memory Storage.
type memStorage struct {
	mu       sync.Mutex
	nextID   int64
	users    map[string]bool
	messages map[int64]*store.Message
	failNext error
	// failSeen makes the next SetSeen fail.
	failSeen error
	// onFetch runs inside FetchUnseenCounts after the counts are read.
	onFetch func()
	// onCreate runs inside CreateMessage after the message is stored.
	onCreate func()
}

func newMemStorage() *memStorage {
	users := make(map[string]bool)
	for _, id := range []string{"v", "p", "o", "a", "b", "alice", "bob", "mallory"} {
		users[id] = true
	}
	return &memStorage{users: users, messages: make(map[int64]*store.Message)}
}

func (m *memStorage) GetUserByID(_ context.Context, id string) (*store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.users[id] {
		return nil, store.ErrNotFound
	}
	return &store.User{ID: id}, nil
}

func (m *memStorage) GetMessage(_ context.Context, id int64) (*store.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, ok := m.messages[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *msg
	return &cp, nil
}

func (m *memStorage) CreateMessage(_ context.Context, senderID, recipientID, text, image string) (*store.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failNext; err != nil {
		m.failNext = nil
		return nil, err
	}
	m.nextID++
	msg := &store.Message{
		ID:          m.nextID,
		SenderID:    senderID,
		RecipientID: recipientID,
		Text:        text,
		Image:       image,
		CreatedAt:   time.Now().UTC(),
	}
	stored := *msg
	m.messages[msg.ID] = &stored
	if hook := m.onCreate; hook != nil {
		m.mu.Unlock()
		hook()
		m.mu.Lock()
	}
	return msg, nil
}

func (m *memStorage) SetSeen(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failSeen; err != nil {
		m.failSeen = nil
		return err
	}
	msg, ok := m.messages[id]
	if !ok {
		return store.ErrNotFound
	}
	msg.Seen = true
	return nil
}

func (m *memStorage) FetchUnseenCounts(_ context.Context, viewerID string) (map[string]int, error) {
	m.mu.Lock()
	counts := make(map[string]int)
	for _, msg := range m.messages {
		if msg.RecipientID == viewerID && !msg.Seen {
			counts[msg.SenderID]++
		}
	}
	hook := m.onFetch
	m.mu.Unlock()

	if hook != nil {
		hook()
	}
	return counts, nil
}

func (m *memStorage) MarkConversationSeen(_ context.Context, viewerID, peerID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, msg := range m.messages {
		if msg.SenderID == peerID && msg.RecipientID == viewerID && !msg.Seen {
			msg.Seen = true
			n++
		}
	}
	return n, nil
}

func (m *memStorage) seen(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	return ok && msg.Seen
}
