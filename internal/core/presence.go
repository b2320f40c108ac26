package core

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// PresenceMirror receives every announced online set, e.g. to share it with other processes.
type PresenceMirror interface {
	Publish(ctx context.Context, online []string) error
}

// Broadcaster publishes the full online set to every registered connection.
type Broadcaster struct {
	registry *Registry
	mirror   PresenceMirror
	log      *zerolog.Logger
	// dropped is called for every connection Announce deregistered.
	dropped func(conn Conn)

	// announcements are serialized so no client ends on an older snapshot
	mu sync.Mutex
}

// NewBroadcaster creates a broadcaster over registry. mirror may be nil.
func NewBroadcaster(registry *Registry, mirror PresenceMirror, logger *zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		mirror:   mirror,
		log:      logger,
	}
}

// Announce pushes the current online set to every connection.
// A connection whose push fails is closed and deregistered, and the
// shrunken set is announced again.
func (b *Broadcaster) Announce(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for {
		ids, conns := b.registry.snapshot()
		ev := &Event{Kind: EventOnlineUsers, OnlineUsers: ids}

		var failed []Conn
		for _, conn := range conns {
			if err := conn.Send(ev); err != nil {
				b.log.Debug().Err(err).Str("user_id", conn.UserID()).Msg("presence push failed")
				failed = append(failed, conn)
			}
		}

		removed := false
		for _, conn := range failed {
			conn.Close()
			if b.registry.Deregister(conn.UserID(), conn) {
				removed = true
				if b.dropped != nil {
					b.dropped(conn)
				}
			}
		}
		if removed {
			continue
		}

		b.publish(ctx, ids)
		return
	}
}

func (b *Broadcaster) publish(ctx context.Context, ids []string) {
	if b.mirror == nil {
		return
	}
	if err := b.mirror.Publish(ctx, ids); err != nil {
		b.log.Warn().Err(err).Int("online", len(ids)).Msg("failed to mirror presence")
	}
}
