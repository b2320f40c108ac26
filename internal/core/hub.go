package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-dm/internal/store"
)

// Storage is the subset of durable storage the core depends on.
type Storage interface {
	GetUserByID(ctx context.Context, id string) (*store.User, error)
	GetMessage(ctx context.Context, id int64) (*store.Message, error)
	CreateMessage(ctx context.Context, senderID, recipientID, text, image string) (*store.Message, error)
	SetSeen(ctx context.Context, id int64) error
	FetchUnseenCounts(ctx context.Context, viewerID string) (map[string]int, error)
	MarkConversationSeen(ctx context.Context, viewerID, peerID string) (int64, error)
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the hub logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(h *Hub) {
		if logger != nil {
			h.log = logger
		}
	}
}

// WithPresenceMirror mirrors every announced online set to m.
func WithPresenceMirror(m PresenceMirror, refresh time.Duration) Option {
	return func(h *Hub) {
		h.mirror = m
		h.mirrorRefresh = refresh
	}
}

// WithAutoMarkSeen controls whether the server marks a live-delivered message
// seen when the recipient has the sender's conversation open.
func WithAutoMarkSeen(enabled bool) Option {
	return func(h *Hub) {
		h.autoMarkSeen = enabled
	}
}

// Hub coordinates presence and live delivery.
type Hub struct {
	registry    *Registry
	broadcaster *Broadcaster
	router      *Router
	unseen      *UnseenCounter
	sessions    *Sessions
	store       Storage
	log         *zerolog.Logger

	mirror        PresenceMirror
	mirrorRefresh time.Duration
	autoMarkSeen  bool
}

// NewHub creates a hub over st, which must not be nil.
func NewHub(st Storage, opts ...Option) *Hub {
	nop := zerolog.Nop()
	h := &Hub{
		registry:     NewRegistry(),
		unseen:       NewUnseenCounter(),
		sessions:     NewSessions(),
		store:        st,
		log:          &nop,
		autoMarkSeen: true,
	}
	for _, opt := range opts {
		opt(h)
	}

	h.broadcaster = NewBroadcaster(h.registry, h.mirror, h.log)
	h.broadcaster.dropped = h.connectionDropped
	h.router = &Router{
		registry:     h.registry,
		unseen:       h.unseen,
		sessions:     h.sessions,
		store:        st,
		autoMarkSeen: h.autoMarkSeen,
		drop:         h.dropConnection,
		log:          h.log,
	}
	return h
}

// Run keeps the presence mirror fresh until ctx is done, then closes every connection.
func (h *Hub) Run(ctx context.Context) {
	var tick <-chan time.Time
	if h.mirror != nil && h.mirrorRefresh > 0 {
		ticker := time.NewTicker(h.mirrorRefresh)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-tick:
			if err := h.mirror.Publish(ctx, h.registry.Snapshot()); err != nil && ctx.Err() == nil {
				h.log.Warn().Err(err).Msg("failed to refresh presence mirror")
			}
		case <-ctx.Done():
			h.registry.CloseAll()
			return
		}
	}
}

// ServeClient registers c, processes its inbox until ctx ends or c is closed,
// then deregisters it. It is the dedicated worker of one connection.
func (h *Hub) ServeClient(ctx context.Context, c *Client) error {
	if err := h.OnConnectionOpened(ctx, c); err != nil {
		return err
	}
	defer h.OnConnectionClosed(context.WithoutCancel(ctx), c)

	for {
		select {
		case cmd := <-c.Commands:
			h.handleCommand(ctx, c, cmd)
		case <-c.Done():
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

func (h *Hub) handleCommand(ctx context.Context, c *Client, cmd *Command) {
	if cmd == nil {
		return
	}
	if current, ok := h.registry.Lookup(c.User); !ok || current != Conn(c) {
		h.log.Debug().Err(ErrStaleConnection).Str("user_id", c.User).Msg("dropping command of replaced connection")
		return
	}

	var err error
	switch cmd.Kind {
	case CommandSeenAck:
		err = h.OnSeenAck(ctx, c.User, cmd.MessageID)
	case CommandOpenConversation:
		err = h.OpenConversation(ctx, c.User, cmd.Peer)
	case CommandCloseConversation:
		h.CloseConversation(c.User)
	default:
		err = coreError(ErrCodeBadRequest, "unknown command")
	}
	if err == nil {
		return
	}

	h.log.Debug().Err(err).Str("user_id", c.User).Int("command", int(cmd.Kind)).Msg("command failed")
	if sendErr := c.Send(&Event{Kind: EventError, Error: toCoreError(err)}); sendErr != nil {
		h.dropConnection(ctx, c)
	}
}

// OnConnectionOpened registers an authenticated connection, reconciles the
// user's unseen counts and announces the new online set.
func (h *Hub) OnConnectionOpened(ctx context.Context, conn Conn) error {
	userID := conn.UserID()
	if strings.TrimSpace(userID) == "" {
		return ErrUnauthenticated
	}

	if prev := h.registry.Register(conn); prev != nil {
		h.log.Info().Str("user_id", userID).Msg("replaced previous connection")
	}
	// A new connection starts with no conversation open.
	h.sessions.Close(userID)
	h.log.Info().Str("user_id", userID).Int("online", h.registry.Len()).Msg("user connected")

	counts, err := h.seedUnseen(ctx, userID)
	if err != nil {
		h.log.Warn().Err(err).Str("user_id", userID).Msg("failed to load unseen counts")
	} else if sendErr := conn.Send(&Event{Kind: EventUnseenCounts, Unseen: counts}); sendErr != nil {
		h.dropConnection(ctx, conn)
		return nil
	}

	h.broadcaster.Announce(ctx)
	return nil
}

// OnConnectionClosed deregisters conn unless a newer connection replaced it.
func (h *Hub) OnConnectionClosed(ctx context.Context, conn Conn) {
	conn.Close()
	if !h.registry.Deregister(conn.UserID(), conn) {
		h.log.Debug().Err(ErrStaleConnection).Str("user_id", conn.UserID()).Msg("ignoring close of replaced connection")
		return
	}
	h.sessions.Close(conn.UserID())
	h.log.Info().Str("user_id", conn.UserID()).Int("online", h.registry.Len()).Msg("user disconnected")
	h.broadcaster.Announce(ctx)
}

// connectionDropped clears the session of a connection the broadcaster deregistered.
func (h *Hub) connectionDropped(conn Conn) {
	h.sessions.Close(conn.UserID())
	h.log.Info().Str("user_id", conn.UserID()).Msg("dropped unresponsive connection")
}

// dropConnection treats a failed push as an implicit disconnect.
func (h *Hub) dropConnection(ctx context.Context, conn Conn) {
	h.OnConnectionClosed(ctx, conn)
}

// OnMessageCreated attempts live delivery of a persisted message.
// A message persisted outside SendMessage can race a concurrent seed of the
// recipient's counts; the next seed corrects it.
func (h *Hub) OnMessageCreated(ctx context.Context, msg *store.Message) Outcome {
	release := h.unseen.HoldDelivery(msg.RecipientID)
	defer release()
	return h.router.Deliver(ctx, msg)
}

// SendMessage persists a message and attempts live delivery.
// Persistence errors are returned as is; no retry happens here.
func (h *Hub) SendMessage(ctx context.Context, senderID, recipientID, text, image string) (*store.Message, Outcome, error) {
	if senderID == recipientID {
		return nil, OutcomeQueued, ErrInvalidPeer
	}
	if strings.TrimSpace(text) == "" && strings.TrimSpace(image) == "" {
		return nil, OutcomeQueued, ErrEmptyMessage
	}

	release := h.unseen.HoldDelivery(recipientID)
	msg, err := h.store.CreateMessage(ctx, senderID, recipientID, text, image)
	if err != nil {
		release()
		return nil, OutcomeQueued, fmt.Errorf("create message: %w", err)
	}
	outcome := h.router.Deliver(ctx, msg)
	release()

	h.log.Debug().
		Int64("message_id", msg.ID).
		Str("sender_id", senderID).
		Str("recipient_id", recipientID).
		Stringer("outcome", outcome).
		Msg("message created")
	return msg, outcome, nil
}

// OnSeenAck records that viewer's client displayed a message.
// Only the recipient may mark a message; any other viewer gets store.ErrNotFound.
func (h *Hub) OnSeenAck(ctx context.Context, viewer string, messageID int64) error {
	msg, err := h.store.GetMessage(ctx, messageID)
	if err != nil {
		return fmt.Errorf("seen ack: %w", err)
	}
	if msg.RecipientID != viewer {
		return fmt.Errorf("seen ack: message %d: %w", messageID, store.ErrNotFound)
	}
	if msg.Seen {
		return nil
	}
	return h.router.MarkSeen(ctx, messageID)
}

// OpenConversation moves viewer to Open(peer), resets the pair's unseen count
// and durably marks the peer's messages seen.
func (h *Hub) OpenConversation(ctx context.Context, viewer, peer string) error {
	if err := h.checkPeer(ctx, viewer, peer); err != nil {
		return err
	}

	h.sessions.Open(viewer, peer)
	if err := h.markRead(ctx, viewer, peer); err != nil {
		return fmt.Errorf("open conversation: %w", err)
	}
	return nil
}

// MarkConversationRead resets viewer's unseen count for peer and durably
// marks every message from peer to viewer seen. The session is left alone.
func (h *Hub) MarkConversationRead(ctx context.Context, viewer, peer string) error {
	if err := h.checkPeer(ctx, viewer, peer); err != nil {
		return err
	}
	return h.markRead(ctx, viewer, peer)
}

func (h *Hub) markRead(ctx context.Context, viewer, peer string) error {
	h.unseen.Reset(viewer, peer)
	n, err := h.store.MarkConversationSeen(ctx, viewer, peer)
	if err != nil {
		return fmt.Errorf("mark conversation seen: %w", err)
	}
	if n > 0 {
		h.log.Debug().Str("viewer", viewer).Str("peer", peer).Int64("marked", n).Msg("conversation read")
	}
	return nil
}

// checkPeer rejects self, empty and unknown peers with ErrInvalidPeer.
func (h *Hub) checkPeer(ctx context.Context, viewer, peer string) error {
	if peer == "" || peer == viewer {
		return ErrInvalidPeer
	}
	if _, err := h.store.GetUserByID(ctx, peer); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: unknown user %q", ErrInvalidPeer, peer)
		}
		return fmt.Errorf("lookup peer: %w", err)
	}
	return nil
}

// CloseConversation moves viewer to Closed.
func (h *Hub) CloseConversation(viewer string) {
	h.sessions.Close(viewer)
}

// OnlineUsers returns the ids of connected users.
func (h *Hub) OnlineUsers() []string {
	return h.registry.Snapshot()
}

// IsOnline reports whether userID has a live connection.
func (h *Hub) IsOnline(userID string) bool {
	_, ok := h.registry.Lookup(userID)
	return ok
}

// UnseenCounts returns viewer's unseen counts, seeding them from storage
// the first time viewer is seen by this process.
func (h *Hub) UnseenCounts(ctx context.Context, viewer string) (map[string]int, error) {
	if h.unseen.Seeded(viewer) {
		return h.unseen.Snapshot(viewer), nil
	}
	return h.seedUnseen(ctx, viewer)
}

// ResetUnseen zeroes viewer's count for peer.
func (h *Hub) ResetUnseen(viewer, peer string) {
	h.unseen.Reset(viewer, peer)
}

func (h *Hub) seedUnseen(ctx context.Context, viewer string) (map[string]int, error) {
	counts, err := h.unseen.SeedFrom(viewer, func() (map[string]int, error) {
		return h.store.FetchUnseenCounts(ctx, viewer)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch unseen counts: %w", err)
	}
	return counts, nil
}

func toCoreError(err error) *CoreError {
	var ce *CoreError
	switch {
	case errors.As(err, &ce):
		return ce
	case errors.Is(err, store.ErrNotFound):
		return coreError(ErrCodeNotFound, "message not found")
	case errors.Is(err, ErrInvalidPeer):
		return coreError(ErrCodeInvalidPeer, err.Error())
	default:
		return coreError(ErrCodeInternal, "internal error")
	}
}
