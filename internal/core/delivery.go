package core

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-dm/internal/store"
)

// Outcome reports what happened to a newly created message.
type Outcome int

const (
	// OutcomeQueued means the recipient was offline or the push failed;
	// the message waits in storage and the unseen counter was incremented.
	OutcomeQueued Outcome = iota
	// OutcomeLiveDelivered means the message was handed to the recipient's connection.
	OutcomeLiveDelivered
)

func (o Outcome) String() string {
	switch o {
	case OutcomeLiveDelivered:
		return "live_delivered"
	case OutcomeQueued:
		return "queued"
	default:
		return "unknown"
	}
}

// Router delivers persisted messages to their recipient's live connection.
type Router struct {
	registry     *Registry
	unseen       *UnseenCounter
	sessions     *Sessions
	store        Storage
	autoMarkSeen bool
	drop         func(ctx context.Context, conn Conn)
	log          *zerolog.Logger
}

// Deliver pushes msg to the recipient if online.
// On push failure the connection is dropped and the message falls back to Queued.
//
// The seen flag on the pushed copy is optimistic: it is set before the durable
// write, and a failed write is only logged. The conversation is open on the
// client, so the next read of it marks the message seen in storage.
func (r *Router) Deliver(ctx context.Context, msg *store.Message) Outcome {
	conn, ok := r.registry.Lookup(msg.RecipientID)
	if !ok {
		r.unseen.Increment(msg.RecipientID, msg.SenderID)
		return OutcomeQueued
	}

	delivered := *msg
	viewing := r.autoMarkSeen && r.sessions.IsOpen(msg.RecipientID, msg.SenderID)
	if viewing {
		delivered.Seen = true
	}

	if err := conn.Send(&Event{Kind: EventNewMessage, Message: delivered}); err != nil {
		err = fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
		r.log.Warn().Err(err).
			Int64("message_id", msg.ID).
			Str("recipient_id", msg.RecipientID).
			Msg("live delivery failed, queuing")
		r.drop(ctx, conn)
		r.unseen.Increment(msg.RecipientID, msg.SenderID)
		return OutcomeQueued
	}

	if viewing {
		if err := r.MarkSeen(ctx, msg.ID); err != nil {
			r.log.Warn().Err(err).Int64("message_id", msg.ID).Msg("failed to auto mark message seen")
		} else {
			msg.Seen = true
		}
	}
	return OutcomeLiveDelivered
}

// MarkSeen durably flags a message as seen. Safe to call repeatedly.
func (r *Router) MarkSeen(ctx context.Context, messageID int64) error {
	if err := r.store.SetSeen(ctx, messageID); err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}
	return nil
}
