package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-dm/internal/auth"
	"github.com/vovakirdan/wirechat-dm/internal/config"
	"github.com/vovakirdan/wirechat-dm/internal/core"
	"github.com/vovakirdan/wirechat-dm/internal/proto"
)

// WSHandler authenticates, upgrades HTTP connections and bridges them to core.Client.
type WSHandler struct {
	hub             *core.Hub
	auth            *auth.Service
	log             *zerolog.Logger
	maxMessageBytes int64
	writeTimeout    time.Duration
	inboxSize       int
	outboxSize      int
	rateLimit       int
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, authService *auth.Service, cfg *config.Config, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{
		hub:             hub,
		auth:            authService,
		log:             logger,
		maxMessageBytes: cfg.MaxMessageBytes,
		writeTimeout:    cfg.WriteTimeout,
		inboxSize:       cfg.InboxSize,
		outboxSize:      cfg.OutboxSize,
		rateLimit:       cfg.RateLimitPerMinute,
	}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	// Identity is established once, before the upgrade.
	userID, err := h.auth.Identify(r.Context(), requestToken(r))
	if err != nil {
		h.log.Debug().Err(err).Msg("ws unauthenticated")
		stdhttp.Error(w, "unauthorized", stdhttp.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.CloseNow()
	if h.maxMessageBytes > 0 {
		conn.SetReadLimit(h.maxMessageBytes)
	}

	client := core.NewClient(userID, h.inboxSize, h.outboxSize)
	logger := h.log.With().Str("client_id", client.ID).Str("user_id", userID).Logger()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	served := make(chan error, 1)
	go func() {
		served <- h.hub.ServeClient(ctx, client)
	}()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client, &logger)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client, &logger)
	}()

	err = <-errCh
	client.Close()
	cancel()
	<-errCh
	if serveErr := <-served; serveErr != nil {
		logger.Warn().Err(serveErr).Msg("serve client")
	}

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
			logger.Warn().Err(err).Msg("ws connection closed with error")
			status = websocket.StatusInternalError
			reason = "internal error"
		}
	}

	_ = conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client, logger *zerolog.Logger) error {
	limiter := newFrameLimiter(h.rateLimit)
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			logger.Debug().Err(err).Msg("read ws inbound")
			return err
		}

		if !limiter.allow() {
			if err := h.reply(client, core.ErrCodeRateLimited, "rate limit exceeded"); err != nil {
				return err
			}
			continue
		}

		cmd, protoErr := inboundToCommand(inbound)
		if protoErr != nil {
			if err := h.reply(client, protoErr.Code, protoErr.Msg); err != nil {
				return err
			}
			continue
		}

		select {
		case client.Commands <- cmd:
		case <-client.Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// reply queues a protocol error through the outbox so the write loop stays the only writer.
func (h *WSHandler) reply(client *core.Client, code, msg string) error {
	return client.Send(&core.Event{Kind: core.EventError, Error: &core.CoreError{Code: code, Message: msg}})
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client, logger *zerolog.Logger) error {
	for {
		select {
		case event := <-client.Events:
			if err := h.write(ctx, conn, outboundFromEvent(event)); err != nil {
				logger.Warn().Err(err).Msg("write ws event")
				return err
			}
		case <-client.Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) write(ctx context.Context, conn *websocket.Conn, out proto.Outbound) error {
	if h.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.writeTimeout)
		defer cancel()
	}
	return wsjson.Write(ctx, conn, out)
}
