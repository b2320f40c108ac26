package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-dm/internal/core"
	"github.com/vovakirdan/wirechat-dm/internal/store"
)

// MessageHandlers serves the conversation and presence endpoints.
type MessageHandlers struct {
	hub   *core.Hub
	store store.Store
	log   *zerolog.Logger
}

// NewMessageHandlers creates message handlers backed by hub and st.
func NewMessageHandlers(hub *core.Hub, st store.Store, logger *zerolog.Logger) *MessageHandlers {
	return &MessageHandlers{hub: hub, store: st, log: logger}
}

// SendMessageRequest is the body of POST /api/messages/send/:id.
type SendMessageRequest struct {
	Text  string `json:"text"`
	Image string `json:"image"`
}

// MessageResponse is a direct message in API responses.
type MessageResponse struct {
	ID          int64     `json:"_id"`
	SenderID    string    `json:"senderId"`
	RecipientID string    `json:"receiverId"`
	Text        string    `json:"text,omitempty"`
	Image       string    `json:"image,omitempty"`
	Seen        bool      `json:"seen"`
	CreatedAt   time.Time `json:"createdAt"`
}

// SidebarResponse lists every other user with unseen counts and the online set.
type SidebarResponse struct {
	Success        bool            `json:"success"`
	Users          []*UserResponse `json:"users"`
	UnseenMessages map[string]int  `json:"unseenMessages"`
	OnlineUsers    []string        `json:"onlineUsers"`
}

// ConversationResponse carries the history between the caller and a peer.
type ConversationResponse struct {
	Success  bool               `json:"success"`
	Messages []*MessageResponse `json:"messages"`
}

// SendMessageResponse carries the stored message and how it was delivered.
type SendMessageResponse struct {
	Success    bool             `json:"success"`
	NewMessage *MessageResponse `json:"newMessage"`
	Outcome    string           `json:"outcome"`
}

// OnlineResponse is the body of GET /api/presence/online.
type OnlineResponse struct {
	Success     bool     `json:"success"`
	OnlineUsers []string `json:"onlineUsers"`
}

func messageToResponse(m *store.Message) *MessageResponse {
	return &MessageResponse{
		ID:          m.ID,
		SenderID:    m.SenderID,
		RecipientID: m.RecipientID,
		Text:        m.Text,
		Image:       m.Image,
		Seen:        m.Seen,
		CreatedAt:   m.CreatedAt,
	}
}

// Sidebar handles GET /api/messages/users.
func (h *MessageHandlers) Sidebar(c *gin.Context) {
	viewer, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, Fail("not authorized"))
		return
	}
	ctx := c.Request.Context()

	users, err := h.store.ListUsers(ctx, viewer)
	if err != nil {
		h.internalError(c, err, "failed to list users")
		return
	}
	unseen, err := h.hub.UnseenCounts(ctx, viewer)
	if err != nil {
		h.internalError(c, err, "failed to load unseen counts")
		return
	}

	resp := SidebarResponse{
		Success:        true,
		Users:          make([]*UserResponse, 0, len(users)),
		UnseenMessages: unseen,
		OnlineUsers:    h.hub.OnlineUsers(),
	}
	for _, u := range users {
		resp.Users = append(resp.Users, userToResponse(u))
	}
	c.JSON(http.StatusOK, resp)
}

// Conversation handles GET /api/messages/:id. Reading the history marks the
// peer's messages seen.
func (h *MessageHandlers) Conversation(c *gin.Context) {
	viewer, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, Fail("not authorized"))
		return
	}
	peer := c.Param("id")
	ctx := c.Request.Context()

	if !h.peerExists(c, viewer, peer) {
		return
	}

	if err := h.hub.MarkConversationRead(ctx, viewer, peer); err != nil {
		h.internalError(c, err, "failed to mark conversation read")
		return
	}

	messages, err := h.store.ListConversation(ctx, viewer, peer)
	if err != nil {
		h.internalError(c, err, "failed to list conversation")
		return
	}

	resp := ConversationResponse{Success: true, Messages: make([]*MessageResponse, 0, len(messages))}
	for _, m := range messages {
		resp.Messages = append(resp.Messages, messageToResponse(m))
	}
	c.JSON(http.StatusOK, resp)
}

// Send handles POST /api/messages/send/:id.
func (h *MessageHandlers) Send(c *gin.Context) {
	sender, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, Fail("not authorized"))
		return
	}
	recipient := c.Param("id")

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	if !h.peerExists(c, sender, recipient) {
		return
	}

	msg, outcome, err := h.hub.SendMessage(c.Request.Context(), sender, recipient, req.Text, req.Image)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrEmptyMessage), errors.Is(err, core.ErrInvalidPeer):
			c.JSON(http.StatusBadRequest, Fail(err.Error()))
		default:
			h.internalError(c, err, "failed to send message")
		}
		return
	}

	c.JSON(http.StatusCreated, SendMessageResponse{
		Success:    true,
		NewMessage: messageToResponse(msg),
		Outcome:    outcome.String(),
	})
}

// MarkSeen handles PUT /api/messages/mark/:id. Only the recipient may mark a message.
func (h *MessageHandlers) MarkSeen(c *gin.Context) {
	viewer, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, Fail("not authorized"))
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, Fail("invalid message id"))
		return
	}
	ctx := c.Request.Context()

	if err := h.hub.OnSeenAck(ctx, viewer, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, Fail("message not found"))
			return
		}
		h.internalError(c, err, "failed to mark message seen")
		return
	}
	c.JSON(http.StatusOK, Response{Success: true})
}

// Online handles GET /api/presence/online.
func (h *MessageHandlers) Online(c *gin.Context) {
	c.JSON(http.StatusOK, OnlineResponse{Success: true, OnlineUsers: h.hub.OnlineUsers()})
}

func (h *MessageHandlers) peerExists(c *gin.Context, viewer, peer string) bool {
	if peer == "" || peer == viewer {
		c.JSON(http.StatusBadRequest, Fail(core.ErrInvalidPeer.Error()))
		return false
	}
	if _, err := h.store.GetUserByID(c.Request.Context(), peer); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, Fail("user not found"))
			return false
		}
		h.internalError(c, err, "failed to load peer")
		return false
	}
	return true
}

func (h *MessageHandlers) internalError(c *gin.Context, err error, msg string) {
	h.log.Error().Err(err).Str("path", c.Request.URL.Path).Msg(msg)
	c.JSON(http.StatusInternalServerError, Fail("internal server error"))
}
