package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"rtc-service/internal/delivery"
	"rtc-service/internal/middleware"
	"rtc-service/internal/models"
	"rtc-service/internal/repositories"
	"rtc-service/internal/telemetry"
)

// ChatHandler serves the REST surface over chats and messages. Sends go
// through the same pipeline as the socket path so both share validation,
// fan-out and the durable fallback.
type ChatHandler struct {
	chats    repositories.ChatRepository
	messages repositories.MessageRepository
	pipeline *delivery.Pipeline
	audit    *telemetry.AuditEmitter
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(chats repositories.ChatRepository, messages repositories.MessageRepository, pipeline *delivery.Pipeline, audit *telemetry.AuditEmitter) *ChatHandler {
	return &ChatHandler{chats: chats, messages: messages, pipeline: pipeline, audit: audit}
}

// ListChats returns the chats visible to the authenticated user.
func (h *ChatHandler) ListChats(c *gin.Context) {
	userID := middleware.UserID(c)

	chats, err := h.chats.ListChats(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chats"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

// StartChat creates or returns the private chat with another user.
func (h *ChatHandler) StartChat(c *gin.Context) {
	var req struct {
		FriendID string `json:"friend_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	friendID, err := uuid.Parse(req.FriendID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid friend id"})
		return
	}

	userID := middleware.UserID(c)
	if userID == friendID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot chat with yourself"})
		return
	}

	chat, err := h.chats.CreateOrGetPrivateChat(c.Request.Context(), userID, friendID)
	if err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create chat"})
		return
	}

	h.emitAudit(c, "INFO", "Chat started")
	c.JSON(http.StatusOK, gin.H{"chat_id": chat.ID})
}

// GetChatMessages returns message history for a chat, soft-deleted messages
// excluded.
func (h *ChatHandler) GetChatMessages(c *gin.Context) {
	chatID, err := uuid.Parse(c.Param("chat_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}

	userID := middleware.UserID(c)
	member, err := h.chats.IsActiveParticipant(c.Request.Context(), chatID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat member"})
		return
	}

	msgs, err := h.messages.ListChatMessages(c.Request.Context(), chatID, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// PostChatMessage sends a message over REST through the delivery pipeline.
func (h *ChatHandler) PostChatMessage(c *gin.Context) {
	chatID, err := uuid.Parse(c.Param("chat_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}

	var req struct {
		Type    string                `json:"type" binding:"required"`
		Content models.MessageContent `json:"content"`
		ReplyTo string                `json:"reply_to"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var replyTo *uuid.UUID
	if req.ReplyTo != "" {
		id, err := uuid.Parse(req.ReplyTo)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid reply_to id"})
			return
		}
		replyTo = &id
	}

	userID := middleware.UserID(c)
	msg, err := h.pipeline.SendMessage(c.Request.Context(), userID, "", chatID, req.Type, req.Content, replyTo)
	if err != nil {
		h.emitAudit(c, "ERROR", "message rejected")
		c.JSON(sendStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, msg)
}

// MarkChatRead resets the caller's unread counter for the chat.
func (h *ChatHandler) MarkChatRead(c *gin.Context) {
	chatID, err := uuid.Parse(c.Param("chat_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}

	userID := middleware.UserID(c)
	member, err := h.chats.IsActiveParticipant(c.Request.Context(), chatID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat member"})
		return
	}

	if err := h.chats.ResetUnread(c.Request.Context(), chatID, userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not mark chat read"})
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *ChatHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}

func sendStatus(err error) int {
	switch {
	case errors.Is(err, delivery.ErrNotAParticipant):
		return http.StatusForbidden
	case errors.Is(err, delivery.ErrInvalidContent):
		return http.StatusBadRequest
	case errors.Is(err, repositories.ErrChatNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
