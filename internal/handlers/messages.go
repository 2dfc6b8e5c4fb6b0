package handlers

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"chatrelay/internal/models"
	"chatrelay/internal/realtime"
	"chatrelay/internal/repositories"
	"chatrelay/internal/telemetry"
)

const (
	defaultMessageLimit = 50
	maxMessageLimit     = 100
)

// MessageHandler persists inbound messages and fans them out through the
// realtime broker.
type MessageHandler struct {
	messages repositories.MessageRepository
	users    repositories.UserRepository
	bus      realtime.Bus
	emitter  *telemetry.AuditEmitter
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(messages repositories.MessageRepository, users repositories.UserRepository, bus realtime.Bus, emitter *telemetry.AuditEmitter) *MessageHandler {
	return &MessageHandler{messages: messages, users: users, bus: bus, emitter: emitter}
}

// List returns a page of room messages with sender display names, most
// recent first. An empty page is an empty list, never null.
func (h *MessageHandler) List(c *gin.Context) {
	chatID := c.Param("chatId")

	var before *time.Time
	if raw := c.Query("before"); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid before timestamp"})
			return
		}
		before = &parsed
	}

	limit := defaultMessageLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		if parsed > maxMessageLimit {
			parsed = maxMessageLimit
		}
		limit = parsed
	}

	msgs, err := h.messages.ListByRoom(c.Request.Context(), chatID, before, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	c.JSON(http.StatusOK, msgs)
}

// Create validates, persists and fans out one message. Fan-out is
// best-effort: a publish failure is logged, never retried, and does not roll
// back the persisted row.
func (h *MessageHandler) Create(c *gin.Context) {
	chatID := c.Param("chatId")

	var req struct {
		Content     string  `json:"content" binding:"required"`
		SenderID    string  `json:"senderId" binding:"required"`
		RecipientID *string `json:"recipientId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if authedID := c.GetString("userID"); authedID != "" && authedID != req.SenderID {
		c.JSON(http.StatusForbidden, gin.H{"error": "sender does not match token"})
		return
	}

	sender, err := h.users.GetByID(c.Request.Context(), req.SenderID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrUserNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "sender unknown"})
		return
	}

	msg, err := h.messages.Create(c.Request.Context(), chatID, req.SenderID, req.Content, req.RecipientID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		return
	}

	enriched := models.EnrichedMessage{Message: msg, SenderUsername: sender.Username}

	if err := h.bus.Publish(c.Request.Context(), models.ChatChannel(chatID), models.EventMessage, enriched); err != nil {
		log.Printf("message fan-out failed chat_id=%s message_id=%s: %v", chatID, msg.ID, err)
	}
	if req.RecipientID != nil && *req.RecipientID != "" {
		if err := h.bus.Publish(c.Request.Context(), models.DirectChannel(*req.RecipientID), models.EventMessage, enriched); err != nil {
			log.Printf("direct fan-out failed recipient_id=%s message_id=%s: %v", *req.RecipientID, msg.ID, err)
		}
	}

	h.emitter.Emit(c.Request.Context(), telemetry.Entry{
		Action:    telemetry.ActionMessagePosted,
		Detail:    fmt.Sprintf("message_id=%s", msg.ID),
		RoomID:    chatID,
		RequestID: requestIDFromContext(c),
		UserID:    &msg.SenderID,
	})

	c.JSON(http.StatusCreated, enriched)
}
