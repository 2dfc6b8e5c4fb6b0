package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"chatrelay/internal/models"
	"chatrelay/internal/realtime"
	"chatrelay/internal/repositories"
	"chatrelay/internal/telemetry"
)

// UserHandler manages the user mirror: registration and explicit status
// calls. Writes go straight to storage with the service's elevated
// credential; the matching presence event is then published so subscribers
// observe the change.
type UserHandler struct {
	users   repositories.UserRepository
	bus     realtime.Bus
	emitter *telemetry.AuditEmitter
}

// NewUserHandler builds a UserHandler.
func NewUserHandler(users repositories.UserRepository, bus realtime.Bus, emitter *telemetry.AuditEmitter) *UserHandler {
	return &UserHandler{users: users, bus: bus, emitter: emitter}
}

// Register mirrors an identity-provider account into storage.
func (h *UserHandler) Register(c *gin.Context) {
	var req struct {
		UserID   string `json:"userId" binding:"required"`
		Email    string `json:"email"`
		Username string `json:"username" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.users.Upsert(c.Request.Context(), req.UserID, req.Username, req.Email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register user"})
		return
	}

	h.emitter.Emit(c.Request.Context(), telemetry.Entry{
		Action:    telemetry.ActionUserRegistered,
		Detail:    fmt.Sprintf("username=%s", user.Username),
		RequestID: requestIDFromContext(c),
		UserID:    &user.ID,
	})

	c.JSON(http.StatusCreated, user)
}

// UpdateStatus sets the online flag for a user and announces the change on
// the presence channel.
func (h *UserHandler) UpdateStatus(c *gin.Context) {
	userID := c.Param("userId")

	var req struct {
		IsOnline *bool `json:"isOnline" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var err error
	if *req.IsOnline {
		err = h.users.SetOnline(c.Request.Context(), userID)
	} else {
		err = h.users.SetOffline(c.Request.Context(), userID, time.Now().UTC())
	}
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrUserNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "failed to update status"})
		return
	}

	// Announce on the presence channel so the roster is rebroadcast. The
	// mirror re-applies the same state, which is harmless.
	event := models.EventLeave
	if *req.IsOnline {
		event = models.EventEnter
	}
	_ = h.bus.Publish(c.Request.Context(), models.ChannelPresence, event, models.PresenceData{UserID: userID})

	h.emitter.Emit(c.Request.Context(), telemetry.Entry{
		Action:    telemetry.ActionStatusChanged,
		Detail:    fmt.Sprintf("isOnline=%t", *req.IsOnline),
		RequestID: requestIDFromContext(c),
		UserID:    &userID,
	})

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// GetStatus returns the online flag for a user.
func (h *UserHandler) GetStatus(c *gin.Context) {
	userID := c.Param("userId")

	user, err := h.users.GetByID(c.Request.Context(), userID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrUserNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "failed to load user"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"isOnline": user.IsOnline})
}
