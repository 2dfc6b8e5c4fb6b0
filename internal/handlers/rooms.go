package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chatrelay/internal/models"
)

// RoomHandler serves the fixed room list. Rooms are not user-creatable and
// have no persistence beyond the static definition.
type RoomHandler struct {
	rooms []models.Room
}

// NewRoomHandler builds a RoomHandler over the given room set.
func NewRoomHandler(rooms []models.Room) *RoomHandler {
	return &RoomHandler{rooms: rooms}
}

// List returns the room set.
func (h *RoomHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, h.rooms)
}
