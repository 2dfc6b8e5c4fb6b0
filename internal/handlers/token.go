package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chatrelay/internal/auth"
)

// TokenHandler issues scoped realtime credentials. No state is retained
// between calls.
type TokenHandler struct {
	tokens *auth.TokenService
}

// NewTokenHandler builds a TokenHandler.
func NewTokenHandler(tokens *auth.TokenService) *TokenHandler {
	return &TokenHandler{tokens: tokens}
}

// Issue returns a short-lived credential bound to the requested user id.
func (h *TokenHandler) Issue(c *gin.Context) {
	userID := c.Query("userId")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
		return
	}

	details, err := h.tokens.Issue(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, details)
}
