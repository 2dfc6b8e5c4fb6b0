package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatrelay/internal/auth"
	"chatrelay/internal/models"
)

func setupTokenRouter(handler *TokenHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/api/ably/token", handler.Issue)
	return r
}

func TestIssueTokenSuccess(t *testing.T) {
	tokens := auth.NewTokenService([]byte("test-secret"), time.Hour)
	router := setupTokenRouter(NewTokenHandler(tokens))

	req := httptest.NewRequest(http.MethodGet, "/api/ably/token?userId=u1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var details auth.TokenDetails
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&details))
	assert.Equal(t, "u1", details.ClientID)
	assert.NotEmpty(t, details.Token)
	assert.Greater(t, details.Expires, time.Now().UnixMilli())
	assert.Contains(t, details.Capability, "chat:*")
	assert.Contains(t, details.Capability, models.DirectChannel("u1"))

	userID, err := tokens.Verify(details.Token)
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)
}

func TestIssueTokenMissingUserID(t *testing.T) {
	tokens := auth.NewTokenService([]byte("test-secret"), time.Hour)
	router := setupTokenRouter(NewTokenHandler(tokens))

	req := httptest.NewRequest(http.MethodGet, "/api/ably/token", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "userId is required", resp["error"])
}
