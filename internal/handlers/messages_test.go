package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chatrelay/internal/mocks"
	"chatrelay/internal/models"
	"chatrelay/internal/repositories"
)

func setupMessageRouter(handler *MessageHandler, authedUserID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if authedUserID != "" {
		r.Use(func(c *gin.Context) {
			c.Set("userID", authedUserID)
			c.Next()
		})
	}
	r.GET("/api/chat-rooms/:chatId/messages", handler.List)
	r.POST("/api/chat-rooms/:chatId/messages", handler.Create)
	return r
}

func TestListMessagesSuccess(t *testing.T) {
	msgRepo := new(mocks.MessageRepositoryMock)
	handler := NewMessageHandler(msgRepo, new(mocks.UserRepositoryMock), new(mocks.BusMock), nil)
	router := setupMessageRouter(handler, "")

	msgRepo.On("ListByRoom", mock.Anything, "general", (*time.Time)(nil), 50).
		Return([]models.EnrichedMessage{{
			Message:        models.Message{ID: "m1", Content: "hi", SenderID: "u1", ChatID: "general"},
			SenderUsername: "alice",
		}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/api/chat-rooms/general/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var msgs []models.EnrichedMessage
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&msgs))
	require.Len(t, msgs, 1)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, "alice", msgs[0].SenderUsername)
	msgRepo.AssertExpectations(t)
}

func TestListMessagesEmptyPageIsList(t *testing.T) {
	msgRepo := new(mocks.MessageRepositoryMock)
	handler := NewMessageHandler(msgRepo, new(mocks.UserRepositoryMock), new(mocks.BusMock), nil)
	router := setupMessageRouter(handler, "")

	msgRepo.On("ListByRoom", mock.Anything, "general", (*time.Time)(nil), 50).
		Return([]models.EnrichedMessage{}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/api/chat-rooms/general/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", rec.Body.String())
	msgRepo.AssertExpectations(t)
}

func TestListMessagesBeforeAndLimit(t *testing.T) {
	msgRepo := new(mocks.MessageRepositoryMock)
	handler := NewMessageHandler(msgRepo, new(mocks.UserRepositoryMock), new(mocks.BusMock), nil)
	router := setupMessageRouter(handler, "")

	before := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	msgRepo.On("ListByRoom", mock.Anything, "general", mock.MatchedBy(func(got *time.Time) bool {
		return got != nil && got.Equal(before)
	}), 10).Return([]models.EnrichedMessage{}, nil).Once()

	req := httptest.NewRequest(http.MethodGet,
		"/api/chat-rooms/general/messages?limit=10&before="+before.Format(time.RFC3339Nano), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	msgRepo.AssertExpectations(t)
}

func TestListMessagesLimitCapped(t *testing.T) {
	msgRepo := new(mocks.MessageRepositoryMock)
	handler := NewMessageHandler(msgRepo, new(mocks.UserRepositoryMock), new(mocks.BusMock), nil)
	router := setupMessageRouter(handler, "")

	msgRepo.On("ListByRoom", mock.Anything, "general", (*time.Time)(nil), 100).
		Return([]models.EnrichedMessage{}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/api/chat-rooms/general/messages?limit=500", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	msgRepo.AssertExpectations(t)
}

func TestListMessagesBadBefore(t *testing.T) {
	handler := NewMessageHandler(new(mocks.MessageRepositoryMock), new(mocks.UserRepositoryMock), new(mocks.BusMock), nil)
	router := setupMessageRouter(handler, "")

	req := httptest.NewRequest(http.MethodGet, "/api/chat-rooms/general/messages?before=yesterday", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListMessagesBadLimit(t *testing.T) {
	handler := NewMessageHandler(new(mocks.MessageRepositoryMock), new(mocks.UserRepositoryMock), new(mocks.BusMock), nil)
	router := setupMessageRouter(handler, "")

	req := httptest.NewRequest(http.MethodGet, "/api/chat-rooms/general/messages?limit=-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateMessageSuccess(t *testing.T) {
	msgRepo := new(mocks.MessageRepositoryMock)
	userRepo := new(mocks.UserRepositoryMock)
	bus := new(mocks.BusMock)
	handler := NewMessageHandler(msgRepo, userRepo, bus, nil)
	router := setupMessageRouter(handler, "")

	stored := models.Message{ID: "m1", Content: "hello", SenderID: "u1", ChatID: "general"}
	userRepo.On("GetByID", mock.Anything, "u1").Return(models.User{ID: "u1", Username: "alice"}, nil).Once()
	msgRepo.On("Create", mock.Anything, "general", "u1", "hello", (*string)(nil)).Return(stored, nil).Once()
	bus.On("Publish", mock.Anything, "chat:general", models.EventMessage, mock.MatchedBy(func(data any) bool {
		enriched, ok := data.(models.EnrichedMessage)
		return ok && enriched.ID == "m1" && enriched.SenderUsername == "alice"
	})).Return(nil).Once()

	body := bytes.NewBufferString(`{"content":"hello","senderId":"u1"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/chat-rooms/general/messages", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp models.EnrichedMessage
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "alice", resp.SenderUsername)
	msgRepo.AssertExpectations(t)
	userRepo.AssertExpectations(t)
	bus.AssertExpectations(t)
}

func TestCreateMessageDirectFanOut(t *testing.T) {
	msgRepo := new(mocks.MessageRepositoryMock)
	userRepo := new(mocks.UserRepositoryMock)
	bus := new(mocks.BusMock)
	handler := NewMessageHandler(msgRepo, userRepo, bus, nil)
	router := setupMessageRouter(handler, "")

	recipient := "u2"
	stored := models.Message{ID: "m2", Content: "psst", SenderID: "u1", RecipientID: &recipient, ChatID: "general"}
	userRepo.On("GetByID", mock.Anything, "u1").Return(models.User{ID: "u1", Username: "alice"}, nil).Once()
	msgRepo.On("Create", mock.Anything, "general", "u1", "psst", mock.MatchedBy(func(got *string) bool {
		return got != nil && *got == "u2"
	})).Return(stored, nil).Once()
	bus.On("Publish", mock.Anything, "chat:general", models.EventMessage, mock.Anything).Return(nil).Once()
	bus.On("Publish", mock.Anything, "direct:u2", models.EventMessage, mock.Anything).Return(nil).Once()

	body := bytes.NewBufferString(`{"content":"psst","senderId":"u1","recipientId":"u2"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/chat-rooms/general/messages", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	bus.AssertExpectations(t)
}

func TestCreateMessagePublishFailureStillCreated(t *testing.T) {
	msgRepo := new(mocks.MessageRepositoryMock)
	userRepo := new(mocks.UserRepositoryMock)
	bus := new(mocks.BusMock)
	handler := NewMessageHandler(msgRepo, userRepo, bus, nil)
	router := setupMessageRouter(handler, "")

	stored := models.Message{ID: "m3", Content: "hello", SenderID: "u1", ChatID: "general"}
	userRepo.On("GetByID", mock.Anything, "u1").Return(models.User{ID: "u1", Username: "alice"}, nil).Once()
	msgRepo.On("Create", mock.Anything, "general", "u1", "hello", (*string)(nil)).Return(stored, nil).Once()
	bus.On("Publish", mock.Anything, "chat:general", models.EventMessage, mock.Anything).Return(assert.AnError).Once()

	body := bytes.NewBufferString(`{"content":"hello","senderId":"u1"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/chat-rooms/general/messages", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	bus.AssertExpectations(t)
}

func TestCreateMessageSenderMismatch(t *testing.T) {
	handler := NewMessageHandler(new(mocks.MessageRepositoryMock), new(mocks.UserRepositoryMock), new(mocks.BusMock), nil)
	router := setupMessageRouter(handler, "u9")

	body := bytes.NewBufferString(`{"content":"hello","senderId":"u1"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/chat-rooms/general/messages", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateMessageUnknownSender(t *testing.T) {
	userRepo := new(mocks.UserRepositoryMock)
	handler := NewMessageHandler(new(mocks.MessageRepositoryMock), userRepo, new(mocks.BusMock), nil)
	router := setupMessageRouter(handler, "")

	userRepo.On("GetByID", mock.Anything, "ghost").Return(models.User{}, repositories.ErrUserNotFound).Once()

	body := bytes.NewBufferString(`{"content":"hello","senderId":"ghost"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/chat-rooms/general/messages", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	userRepo.AssertExpectations(t)
}

func TestCreateMessageMissingContent(t *testing.T) {
	handler := NewMessageHandler(new(mocks.MessageRepositoryMock), new(mocks.UserRepositoryMock), new(mocks.BusMock), nil)
	router := setupMessageRouter(handler, "")

	body := bytes.NewBufferString(`{"senderId":"u1"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/chat-rooms/general/messages", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
