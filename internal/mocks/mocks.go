package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"chatrelay/internal/models"
	"chatrelay/internal/repositories"
)

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) Upsert(ctx context.Context, id, username, email string) (models.User, error) {
	args := m.Called(ctx, id, username, email)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) GetByID(ctx context.Context, id string) (models.User, error) {
	args := m.Called(ctx, id)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) SetOnline(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *UserRepositoryMock) SetOffline(ctx context.Context, id string, lastSeen time.Time) error {
	args := m.Called(ctx, id, lastSeen)
	return args.Error(0)
}

func (m *UserRepositoryMock) ListAll(ctx context.Context) ([]models.User, error) {
	args := m.Called(ctx)
	var users []models.User
	if val := args.Get(0); val != nil {
		users = val.([]models.User)
	}
	return users, args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) Create(ctx context.Context, chatID, senderID, content string, recipientID *string) (models.Message, error) {
	args := m.Called(ctx, chatID, senderID, content, recipientID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListByRoom(ctx context.Context, chatID string, before *time.Time, limit int) ([]models.EnrichedMessage, error) {
	args := m.Called(ctx, chatID, before, limit)
	var msgs []models.EnrichedMessage
	if val := args.Get(0); val != nil {
		msgs = val.([]models.EnrichedMessage)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) GetByID(ctx context.Context, messageID string) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

type BusMock struct {
	mock.Mock
}

func (m *BusMock) Publish(ctx context.Context, channel, event string, data any) error {
	args := m.Called(ctx, channel, event, data)
	return args.Error(0)
}

func (m *BusMock) Subscribe(channel string, buffer int) (<-chan models.Event, func()) {
	args := m.Called(channel, buffer)
	var ch <-chan models.Event
	if val := args.Get(0); val != nil {
		ch = val.(<-chan models.Event)
	}
	var cancel func()
	if val := args.Get(1); val != nil {
		cancel = val.(func())
	}
	return ch, cancel
}

var _ repositories.UserRepository = (*UserRepositoryMock)(nil)
var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
