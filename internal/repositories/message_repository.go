package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"chatrelay/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository abstracts message persistence. Messages are immutable and
// never deleted.
type MessageRepository interface {
	Create(ctx context.Context, chatID, senderID, content string, recipientID *string) (models.Message, error)
	ListByRoom(ctx context.Context, chatID string, before *time.Time, limit int) ([]models.EnrichedMessage, error)
	GetByID(ctx context.Context, messageID string) (models.Message, error)
}

// MessageRepo is the sqlx implementation of MessageRepository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, content, sender_id, recipient_id, chat_id, created_at, updated_at`

// Create stores a new message with a generated id and DB-side timestamp.
func (r *MessageRepo) Create(ctx context.Context, chatID, senderID, content string, recipientID *string) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `INSERT INTO messages (id, content, sender_id, recipient_id, chat_id)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING `+messageColumns, uuid.NewString(), content, senderID, recipientID, chatID)
	return msg, err
}

const enrichedColumns = `m.id, m.content, m.sender_id, m.recipient_id, m.chat_id, m.created_at, m.updated_at, u.username AS sender_username`

// ListByRoom returns up to limit messages for the room, most recent first,
// each joined with the sender's display name. A non-nil before bounds the
// page to strictly older messages.
func (r *MessageRepo) ListByRoom(ctx context.Context, chatID string, before *time.Time, limit int) ([]models.EnrichedMessage, error) {
	msgs := []models.EnrichedMessage{}
	if before != nil {
		err := r.db.SelectContext(ctx, &msgs, `SELECT `+enrichedColumns+` FROM messages m
            JOIN users u ON u.id = m.sender_id
            WHERE m.chat_id=$1 AND m.created_at < $2
            ORDER BY m.created_at DESC, m.id DESC LIMIT $3`, chatID, *before, limit)
		return msgs, err
	}
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+enrichedColumns+` FROM messages m
        JOIN users u ON u.id = m.sender_id
        WHERE m.chat_id=$1
        ORDER BY m.created_at DESC, m.id DESC LIMIT $2`, chatID, limit)
	return msgs, err
}

// GetByID retrieves a single message.
func (r *MessageRepo) GetByID(ctx context.Context, messageID string) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}
