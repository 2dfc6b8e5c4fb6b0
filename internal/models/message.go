package models

import "time"

// Message represents a persisted chat message. A non-nil RecipientID marks a
// direct message; otherwise the message is a room broadcast.
type Message struct {
	ID          string    `db:"id" json:"id"`
	Content     string    `db:"content" json:"content"`
	SenderID    string    `db:"sender_id" json:"senderId"`
	RecipientID *string   `db:"recipient_id" json:"recipientId,omitempty"`
	ChatID      string    `db:"chat_id" json:"chatId"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}

// EnrichedMessage is the fan-out and API shape: the persisted record plus the
// sender's display name, resolved at ingress time for live events and joined
// from the users table for history reads.
type EnrichedMessage struct {
	Message
	SenderUsername string `db:"sender_username" json:"senderUsername"`
}
