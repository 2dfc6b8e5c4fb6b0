package telemetry

import (
	"context"
	"log"
	"time"
)

// Publisher is the transport audit envelopes are published over.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// Audit actions emitted by the HTTP surface.
const (
	ActionUserRegistered = "user_registered"
	ActionStatusChanged  = "status_changed"
	ActionMessagePosted  = "message_posted"
	ActionAuditTest      = "audit_test"
)

// Entry is one auditable occurrence as seen by a handler.
type Entry struct {
	Action    string
	Detail    string
	RoomID    string
	RequestID string
	UserID    *string
}

// AuditEmitter publishes structured audit envelopes for user-facing
// operations (registration, message ingress, status changes). A nil emitter
// or missing publisher drops entries silently.
type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	UserID        *string      `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Action string `json:"action"`
	Detail string `json:"detail,omitempty"`
	RoomID string `json:"room_id,omitempty"`
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
	}
}

func (e *AuditEmitter) Emit(ctx context.Context, entry Entry) {
	if e == nil || e.publisher == nil {
		return
	}

	envelope := AuditEnvelope{
		SchemaVersion: 1,
		EventType:     "audit_log",
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     entry.RequestID,
		UserID:        entry.UserID,
		Payload: AuditPayload{
			Action: entry.Action,
			Detail: entry.Detail,
			RoomID: entry.RoomID,
		},
	}

	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil {
		log.Printf("audit publish failed action=%s: %v", entry.Action, err)
	}
}
