package domain

import (
	"encoding/json"
	"time"
)

// AuditTopic is the outbox topic every audit event is enqueued under.
const AuditTopic = "audit"

// AuditEventEnvelope is the push-feed representation of a recorded audit
// entry, enqueued into the outbox in the same transaction that persists the
// entry and later delivered by the dispatcher.
type AuditEventEnvelope struct {
	EventID       string    `json:"event_id"`
	Entity        string    `json:"entity"`
	EntityID      string    `json:"entity_id"`
	Action        Action    `json:"action"`
	ActorID       string    `json:"actor_id"`
	RequestID     string    `json:"request_id,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
	FieldsChanged []string  `json:"fields_changed,omitempty"`
	Diff          *Diff     `json:"diff,omitempty"`
}

func NewAuditEventEnvelope(entry AuditEntry) AuditEventEnvelope {
	return AuditEventEnvelope{
		EventID:       entry.ID,
		Entity:        entry.Entity,
		EntityID:      entry.EntityID,
		Action:        entry.Action,
		ActorID:       entry.ActorID,
		RequestID:     entry.RequestID,
		OccurredAt:    entry.Timestamp,
		FieldsChanged: entry.FieldsChanged,
		Diff:          entry.Diff,
	}
}

const (
	OutboxStatusPending    = "pending"
	OutboxStatusDispatched = "dispatched"
	OutboxStatusDead       = "dead"
)

type OutboxEvent struct {
	ID            int64
	EventID       string
	Topic         string
	PayloadJSON   json.RawMessage
	Status        string
	Attempts      int
	NextAttemptAt time.Time
	LastError     string
	CreatedAt     time.Time
	DispatchedAt  *time.Time
}
