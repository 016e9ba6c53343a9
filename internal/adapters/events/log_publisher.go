package events

import (
	"context"
	"log/slog"

	"github.com/atviraknyga/bookapi/internal/core/domain"
)

// LogPublisher is the default audit event sink: one structured log line per
// dispatched event.
type LogPublisher struct{}

func NewLogPublisher() *LogPublisher {
	return &LogPublisher{}
}

func (p *LogPublisher) Publish(_ context.Context, topic string, event domain.AuditEventEnvelope) error {
	slog.Info("audit event dispatched",
		"topic", topic,
		"event_id", event.EventID,
		"entity", event.Entity,
		"entity_id", event.EntityID,
		"action", string(event.Action),
		"actor_id", event.ActorID,
		"request_id", event.RequestID,
	)
	return nil
}
