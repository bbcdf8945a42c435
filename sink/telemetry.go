package sink

import (
	"chat-relay/domain/event"
	"context"
	"log/slog"
)

// Telemetry is a permanent sink logging the event stream. Observability
// only; it must never influence delivery.
type Telemetry struct {
	log *slog.Logger
}

func NewTelemetry(log *slog.Logger) *Telemetry {
	return &Telemetry{log: log}
}

func (t *Telemetry) Consume(_ context.Context, e event.DomainEvent) error {
	switch evt := e.(type) {
	case event.MessageCreated:
		t.log.Debug("message created",
			"conversation", evt.Message.ConversationID,
			"message_id", evt.Message.ID,
			"sender", evt.Message.SenderID)
	case event.PresenceChanged:
		t.log.Debug("presence changed", "user", evt.UserID, "online", evt.Online)
	}
	return nil
}
