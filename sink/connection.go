// Package sink contains EventSink implementations: the per-connection
// channel sink feeding a session's writer, and permanent observability
// sinks.
package sink

import (
	"chat-relay/domain/event"
	"context"
	"log/slog"
)

// Connection buffers fanned-out events for one live connection. The session
// writer goroutine drains Events and turns them into wire frames.
type Connection struct {
	Events chan event.DomainEvent
	log    *slog.Logger
}

func NewConnection(log *slog.Logger, bufferSize int) *Connection {
	return &Connection{
		Events: make(chan event.DomainEvent, bufferSize),
		log:    log,
	}
}

// Consume is called by fanout. It never blocks the broadcaster: when the
// connection's buffer is full the event is dropped, and the recipient
// recovers through sync. Best-effort by contract.
func (s *Connection) Consume(ctx context.Context, e event.DomainEvent) error {
	select {
	case s.Events <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		s.log.Debug("connection buffer full, dropping event")
		return nil
	}
}
