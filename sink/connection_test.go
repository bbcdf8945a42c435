package sink

import (
	"chat-relay/domain/event"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConnection_ConsumeNeverBlocksWhenFull(t *testing.T) {
	req := require.New(t)
	connection := NewConnection(slog.Default(), 2)
	evt := event.PresenceChanged{UserID: "u-alice", Online: true}

	// Given a full buffer with no reader draining it
	req.NoError(connection.Consume(context.Background(), evt))
	req.NoError(connection.Consume(context.Background(), evt))

	// When one more event arrives
	// Then it is dropped immediately instead of stalling the broadcaster
	done := make(chan error, 1)
	go func() { done <- connection.Consume(context.Background(), evt) }()
	req.NoError(<-done)
	req.Len(connection.Events, 2)
}

func TestConnection_DeliversInOrder(t *testing.T) {
	req := require.New(t)
	connection := NewConnection(slog.Default(), 8)

	first := event.TypingStarted{ConversationID: "c-general"}
	second := event.TypingStopped{ConversationID: "c-general"}
	req.NoError(connection.Consume(context.Background(), first))
	req.NoError(connection.Consume(context.Background(), second))

	req.Equal(event.DomainEvent(first), <-connection.Events)
	req.Equal(event.DomainEvent(second), <-connection.Events)
}
