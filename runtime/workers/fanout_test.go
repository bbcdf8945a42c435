package workers

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/mocks"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestFanoutWorker_ScopedEventGoesToRoomAndPermanentSinks(t *testing.T) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRouter := mocks.NewMockIRouter(ctrl)
	roomSink := mocks.NewMockEventSink(ctrl)
	permanentSink := mocks.NewMockEventSink(ctrl)

	evt := event.MessageCreated{Message: domain.Message{ConversationID: "c-general"}}

	// Given two subscribers in the room
	mockRouter.EXPECT().SinksFor(domain.ConversationID("c-general")).
		Return([]contract.EventSink{roomSink, roomSink}).Times(1)
	// Then both room subscribers and the permanent sink consume the event
	roomSink.EXPECT().Consume(gomock.Any(), evt).Return(nil).Times(2)
	permanentSink.EXPECT().Consume(gomock.Any(), evt).Return(nil).Times(1)

	fanoutWorker := NewFanoutWorker(log, mockRouter, nil,
		[]contract.EventSink{permanentSink}, 10*time.Second)

	// When the event is fanned out
	fanoutWorker.Fanout(context.Background(), evt)
}

func TestFanoutWorker_GlobalEventGoesToAllSinks(t *testing.T) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRouter := mocks.NewMockIRouter(ctrl)
	sink := mocks.NewMockEventSink(ctrl)

	evt := event.PresenceChanged{UserID: "u-alice", Online: true}

	// A presence change has no conversation scope: every live sink hears it
	mockRouter.EXPECT().AllSinks().
		Return([]contract.EventSink{sink, sink, sink}).Times(1)
	sink.EXPECT().Consume(gomock.Any(), evt).Return(nil).Times(3)

	fanoutWorker := NewFanoutWorker(log, mockRouter, nil, nil, 10*time.Second)
	fanoutWorker.Fanout(context.Background(), evt)
}

func TestFanoutWorker_SlowSinkIsBoundedAndOthersStillDelivered(t *testing.T) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRouter := mocks.NewMockIRouter(ctrl)
	slowSink := mocks.NewMockEventSink(ctrl)
	healthySink := mocks.NewMockEventSink(ctrl)

	evt := event.MessageCreated{Message: domain.Message{ConversationID: "c-general"}}

	mockRouter.EXPECT().SinksFor(domain.ConversationID("c-general")).
		Return([]contract.EventSink{slowSink, healthySink}).Times(1)

	// Given a sink that never returns on its own
	slowSink.EXPECT().Consume(gomock.Any(), evt).
		DoAndReturn(func(ctx context.Context, _ event.DomainEvent) error {
			<-ctx.Done() // Waiting for timeout to trigger cancellation
			return ctx.Err()
		}).Times(1)
	// Then the next recipient is still served after the timeout fired
	healthySink.EXPECT().Consume(gomock.Any(), evt).Return(nil).Times(1)

	fanoutWorker := NewFanoutWorker(log, mockRouter, nil, nil, 20*time.Millisecond)
	fanoutWorker.Fanout(context.Background(), evt)
}

func TestFanoutWorker_RunStopsOnContextCancel(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	events := make(chan event.DomainEvent)
	fanoutWorker := NewFanoutWorker(log, mocks.NewMockIRouter(ctrl), events, nil, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fanoutWorker.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		req.NoError(err)
	case <-time.After(500 * time.Millisecond):
		req.Fail("Fanout worker did not stop on cancellation")
	}
}
