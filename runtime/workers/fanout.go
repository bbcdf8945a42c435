package workers

import (
	"chat-relay/contract"
	"chat-relay/domain/event"
	"context"
	"log/slog"
	"time"
)

var _ contract.Worker = (*FanoutWorker)(nil)

// FanoutWorker broadcasts domain events to every sink currently subscribed
// to the event's conversation, plus the permanent sinks (telemetry, logs).
//
// Delivery is at-least-once and best-effort per connection: no per-recipient
// acknowledgment tracking, no retransmission. Reliability for absent
// recipients is the sync service's job. A slow sink is bounded by
// sinkTimeout and can never stall the broadcaster or another recipient.
type FanoutWorker struct {
	log            *slog.Logger
	router         contract.IRouter
	events         <-chan event.DomainEvent
	permanentSinks []contract.EventSink
	sinkTimeout    time.Duration
}

func NewFanoutWorker(log *slog.Logger, router contract.IRouter,
	events <-chan event.DomainEvent, permanentSinks []contract.EventSink,
	sinkTimeout time.Duration) *FanoutWorker {
	return &FanoutWorker{
		log:            log,
		router:         router,
		events:         events,
		permanentSinks: permanentSinks,
		sinkTimeout:    sinkTimeout,
	}
}

func (w *FanoutWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping fanout")
			return nil
		case evt := <-w.events:
			w.Fanout(ctx, evt)
		}
	}
}

// Fanout delivers one event to its audience: the conversation's subscribers
// for scoped events, every live sink for global ones. Delivery is
// sequential on purpose — sinks are non-blocking enqueues, and a single
// delivery goroutine is what keeps per-connection order equal to creation
// order. The timeout only bounds a misbehaving sink.
func (w *FanoutWorker) Fanout(ctx context.Context, evt event.DomainEvent) {
	var sinks []contract.EventSink
	if conversationID := evt.Conversation(); conversationID != "" {
		sinks = w.router.SinksFor(conversationID)
	} else {
		sinks = w.router.AllSinks()
	}
	sinks = append(sinks, w.permanentSinks...)

	for _, sink := range sinks {
		deliveryCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
		if err := sink.Consume(deliveryCtx, evt); err != nil {
			w.log.Debug("sink delivery failed", "error", err)
		}
		cancel()
	}
}
