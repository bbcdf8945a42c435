package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/runtime/workers"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Orchestrator wires sessions, registries, conversation workers, and fanout
// together. It owns one command channel per conversation, created lazily:
// each conversation's writes are serialized through its dedicated worker
// while unrelated conversations proceed fully in parallel.
type Orchestrator struct {
	mu             sync.Mutex
	log            *slog.Logger
	supervisor     contract.ISupervisor
	presence       contract.IPresence
	router         contract.IRouter
	memberships    contract.IMembershipStore
	messages       contract.IMessageStore
	conversations  contract.IConversationStore
	commands       map[domain.ConversationID]chan domain.SendMessageCommand
	events         chan event.DomainEvent
	permanentSinks []contract.EventSink
	bufferSize     int
	sinkTimeout    time.Duration
	runCtx         context.Context
}

func NewOrchestrator(log *slog.Logger, supervisor contract.ISupervisor,
	presence contract.IPresence, router contract.IRouter,
	memberships contract.IMembershipStore, messages contract.IMessageStore,
	conversations contract.IConversationStore,
	bufferSize int, sinkTimeout time.Duration) *Orchestrator {
	return &Orchestrator{
		log:           log,
		supervisor:    supervisor,
		presence:      presence,
		router:        router,
		memberships:   memberships,
		messages:      messages,
		conversations: conversations,
		commands:      make(map[domain.ConversationID]chan domain.SendMessageCommand),
		events:        make(chan event.DomainEvent, bufferSize),
		bufferSize:    bufferSize,
		sinkTimeout:   sinkTimeout,
	}
}

// Add registers permanent sinks (telemetry, logging) that receive every
// fanned-out event regardless of conversation. Call before Start.
func (o *Orchestrator) Add(sinks ...contract.EventSink) {
	o.permanentSinks = append(o.permanentSinks, sinks...)
}

// Start launches the supervised pipeline. It returns immediately; the
// supervisor runs until ctx is canceled or Stop is called.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.runCtx != nil {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator already started")
	}
	o.runCtx = ctx
	fanout := workers.NewFanoutWorker(o.log, o.router, o.events, o.permanentSinks, o.sinkTimeout)
	o.supervisor.Add(fanout)
	o.mu.Unlock()

	o.log.Info("Starting orchestrator and all supervised workers")
	go o.supervisor.Run(ctx)
	return nil
}

// Stop initiates a graceful shutdown by canceling the supervision context.
func (o *Orchestrator) Stop() {
	o.log.Info("Requesting orchestrator shutdown")
	o.supervisor.Stop()
}

// Connect registers a new session: presence first, then one room
// subscription per membership at connect time. Returns the conversations
// the session was subscribed to.
func (o *Orchestrator) Connect(identity domain.Identity, connID string, sink contract.EventSink) ([]domain.ConversationID, error) {
	conversations, err := o.memberships.ListConversationsFor(identity.ID)
	if err != nil {
		return nil, err
	}

	cameOnline := o.presence.Register(identity.ID, connID)
	for _, conversationID := range conversations {
		o.router.Subscribe(conversationID, connID, sink)
	}

	if cameOnline {
		o.publish(event.PresenceChanged{UserID: identity.ID, Online: true})
	}
	o.log.Info("session connected", "user", identity.ID, "conn", connID,
		"rooms", len(conversations))
	return conversations, nil
}

// Disconnect tears a session down: deterministic, exactly-once removal from
// the router and presence, regardless of events in flight.
func (o *Orchestrator) Disconnect(identity domain.Identity, connID string) {
	o.router.UnsubscribeAll(connID)
	wentOffline := o.presence.Remove(identity.ID, connID)
	if wentOffline {
		o.publish(event.PresenceChanged{UserID: identity.ID, Online: false})
	}
	o.log.Info("session disconnected", "user", identity.ID, "conn", connID)
}

// SendMessage runs the ingestion pipeline for one submission: authorize,
// then hand the command to the conversation's worker and wait for its
// direct reply. Safe to call any number of times with the same dedup token.
func (o *Orchestrator) SendMessage(ctx context.Context, conversationID domain.ConversationID,
	sender domain.Identity, dedupToken, body string) (domain.Acknowledgment, error) {
	member, err := o.memberships.IsMember(conversationID, sender.ID)
	if err != nil {
		return domain.Acknowledgment{}, err
	}
	if !member {
		return domain.Acknowledgment{}, fmt.Errorf("%w: user %s in conversation %s",
			errors.ErrAuthorization, sender.ID, conversationID)
	}

	replyChan := make(chan domain.SendResult, 1)
	cmd := domain.SendMessageCommand{
		ConversationID: conversationID,
		Sender:         sender,
		DedupToken:     dedupToken,
		Body:           body,
		Reply:          replyChan,
	}

	commands, err := o.commandsFor(conversationID)
	if err != nil {
		return domain.Acknowledgment{}, err
	}

	select {
	case commands <- cmd:
	case <-ctx.Done():
		return domain.Acknowledgment{}, ctx.Err()
	}

	select {
	case res := <-replyChan:
		return res.Ack, res.Err
	case <-ctx.Done():
		// Abandoned mid-flight; the atomic insert guarantees no partial
		// effect and the same token stays safe to resend.
		return domain.Acknowledgment{}, ctx.Err()
	}
}

// JoinRoom subscribes a connection after an explicit membership-change
// signal; authorization against the membership store happens in the service
// layer.
func (o *Orchestrator) JoinRoom(conversationID domain.ConversationID, connID string, sink contract.EventSink) {
	o.router.Subscribe(conversationID, connID, sink)
}

func (o *Orchestrator) LeaveRoom(conversationID domain.ConversationID, connID string) {
	o.router.Unsubscribe(conversationID, connID)
}

// Typing relays a best-effort typing transition; never persisted.
func (o *Orchestrator) Typing(conversationID domain.ConversationID, user domain.Identity, connID string, started bool) {
	if started {
		o.publish(event.TypingStarted{ConversationID: conversationID, User: user, OriginConn: connID})
		return
	}
	o.publish(event.TypingStopped{ConversationID: conversationID, User: user, OriginConn: connID})
}

func (o *Orchestrator) IsOnline(user domain.UserID) bool {
	return o.presence.IsOnline(user)
}

func (o *Orchestrator) OnlineIdentities() []domain.UserID {
	return o.presence.OnlineIdentities()
}

// Stats feeds the heartbeat worker.
func (o *Orchestrator) Stats() map[string]any {
	o.mu.Lock()
	defer o.mu.Unlock()
	return map[string]any{
		"online_users":   len(o.presence.OnlineIdentities()),
		"active_workers": len(o.commands),
	}
}

// commandsFor returns the conversation's command channel, creating the
// channel and its supervised worker on first use.
func (o *Orchestrator) commandsFor(conversationID domain.ConversationID) (chan domain.SendMessageCommand, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.runCtx == nil {
		return nil, fmt.Errorf("orchestrator not started")
	}
	if commands, ok := o.commands[conversationID]; ok {
		return commands, nil
	}

	commands := make(chan domain.SendMessageCommand, o.bufferSize)
	o.commands[conversationID] = commands
	worker := workers.NewConversationWorker(conversationID, commands, o.events,
		o.messages, o.conversations, o.log)
	o.supervisor.Start(o.runCtx, worker)
	return commands, nil
}

// publish drops on the floor when the event buffer is full; fanout is
// best-effort by contract and sync covers anything missed.
func (o *Orchestrator) publish(evt event.DomainEvent) {
	select {
	case o.events <- evt:
	default:
		o.log.Warn("event buffer full, dropping event",
			"conversation", evt.Conversation())
	}
}
