package workers

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

var _ contract.Worker = (*ConversationWorker)(nil)

// ConversationWorker serializes every write to one conversation: it is the
// only goroutine committing messages for its conversation, so the
// server-assigned CreatedAt is monotonic in commit order regardless of
// client clock skew. Unrelated conversations run their own workers fully in
// parallel.
type ConversationWorker struct {
	conversationID domain.ConversationID
	commands       <-chan domain.SendMessageCommand
	events         chan<- event.DomainEvent
	messages       contract.IMessageStore
	conversations  contract.IConversationStore
	log            *slog.Logger
	lastCreatedAt  time.Time
}

func NewConversationWorker(
	conversationID domain.ConversationID,
	commands <-chan domain.SendMessageCommand,
	events chan<- event.DomainEvent,
	messages contract.IMessageStore,
	conversations contract.IConversationStore,
	log *slog.Logger) *ConversationWorker {
	return &ConversationWorker{
		conversationID: conversationID,
		commands:       commands,
		events:         events,
		messages:       messages,
		conversations:  conversations,
		log:            log,
	}
}

func (w *ConversationWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping worker", "conversation", w.conversationID)
			return ctx.Err()
		case cmd, ok := <-w.commands:
			if !ok {
				return nil
			}
			w.handle(ctx, cmd)
		}
	}
}

func (w *ConversationWorker) handle(ctx context.Context, cmd domain.SendMessageCommand) {
	// Commit-time timestamp, clamped so it never regresses within the
	// conversation even when the wall clock does.
	now := time.Now().UTC()
	if !now.After(w.lastCreatedAt) {
		now = w.lastCreatedAt.Add(time.Nanosecond)
	}

	canonical, created, err := w.messages.InsertIfAbsent(domain.Message{
		ID:             uuid.New(),
		ConversationID: w.conversationID,
		SenderID:       cmd.Sender.ID,
		SenderName:     cmd.Sender.Name,
		SenderAvatar:   cmd.Sender.AvatarURL,
		DedupToken:     cmd.DedupToken,
		Body:           cmd.Body,
		CreatedAt:      now,
	})
	if err != nil {
		reply(cmd, domain.SendResult{Err: err})
		return
	}
	if canonical.CreatedAt.After(w.lastCreatedAt) {
		w.lastCreatedAt = canonical.CreatedAt
	}

	// Direct ack to the originating caller, genuine write or not.
	reply(cmd, domain.SendResult{
		Ack: domain.Acknowledgment{
			DedupToken: cmd.DedupToken,
			MessageID:  canonical.ID,
			CreatedAt:  canonical.CreatedAt,
		},
		Duplicate: !created,
	})

	if !created {
		// Retries are true no-ops: no activity touch, no re-fanout.
		return
	}

	if err := w.conversations.TouchLastActivity(w.conversationID, canonical.CreatedAt); err != nil {
		w.log.Warn("failed to refresh conversation activity",
			"conversation", w.conversationID, "error", err)
	}

	select {
	case <-ctx.Done():
	case w.events <- event.MessageCreated{Message: canonical}:
	}
}

// reply never blocks: the Reply channel is buffered by the caller, and a
// caller that already gave up simply misses its result.
func reply(cmd domain.SendMessageCommand, res domain.SendResult) {
	if cmd.Reply == nil {
		return
	}
	select {
	case cmd.Reply <- res:
	default:
	}
}
