//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"reflect"
	"time"

	"github.com/google/uuid"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker
// lifecycle events, avoiding the need for manual naming in the interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink receives fanned-out domain events. Implementations must not
// block: a slow consumer drops rather than stalling the broadcaster.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// IPresence tracks identity -> live connection ids. One identity may hold
// several concurrent connections (multi-device); online iff count > 0.
type IPresence interface {
	// Register returns true when this is the identity's first connection.
	Register(user domain.UserID, connID string) bool
	// Remove returns true when the identity's last connection went away.
	Remove(user domain.UserID, connID string) bool
	IsOnline(user domain.UserID) bool
	OnlineIdentities() []domain.UserID
}

// IRouter is the conversation -> subscriber cache. Never authoritative for
// membership; refreshed at connect and on explicit join/leave signals.
type IRouter interface {
	Subscribe(conversationID domain.ConversationID, connID string, sink EventSink)
	Unsubscribe(conversationID domain.ConversationID, connID string)
	SinksFor(conversationID domain.ConversationID) []EventSink
	AllSinks() []EventSink
	// UnsubscribeAll removes a connection from every conversation it was
	// subscribed to. Used at teardown; must be exactly-once safe.
	UnsubscribeAll(connID string)
}

// IIdentityVerifier checks an already-issued credential token. Token
// issuance belongs to the external identity collaborator.
type IIdentityVerifier interface {
	Verify(token string) (domain.Identity, error)
}

// IMembershipStore is the narrow contract to the external membership owner.
type IMembershipStore interface {
	ListConversationsFor(user domain.UserID) ([]domain.ConversationID, error)
	IsMember(conversationID domain.ConversationID, user domain.UserID) (bool, error)
	TouchLastSeen(conversationID domain.ConversationID, user domain.UserID, messageID uuid.UUID, at time.Time) error
}

// IMessageStore is the narrow contract to durable message storage.
type IMessageStore interface {
	FindByDedupKey(sender domain.UserID, dedupToken string) (*domain.Message, error)
	// InsertIfAbsent persists msg unless a row for (msg.SenderID,
	// msg.DedupToken) already exists, as ONE atomic conditional insert.
	// It returns the canonical row and whether this call created it.
	InsertIfAbsent(msg domain.Message) (domain.Message, bool, error)
	// ListAfter returns up to limit messages of the conversation strictly
	// after the watermark message, ascending. A nil or unresolvable
	// watermark starts from the beginning.
	ListAfter(conversationID domain.ConversationID, after *uuid.UUID, limit int) ([]domain.Message, error)
}

// IConversationStore exposes the single field of Conversation this core may
// touch: the last-activity ordering hint.
type IConversationStore interface {
	TouchLastActivity(conversationID domain.ConversationID, at time.Time) error
}
