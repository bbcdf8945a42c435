package services

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/runtime"
	"context"
	"fmt"

	"github.com/google/uuid"
)

// IChatService is the facade the gateway talks to. It hides the
// orchestrator wiring behind one interface per connection lifecycle and
// per protocol operation.
type IChatService interface {
	Connect(identity domain.Identity, connID string, sink contract.EventSink) ([]domain.ConversationID, error)
	Disconnect(identity domain.Identity, connID string)
	SendMessage(ctx context.Context, conversationID domain.ConversationID,
		sender domain.Identity, dedupToken, body string) (domain.Acknowledgment, error)
	Sync(ctx context.Context, user domain.UserID, conversationID domain.ConversationID,
		after *uuid.UUID) ([]domain.Message, error)
	JoinRoom(identity domain.Identity, conversationID domain.ConversationID,
		connID string, sink contract.EventSink) error
	LeaveRoom(conversationID domain.ConversationID, connID string)
	Typing(conversationID domain.ConversationID, user domain.Identity, connID string, started bool)
	IsOnline(user domain.UserID) bool
	OnlineIdentities() []domain.UserID
}

type ChatService struct {
	orchestrator *runtime.Orchestrator
	sync         *SyncService
	memberships  contract.IMembershipStore
}

func NewChatService(orchestrator *runtime.Orchestrator, syncService *SyncService,
	memberships contract.IMembershipStore) *ChatService {
	return &ChatService{orchestrator: orchestrator, sync: syncService, memberships: memberships}
}

func (s *ChatService) Connect(identity domain.Identity, connID string, sink contract.EventSink) ([]domain.ConversationID, error) {
	return s.orchestrator.Connect(identity, connID, sink)
}

func (s *ChatService) Disconnect(identity domain.Identity, connID string) {
	s.orchestrator.Disconnect(identity, connID)
}

func (s *ChatService) SendMessage(ctx context.Context, conversationID domain.ConversationID,
	sender domain.Identity, dedupToken, body string) (domain.Acknowledgment, error) {
	return s.orchestrator.SendMessage(ctx, conversationID, sender, dedupToken, body)
}

func (s *ChatService) Sync(ctx context.Context, user domain.UserID,
	conversationID domain.ConversationID, after *uuid.UUID) ([]domain.Message, error) {
	return s.sync.Sync(ctx, user, conversationID, after)
}

// JoinRoom handles an explicit membership-change signal. The membership
// store stays authoritative: a non-member cannot subscribe a connection.
func (s *ChatService) JoinRoom(identity domain.Identity, conversationID domain.ConversationID,
	connID string, sink contract.EventSink) error {
	member, err := s.memberships.IsMember(conversationID, identity.ID)
	if err != nil {
		return err
	}
	if !member {
		return fmt.Errorf("%w: user %s in conversation %s",
			errors.ErrAuthorization, identity.ID, conversationID)
	}
	s.orchestrator.JoinRoom(conversationID, connID, sink)
	return nil
}

func (s *ChatService) LeaveRoom(conversationID domain.ConversationID, connID string) {
	s.orchestrator.LeaveRoom(conversationID, connID)
}

func (s *ChatService) Typing(conversationID domain.ConversationID, user domain.Identity,
	connID string, started bool) {
	s.orchestrator.Typing(conversationID, user, connID, started)
}

func (s *ChatService) IsOnline(user domain.UserID) bool {
	return s.orchestrator.IsOnline(user)
}

func (s *ChatService) OnlineIdentities() []domain.UserID {
	return s.orchestrator.OnlineIdentities()
}
