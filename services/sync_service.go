package services

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// DefaultSyncBatchSize caps one sync:batch; the client pages by re-invoking
// with the new watermark.
const DefaultSyncBatchSize = 100

// SyncService serves missed-message queries on reconnect and advances the
// caller's last-seen watermark.
type SyncService struct {
	memberships contract.IMembershipStore
	messages    contract.IMessageStore
	batchSize   int
	log         *slog.Logger
}

func NewSyncService(memberships contract.IMembershipStore,
	messages contract.IMessageStore, batchSize int, log *slog.Logger) *SyncService {
	if batchSize <= 0 {
		batchSize = DefaultSyncBatchSize
	}
	return &SyncService{
		memberships: memberships,
		messages:    messages,
		batchSize:   batchSize,
		log:         log,
	}
}

// Sync returns up to batchSize messages strictly after the watermark,
// ascending. A watermark that no longer resolves degrades to full history
// instead of erroring. Side effect: a non-empty batch advances
// lastSeenMessageId/lastSeenAt to its final message.
func (s *SyncService) Sync(_ context.Context, user domain.UserID,
	conversationID domain.ConversationID, after *uuid.UUID) ([]domain.Message, error) {
	member, err := s.memberships.IsMember(conversationID, user)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, fmt.Errorf("%w: user %s in conversation %s",
			errors.ErrAuthorization, user, conversationID)
	}

	messages, err := s.messages.ListAfter(conversationID, after, s.batchSize)
	if err != nil {
		return nil, err
	}

	if len(messages) > 0 {
		last := messages[len(messages)-1]
		// Watermark advancement is best-effort: a failed touch never
		// withholds the batch from the caller.
		if err := s.memberships.TouchLastSeen(conversationID, user, last.ID, time.Now().UTC()); err != nil {
			s.log.Warn("failed to advance last-seen watermark",
				"user", user, "conversation", conversationID, "error", err)
		}
	}
	return messages, nil
}
