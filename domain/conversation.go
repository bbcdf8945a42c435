package domain

import (
	"time"

	"github.com/google/uuid"
)

type ConversationID string

type ConversationType string

const (
	ConversationDM    ConversationType = "dm"
	ConversationGroup ConversationType = "group"
)

// Conversation is externally owned except for LastActivityAt, which the
// ingestion pipeline refreshes on a genuine first write.
type Conversation struct {
	ID             ConversationID
	Type           ConversationType
	LastActivityAt time.Time
}

// Membership ties a user to a conversation. Only the LastSeen* fields are
// mutated here (by the sync service); role and existence are owned by the
// external membership collaborator.
type Membership struct {
	ConversationID    ConversationID
	UserID            UserID
	Role              string
	LastSeenMessageID *uuid.UUID
	LastSeenAt        *time.Time
}
