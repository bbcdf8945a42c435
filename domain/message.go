// This file defines the Message entity and its ordering rules.
// Messages are immutable once committed.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message is the central entity of this core. Exactly one Message exists per
// (SenderID, DedupToken) pair; the storage layer's conditional insert is the
// sole arbiter of that invariant. CreatedAt is assigned by the server at
// commit time and is never trusted from the client.
//
// Sender name and avatar are denormalized at commit time from the verified
// identity, so fanout and sync never need a user lookup.
type Message struct {
	ID             uuid.UUID
	ConversationID ConversationID
	SenderID       UserID
	SenderName     string
	SenderAvatar   string
	DedupToken     string
	Body           string
	CreatedAt      time.Time
}

// Less reports whether m precedes other in the canonical per-conversation
// order: (CreatedAt, ID), with ID breaking ties between equal timestamps.
func (m Message) Less(other Message) bool {
	if m.CreatedAt.Equal(other.CreatedAt) {
		return m.ID.String() < other.ID.String()
	}
	return m.CreatedAt.Before(other.CreatedAt)
}

// Acknowledgment is the direct reply to the originating connection after a
// send, whether the write was genuine or resolved to an existing row.
type Acknowledgment struct {
	DedupToken string
	MessageID  uuid.UUID
	CreatedAt  time.Time
}
