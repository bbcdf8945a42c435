// Package repositories implements the narrow storage contracts on BadgerDB.
// Values are CBOR-encoded records; keys are designed so that a prefix scan
// yields messages in canonical (createdAt, id) order without sorting.
package repositories

import (
	"chat-relay/domain"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// storedMessage is the durable shape of a Message. Timestamps are kept as
// UnixNano so the round trip preserves the nanosecond resolution the
// per-conversation monotonic clock relies on.
type storedMessage struct {
	ID           string `cbor:"id"`
	Conversation string `cbor:"conv"`
	SenderID     string `cbor:"sender"`
	SenderName   string `cbor:"sender_name"`
	SenderAvatar string `cbor:"sender_avatar,omitempty"`
	DedupToken   string `cbor:"dedup"`
	Body         string `cbor:"body"`
	At           int64  `cbor:"at"`
}

type storedMembership struct {
	Role          string `cbor:"role"`
	LastSeenMsgID string `cbor:"last_seen_msg,omitempty"`
	LastSeenAt    int64  `cbor:"last_seen_at,omitempty"`
}

type storedConversation struct {
	Type           string `cbor:"type"`
	LastActivityAt int64  `cbor:"last_activity"`
}

func fromMessage(m domain.Message) storedMessage {
	return storedMessage{
		ID:           m.ID.String(),
		Conversation: string(m.ConversationID),
		SenderID:     string(m.SenderID),
		SenderName:   m.SenderName,
		SenderAvatar: m.SenderAvatar,
		DedupToken:   m.DedupToken,
		Body:         m.Body,
		At:           m.CreatedAt.UnixNano(),
	}
}

func toMessage(s storedMessage) (domain.Message, error) {
	parsedID, err := uuid.Parse(s.ID)
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		ID:             parsedID,
		ConversationID: domain.ConversationID(s.Conversation),
		SenderID:       domain.UserID(s.SenderID),
		SenderName:     s.SenderName,
		SenderAvatar:   s.SenderAvatar,
		DedupToken:     s.DedupToken,
		Body:           s.Body,
		CreatedAt:      time.Unix(0, s.At).UTC(),
	}, nil
}

// DecodeStoredMessage decodes one raw "msg:" value. The debug inspector
// uses it to render rows without reaching into this package's records.
func DecodeStoredMessage(val []byte) (domain.Message, error) {
	var s storedMessage
	if err := cbor.Unmarshal(val, &s); err != nil {
		return domain.Message{}, err
	}
	return toMessage(s)
}

// messageKey is formatted as "msg:{conversation}:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding
//     (lexicographical order).
//  2. Use the UUID as a tie-break if two messages commit at the same
//     nanosecond.
func messageKey(conversationID domain.ConversationID, at time.Time, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s", conversationID, at.UnixNano(), id))
}

func messagePrefix(conversationID domain.ConversationID) []byte {
	return []byte(fmt.Sprintf("msg:%s:", conversationID))
}

// dedupKey points at the canonical message key for one
// (sender, clientDedupToken) pair. Its existence IS the idempotency check.
func dedupKey(sender domain.UserID, token string) []byte {
	return []byte(fmt.Sprintf("dedup:%s:%s", sender, token))
}

// idKey resolves a message id to its full key, for watermark lookups.
func idKey(id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("msgid:%s", id))
}

func membershipKey(conversationID domain.ConversationID, user domain.UserID) []byte {
	return []byte(fmt.Sprintf("member:%s:%s", conversationID, user))
}

func joinedKey(user domain.UserID, conversationID domain.ConversationID) []byte {
	return []byte(fmt.Sprintf("joined:%s:%s", user, conversationID))
}

func joinedPrefix(user domain.UserID) []byte {
	return []byte(fmt.Sprintf("joined:%s:", user))
}

func conversationKey(id domain.ConversationID) []byte {
	return []byte(fmt.Sprintf("conv:%s", id))
}
