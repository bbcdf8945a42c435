// Package client implements the connection client collaborator: the
// reconciliation store holding the optimistic local view, and a WebSocket
// client driving it against a live gateway.
package client

import (
	"chat-relay/gateway"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the explicit state machine of one outbound message:
// Sending -> Sent(id) | Sending -> Failed, both terminal.
type Status int

const (
	StatusSending Status = iota
	StatusSent
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSending:
		return "sending"
	case StatusSent:
		return "sent"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// LocalMessage is one entry of the local timeline. For an in-flight send,
// ID is empty until the ack replaces it with the canonical id.
type LocalMessage struct {
	ID             string
	ConversationID string
	SenderID       string
	SenderName     string
	SenderAvatar   string
	DedupToken     string
	Body           string
	CreatedAt      time.Time
	Status         Status
}

// Store reconciles the optimistic local view with acks, fanout events, and
// sync batches. Dedup rule everywhere: a canonical id already seen, or a
// dedup token still in flight, means discard.
type Store struct {
	mu             sync.Mutex
	byConversation map[string][]LocalMessage
	seen           map[string]struct{}
	pending        map[string]string // dedup token -> conversation id
}

func NewStore() *Store {
	return &Store{
		byConversation: make(map[string][]LocalMessage),
		seen:           make(map[string]struct{}),
		pending:        make(map[string]string),
	}
}

// Submit appends a Sending placeholder with a freshly generated dedup token
// and returns it. The caller then puts the token on the wire.
func (s *Store) Submit(conversationID, senderID, senderName, body string) LocalMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	placeholder := LocalMessage{
		ConversationID: conversationID,
		SenderID:       senderID,
		SenderName:     senderName,
		DedupToken:     uuid.NewString(),
		Body:           body,
		CreatedAt:      time.Now().UTC(),
		Status:         StatusSending,
	}
	s.byConversation[conversationID] = append(s.byConversation[conversationID], placeholder)
	s.pending[placeholder.DedupToken] = conversationID
	return placeholder
}

// ApplyAck resolves an in-flight send to its canonical identity and marks
// it Sent. Returns false when no matching placeholder is in flight (late
// ack after a failure mark, or a replayed frame).
func (s *Store) ApplyAck(dedupToken, messageID string, createdAt time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	conversationID, ok := s.pending[dedupToken]
	if !ok {
		return false
	}
	delete(s.pending, dedupToken)
	s.seen[messageID] = struct{}{}

	messages := s.byConversation[conversationID]
	for i := range messages {
		if messages[i].DedupToken == dedupToken && messages[i].Status == StatusSending {
			messages[i].ID = messageID
			messages[i].CreatedAt = createdAt
			messages[i].Status = StatusSent
			break
		}
	}
	s.sortLocked(conversationID)
	return true
}

// MarkFailed transitions an in-flight send to the terminal Failed state.
// A failed send is never auto-retried with the same token.
func (s *Store) MarkFailed(dedupToken string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	conversationID, ok := s.pending[dedupToken]
	if !ok {
		return false
	}
	delete(s.pending, dedupToken)

	messages := s.byConversation[conversationID]
	for i := range messages {
		if messages[i].DedupToken == dedupToken && messages[i].Status == StatusSending {
			messages[i].Status = StatusFailed
			break
		}
	}
	return true
}

// MarkAllFailed fails every in-flight send; called on disconnect before an
// ack arrived.
func (s *Store) MarkAllFailed() {
	s.mu.Lock()
	tokens := make([]string, 0, len(s.pending))
	for token := range s.pending {
		tokens = append(tokens, token)
	}
	s.mu.Unlock()

	for _, token := range tokens {
		s.MarkFailed(token)
	}
}

// ApplyNew merges one fanout event. The sender's own echo — already seen
// id, or token matching an in-flight placeholder — is discarded so the
// optimistic bubble never duplicates.
func (s *Store) ApplyNew(m gateway.NewMessage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyLocked(m)
}

// ApplySyncBatch merges a catch-up batch with the same dedup rule and
// returns how many messages were actually new.
func (s *Store) ApplySyncBatch(batch gateway.SyncBatch) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	applied := 0
	for _, m := range batch.Messages {
		if s.applyLocked(m) {
			applied++
		}
	}
	return applied
}

func (s *Store) applyLocked(m gateway.NewMessage) bool {
	if _, dup := s.seen[m.MessageID]; dup {
		return false
	}
	if _, inFlight := s.pending[m.ClientDedupToken]; inFlight {
		return false
	}

	createdAt, err := gateway.ParseTime(m.CreatedAt)
	if err != nil {
		return false
	}
	s.seen[m.MessageID] = struct{}{}
	s.byConversation[m.ConversationID] = append(s.byConversation[m.ConversationID], LocalMessage{
		ID:             m.MessageID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		SenderName:     m.SenderName,
		SenderAvatar:   m.SenderAvatar,
		DedupToken:     m.ClientDedupToken,
		Body:           m.Body,
		CreatedAt:      createdAt,
		Status:         StatusSent,
	})
	s.sortLocked(m.ConversationID)
	return true
}

// Messages returns a copy of the conversation's timeline in (createdAt, id)
// order.
func (s *Store) Messages(conversationID string) []LocalMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	messages := s.byConversation[conversationID]
	out := make([]LocalMessage, len(messages))
	copy(out, messages)
	return out
}

// LastCanonicalID returns the sync watermark for a conversation: the id of
// the latest message that reached the Sent state.
func (s *Store) LastCanonicalID(conversationID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	messages := s.byConversation[conversationID]
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Status == StatusSent && messages[i].ID != "" {
			return messages[i].ID, true
		}
	}
	return "", false
}

// Conversations lists every conversation the store has messages for.
func (s *Store) Conversations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.byConversation))
	for id := range s.byConversation {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Pending reports whether a dedup token is still in flight.
func (s *Store) Pending(dedupToken string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[dedupToken]
	return ok
}

func (s *Store) sortLocked(conversationID string) {
	messages := s.byConversation[conversationID]
	sort.SliceStable(messages, func(i, j int) bool {
		if messages[i].CreatedAt.Equal(messages[j].CreatedAt) {
			return messages[i].ID < messages[j].ID
		}
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
}
