// Package event defines the domain events flowing from the ingestion
// pipeline to the fanout broadcaster and its sinks.
package event

import (
	"chat-relay/domain"
)

// DomainEvent is routed by conversation. An empty ConversationID means the
// event is global and goes to every connected sink.
type DomainEvent interface {
	Conversation() domain.ConversationID
}

// MessageCreated is emitted exactly once per persisted message, after the
// conditional insert committed. Duplicate submissions never re-emit it.
type MessageCreated struct {
	Message domain.Message
}

func (e MessageCreated) Conversation() domain.ConversationID {
	return e.Message.ConversationID
}

// TypingStarted and TypingStopped are best-effort relays; they are never
// persisted. OriginConn lets sinks suppress the sender's own echo.
type TypingStarted struct {
	ConversationID domain.ConversationID
	User           domain.Identity
	OriginConn     string
}

func (e TypingStarted) Conversation() domain.ConversationID {
	return e.ConversationID
}

type TypingStopped struct {
	ConversationID domain.ConversationID
	User           domain.Identity
	OriginConn     string
}

func (e TypingStopped) Conversation() domain.ConversationID {
	return e.ConversationID
}

// PresenceChanged signals a 0<->1 transition in an identity's connection
// count. Advisory only: delivery decisions never depend on it.
type PresenceChanged struct {
	UserID domain.UserID
	Online bool
}

func (e PresenceChanged) Conversation() domain.ConversationID {
	return ""
}
