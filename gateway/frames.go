// Package gateway is the WebSocket connection gateway: handshake,
// authentication, session lifecycle, and the JSON frame protocol.
package gateway

import (
	"chat-relay/domain"
	chaterrors "chat-relay/errors"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

// Frame types. The wire protocol is a closed set: anything else is a
// validation error, decided once at the transport boundary.
const (
	TypeMessageSend    = "message:send"
	TypeMessageAck     = "message:ack"
	TypeMessageNew     = "message:new"
	TypeSyncRequest    = "sync:request"
	TypeSyncBatch      = "sync:batch"
	TypeRoomJoin       = "room:join"
	TypeRoomLeave      = "room:leave"
	TypeTypingStart    = "typing:start"
	TypeTypingStop     = "typing:stop"
	TypePresenceUpdate = "presence:update"
	TypeError          = "error"
)

var validate = validator.New()

// Frame is the envelope of every message on the wire.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type SendMessage struct {
	ConversationID   string `json:"conversationId" validate:"required"`
	ClientDedupToken string `json:"clientDedupToken" validate:"required,max=128"`
	Body             string `json:"body" validate:"required,max=4000"`
}

type SyncRequest struct {
	ConversationID string `json:"conversationId" validate:"required"`
	AfterMessageID string `json:"afterMessageId,omitempty" validate:"omitempty,uuid"`
}

type RoomChange struct {
	ConversationID string `json:"conversationId" validate:"required"`
}

// Typing carries only the conversation client->server; the server enriches
// the relayed frame with the sender's identity.
type Typing struct {
	ConversationID string `json:"conversationId" validate:"required"`
	UserID         string `json:"userId,omitempty"`
	UserName       string `json:"userName,omitempty"`
}

type Ack struct {
	ClientDedupToken string `json:"clientDedupToken"`
	MessageID        string `json:"messageId"`
	CreatedAt        string `json:"createdAt"`
}

type NewMessage struct {
	MessageID        string `json:"messageId"`
	ConversationID   string `json:"conversationId"`
	SenderID         string `json:"senderId"`
	SenderName       string `json:"senderName"`
	SenderAvatar     string `json:"senderAvatar,omitempty"`
	ClientDedupToken string `json:"clientDedupToken"`
	Body             string `json:"body"`
	CreatedAt        string `json:"createdAt"`
}

type SyncBatch struct {
	ConversationID string       `json:"conversationId"`
	Messages       []NewMessage `json:"messages"`
}

type PresenceUpdate struct {
	UserID string `json:"userId"`
	Online bool   `json:"online"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// Envelope is a decoded inbound frame: Type from the closed set above and
// Payload already converted to its typed struct.
type Envelope struct {
	Type    string
	Payload any
}

// DecodeClientFrame parses one client->server frame into the closed tagged
// union, validating the payload. Every failure maps to ErrValidation; the
// session survives, only the request is rejected.
func DecodeClientFrame(data []byte) (Envelope, error) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", chaterrors.ErrValidation, err)
	}

	switch frame.Type {
	case TypeMessageSend:
		return decodePayload[SendMessage](frame)
	case TypeSyncRequest:
		return decodePayload[SyncRequest](frame)
	case TypeRoomJoin, TypeRoomLeave:
		return decodePayload[RoomChange](frame)
	case TypeTypingStart, TypeTypingStop:
		return decodePayload[Typing](frame)
	default:
		return Envelope{}, fmt.Errorf("%w: unknown frame type %q", chaterrors.ErrValidation, frame.Type)
	}
}

// DecodeServerFrame parses one server->client frame; used by the client
// collaborator and by tests.
func DecodeServerFrame(data []byte) (Envelope, error) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", chaterrors.ErrValidation, err)
	}

	switch frame.Type {
	case TypeMessageAck:
		return decodePayload[Ack](frame)
	case TypeMessageNew:
		return decodePayload[NewMessage](frame)
	case TypeSyncBatch:
		return decodePayload[SyncBatch](frame)
	case TypeTypingStart, TypeTypingStop:
		return decodePayload[Typing](frame)
	case TypePresenceUpdate:
		return decodePayload[PresenceUpdate](frame)
	case TypeError:
		return decodePayload[ErrorPayload](frame)
	default:
		return Envelope{}, fmt.Errorf("%w: unknown frame type %q", chaterrors.ErrValidation, frame.Type)
	}
}

func decodePayload[T any](frame Frame) (Envelope, error) {
	var payload T
	if len(frame.Payload) > 0 {
		if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			return Envelope{}, fmt.Errorf("%w: %v", chaterrors.ErrValidation, err)
		}
	}
	if err := validate.Struct(payload); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", chaterrors.ErrValidation, err)
	}
	return Envelope{Type: frame.Type, Payload: payload}, nil
}

// EncodeFrame marshals a typed payload into its envelope.
func EncodeFrame(frameType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Type: frameType, Payload: raw})
}

// Timestamps travel as RFC3339 with nanoseconds, always UTC, so the
// client-side ordering key survives the round trip.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func ParseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func ToNewMessage(m domain.Message) NewMessage {
	return NewMessage{
		MessageID:        m.ID.String(),
		ConversationID:   string(m.ConversationID),
		SenderID:         string(m.SenderID),
		SenderName:       m.SenderName,
		SenderAvatar:     m.SenderAvatar,
		ClientDedupToken: m.DedupToken,
		Body:             m.Body,
		CreatedAt:        FormatTime(m.CreatedAt),
	}
}

func ToSyncBatch(conversationID domain.ConversationID, messages []domain.Message) SyncBatch {
	return SyncBatch{
		ConversationID: string(conversationID),
		Messages: lo.Map(messages, func(m domain.Message, _ int) NewMessage {
			return ToNewMessage(m)
		}),
	}
}
