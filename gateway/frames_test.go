package gateway

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestDecodeClientFrame_ValidSend(t *testing.T) {
	req := require.New(t)

	data := []byte(`{"type":"message:send","payload":{"conversationId":"c-general","clientDedupToken":"token-1","body":"hello"}}`)
	envelope, err := DecodeClientFrame(data)
	req.NoError(err)
	req.Equal(TypeMessageSend, envelope.Type)

	payload, ok := envelope.Payload.(SendMessage)
	req.True(ok)
	req.Equal("c-general", payload.ConversationID)
	req.Equal("token-1", payload.ClientDedupToken)
	req.Equal("hello", payload.Body)
}

func TestDecodeClientFrame_Failures(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"Not JSON", `{{{`},
		{"Unknown type", `{"type":"message:edit","payload":{}}`},
		{"Server-only type", `{"type":"message:ack","payload":{}}`},
		{"Send without body", `{"type":"message:send","payload":{"conversationId":"c1","clientDedupToken":"t"}}`},
		{"Send without token", `{"type":"message:send","payload":{"conversationId":"c1","body":"hi"}}`},
		{"Send without payload", `{"type":"message:send"}`},
		{"Sync with malformed watermark", `{"type":"sync:request","payload":{"conversationId":"c1","afterMessageId":"not-a-uuid"}}`},
		{"Join without conversation", `{"type":"room:join","payload":{}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeClientFrame([]byte(tt.data))
			require.ErrorIs(t, err, errors.ErrValidation)
		})
	}
}

func TestDecodeClientFrame_SyncWatermarkIsOptional(t *testing.T) {
	req := require.New(t)

	envelope, err := DecodeClientFrame([]byte(`{"type":"sync:request","payload":{"conversationId":"c1"}}`))
	req.NoError(err)

	payload := envelope.Payload.(SyncRequest)
	req.Empty(payload.AfterMessageID)
}

func TestEncodeDecode_ServerRoundTrip(t *testing.T) {
	req := require.New(t)
	at := time.Date(2026, 8, 31, 12, 0, 0, 123456789, time.UTC)

	message := domain.Message{
		ID:             uuid.New(),
		ConversationID: "c-general",
		SenderID:       "u-alice",
		SenderName:     "Alice",
		DedupToken:     "token-1",
		Body:           "hello",
		CreatedAt:      at,
	}

	data, err := EncodeFrame(TypeMessageNew, ToNewMessage(message))
	req.NoError(err)

	envelope, err := DecodeServerFrame(data)
	req.NoError(err)
	req.Equal(TypeMessageNew, envelope.Type)

	payload := envelope.Payload.(NewMessage)
	req.Equal(message.ID.String(), payload.MessageID)
	req.Equal("Alice", payload.SenderName)

	// Nanosecond resolution must survive the trip: it is part of the
	// client-side ordering key
	parsed, err := ParseTime(payload.CreatedAt)
	req.NoError(err)
	req.True(parsed.Equal(at))
}

func TestToSyncBatch(t *testing.T) {
	req := require.New(t)
	at := time.Now().UTC()

	batch := ToSyncBatch("c-general", []domain.Message{
		{ID: uuid.New(), ConversationID: "c-general", Body: "one", CreatedAt: at},
		{ID: uuid.New(), ConversationID: "c-general", Body: "two", CreatedAt: at.Add(time.Millisecond)},
	})
	req.Equal("c-general", batch.ConversationID)
	req.Len(batch.Messages, 2)
	req.Equal("one", batch.Messages[0].Body)

	empty := ToSyncBatch("c-general", nil)
	req.Empty(empty.Messages)
}
