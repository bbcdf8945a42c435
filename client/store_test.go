package client

import (
	"chat-relay/gateway"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func wireMessage(conversationID, body string, at time.Time) gateway.NewMessage {
	return gateway.NewMessage{
		MessageID:        uuid.NewString(),
		ConversationID:   conversationID,
		SenderID:         "u-bob",
		SenderName:       "Bob",
		ClientDedupToken: uuid.NewString(),
		Body:             body,
		CreatedAt:        gateway.FormatTime(at),
	}
}

func TestStore_SendingToSentLifecycle(t *testing.T) {
	req := require.New(t)
	store := NewStore()

	// Given an optimistic submit
	placeholder := store.Submit("c-general", "u-alice", "Alice", "hello")
	req.Equal(StatusSending, placeholder.Status)
	req.Empty(placeholder.ID)
	req.True(store.Pending(placeholder.DedupToken))

	// When the ack resolves it
	canonicalID := uuid.NewString()
	ackAt := time.Now().UTC().Add(50 * time.Millisecond)
	req.True(store.ApplyAck(placeholder.DedupToken, canonicalID, ackAt))

	// Then the bubble carries the canonical identity and the Sent state
	messages := store.Messages("c-general")
	req.Len(messages, 1)
	req.Equal(canonicalID, messages[0].ID)
	req.Equal(StatusSent, messages[0].Status)
	req.True(messages[0].CreatedAt.Equal(ackAt))
	req.False(store.Pending(placeholder.DedupToken))

	// A replayed ack changes nothing
	req.False(store.ApplyAck(placeholder.DedupToken, canonicalID, ackAt))
}

func TestStore_SendingToFailedIsTerminal(t *testing.T) {
	req := require.New(t)
	store := NewStore()

	placeholder := store.Submit("c-general", "u-alice", "Alice", "hello")
	req.True(store.MarkFailed(placeholder.DedupToken))

	messages := store.Messages("c-general")
	req.Len(messages, 1)
	req.Equal(StatusFailed, messages[0].Status)

	// A late ack after the failure mark must not resurrect the send
	req.False(store.ApplyAck(placeholder.DedupToken, uuid.NewString(), time.Now()))
	req.Equal(StatusFailed, store.Messages("c-general")[0].Status)
}

func TestStore_FanoutEchoNeverDuplicatesOwnBubble(t *testing.T) {
	req := require.New(t)
	store := NewStore()

	placeholder := store.Submit("c-general", "u-alice", "Alice", "hello")

	// The fanout echo of our own in-flight send arrives before the ack
	echo := gateway.NewMessage{
		MessageID:        uuid.NewString(),
		ConversationID:   "c-general",
		SenderID:         "u-alice",
		SenderName:       "Alice",
		ClientDedupToken: placeholder.DedupToken,
		Body:             "hello",
		CreatedAt:        gateway.FormatTime(time.Now().UTC()),
	}
	req.False(store.ApplyNew(echo))
	req.Len(store.Messages("c-general"), 1)
}

func TestStore_DuplicateDeliveryIsDiscarded(t *testing.T) {
	req := require.New(t)
	store := NewStore()

	incoming := wireMessage("c-general", "hi", time.Now().UTC())

	// At-least-once delivery: the same frame can arrive twice
	req.True(store.ApplyNew(incoming))
	req.False(store.ApplyNew(incoming))
	req.Len(store.Messages("c-general"), 1)

	// Sync replaying it changes nothing either
	applied := store.ApplySyncBatch(gateway.SyncBatch{
		ConversationID: "c-general",
		Messages:       []gateway.NewMessage{incoming},
	})
	req.Zero(applied)
	req.Len(store.Messages("c-general"), 1)
}

func TestStore_TimelineOrderIsCreatedAtThenID(t *testing.T) {
	req := require.New(t)
	store := NewStore()
	at := time.Now().UTC()

	// Delivered out of order
	second := wireMessage("c-general", "second", at.Add(time.Second))
	first := wireMessage("c-general", "first", at)
	req.True(store.ApplyNew(second))
	req.True(store.ApplyNew(first))

	messages := store.Messages("c-general")
	req.Equal([]string{"first", "second"},
		[]string{messages[0].Body, messages[1].Body})
}

func TestStore_SyncBatchCountsOnlyNewMessages(t *testing.T) {
	req := require.New(t)
	store := NewStore()
	at := time.Now().UTC()

	known := wireMessage("c-general", "known", at)
	req.True(store.ApplyNew(known))

	applied := store.ApplySyncBatch(gateway.SyncBatch{
		ConversationID: "c-general",
		Messages: []gateway.NewMessage{
			known,
			wireMessage("c-general", "new one", at.Add(time.Second)),
			wireMessage("c-general", "new two", at.Add(2*time.Second)),
		},
	})
	req.Equal(2, applied)
	req.Len(store.Messages("c-general"), 3)
}

func TestStore_LastCanonicalIDSkipsInFlightAndFailed(t *testing.T) {
	req := require.New(t)
	store := NewStore()
	at := time.Now().UTC()

	// Nothing sent yet: no watermark
	_, ok := store.LastCanonicalID("c-general")
	req.False(ok)

	delivered := wireMessage("c-general", "delivered", at)
	req.True(store.ApplyNew(delivered))

	// An in-flight send and a failed one after it
	store.Submit("c-general", "u-alice", "Alice", "in flight")
	failed := store.Submit("c-general", "u-alice", "Alice", "doomed")
	store.MarkFailed(failed.DedupToken)

	// The watermark is the latest message that actually reached Sent
	watermark, ok := store.LastCanonicalID("c-general")
	req.True(ok)
	req.Equal(delivered.MessageID, watermark)
}

func TestStore_MarkAllFailed(t *testing.T) {
	req := require.New(t)
	store := NewStore()

	one := store.Submit("c-general", "u-alice", "Alice", "one")
	two := store.Submit("c-private", "u-alice", "Alice", "two")

	// Disconnect before any ack
	store.MarkAllFailed()

	req.False(store.Pending(one.DedupToken))
	req.False(store.Pending(two.DedupToken))
	req.Equal(StatusFailed, store.Messages("c-general")[0].Status)
	req.Equal(StatusFailed, store.Messages("c-private")[0].Status)
}
