package workers

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/repositories"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func startWorker(t *testing.T, db *badger.DB, conversationID domain.ConversationID,
	buffer int) (chan domain.SendMessageCommand, chan event.DomainEvent) {
	t.Helper()
	log := slog.Default()
	commands := make(chan domain.SendMessageCommand, buffer)
	events := make(chan event.DomainEvent, buffer)

	worker := NewConversationWorker(conversationID, commands, events,
		repositories.NewMessageRepository(db, log),
		repositories.NewConversationRepository(db, log), log)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = worker.Run(ctx) }()
	return commands, events
}

func TestConversationWorker_ConcurrentIdenticalSendsCommitOnce(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	commands, events := startWorker(t, db, "c-general", 64)

	sender := domain.Identity{ID: "u-alice", Name: "Alice"}
	const attempts = 10

	// Given the same submission raced 10 times (retry storm)
	var wg sync.WaitGroup
	acks := make(chan domain.SendResult, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reply := make(chan domain.SendResult, 1)
			commands <- domain.SendMessageCommand{
				ConversationID: "c-general",
				Sender:         sender,
				DedupToken:     "token-1",
				Body:           "hello",
				Reply:          reply,
			}
			acks <- <-reply
		}()
	}
	wg.Wait()
	close(acks)

	// Then every caller got an identical ack, and all but one saw a duplicate
	var first *domain.SendResult
	duplicates := 0
	for res := range acks {
		req.NoError(res.Err)
		if res.Duplicate {
			duplicates++
		}
		if first == nil {
			copied := res
			first = &copied
			continue
		}
		req.Equal(first.Ack.MessageID, res.Ack.MessageID)
		req.Equal(first.Ack.CreatedAt, res.Ack.CreatedAt)
	}
	req.Equal(attempts-1, duplicates)

	// And exactly one row exists in the store
	messages, err := repositories.NewMessageRepository(db, slog.Default()).
		ListAfter("c-general", nil, 100)
	req.NoError(err)
	req.Len(messages, 1)
	req.Equal("hello", messages[0].Body)

	// And exactly one creation event was emitted
	select {
	case evt := <-events:
		created, ok := evt.(event.MessageCreated)
		req.True(ok)
		req.Equal(messages[0].ID, created.Message.ID)
	case <-time.After(time.Second):
		req.Fail("No creation event emitted")
	}
	select {
	case <-events:
		req.Fail("Duplicate submission re-emitted a creation event")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestConversationWorker_CreatedAtIsMonotonic(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	commands, events := startWorker(t, db, "c-general", 64)

	sender := domain.Identity{ID: "u-alice", Name: "Alice"}
	var previous time.Time

	for i := 0; i < 20; i++ {
		reply := make(chan domain.SendResult, 1)
		commands <- domain.SendMessageCommand{
			ConversationID: "c-general",
			Sender:         sender,
			DedupToken:     "token-" + string(rune('a'+i)),
			Body:           "tick",
			Reply:          reply,
		}
		res := <-reply
		req.NoError(res.Err)

		// Commit order defines timestamp order, strictly
		req.True(res.Ack.CreatedAt.After(previous),
			"CreatedAt regressed at message %d", i)
		previous = res.Ack.CreatedAt
		<-events
	}
}

func TestConversationWorker_DuplicateDoesNotTouchActivity(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	log := slog.Default()

	conversations := repositories.NewConversationRepository(db, log)
	req.NoError(conversations.Create(domain.Conversation{
		ID: "c-general", Type: domain.ConversationGroup,
	}))

	commands, events := startWorker(t, db, "c-general", 8)
	sender := domain.Identity{ID: "u-alice", Name: "Alice"}

	send := func() domain.SendResult {
		reply := make(chan domain.SendResult, 1)
		commands <- domain.SendMessageCommand{
			ConversationID: "c-general",
			Sender:         sender,
			DedupToken:     "token-1",
			Body:           "hello",
			Reply:          reply,
		}
		return <-reply
	}

	// Given a genuine first write
	first := send()
	req.NoError(first.Err)
	req.False(first.Duplicate)
	<-events

	afterFirst, err := conversations.Get("c-general")
	req.NoError(err)
	req.Equal(first.Ack.CreatedAt, afterFirst.LastActivityAt)

	// When the same token is resent
	second := send()
	req.NoError(second.Err)
	req.True(second.Duplicate)
	req.Equal(first.Ack.MessageID, second.Ack.MessageID)

	// Then the activity hint did not move
	afterSecond, err := conversations.Get("c-general")
	req.NoError(err)
	req.Equal(afterFirst.LastActivityAt, afterSecond.LastActivityAt)
}
