package runtime

import (
	"chat-relay/domain/event"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type countingSink struct {
	consumed int
}

func (s *countingSink) Consume(_ context.Context, _ event.DomainEvent) error {
	s.consumed++
	return nil
}

func TestRouter_SubscribeAndLookup(t *testing.T) {
	req := require.New(t)
	router := NewRouter()
	sinkA := &countingSink{}
	sinkB := &countingSink{}

	// Given two connections in one room and one of them in a second room
	router.Subscribe("c-general", "conn-a", sinkA)
	router.Subscribe("c-general", "conn-b", sinkB)
	router.Subscribe("c-private", "conn-a", sinkA)

	// Then lookups resolve the live sinks per conversation
	req.Len(router.SinksFor("c-general"), 2)
	req.Len(router.SinksFor("c-private"), 1)
	req.Nil(router.SinksFor("c-empty"))

	// And each connection appears exactly once globally
	req.Len(router.AllSinks(), 2)
}

func TestRouter_UnsubscribeRemovesEmptyRooms(t *testing.T) {
	req := require.New(t)
	router := NewRouter()
	router.Subscribe("c-general", "conn-a", &countingSink{})

	router.Unsubscribe("c-general", "conn-a")

	req.Nil(router.SinksFor("c-general"))
}

func TestRouter_UnsubscribeAllIsExactlyOnceSafe(t *testing.T) {
	req := require.New(t)
	router := NewRouter()
	sink := &countingSink{}

	router.Subscribe("c-general", "conn-a", sink)
	router.Subscribe("c-private", "conn-a", sink)
	router.Subscribe("c-general", "conn-b", &countingSink{})

	// When the connection tears down (twice, teardown must be idempotent)
	router.UnsubscribeAll("conn-a")
	router.UnsubscribeAll("conn-a")

	// Then it is gone from every room and the directory
	req.Len(router.SinksFor("c-general"), 1)
	req.Nil(router.SinksFor("c-private"))
	req.Len(router.AllSinks(), 1)
}
