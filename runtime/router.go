package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"sync"
)

var _ contract.IRouter = (*Router)(nil)

// Router is the conversation -> subscriber cache used by fanout. It is never
// authoritative for membership (that lives externally); it is refreshed at
// connect and on explicit join/leave signals.
//
// It performs a two-step lookup: room membership holds connection ids, and
// the sink directory resolves those ids to live sinks. A connection
// subscribed to many conversations is still managed in a single place.
type Router struct {
	mu    sync.RWMutex
	sinks map[string]contract.EventSink                 // connID -> sink
	rooms map[domain.ConversationID]Set                 // conversation -> connIDs
	conns map[string]map[domain.ConversationID]struct{} // connID -> conversations
}

func NewRouter() *Router {
	return &Router{
		sinks: make(map[string]contract.EventSink),
		rooms: make(map[domain.ConversationID]Set),
		conns: make(map[string]map[domain.ConversationID]struct{}),
	}
}

func (r *Router) Subscribe(conversationID domain.ConversationID, connID string, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sinks[connID] = sink

	if _, ok := r.rooms[conversationID]; !ok {
		r.rooms[conversationID] = make(Set)
	}
	r.rooms[conversationID][connID] = struct{}{}

	if _, ok := r.conns[connID]; !ok {
		r.conns[connID] = make(map[domain.ConversationID]struct{})
	}
	r.conns[connID][conversationID] = struct{}{}
}

func (r *Router) Unsubscribe(conversationID domain.ConversationID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unsubscribeLocked(conversationID, connID)
}

// UnsubscribeAll detaches a connection from every conversation and drops its
// sink. Safe to call more than once; teardown must be exactly-once in
// effect regardless of events in flight.
func (r *Router) UnsubscribeAll(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for conversationID := range r.conns[connID] {
		r.unsubscribeLocked(conversationID, connID)
	}
	delete(r.sinks, connID)
	delete(r.conns, connID)
}

func (r *Router) unsubscribeLocked(conversationID domain.ConversationID, connID string) {
	if members, ok := r.rooms[conversationID]; ok {
		delete(members, connID)
		// If no one is left in the room, remove the room entry entirely
		if len(members) == 0 {
			delete(r.rooms, conversationID)
		}
	}
	if convs, ok := r.conns[connID]; ok {
		delete(convs, conversationID)
	}
}

// SinksFor retrieves all active sinks subscribed to a conversation.
// Returns nil if the conversation has no live subscribers.
func (r *Router) SinksFor(conversationID domain.ConversationID) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.rooms[conversationID]
	if !ok {
		return nil
	}
	var activeSinks []contract.EventSink
	for connID := range members {
		if sink, exists := r.sinks[connID]; exists {
			activeSinks = append(activeSinks, sink)
		}
	}
	return activeSinks
}

// AllSinks returns every live sink once, for globally-scoped events.
func (r *Router) AllSinks() []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sinks := make([]contract.EventSink, 0, len(r.sinks))
	for _, sink := range r.sinks {
		sinks = append(sinks, sink)
	}
	return sinks
}
