// Package runtime hosts the shared connection registries and the
// orchestrator wiring sessions, workers, and fanout together. It contains
// no business rules of its own.
package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"sync"
)

type Set map[string]struct{}

var _ contract.IPresence = (*Presence)(nil)

// Presence maps an identity to its set of live connection ids. One identity
// may hold multiple concurrent connections (multi-device); it is online iff
// the set is non-empty. Critical sections are short: no I/O happens under
// the lock.
type Presence struct {
	mu    sync.RWMutex
	conns map[domain.UserID]Set
}

func NewPresence() *Presence {
	return &Presence{conns: make(map[domain.UserID]Set)}
}

// Register records a live connection and reports whether it is the
// identity's first one (the offline -> online transition).
func (p *Presence) Register(user domain.UserID, connID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	set, ok := p.conns[user]
	if !ok {
		set = make(Set)
		p.conns[user] = set
	}
	set[connID] = struct{}{}
	return !ok
}

// Remove drops a connection and reports whether the identity went offline.
// Removing an unknown connection is a no-op: teardown may race a failed
// handshake.
func (p *Presence) Remove(user domain.UserID, connID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	set, ok := p.conns[user]
	if !ok {
		return false
	}
	if _, held := set[connID]; !held {
		return false
	}
	delete(set, connID)

	// No empty sets left behind to avoid leaking over time
	if len(set) == 0 {
		delete(p.conns, user)
		return true
	}
	return false
}

func (p *Presence) IsOnline(user domain.UserID) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.conns[user]) > 0
}

func (p *Presence) OnlineIdentities() []domain.UserID {
	p.mu.RLock()
	defer p.mu.RUnlock()

	identities := make([]domain.UserID, 0, len(p.conns))
	for user := range p.conns {
		identities = append(identities, user)
	}
	return identities
}
