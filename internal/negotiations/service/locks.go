package service

import (
	"sync"

	"github.com/google/uuid"
)

// negotiationLocks serializes state machine operations per negotiation.
// Concurrent messages for different negotiations proceed in parallel;
// two for the same one apply in arrival order.
type negotiationLocks struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newNegotiationLocks() *negotiationLocks {
	return &negotiationLocks{entries: make(map[uuid.UUID]*lockEntry)}
}

// Lock acquires the lock for the given negotiation and returns its unlock
// function. Entries are reference counted so the map does not grow without
// bound.
func (l *negotiationLocks) Lock(id uuid.UUID) func() {
	l.mu.Lock()
	entry, ok := l.entries[id]
	if !ok {
		entry = &lockEntry{}
		l.entries[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.entries, id)
		}
		l.mu.Unlock()
	}
}
