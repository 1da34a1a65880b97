// Package queue holds the in-flight request records keyed by request id.
package queue

import (
	"sync"
	"sync/atomic"

	"github.com/tjfontaine/polyglot-request-logic/internal/core/domain"
)

// Queue maps request ids to their in-flight entry. At most one entry exists
// per id; enqueuing an id again replaces the previous entry.
type Queue struct {
	mu         sync.RWMutex
	entries    map[string]*Entry
	generation atomic.Uint64
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{
		entries: make(map[string]*Entry),
	}
}

// Enqueue stores a new entry for req and returns it together with the entry
// it replaced, if any.
func (q *Queue) Enqueue(req *domain.Request) (entry, previous *Entry) {
	entry = newEntry(req, q.generation.Add(1))

	q.mu.Lock()
	defer q.mu.Unlock()

	previous = q.entries[req.ID]
	q.entries[req.ID] = entry
	return entry, previous
}

// Lookup returns the entry stored for id.
func (q *Queue) Lookup(id string) (*Entry, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	e, ok := q.entries[id]
	return e, ok
}

// Current reports whether e is still the entry stored for id.
func (q *Queue) Current(id string, e *Entry) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return q.entries[id] == e
}

// Remove deletes the entry for id if it is e. It reports whether e was
// removed, which happens at most once per entry.
func (q *Queue) Remove(id string, e *Entry) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.entries[id] != e {
		return false
	}
	delete(q.entries, id)
	return true
}

// Len returns the number of in-flight entries.
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return len(q.entries)
}

// Entries returns the in-flight entries in no particular order.
func (q *Queue) Entries() []*Entry {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]*Entry, 0, len(q.entries))
	for _, e := range q.entries {
		out = append(out, e)
	}
	return out
}
