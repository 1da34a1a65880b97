package queue

import (
	"sync"

	"github.com/tjfontaine/polyglot-request-logic/internal/core/domain"
)

// State is the transient processing state of an entry. It exists only while
// the request waits in the pre-request barrier and is never copied into the
// request itself.
type State struct {
	Resolved         bool
	AwaitingContinue bool
	TimedOut         bool
	Cancelled        bool
}

// Entry is the queue slot of one in-flight request.
type Entry struct {
	generation uint64

	mu    sync.Mutex
	req   *domain.Request
	state State

	continueCh chan struct{}
	abortCh    chan struct{}
	abortOnce  sync.Once
	abortErr   error
}

func newEntry(req *domain.Request, generation uint64) *Entry {
	return &Entry{
		generation: generation,
		req:        req.Clone(),
		continueCh: make(chan struct{}, 1),
		abortCh:    make(chan struct{}),
	}
}

// ID returns the request id of the entry.
func (e *Entry) ID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.req.ID
}

// Generation identifies the submission that created the entry.
func (e *Entry) Generation() uint64 {
	return e.generation
}

// Request returns a copy of the latest checkpointed request.
func (e *Entry) Request() *domain.Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.req.Clone()
}

// Checkpoint records req as the entry's current request.
func (e *Entry) Checkpoint(req *domain.Request) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.req = req.Clone()
}

// State returns a copy of the transient state.
func (e *Entry) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Update applies fn to the transient state under the entry lock and returns
// the resulting state.
func (e *Entry) Update(fn func(s *State)) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.state)
	return e.state
}

// ClearState drops the transient state once the barrier has decided.
func (e *Entry) ClearState() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = State{}
}

// RequestContinue signals explicit continuation. It only takes effect while
// the entry awaits it and reports whether the signal was accepted.
func (e *Entry) RequestContinue() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.state.AwaitingContinue {
		return false
	}
	select {
	case e.continueCh <- struct{}{}:
	default:
	}
	return true
}

// ContinueSignal delivers explicit continuation signals.
func (e *Entry) ContinueSignal() <-chan struct{} {
	return e.continueCh
}

// Abort marks the entry cancelled and wakes the barrier waiting on it. Only
// the first call has an effect; it reports whether this call aborted.
func (e *Entry) Abort(err error) bool {
	aborted := false
	e.abortOnce.Do(func() {
		e.mu.Lock()
		e.state.Cancelled = true
		e.abortErr = err
		e.mu.Unlock()
		close(e.abortCh)
		aborted = true
	})
	return aborted
}

// Aborted is closed once Abort was called.
func (e *Entry) Aborted() <-chan struct{} {
	return e.abortCh
}

// AbortErr returns the error passed to Abort.
func (e *Entry) AbortErr() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.abortErr
}
