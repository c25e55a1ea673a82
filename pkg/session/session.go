package session

import (
	"context"
	"sync"
	"time"

	"github.com/aretw0/bower/pkg/document"
)

// Session is a live server-side instance of an application document, bound to
// one client-visible identifier. Sessions are created by the Registry and
// destroyed by its discard path; everything in between goes through the
// document lock.
type Session struct {
	id  string
	doc *document.Document

	// docMu is the document lock. It serializes WithDocumentLocked actions so
	// an action observes and leaves a consistent document with no concurrent
	// writer. It is a distinct mutex from mu: bookkeeping reads must never
	// wait behind a long-running locked action.
	docMu sync.Mutex

	mu                  sync.Mutex
	connections         int
	lastUnsubscribe     time.Time
	expirationRequested bool
	destroyed           bool

	now func() time.Time
}

// Info is a point-in-time snapshot of a session's bookkeeping, used by admin
// surfaces and the cleanup sweep's logging.
type Info struct {
	ID                  string
	Title               string
	Connections         int
	IdleFor             time.Duration
	ExpirationRequested bool
	Destroyed           bool
	DocumentRevision    int64
}

func newSession(id string, doc *document.Document, now func() time.Time) *Session {
	if now == nil {
		now = time.Now
	}
	return &Session{
		id:              id,
		doc:             doc,
		lastUnsubscribe: now(),
		now:             now,
	}
}

// ID returns the identifier the session was created under.
func (s *Session) ID() string {
	return s.id
}

// Document returns the session's document. Mutations outside
// WithDocumentLocked are limited to the document's own per-operation safety;
// compound read-modify-write sections must go through the lock.
func (s *Session) Document() *document.Document {
	return s.doc
}

// Subscribe records a new client connection.
func (s *Session) Subscribe() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connections++
}

// Unsubscribe records a client connection going away and restarts the idle
// clock.
func (s *Session) Unsubscribe() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connections > 0 {
		s.connections--
	}
	s.lastUnsubscribe = s.now()
}

// ConnectionCount returns the number of live client connections.
func (s *Session) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connections
}

// IdleDuration returns the time elapsed since the last unsubscribe (or since
// creation, if no client ever connected).
func (s *Session) IdleDuration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now().Sub(s.lastUnsubscribe)
}

// RequestExpiration marks the session for discard on the next cleanup sweep,
// regardless of how long it has been idle. The session is still only discarded
// once it has no connections.
func (s *Session) RequestExpiration() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expirationRequested = true
}

// ExpirationRequested reports whether RequestExpiration has been called.
func (s *Session) ExpirationRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expirationRequested
}

// Destroyed reports whether the session has been torn down by the registry.
func (s *Session) Destroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}

// WithDocumentLocked runs action with exclusive access to the session
// document. The wait for the lock is not interruptible; ctx is passed through
// for the action's own use.
func (s *Session) WithDocumentLocked(ctx context.Context, action func(doc *document.Document) error) error {
	s.docMu.Lock()
	defer s.docMu.Unlock()
	return action(s.doc)
}

// Info returns a consistent snapshot of the session's bookkeeping.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:                  s.id,
		Title:               s.doc.Title(),
		Connections:         s.connections,
		IdleFor:             s.now().Sub(s.lastUnsubscribe),
		ExpirationRequested: s.expirationRequested,
		Destroyed:           s.destroyed,
		DocumentRevision:    s.doc.Revision(),
	}
}

// idleEligible reports whether the session qualifies for discard: no live
// connections, and either idle past the linger threshold or explicitly marked
// for expiration. A destroyed session is never eligible again.
func (s *Session) idleEligible(linger time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed || s.connections > 0 {
		return false
	}
	return s.now().Sub(s.lastUnsubscribe) > linger || s.expirationRequested
}

// destroy marks the session as torn down. Only the registry's discard path
// calls it, while holding the document lock.
func (s *Session) destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destroyed = true
}
