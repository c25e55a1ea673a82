package session

import (
	"context"
	"sync"

	"github.com/aretw0/bower/pkg/document"
	"github.com/aretw0/bower/pkg/ports"
)

// Context is the per-session handle passed to lifecycle hooks. It exists in
// two states: unattached, while the session is still under construction, and
// attached, once the registry has built the Session. The transition happens
// exactly once and is performed by the registry before any waiting creator
// is released.
type Context struct {
	sessionID string
	server    *ServerContext
	doc       *document.Document

	mu      sync.Mutex
	session *Session
}

var _ ports.SessionContext = (*Context)(nil)

func newContext(sessionID string, server *ServerContext, doc *document.Document) *Context {
	return &Context{
		sessionID: sessionID,
		server:    server,
		doc:       doc,
	}
}

// SessionID returns the identifier the session is being created under.
func (c *Context) SessionID() string {
	return c.sessionID
}

// Server returns the process-wide lifecycle facade.
func (c *Context) Server() ports.ServerContext {
	return c.server
}

// WithDocumentLocked runs action with exclusive mutable access to the session
// document. While the context is unattached the action runs directly: the
// creating hook is the only code that can reach the document, so no lock
// exists to take. Once attached, the action is serialized through the
// session's document lock against every other mutator.
func (c *Context) WithDocumentLocked(ctx context.Context, action func(doc *document.Document) error) error {
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()

	if s == nil {
		return action(c.doc)
	}
	return s.WithDocumentLocked(ctx, action)
}

// Destroyed reports whether the underlying session has been torn down. It is
// always false while the session is under construction.
func (c *Context) Destroyed() bool {
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()

	if s == nil {
		return false
	}
	return s.Destroyed()
}

// attach binds the constructed session to the context. Called exactly once by
// the registry, after the Session is built and before the pending creation
// resolves.
func (c *Context) attach(s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = s
}
