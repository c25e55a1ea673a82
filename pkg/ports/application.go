package ports

import (
	"context"
	"time"

	"github.com/aretw0/bower/pkg/document"
)

// Application is the lifecycle hook surface a hosted application supplies to
// the session host. All hooks are optional in spirit: embed NopApplication to
// implement only the ones you need.
//
// OnServerLoaded and OnServerUnloaded must behave synchronously. They run
// before the callback loop starts and immediately before it stops, so there is
// no loop to schedule long-running work against; registrations made after
// unload fail.
//
// OnSessionCreated runs with exclusive access to the brand-new document (no
// lock is needed because no other accessor exists yet) and completes fully,
// including any blocking sub-steps, before the session becomes visible.
// OnSessionDestroyed runs outside the document lock, before teardown
// re-validates that the session is still idle.
//
// Hook errors are logged and absorbed by the registry; they never abort the
// surrounding lifecycle operation. InitializeDocument is not a hook: its error
// aborts session creation and propagates to every waiting caller.
type Application interface {
	OnServerLoaded(sc ServerContext) error
	OnServerUnloaded(sc ServerContext) error
	OnSessionCreated(ctx context.Context, sc SessionContext) error
	OnSessionDestroyed(ctx context.Context, sc SessionContext) error
	InitializeDocument(doc *document.Document) error
}

// ServerContext is the process-wide capability surface exposed to hook code.
// Callback registration returns a handle used for cancellation; removal of an
// unknown handle, or a handle of a different kind, reports false.
type ServerContext interface {
	// Sessions returns a snapshot of the live session contexts. Sessions still
	// under construction are not included.
	Sessions() []SessionContext

	// DevelopMode reports whether the host runs in development mode.
	DevelopMode() bool

	AddNextTickCallback(fn func()) (CallbackID, error)
	RemoveNextTickCallback(id CallbackID) bool

	AddTimeoutCallback(delay time.Duration, fn func()) (CallbackID, error)
	RemoveTimeoutCallback(id CallbackID) bool

	AddPeriodicCallback(period time.Duration, fn func()) (CallbackID, error)
	RemovePeriodicCallback(id CallbackID) bool
}

// SessionContext is the per-session handle passed to lifecycle hooks.
type SessionContext interface {
	// SessionID returns the identifier the session was created under.
	SessionID() string

	// WithDocumentLocked runs action with exclusive mutable access to the
	// session document. During creation the action runs directly; once the
	// session exists the action is serialized against every other document
	// mutator through the session's document lock.
	WithDocumentLocked(ctx context.Context, action func(doc *document.Document) error) error

	// Destroyed reports whether the underlying session has been torn down. It
	// is always false while the session is still under construction.
	Destroyed() bool

	// Server returns the process-wide lifecycle facade.
	Server() ServerContext
}

// NopApplication implements Application with no-op hooks. Embed it to override
// only the hooks an application cares about.
type NopApplication struct{}

func (NopApplication) OnServerLoaded(ServerContext) error                     { return nil }
func (NopApplication) OnServerUnloaded(ServerContext) error                   { return nil }
func (NopApplication) OnSessionCreated(context.Context, SessionContext) error { return nil }
func (NopApplication) OnSessionDestroyed(context.Context, SessionContext) error {
	return nil
}
func (NopApplication) InitializeDocument(*document.Document) error { return nil }

// ApplicationFuncs adapts a struct of optional functions into an Application.
// Nil fields behave as no-ops.
type ApplicationFuncs struct {
	ServerLoaded     func(sc ServerContext) error
	ServerUnloaded   func(sc ServerContext) error
	SessionCreated   func(ctx context.Context, sc SessionContext) error
	SessionDestroyed func(ctx context.Context, sc SessionContext) error
	InitDocument     func(doc *document.Document) error
}

func (a ApplicationFuncs) OnServerLoaded(sc ServerContext) error {
	if a.ServerLoaded == nil {
		return nil
	}
	return a.ServerLoaded(sc)
}

func (a ApplicationFuncs) OnServerUnloaded(sc ServerContext) error {
	if a.ServerUnloaded == nil {
		return nil
	}
	return a.ServerUnloaded(sc)
}

func (a ApplicationFuncs) OnSessionCreated(ctx context.Context, sc SessionContext) error {
	if a.SessionCreated == nil {
		return nil
	}
	return a.SessionCreated(ctx, sc)
}

func (a ApplicationFuncs) OnSessionDestroyed(ctx context.Context, sc SessionContext) error {
	if a.SessionDestroyed == nil {
		return nil
	}
	return a.SessionDestroyed(ctx, sc)
}

func (a ApplicationFuncs) InitializeDocument(doc *document.Document) error {
	if a.InitDocument == nil {
		return nil
	}
	return a.InitDocument(doc)
}
