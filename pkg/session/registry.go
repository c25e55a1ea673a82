package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/bower/internal/logging"
	"github.com/aretw0/bower/pkg/document"
	"github.com/aretw0/bower/pkg/domain"
	"github.com/aretw0/bower/pkg/ports"
)

const (
	hookServerLoaded     = "on_server_loaded"
	hookServerUnloaded   = "on_server_unloaded"
	hookSessionCreated   = "on_session_created"
	hookSessionDestroyed = "on_session_destroyed"
)

// pendingSession is the single-resolution future for an in-flight creation.
// session and err are written once, before done is closed; joiners read them
// only after done.
type pendingSession struct {
	done    chan struct{}
	session *Session
	err     error
}

// Registry owns the session maps and implements single-flight creation,
// lookup, and the idle-discard sweep for one hosted application.
//
// The registry mutex guards only map access. It is never held across hook
// invocation, document-lock acquisition, or waits on an in-flight creation,
// so a slow application hook can never wedge unrelated sessions.
type Registry struct {
	app         ports.Application
	server      *ServerContext
	log         *slog.Logger
	now         func() time.Time
	events      []Events
	developMode bool

	mu       sync.Mutex
	sessions map[string]*Session
	pending  map[string]*pendingSession
	contexts map[string]*Context
}

// Option configures the Registry.
type Option func(*Registry)

// WithLogger configures a logger for registry events.
func WithLogger(log *slog.Logger) Option {
	return func(r *Registry) {
		if log != nil {
			r.log = log
		}
	}
}

// WithClock overrides the registry's time source. Sessions created by the
// registry inherit it for their idle accounting.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithEvents registers lifecycle notifications. The option may be given more
// than once; every registered Events receives every notification.
func WithEvents(ev Events) Option {
	return func(r *Registry) {
		r.events = append(r.events, ev)
	}
}

// WithDevelopMode marks the host as running in development mode. The flag is
// surfaced to hooks through the lifecycle facade.
func WithDevelopMode(develop bool) Option {
	return func(r *Registry) {
		r.developMode = develop
	}
}

// NewRegistry creates a registry for the given application. sched receives
// the callbacks that hooks register through the lifecycle facade; it must be
// non-nil.
func NewRegistry(app ports.Application, sched ports.Scheduler, opts ...Option) *Registry {
	r := &Registry{
		app:      app,
		log:      logging.NewNop(),
		now:      time.Now,
		sessions: make(map[string]*Session),
		pending:  make(map[string]*pendingSession),
		contexts: make(map[string]*Context),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.server = newServerContext(r, sched, r.developMode)
	return r
}

// ServerContext returns the lifecycle facade bound to this registry.
func (r *Registry) ServerContext() *ServerContext {
	return r.server
}

// CreateSession returns the session for id, creating it if needed. Concurrent
// calls for the same id join a single construction and all receive the same
// session. The id must be non-empty.
//
// The creation hook runs with exclusive access to the brand-new document and
// completes fully, including any blocking sub-steps, before the session
// becomes visible to anyone. A hook error is logged and absorbed; an
// InitializeDocument error aborts the creation and propagates to every
// waiting caller.
//
// ctx bounds only this caller's wait when joining an in-flight creation; a
// creation that has started always runs to completion.
func (r *Registry) CreateSession(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, domain.ErrEmptySessionID
	}

	r.mu.Lock()
	if s, ok := r.sessions[id]; ok {
		r.mu.Unlock()
		return s, nil
	}
	if p, ok := r.pending[id]; ok {
		r.mu.Unlock()
		return r.awaitPending(ctx, p)
	}
	// Test-and-set: the absence check and the pending mark happen inside one
	// critical section, so two callers can never both see "absent".
	p := &pendingSession{done: make(chan struct{})}
	r.pending[id] = p
	r.mu.Unlock()

	// Construction runs without the registry lock; the hook and the document
	// initialization may block for arbitrarily long.
	doc := document.New()
	sctx := newContext(id, r.server, doc)

	r.runHookSafely(hookSessionCreated, id, func() error {
		return r.app.OnSessionCreated(ctx, sctx)
	})

	var s *Session
	err := r.app.InitializeDocument(doc)
	if err != nil {
		err = fmt.Errorf("initialize document for session %q: %w", id, err)
	} else {
		s = newSession(id, doc, r.now)
	}

	r.mu.Lock()
	delete(r.pending, id)
	if err == nil {
		// Attach before resolving the future: a joiner must never observe an
		// unattached context.
		sctx.attach(s)
		r.sessions[id] = s
		r.contexts[id] = sctx
	}
	r.mu.Unlock()

	p.session = s
	p.err = err
	close(p.done)

	if err != nil {
		r.log.Error("session creation failed", "session_id", id, "err", err)
		return nil, err
	}
	r.log.Debug("created new session", "session_id", id)
	r.emitSessionCreated(id)
	return s, nil
}

func (r *Registry) awaitPending(ctx context.Context, p *pendingSession) (*Session, error) {
	select {
	case <-p.done:
		return p.session, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GetSession returns the session for id, or ErrSessionNotFound.
func (r *Registry) GetSession(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %q: %w", id, domain.ErrSessionNotFound)
	}
	return s, nil
}

// RequestExpiration marks the session for discard on the next cleanup sweep.
func (r *Registry) RequestExpiration(id string) error {
	s, err := r.GetSession(id)
	if err != nil {
		return err
	}
	s.RequestExpiration()
	return nil
}

// Sessions returns a bookkeeping snapshot of every live session.
func (r *Registry) Sessions() []Info {
	r.mu.Lock()
	live := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		live = append(live, s)
	}
	r.mu.Unlock()

	infos := make([]Info, 0, len(live))
	for _, s := range live {
		infos = append(infos, s.Info())
	}
	return infos
}

// sessionContexts returns the attached contexts for the lifecycle facade.
func (r *Registry) sessionContexts() []ports.SessionContext {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ports.SessionContext, 0, len(r.contexts))
	for _, c := range r.contexts {
		out = append(out, c)
	}
	return out
}

// CleanupSessions discards every session that is idle-eligible: zero
// connections and either idle longer than linger or explicitly marked for
// expiration. Candidates are processed sequentially and re-checked
// immediately before each discard, because hook execution during a prior
// discard may change other sessions' states and time advances during the
// sweep. Returns the number of sessions discarded.
func (r *Registry) CleanupSessions(ctx context.Context, linger time.Duration) (int, error) {
	started := r.now()
	eligible := func(s *Session) bool { return s.idleEligible(linger) }

	r.mu.Lock()
	candidates := make([]*Session, 0)
	for _, s := range r.sessions {
		if eligible(s) {
			candidates = append(candidates, s)
		}
	}
	r.mu.Unlock()

	discarded := 0
	for _, s := range candidates {
		if err := ctx.Err(); err != nil {
			return discarded, err
		}
		if !eligible(s) {
			continue
		}
		ok, err := r.discardSession(ctx, s, eligible)
		if err != nil {
			if errors.Is(err, domain.ErrSessionHasConnections) {
				// A connection attached between the re-check and the discard
				// precondition. Treat it like any other revival.
				r.log.Warn("session connected during cleanup sweep", "session_id", s.ID())
				continue
			}
			return discarded, err
		}
		if ok {
			discarded++
		}
	}

	if discarded > 0 {
		r.log.Debug("cleanup sweep discarded idle sessions", "count", discarded)
	}
	r.emitCleanupCompleted(discarded, r.now().Sub(started))
	return discarded, nil
}

// discardSession tears down one session. The destroy hook runs outside the
// document lock; eligibility is then re-validated under the lock, because the
// hook may have suspended long enough for a new connection to attach or for
// the expiration request to be withdrawn. A session that came back to life is
// left fully intact.
func (r *Registry) discardSession(ctx context.Context, s *Session, eligible func(*Session) bool) (bool, error) {
	if s.ConnectionCount() > 0 {
		err := fmt.Errorf("discard session %q: %w", s.ID(), domain.ErrSessionHasConnections)
		r.log.Error("discard precondition violated", "session_id", s.ID(), "err", err)
		return false, err
	}

	r.mu.Lock()
	sctx, ok := r.contexts[s.ID()]
	r.mu.Unlock()
	if !ok {
		// Already discarded by a concurrent sweep.
		return false, nil
	}

	r.log.Debug("discarding session", "session_id", s.ID(), "idle", s.IdleDuration())

	// Hooks never run while holding the document lock: a hook that takes
	// locked document access itself would deadlock, and hook latency must not
	// extend the lock's critical section.
	r.runHookSafely(hookSessionDestroyed, s.ID(), func() error {
		return r.app.OnSessionDestroyed(ctx, sctx)
	})

	destroyed := false
	err := s.WithDocumentLocked(ctx, func(*document.Document) error {
		if !eligible(s) {
			r.log.Debug("session was scheduled to discard but came back to life", "session_id", s.ID())
			r.emitSessionRevived(s.ID())
			return nil
		}
		s.destroy()
		r.mu.Lock()
		delete(r.sessions, s.ID())
		delete(r.contexts, s.ID())
		r.mu.Unlock()
		destroyed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if destroyed {
		r.emitSessionDiscarded(s.ID())
	}
	return destroyed, nil
}

// RunLoadHook invokes the application's server-loaded hook. It is called
// before the callback loop starts dispatching; the hook must complete its
// work synchronously.
func (r *Registry) RunLoadHook() {
	r.runHookSafely(hookServerLoaded, "", func() error {
		return r.app.OnServerLoaded(r.server)
	})
}

// RunUnloadHook invokes the application's server-unloaded hook and then
// force-cancels every callback registered through the lifecycle facade. It is
// called immediately before the callback loop stops.
func (r *Registry) RunUnloadHook() {
	r.runHookSafely(hookServerUnloaded, "", func() error {
		return r.app.OnServerUnloaded(r.server)
	})
	r.server.removeAllCallbacks()
}

// runHookSafely is the single fail-open wrapper around all four application
// hook call sites. Errors and panics are logged, surfaced as events, and
// otherwise discarded: a broken extension must not break session management.
func (r *Registry) runHookSafely(hook, sessionID string, fn func() error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.reportHookFailure(hook, sessionID, fmt.Errorf("panic: %v", rec))
		}
	}()
	if err := fn(); err != nil {
		r.reportHookFailure(hook, sessionID, err)
	}
}

func (r *Registry) reportHookFailure(hook, sessionID string, err error) {
	if sessionID != "" {
		r.log.Error("lifecycle hook failed", "hook", hook, "session_id", sessionID, "err", err)
	} else {
		r.log.Error("lifecycle hook failed", "hook", hook, "err", err)
	}
	r.emitHookFailed(hook, err)
}
