// Package persistence makes sessions durable. It decorates an application so
// that documents are restored from a snapshot store when a session is created
// and saved back when the session is discarded, without the inner application
// knowing either happens.
package persistence

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

// restoreTarget is the handoff between the session-created hook, which knows
// the session id, and document initialization, which only sees the document.
// The context lives exactly as long as one session construction.
type restoreTarget struct {
	sessionID string
	ctx       context.Context
}

// Application wraps an inner application with snapshot save and restore.
type Application struct {
	inner ports.Application
	store ports.SnapshotStore
	log   *slog.Logger
	now   func() time.Time

	mu      sync.Mutex
	pending map[*document.Document]restoreTarget
}

var _ ports.Application = (*Application)(nil)

// Option configures the persistence decorator.
type Option func(*Application)

// WithLogger sets the logger used for snapshot activity.
func WithLogger(log *slog.Logger) Option {
	return func(a *Application) {
		if log != nil {
			a.log = log
		}
	}
}

// WithClock injects the time source stamped onto saved snapshots.
func WithClock(now func() time.Time) Option {
	return func(a *Application) {
		if now != nil {
			a.now = now
		}
	}
}

// New wraps inner so its sessions survive discard through store.
func New(inner ports.Application, store ports.SnapshotStore, opts ...Option) *Application {
	a := &Application{
		inner:   inner,
		store:   store,
		log:     logging.NewNop(),
		now:     time.Now,
		pending: make(map[*document.Document]restoreTarget),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Store returns the underlying snapshot store.
func (a *Application) Store() ports.SnapshotStore {
	return a.store
}

func (a *Application) OnServerLoaded(sc ports.ServerContext) error {
	return a.inner.OnServerLoaded(sc)
}

func (a *Application) OnServerUnloaded(sc ports.ServerContext) error {
	return a.inner.OnServerUnloaded(sc)
}

// OnSessionCreated records which session the document under construction
// belongs to, so InitializeDocument can look up its snapshot, then delegates.
func (a *Application) OnSessionCreated(ctx context.Context, sc ports.SessionContext) error {
	err := sc.WithDocumentLocked(ctx, func(doc *document.Document) error {
		a.mu.Lock()
		defer a.mu.Unlock()
		a.pending[doc] = restoreTarget{sessionID: sc.SessionID(), ctx: ctx}
		return nil
	})
	if err != nil {
		return err
	}
	return a.inner.OnSessionCreated(ctx, sc)
}

// InitializeDocument lets the inner application seed the document first, then
// replaces the seeded state with the stored snapshot if one exists. A missing
// snapshot means a fresh session; any other load failure aborts the creation.
func (a *Application) InitializeDocument(doc *document.Document) error {
	target, tracked := a.take(doc)

	if err := a.inner.InitializeDocument(doc); err != nil {
		return err
	}
	if !tracked {
		return nil
	}

	snap, err := a.store.Load(target.ctx, target.sessionID)
	if errors.Is(err, domain.ErrSnapshotNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("restore session %q: %w", target.sessionID, err)
	}

	if snap.Title != "" {
		doc.SetTitle(snap.Title)
	}
	doc.Restore(snap.State)
	a.log.Debug("restored session from snapshot",
		"session_id", target.sessionID, "saved_at", snap.SavedAt)
	return nil
}

// OnSessionDestroyed saves the document before the session goes away, then
// delegates. A failed save surfaces as a hook failure; the discard itself is
// never blocked on the store.
func (a *Application) OnSessionDestroyed(ctx context.Context, sc ports.SessionContext) error {
	var snap domain.Snapshot
	err := sc.WithDocumentLocked(ctx, func(doc *document.Document) error {
		snap = domain.Snapshot{
			SessionID: sc.SessionID(),
			Title:     doc.Title(),
			State:     doc.Snapshot(),
			Revision:  doc.Revision(),
			SavedAt:   a.now(),
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("snapshot session %q: %w", sc.SessionID(), err)
	}

	var saveErr error
	if err := a.store.Save(ctx, snap); err != nil {
		// The inner hook still runs: it may release resources that must not
		// leak just because the store is unavailable.
		saveErr = fmt.Errorf("save snapshot for session %q: %w", sc.SessionID(), err)
	} else {
		a.log.Debug("saved session snapshot", "session_id", snap.SessionID, "revision", snap.Revision)
	}

	return errors.Join(saveErr, a.inner.OnSessionDestroyed(ctx, sc))
}

// Drop removes the stored snapshot for a session, so the next creation starts
// fresh.
func (a *Application) Drop(ctx context.Context, sessionID string) error {
	return a.store.Delete(ctx, sessionID)
}

func (a *Application) take(doc *document.Document) (restoreTarget, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	target, ok := a.pending[doc]
	if ok {
		delete(a.pending, doc)
	}
	return target, ok
}
