package bower

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/bower/internal/logging"
	"github.com/aretw0/bower/pkg/persistence"
	"github.com/aretw0/bower/pkg/ports"
	"github.com/aretw0/bower/pkg/scheduler"
	"github.com/aretw0/bower/pkg/session"
)

const (
	// DefaultLinger is how long a session may sit without connections before a
	// cleanup sweep discards it.
	DefaultLinger = 15 * time.Second

	// DefaultSweepInterval is the period between automatic cleanup sweeps. It
	// is deliberately not a multiple of DefaultLinger so sweep times drift
	// relative to session activity.
	DefaultSweepInterval = 17 * time.Second

	cleanupLockKey = "bower:cleanup"
	cleanupLockTTL = 30 * time.Second
)

// Host is the high-level entry point for the Bower library. It owns the
// session registry, the callback loop, and the periodic cleanup sweep, and
// exposes the handful of operations embedders and transports need.
type Host struct {
	registry *session.Registry
	sched    ports.Scheduler
	loop     *scheduler.Loop
	log      *slog.Logger

	linger        time.Duration
	sweepInterval time.Duration
	sweepLock     ports.DistributedLocker
	store         ports.SnapshotStore
	clock         func() time.Time
	develop       bool
	events        []session.Events

	mu        sync.Mutex
	loaded    bool
	sweepStop chan struct{}
	sweepDone chan struct{}
}

// Option defines a functional option for configuring the Host.
type Option func(*Host)

// WithLogger sets a custom structured logger for the host and everything it
// builds.
func WithLogger(log *slog.Logger) Option {
	return func(h *Host) {
		if log != nil {
			h.log = log
		}
	}
}

// WithLinger overrides how long sessions may idle before being discarded.
func WithLinger(linger time.Duration) Option {
	return func(h *Host) {
		h.linger = linger
	}
}

// WithSweepInterval overrides the cleanup sweep period. A non-positive value
// disables the automatic sweep; CleanupSessions can still be called directly.
func WithSweepInterval(interval time.Duration) Option {
	return func(h *Host) {
		h.sweepInterval = interval
	}
}

// WithScheduler injects a custom callback scheduler. The caller owns its
// lifecycle; Load and Unload will not start or stop it.
func WithScheduler(sched ports.Scheduler) Option {
	return func(h *Host) {
		h.sched = sched
	}
}

// WithSnapshotStore enables durable sessions: documents are restored from the
// store on creation and saved back when a session is discarded.
func WithSnapshotStore(store ports.SnapshotStore) Option {
	return func(h *Host) {
		h.store = store
	}
}

// WithSweepLock guards the cleanup sweep with a distributed lock, so only one
// replica of a horizontally scaled deployment sweeps at a time.
func WithSweepLock(locker ports.DistributedLocker) Option {
	return func(h *Host) {
		h.sweepLock = locker
	}
}

// WithDevelopMode marks the host as running in development mode. Applications
// can read the flag through the server context.
func WithDevelopMode(develop bool) Option {
	return func(h *Host) {
		h.develop = develop
	}
}

// WithEvents registers lifecycle event observers.
func WithEvents(ev session.Events) Option {
	return func(h *Host) {
		h.events = append(h.events, ev)
	}
}

// WithClock injects the time source used for idle tracking. Intended for
// tests.
func WithClock(now func() time.Time) Option {
	return func(h *Host) {
		h.clock = now
	}
}

// NewSessionID returns a fresh unique session identifier, suitable for
// transports that create sessions on behalf of clients.
func NewSessionID() string {
	return session.GenerateID()
}

// New builds a Host for the given application. The application's hooks drive
// every lifecycle transition; a nil application is rejected rather than
// silently ignored.
func New(app ports.Application, opts ...Option) (*Host, error) {
	if app == nil {
		return nil, fmt.Errorf("application must not be nil")
	}

	h := &Host{
		log:           logging.NewNop(),
		linger:        DefaultLinger,
		sweepInterval: DefaultSweepInterval,
	}
	for _, opt := range opts {
		opt(h)
	}

	if h.store != nil {
		app = persistence.New(app, h.store,
			persistence.WithLogger(h.log),
		)
	}

	if h.sched == nil {
		h.loop = scheduler.NewLoop(scheduler.WithLogger(h.log))
		h.sched = h.loop
	}

	regOpts := []session.Option{
		session.WithLogger(h.log),
		session.WithDevelopMode(h.develop),
	}
	if h.clock != nil {
		regOpts = append(regOpts, session.WithClock(h.clock))
	}
	for _, ev := range h.events {
		regOpts = append(regOpts, session.WithEvents(ev))
	}
	h.registry = session.NewRegistry(app, h.sched, regOpts...)

	return h, nil
}

// Load runs the application's server-loaded hook, starts the callback loop,
// and begins the periodic cleanup sweep. The loaded hook runs to completion
// before any callback dispatches, so applications can register next-tick and
// periodic work from inside it.
func (h *Host) Load() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.loaded {
		return fmt.Errorf("host already loaded")
	}
	h.loaded = true

	h.registry.RunLoadHook()
	if h.loop != nil {
		h.loop.Start()
	}

	if h.sweepInterval > 0 {
		h.sweepStop = make(chan struct{})
		h.sweepDone = make(chan struct{})
		go h.sweep(h.sweepStop, h.sweepDone)
	}
	h.log.Info("host loaded", "linger", h.linger, "sweep_interval", h.sweepInterval)
	return nil
}

// Unload stops the cleanup sweep, runs the server-unloaded hook, cancels all
// callbacks registered through the lifecycle facade, and shuts down the
// callback loop if the host owns it. ctx bounds the wait for in-flight work.
func (h *Host) Unload(ctx context.Context) error {
	h.mu.Lock()
	if !h.loaded {
		h.mu.Unlock()
		return fmt.Errorf("host not loaded")
	}
	h.loaded = false
	stop, done := h.sweepStop, h.sweepDone
	h.sweepStop, h.sweepDone = nil, nil
	h.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}

	h.registry.RunUnloadHook()

	if h.loop != nil {
		if err := h.loop.Stop(ctx); err != nil {
			return fmt.Errorf("stop callback loop: %w", err)
		}
	}
	h.log.Info("host unloaded")
	return nil
}

// CreateSession returns the session for id, creating it if needed. Concurrent
// calls for the same id share one construction.
func (h *Host) CreateSession(ctx context.Context, id string) (*session.Session, error) {
	return h.registry.CreateSession(ctx, id)
}

// GetSession returns an existing session, without creating one.
func (h *Host) GetSession(id string) (*session.Session, error) {
	return h.registry.GetSession(id)
}

// Sessions returns bookkeeping snapshots for every live session.
func (h *Host) Sessions() []session.Info {
	return h.registry.Sessions()
}

// RequestExpiration marks a session for discard on the next sweep.
func (h *Host) RequestExpiration(id string) error {
	return h.registry.RequestExpiration(id)
}

// CleanupSessions runs one cleanup sweep with the configured linger and
// returns how many sessions were discarded.
func (h *Host) CleanupSessions(ctx context.Context) (int, error) {
	return h.registry.CleanupSessions(ctx, h.linger)
}

// ServerContext returns the lifecycle facade handed to application hooks.
func (h *Host) ServerContext() ports.ServerContext {
	return h.registry.ServerContext()
}

// Linger returns the configured idle threshold.
func (h *Host) Linger() time.Duration {
	return h.linger
}

func (h *Host) sweep(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(h.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			h.runSweep()
		}
	}
}

func (h *Host) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), h.sweepInterval)
	defer cancel()

	if h.sweepLock != nil {
		unlock, err := h.sweepLock.Lock(ctx, cleanupLockKey, cleanupLockTTL)
		if err != nil {
			h.log.Debug("cleanup lock unavailable, skipping sweep", "err", err)
			return
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				h.log.Warn("failed to release cleanup lock", "err", err)
			}
		}()
	}

	if _, err := h.registry.CleanupSessions(ctx, h.linger); err != nil {
		h.log.Error("cleanup sweep failed", "err", err)
	}
}
