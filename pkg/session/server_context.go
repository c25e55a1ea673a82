package session

import (
	"sync"
	"time"

	"github.com/aretw0/bower/pkg/ports"
)

type callbackKind int

const (
	nextTickCallback callbackKind = iota
	timeoutCallback
	periodicCallback
)

// ServerContext is the process-wide capability surface handed to lifecycle
// hooks. It forwards callback registration to the scheduler, remembers every
// handle it issued so the unload path can cancel them all, and exposes a
// read-only snapshot of live sessions.
type ServerContext struct {
	registry *Registry
	sched    ports.Scheduler
	develop  bool

	mu    sync.Mutex
	owned map[ports.CallbackID]callbackKind
}

var _ ports.ServerContext = (*ServerContext)(nil)

func newServerContext(registry *Registry, sched ports.Scheduler, develop bool) *ServerContext {
	return &ServerContext{
		registry: registry,
		sched:    sched,
		develop:  develop,
		owned:    make(map[ports.CallbackID]callbackKind),
	}
}

// Sessions returns a snapshot of the live session contexts. Sessions still
// under construction are not included.
func (c *ServerContext) Sessions() []ports.SessionContext {
	return c.registry.sessionContexts()
}

// DevelopMode reports whether the host runs in development mode.
func (c *ServerContext) DevelopMode() bool {
	return c.develop
}

// AddNextTickCallback schedules fn to run as soon as the callback loop is
// free.
func (c *ServerContext) AddNextTickCallback(fn func()) (ports.CallbackID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	holder := new(ports.CallbackID)
	id, err := c.sched.NextTick(func() {
		fn()
		c.forget(holder)
	})
	if err != nil {
		return 0, err
	}
	*holder = id
	c.owned[id] = nextTickCallback
	return id, nil
}

// RemoveNextTickCallback cancels a next-tick registration. It reports false if
// the handle is unknown, of a different kind, or already ran.
func (c *ServerContext) RemoveNextTickCallback(id ports.CallbackID) bool {
	return c.remove(id, nextTickCallback)
}

// AddTimeoutCallback schedules fn to run once, delay from now.
func (c *ServerContext) AddTimeoutCallback(delay time.Duration, fn func()) (ports.CallbackID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	holder := new(ports.CallbackID)
	id, err := c.sched.After(delay, func() {
		fn()
		c.forget(holder)
	})
	if err != nil {
		return 0, err
	}
	*holder = id
	c.owned[id] = timeoutCallback
	return id, nil
}

// RemoveTimeoutCallback cancels a timeout registration. It reports false if
// the handle is unknown, of a different kind, or already fired.
func (c *ServerContext) RemoveTimeoutCallback(id ports.CallbackID) bool {
	return c.remove(id, timeoutCallback)
}

// AddPeriodicCallback schedules fn to run repeatedly with the given period
// until removed.
func (c *ServerContext) AddPeriodicCallback(period time.Duration, fn func()) (ports.CallbackID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id, err := c.sched.Every(period, fn)
	if err != nil {
		return 0, err
	}
	c.owned[id] = periodicCallback
	return id, nil
}

// RemovePeriodicCallback cancels a periodic registration. Removal from inside
// the callback's own execution is allowed.
func (c *ServerContext) RemovePeriodicCallback(id ports.CallbackID) bool {
	return c.remove(id, periodicCallback)
}

func (c *ServerContext) remove(id ports.CallbackID, kind callbackKind) bool {
	c.mu.Lock()
	k, ok := c.owned[id]
	if !ok || k != kind {
		c.mu.Unlock()
		return false
	}
	delete(c.owned, id)
	c.mu.Unlock()

	return c.sched.Cancel(id)
}

// forget drops a completed one-shot handle. The holder is dereferenced under
// the mutex so a callback firing immediately still observes the handle the
// registration wrote.
func (c *ServerContext) forget(holder *ports.CallbackID) {
	c.mu.Lock()
	delete(c.owned, *holder)
	c.mu.Unlock()
}

// removeAllCallbacks force-cancels every callback registered through this
// facade. The unload path calls it so nothing fires after the application is
// gone.
func (c *ServerContext) removeAllCallbacks() {
	c.mu.Lock()
	ids := make([]ports.CallbackID, 0, len(c.owned))
	for id := range c.owned {
		ids = append(ids, id)
	}
	c.owned = make(map[ports.CallbackID]callbackKind)
	c.mu.Unlock()

	for _, id := range ids {
		c.sched.Cancel(id)
	}
}
