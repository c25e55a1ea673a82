// Package scheduler provides the callback loop backing the session host.
//
// Loop dispatches next-tick, delayed, and periodic callbacks one at a time on
// a single goroutine, so callback code never observes another callback running
// concurrently. Registration is allowed before Start; queued work runs once
// the loop is started.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/eapache/queue"

	"github.com/aretw0/bower/internal/logging"
	"github.com/aretw0/bower/pkg/ports"
)

// ErrStopped is returned when a callback is registered on a stopped loop.
var ErrStopped = errors.New("scheduler stopped")

type callbackKind int

const (
	kindNextTick callbackKind = iota
	kindTimeout
	kindPeriodic
)

// registration tracks one callback from registration to completion or
// cancellation. All fields after fn are guarded by the loop mutex.
type registration struct {
	id        ports.CallbackID
	kind      callbackKind
	fn        func()
	cancelled bool
	timer     *time.Timer   // timeout callbacks
	stop      chan struct{} // periodic runner shutdown
}

// Loop implements ports.Scheduler on a single dispatch goroutine.
type Loop struct {
	log *slog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	pending *queue.Queue // *registration, FIFO of runnable callbacks
	regs    map[ports.CallbackID]*registration
	nextID  ports.CallbackID
	started bool
	stopped bool
	done    chan struct{}
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the logger used for callback panics.
func WithLogger(log *slog.Logger) Option {
	return func(l *Loop) {
		if log != nil {
			l.log = log
		}
	}
}

// NewLoop creates a stopped loop. Call Start to begin dispatching.
func NewLoop(opts ...Option) *Loop {
	l := &Loop{
		log:     logging.NewNop(),
		pending: queue.New(),
		regs:    make(map[ports.CallbackID]*registration),
		done:    make(chan struct{}),
	}
	l.cond = sync.NewCond(&l.mu)
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start launches the dispatch goroutine. Starting twice is a no-op.
func (l *Loop) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started || l.stopped {
		return
	}
	l.started = true
	go l.run()
}

// Stop rejects further registrations and cancels every outstanding callback.
// It then waits for the currently running callback, if any, to finish; the
// wait is bounded by ctx. Stop is idempotent.
func (l *Loop) Stop(ctx context.Context) error {
	l.mu.Lock()
	if !l.stopped {
		l.stopped = true
		l.cancelAllLocked()
		l.cond.Broadcast()
		if !l.started {
			// Dispatcher never ran; nothing to wait for.
			close(l.done)
		}
	}
	l.mu.Unlock()

	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NextTick schedules fn to run as soon as the loop is free.
func (l *Loop) NextTick(fn func()) (ports.CallbackID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return 0, ErrStopped
	}
	reg := l.register(kindNextTick, fn)
	l.pending.Add(reg)
	l.cond.Signal()
	return reg.id, nil
}

// After schedules fn to run once, delay from now.
func (l *Loop) After(delay time.Duration, fn func()) (ports.CallbackID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return 0, ErrStopped
	}
	reg := l.register(kindTimeout, fn)
	reg.timer = time.AfterFunc(delay, func() {
		l.mu.Lock()
		if !reg.cancelled && !l.stopped {
			l.pending.Add(reg)
			l.cond.Signal()
		}
		l.mu.Unlock()
	})
	return reg.id, nil
}

// Every schedules fn to run repeatedly with the given period until cancelled.
func (l *Loop) Every(period time.Duration, fn func()) (ports.CallbackID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return 0, ErrStopped
	}
	reg := l.register(kindPeriodic, fn)
	stop := make(chan struct{})
	reg.stop = stop
	go l.runPeriodic(reg, period, stop)
	return reg.id, nil
}

// Cancel revokes a registration. It reports false if the handle is unknown or
// the callback already ran to completion.
func (l *Loop) Cancel(id ports.CallbackID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	reg, ok := l.regs[id]
	if !ok {
		return false
	}
	l.cancelLocked(reg)
	return true
}

// CancelAll revokes every outstanding registration.
func (l *Loop) CancelAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cancelAllLocked()
}

func (l *Loop) register(kind callbackKind, fn func()) *registration {
	l.nextID++
	reg := &registration{id: l.nextID, kind: kind, fn: fn}
	l.regs[reg.id] = reg
	return reg
}

func (l *Loop) cancelLocked(reg *registration) {
	reg.cancelled = true
	if reg.timer != nil {
		reg.timer.Stop()
	}
	if reg.stop != nil {
		close(reg.stop)
		reg.stop = nil
	}
	delete(l.regs, reg.id)
}

func (l *Loop) cancelAllLocked() {
	for _, reg := range l.regs {
		l.cancelLocked(reg)
	}
}

// runPeriodic owns the ticker for one periodic registration. The stop channel
// is captured at spawn time; cancelLocked nils the struct field afterwards, so
// the runner must not re-read it.
func (l *Loop) runPeriodic(reg *registration, period time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.mu.Lock()
			if reg.cancelled || l.stopped {
				l.mu.Unlock()
				return
			}
			l.pending.Add(reg)
			l.cond.Signal()
			l.mu.Unlock()
		case <-stop:
			return
		}
	}
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		for l.pending.Length() == 0 && !l.stopped {
			l.cond.Wait()
		}
		if l.stopped {
			l.mu.Unlock()
			return
		}
		reg := l.pending.Remove().(*registration)
		if reg.cancelled {
			l.mu.Unlock()
			continue
		}
		if reg.kind != kindPeriodic {
			// One-shot callbacks count as completed once dispatched.
			delete(l.regs, reg.id)
		}
		fn := reg.fn
		l.mu.Unlock()

		l.invoke(reg.id, fn)
	}
}

func (l *Loop) invoke(id ports.CallbackID, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("callback panicked", "callback_id", id, "panic", r)
		}
	}()
	fn()
}
