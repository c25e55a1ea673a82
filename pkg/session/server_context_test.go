package session_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/bower/pkg/ports"
	"github.com/aretw0/bower/pkg/scheduler"
	"github.com/aretw0/bower/pkg/session"
)

// newRunningRegistry builds a registry on a started loop for tests that need
// callbacks to actually dispatch.
func newRunningRegistry(t *testing.T, app ports.Application, opts ...session.Option) (*session.Registry, *scheduler.Loop) {
	t.Helper()
	loop := scheduler.NewLoop()
	loop.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = loop.Stop(ctx)
	})
	return session.NewRegistry(app, loop, opts...), loop
}

func waitFired(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestServerContext_NextTickCallback(t *testing.T) {
	reg, _ := newRunningRegistry(t, ports.NopApplication{})
	sc := reg.ServerContext()

	fired := make(chan struct{})
	_, err := sc.AddNextTickCallback(func() { close(fired) })
	require.NoError(t, err)
	waitFired(t, fired, "next-tick callback")
}

func TestServerContext_TimeoutCallback(t *testing.T) {
	reg, _ := newRunningRegistry(t, ports.NopApplication{})
	sc := reg.ServerContext()

	fired := make(chan struct{})
	_, err := sc.AddTimeoutCallback(5*time.Millisecond, func() { close(fired) })
	require.NoError(t, err)
	waitFired(t, fired, "timeout callback")
}

func TestServerContext_PeriodicCallbackStopsOnRemove(t *testing.T) {
	reg, _ := newRunningRegistry(t, ports.NopApplication{})
	sc := reg.ServerContext()

	var ticks atomic.Int32
	third := make(chan struct{})
	id, err := sc.AddPeriodicCallback(2*time.Millisecond, func() {
		if ticks.Add(1) == 3 {
			close(third)
		}
	})
	require.NoError(t, err)
	waitFired(t, third, "third periodic tick")

	assert.True(t, sc.RemovePeriodicCallback(id))
	// Let anything already queued drain, then verify the count is stable.
	time.Sleep(20 * time.Millisecond)
	settled := ticks.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, settled, ticks.Load(), "periodic callback kept firing after removal")
}

func TestServerContext_RemoveRequiresMatchingKind(t *testing.T) {
	reg, _ := newRunningRegistry(t, ports.NopApplication{})
	sc := reg.ServerContext()

	id, err := sc.AddTimeoutCallback(time.Hour, func() {})
	require.NoError(t, err)

	assert.False(t, sc.RemoveNextTickCallback(id))
	assert.False(t, sc.RemovePeriodicCallback(id))
	assert.True(t, sc.RemoveTimeoutCallback(id))
	assert.False(t, sc.RemoveTimeoutCallback(id), "second removal must report false")
}

func TestServerContext_CompletedCallbackCannotBeRemoved(t *testing.T) {
	reg, _ := newRunningRegistry(t, ports.NopApplication{})
	sc := reg.ServerContext()

	fired := make(chan struct{})
	id, err := sc.AddNextTickCallback(func() { close(fired) })
	require.NoError(t, err)
	waitFired(t, fired, "next-tick callback")

	require.Eventually(t, func() bool {
		return !sc.RemoveNextTickCallback(id)
	}, time.Second, time.Millisecond, "completed callback must be forgotten")
}

func TestRegistry_LoadHookRegistersCallbacksBeforeStart(t *testing.T) {
	fired := make(chan struct{})
	app := ports.ApplicationFuncs{
		ServerLoaded: func(sc ports.ServerContext) error {
			_, err := sc.AddNextTickCallback(func() { close(fired) })
			return err
		},
	}

	loop := scheduler.NewLoop()
	reg := session.NewRegistry(app, loop)

	// Load runs before the loop starts; the registration must be accepted and
	// held until dispatch begins.
	reg.RunLoadHook()
	select {
	case <-fired:
		t.Fatal("callback ran before the loop started")
	case <-time.After(10 * time.Millisecond):
	}

	loop.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = loop.Stop(ctx)
	})
	waitFired(t, fired, "load-hook callback after start")
}

func TestRegistry_UnloadHookCancelsOutstandingCallbacks(t *testing.T) {
	var unloads atomic.Int32
	app := ports.ApplicationFuncs{
		ServerUnloaded: func(sc ports.ServerContext) error {
			unloads.Add(1)
			return nil
		},
	}

	loop := scheduler.NewLoop()
	reg := session.NewRegistry(app, loop)
	sc := reg.ServerContext()

	var fired atomic.Int32
	bump := func() { fired.Add(1) }
	_, err := sc.AddNextTickCallback(bump)
	require.NoError(t, err)
	timeoutID, err := sc.AddTimeoutCallback(5*time.Millisecond, bump)
	require.NoError(t, err)
	_, err = sc.AddPeriodicCallback(5*time.Millisecond, bump)
	require.NoError(t, err)

	reg.RunUnloadHook()
	assert.Equal(t, int32(1), unloads.Load())
	assert.False(t, sc.RemoveTimeoutCallback(timeoutID), "unload must have released the handle")

	// Even once dispatch begins, nothing registered before unload may fire.
	loop.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = loop.Stop(ctx)
	})
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, fired.Load())
}

func TestServerContext_DevelopModeAndSessions(t *testing.T) {
	reg, _ := newRunningRegistry(t, ports.NopApplication{}, session.WithDevelopMode(true))
	sc := reg.ServerContext()
	assert.True(t, sc.DevelopMode())

	_, err := reg.CreateSession(context.Background(), "a")
	require.NoError(t, err)
	_, err = reg.CreateSession(context.Background(), "b")
	require.NoError(t, err)

	ctxs := sc.Sessions()
	require.Len(t, ctxs, 2)
	ids := map[string]bool{}
	for _, c := range ctxs {
		ids[c.SessionID()] = true
		assert.True(t, c.Server().DevelopMode(), "session contexts share the server context")
	}
	assert.True(t, ids["a"] && ids["b"])
}
