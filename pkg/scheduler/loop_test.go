package scheduler_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/bower/pkg/ports"
	"github.com/aretw0/bower/pkg/scheduler"
)

func waitSignal(t *testing.T, ch <-chan struct{}, msg string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal(msg)
	}
}

func stopLoop(t *testing.T, l *scheduler.Loop) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, l.Stop(ctx))
}

func TestLoop_NextTickRuns(t *testing.T) {
	l := scheduler.NewLoop()
	l.Start()
	defer stopLoop(t, l)

	done := make(chan struct{})
	_, err := l.NextTick(func() { close(done) })
	require.NoError(t, err)

	waitSignal(t, done, "next-tick callback never ran")
}

func TestLoop_QueuesBeforeStart(t *testing.T) {
	l := scheduler.NewLoop()

	done := make(chan struct{})
	_, err := l.NextTick(func() { close(done) })
	require.NoError(t, err)

	// Not started yet: the callback must stay queued.
	select {
	case <-done:
		t.Fatal("callback ran before Start")
	case <-time.After(50 * time.Millisecond):
	}

	l.Start()
	defer stopLoop(t, l)
	waitSignal(t, done, "queued callback never ran after Start")
}

func TestLoop_After(t *testing.T) {
	l := scheduler.NewLoop()
	l.Start()
	defer stopLoop(t, l)

	done := make(chan struct{})
	_, err := l.After(20*time.Millisecond, func() { close(done) })
	require.NoError(t, err)

	waitSignal(t, done, "delayed callback never fired")
}

func TestLoop_CancelTimeout(t *testing.T) {
	l := scheduler.NewLoop()
	l.Start()
	defer stopLoop(t, l)

	id, err := l.After(time.Hour, func() { t.Error("cancelled callback fired") })
	require.NoError(t, err)

	assert.True(t, l.Cancel(id))
	assert.False(t, l.Cancel(id), "second cancel should report false")
}

func TestLoop_CancelAfterCompletion(t *testing.T) {
	l := scheduler.NewLoop()
	l.Start()
	defer stopLoop(t, l)

	done := make(chan struct{})
	id, err := l.NextTick(func() { close(done) })
	require.NoError(t, err)
	waitSignal(t, done, "callback never ran")

	assert.False(t, l.Cancel(id), "completed callback should not be cancellable")
}

func TestLoop_PeriodicSelfCancel(t *testing.T) {
	l := scheduler.NewLoop()
	l.Start()
	defer stopLoop(t, l)

	var (
		mu     sync.Mutex
		count  int
		handle ports.CallbackID
	)
	done := make(chan struct{})

	h, err := l.Every(10*time.Millisecond, func() {
		mu.Lock()
		count++
		c := count
		id := handle
		mu.Unlock()
		if c == 3 {
			assert.True(t, l.Cancel(id))
			close(done)
		}
	})
	require.NoError(t, err)
	mu.Lock()
	handle = h
	mu.Unlock()

	waitSignal(t, done, "periodic callback never reached third run")

	// Give the ticker several more periods; the count must not move.
	time.Sleep(60 * time.Millisecond)
	mu.Lock()
	final := count
	mu.Unlock()
	assert.Equal(t, 3, final)
}

func TestLoop_Serialized(t *testing.T) {
	l := scheduler.NewLoop()
	l.Start()
	defer stopLoop(t, l)

	var active atomic.Int32
	var overlap atomic.Bool
	done := make(chan struct{})

	body := func(last bool) func() {
		return func() {
			if active.Add(1) > 1 {
				overlap.Store(true)
			}
			time.Sleep(10 * time.Millisecond)
			active.Add(-1)
			if last {
				close(done)
			}
		}
	}

	for i := 0; i < 4; i++ {
		_, err := l.NextTick(body(i == 3))
		require.NoError(t, err)
	}

	waitSignal(t, done, "callbacks never drained")
	assert.False(t, overlap.Load(), "two callbacks ran concurrently")
}

func TestLoop_StopRejectsNewWork(t *testing.T) {
	l := scheduler.NewLoop()
	l.Start()
	stopLoop(t, l)

	_, err := l.NextTick(func() {})
	assert.ErrorIs(t, err, scheduler.ErrStopped)
	_, err = l.After(time.Millisecond, func() {})
	assert.ErrorIs(t, err, scheduler.ErrStopped)
	_, err = l.Every(time.Millisecond, func() {})
	assert.ErrorIs(t, err, scheduler.ErrStopped)
}

func TestLoop_StopCancelsOutstanding(t *testing.T) {
	l := scheduler.NewLoop()
	l.Start()

	timeoutID, err := l.After(time.Hour, func() { t.Error("timeout fired after stop") })
	require.NoError(t, err)
	periodicID, err := l.Every(time.Hour, func() { t.Error("periodic fired after stop") })
	require.NoError(t, err)

	stopLoop(t, l)

	assert.False(t, l.Cancel(timeoutID))
	assert.False(t, l.Cancel(periodicID))
}

func TestLoop_StopWithoutStart(t *testing.T) {
	l := scheduler.NewLoop()
	stopLoop(t, l)
	_, err := l.NextTick(func() {})
	assert.ErrorIs(t, err, scheduler.ErrStopped)
}

func TestLoop_RecoversPanic(t *testing.T) {
	l := scheduler.NewLoop()
	l.Start()
	defer stopLoop(t, l)

	_, err := l.NextTick(func() { panic("boom") })
	require.NoError(t, err)

	done := make(chan struct{})
	_, err = l.NextTick(func() { close(done) })
	require.NoError(t, err)

	waitSignal(t, done, "loop did not survive a panicking callback")
}

func TestLoop_CancelAll(t *testing.T) {
	l := scheduler.NewLoop()
	l.Start()
	defer stopLoop(t, l)

	id1, err := l.After(time.Hour, func() {})
	require.NoError(t, err)
	id2, err := l.Every(time.Hour, func() {})
	require.NoError(t, err)

	l.CancelAll()

	assert.False(t, l.Cancel(id1))
	assert.False(t, l.Cancel(id2))
}
