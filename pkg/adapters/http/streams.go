package http

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/bower/pkg/session"
)

// StreamManager fans lifecycle events out to active SSE connections.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[chan<- string]struct{}
}

func NewStreamManager() *StreamManager {
	return &StreamManager{
		subscribers: make(map[chan<- string]struct{}),
	}
}

// Subscribe registers a new consumer. The returned cancel func must be called
// when the consumer goes away.
func (sm *StreamManager) Subscribe() (chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 10)
	sm.subscribers[ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if _, ok := sm.subscribers[ch]; ok {
			delete(sm.subscribers, ch)
			close(ch)
		}
	}
}

// Broadcast delivers msg to every subscriber. Slow consumers with a full
// buffer lose the message rather than stall the lifecycle goroutine.
func (sm *StreamManager) Broadcast(msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers {
		select {
		case ch <- msg:
		default:
			slog.Warn("sse: client buffer full, dropping message")
		}
	}
}

// Events returns lifecycle observers that broadcast each event as a JSON
// payload. Wire the result into the host with bower.WithEvents.
func (sm *StreamManager) Events() session.Events {
	return session.Events{
		SessionCreated: func(id string) {
			sm.broadcastEvent(map[string]any{"event": "session_created", "session_id": id})
		},
		SessionDiscarded: func(id string) {
			sm.broadcastEvent(map[string]any{"event": "session_discarded", "session_id": id})
		},
		SessionRevived: func(id string) {
			sm.broadcastEvent(map[string]any{"event": "session_revived", "session_id": id})
		},
		HookFailed: func(hook string, err error) {
			sm.broadcastEvent(map[string]any{"event": "hook_failed", "hook": hook, "error": err.Error()})
		},
		CleanupCompleted: func(discarded int, elapsed time.Duration) {
			sm.broadcastEvent(map[string]any{
				"event":      "cleanup_completed",
				"discarded":  discarded,
				"elapsed_ms": elapsed.Milliseconds(),
			})
		},
	}
}

func (sm *StreamManager) broadcastEvent(payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Warn("sse: event payload marshal failed", "error", err)
		return
	}
	sm.Broadcast(string(data))
}
