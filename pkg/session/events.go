package session

import "time"

// Events carries optional registry lifecycle notifications. Nil fields are
// skipped. Consumers must not block: events fire synchronously on the
// goroutine performing the lifecycle operation.
type Events struct {
	// SessionCreated fires after a session is published to the registry.
	SessionCreated func(sessionID string)

	// SessionDiscarded fires after a session is destroyed and removed.
	SessionDiscarded func(sessionID string)

	// SessionRevived fires when a session scheduled for discard came back to
	// life during the destroy hook and was left intact.
	SessionRevived func(sessionID string)

	// HookFailed fires when an application lifecycle hook returns an error or
	// panics. The failure has already been logged and absorbed.
	HookFailed func(hook string, err error)

	// CleanupCompleted fires at the end of every cleanup sweep.
	CleanupCompleted func(discarded int, elapsed time.Duration)
}

func (r *Registry) emitSessionCreated(id string) {
	for _, ev := range r.events {
		if ev.SessionCreated != nil {
			ev.SessionCreated(id)
		}
	}
}

func (r *Registry) emitSessionDiscarded(id string) {
	for _, ev := range r.events {
		if ev.SessionDiscarded != nil {
			ev.SessionDiscarded(id)
		}
	}
}

func (r *Registry) emitSessionRevived(id string) {
	for _, ev := range r.events {
		if ev.SessionRevived != nil {
			ev.SessionRevived(id)
		}
	}
}

func (r *Registry) emitHookFailed(hook string, err error) {
	for _, ev := range r.events {
		if ev.HookFailed != nil {
			ev.HookFailed(hook, err)
		}
	}
}

func (r *Registry) emitCleanupCompleted(discarded int, elapsed time.Duration) {
	for _, ev := range r.events {
		if ev.CleanupCompleted != nil {
			ev.CleanupCompleted(discarded, elapsed)
		}
	}
}
