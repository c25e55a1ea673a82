package ports

import "time"

// CallbackID identifies a registered callback. Handles are never reused within
// a scheduler's lifetime.
type CallbackID uint64

// Scheduler accepts callback registrations from the session host. Callbacks
// run one at a time; implementations must never execute two callbacks
// concurrently.
type Scheduler interface {
	// NextTick schedules fn to run as soon as the loop is free.
	NextTick(fn func()) (CallbackID, error)

	// After schedules fn to run once, delay from now.
	After(delay time.Duration, fn func()) (CallbackID, error)

	// Every schedules fn to run repeatedly with the given period until the
	// returned handle is cancelled.
	Every(period time.Duration, fn func()) (CallbackID, error)

	// Cancel revokes a registration. It reports false if the handle is
	// unknown or the callback already ran to completion. Cancelling a
	// periodic callback from inside its own execution is allowed.
	Cancel(id CallbackID) bool

	// CancelAll revokes every outstanding registration.
	CancelAll()
}
