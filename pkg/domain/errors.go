package domain

import "errors"

// ErrEmptySessionID is returned when an operation is attempted with an empty
// session identifier.
var ErrEmptySessionID = errors.New("session id must not be empty")

// ErrSessionNotFound is returned when a session ID cannot be found in the registry.
var ErrSessionNotFound = errors.New("session not found")

// ErrSnapshotNotFound is returned when a store holds no snapshot for a session ID.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// ErrSessionHasConnections is returned when a session with live connections is
// handed to the discard path. This indicates a defect in the caller, which is
// required to check eligibility first; it is never absorbed silently.
var ErrSessionHasConnections = errors.New("session has active connections")
