package ports

import (
	"context"

	"github.com/aretw0/bower/pkg/domain"
)

// SnapshotStore defines the interface for persisting document snapshots.
// It is what lets a session's document survive the session being discarded.
type SnapshotStore interface {
	// Save persists the snapshot, replacing any previous one for the same
	// session ID.
	Save(ctx context.Context, snap domain.Snapshot) error

	// Load retrieves the snapshot for a session ID.
	// Returns domain.ErrSnapshotNotFound if none exists.
	Load(ctx context.Context, sessionID string) (domain.Snapshot, error)

	// Delete removes the snapshot for a session ID. Deleting an absent
	// snapshot is not an error.
	Delete(ctx context.Context, sessionID string) error

	// List returns the session IDs with a stored snapshot.
	List(ctx context.Context) ([]string, error)
}
