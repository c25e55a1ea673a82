package ports

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/bower/pkg/domain"
)

// RunSnapshotStoreContract runs a suite of tests to verify that a
// SnapshotStore implementation adheres to the interface contract. Adapter
// test files call it against a freshly constructed store.
func RunSnapshotStoreContract(t *testing.T, store SnapshotStore) {
	ctx := context.Background()
	sessionID := "contract-session-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		snap := domain.Snapshot{
			SessionID: sessionID,
			Title:     "contract",
			State: map[string]any{
				"foo":   "bar",
				"count": 42,
			},
			Revision: 7,
			SavedAt:  time.Now().UTC(),
		}

		err := store.Save(ctx, snap)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, sessionID, loaded.SessionID)
		assert.Equal(t, "contract", loaded.Title)
		assert.Equal(t, "bar", loaded.State["foo"])
		// JSON-backed stores may round numeric types through float64, so only
		// assert presence for the numeric entry.
		assert.NotNil(t, loaded.State["count"])
		assert.Equal(t, int64(7), loaded.Revision)
	})

	t.Run("Save Replaces", func(t *testing.T) {
		first := domain.Snapshot{SessionID: sessionID, State: map[string]any{"v": "old"}}
		second := domain.Snapshot{SessionID: sessionID, State: map[string]any{"v": "new"}}

		require.NoError(t, store.Save(ctx, first))
		require.NoError(t, store.Save(ctx, second))

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, "new", loaded.State["v"])
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrSnapshotNotFound)
	})

	t.Run("Isolation From Caller", func(t *testing.T) {
		state := map[string]any{"mutable": "before"}
		snap := domain.Snapshot{SessionID: sessionID, State: state}
		require.NoError(t, store.Save(ctx, snap))

		// Mutations after Save must not leak into the stored record.
		state["mutable"] = "after"

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, "before", loaded.State["mutable"])
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, domain.Snapshot{SessionID: sessionID, State: map[string]any{}}))

		err := store.Delete(ctx, sessionID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, sessionID)
		assert.ErrorIs(t, err, domain.ErrSnapshotNotFound, "Load after Delete should return ErrSnapshotNotFound")

		// Deleting again must stay quiet.
		assert.NoError(t, store.Delete(ctx, sessionID))
	})

	t.Run("List", func(t *testing.T) {
		id1 := sessionID + "-1"
		id2 := sessionID + "-2"
		require.NoError(t, store.Save(ctx, domain.Snapshot{SessionID: id1, State: map[string]any{}}))
		require.NoError(t, store.Save(ctx, domain.Snapshot{SessionID: id2, State: map[string]any{}}))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, id1)
		assert.Contains(t, ids, id2)

		require.NoError(t, store.Delete(ctx, id1))
		ids, err = store.List(ctx)
		require.NoError(t, err)
		assert.NotContains(t, ids, id1)
	})
}
