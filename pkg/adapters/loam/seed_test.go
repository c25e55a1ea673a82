package loam

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/loam"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/bower/internal/logging"
	"github.com/aretw0/bower/internal/testutils"
	"github.com/aretw0/bower/pkg/document"
	"github.com/aretw0/bower/pkg/ports"
)

var _ ports.Application = (*SeedApplication)(nil)

func TestSeedApplication_InitializeDocument(t *testing.T) {
	dir, _ := testutils.SetupSeedRepo(t)

	testutils.WriteSeed(t, dir, "index.md", `---
id: index
title: Dashboard
---
# Welcome`)
	testutils.WriteSeed(t, dir, "weather.md", `---
id: weather
fields:
  unit: celsius
  cities:
    - lisbon
    - porto
---
Current conditions`)

	app, err := NewFromDir(dir, WithLogger(logging.NewNop()))
	require.NoError(t, err)

	doc := document.New()
	require.NoError(t, app.InitializeDocument(doc))

	assert.Equal(t, "Dashboard", doc.Title())
	assert.ElementsMatch(t, []string{"index", "weather"}, doc.Keys())

	v, ok := doc.Get("weather")
	require.True(t, ok)
	entry, ok := v.(map[string]any)
	require.True(t, ok, "seed entry should be a map, got %T", v)
	assert.Equal(t, "Current conditions", entry["content"])
	assert.Equal(t, "celsius", entry["unit"])
	assert.Len(t, entry["cities"], 2)
}

func TestSeedApplication_TitleIsOptional(t *testing.T) {
	dir, _ := testutils.SetupSeedRepo(t)
	testutils.WriteSeed(t, dir, "data.md", `---
id: data
---
plain`)

	app, err := NewFromDir(dir, WithLogger(logging.NewNop()))
	require.NoError(t, err)

	doc := document.New()
	require.NoError(t, app.InitializeDocument(doc))
	assert.Empty(t, doc.Title())
}

func TestSeedApplication_CollisionDetected(t *testing.T) {
	dir, _ := testutils.SetupSeedRepo(t)

	testutils.WriteSeed(t, dir, "foo.md", `---
id: foo
---
Markdown flavor`)
	testutils.WriteSeed(t, dir, "foo.json", `{"id": "foo"}`)

	_, err := NewFromDir(dir, WithLogger(logging.NewNop()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collision detected")
	assert.Contains(t, err.Error(), "foo")
}

func TestSeedApplication_NormalizesIDs(t *testing.T) {
	dir, _ := testutils.SetupSeedRepo(t)

	testutils.WriteSeed(t, dir, "start.md", `---
id: start.md
---
Explicit ID with extension`)
	testutils.WriteSeed(t, dir, "implicit.md", `---
---
ID implied from filename`)

	app, err := NewFromDir(dir, WithLogger(logging.NewNop()))
	require.NoError(t, err)

	ids := app.SeedIDs()
	assert.Contains(t, ids, "start")
	assert.Contains(t, ids, "implicit")
}

func TestSeedApplication_RefreshPicksUpNewSeeds(t *testing.T) {
	dir, _ := testutils.SetupSeedRepo(t)
	testutils.WriteSeed(t, dir, "one.md", `---
id: one
---
first`)

	app, err := NewFromDir(dir, WithLogger(logging.NewNop()))
	require.NoError(t, err)
	assert.Equal(t, []string{"one"}, app.SeedIDs())

	testutils.WriteSeed(t, dir, "two.md", `---
id: two
---
second`)
	require.NoError(t, app.Refresh(context.Background()))
	assert.Equal(t, []string{"one", "two"}, app.SeedIDs())

	doc := document.New()
	require.NoError(t, app.InitializeDocument(doc))
	assert.ElementsMatch(t, []string{"one", "two"}, doc.Keys())
}

func TestSeedApplication_SessionsAreIsolated(t *testing.T) {
	dir, _ := testutils.SetupSeedRepo(t)
	testutils.WriteSeed(t, dir, "prefs.md", `---
id: prefs
fields:
  unit: celsius
---
preferences`)

	app, err := NewFromDir(dir, WithLogger(logging.NewNop()))
	require.NoError(t, err)

	first := document.New()
	require.NoError(t, app.InitializeDocument(first))

	// Mutate the first session's copy of the seed entry.
	v, ok := first.Get("prefs")
	require.True(t, ok)
	v.(map[string]any)["unit"] = "kelvin"

	second := document.New()
	require.NoError(t, app.InitializeDocument(second))

	w, ok := second.Get("prefs")
	require.True(t, ok)
	assert.Equal(t, "celsius", w.(map[string]any)["unit"],
		"a session's edits must not leak into the shared seed set")
}

func TestSeedApplication_WatchRefreshes(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping filesystem watch test in short mode")
	}

	dir, _ := testutils.SetupSeedRepo(t)
	testutils.WriteSeed(t, dir, "base.md", `---
id: base
---
v1`)

	app, err := NewFromDir(dir, WithLogger(logging.NewNop()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := app.Watch(ctx)
	require.NoError(t, err)

	// Give the watcher a moment before producing the change.
	time.Sleep(300 * time.Millisecond)
	testutils.WriteSeed(t, dir, "fresh.md", `---
id: fresh
---
v1`)

	select {
	case _, ok := <-events:
		require.True(t, ok, "watch channel closed unexpectedly")
	case <-time.After(5 * time.Second):
		t.Fatal("no watch event after file change")
	}

	assert.Contains(t, app.SeedIDs(), "fresh")
}

// Guards the typed repository construction path used by New.
func TestSeedApplication_NewOverExistingRepo(t *testing.T) {
	dir, repo := testutils.SetupSeedRepo(t)
	testutils.WriteSeed(t, dir, "solo.md", `---
id: solo
---
alone`)

	app, err := New(loam.NewTypedRepository[SeedMetadata](repo), WithLogger(logging.NewNop()))
	require.NoError(t, err)
	assert.Equal(t, []string{"solo"}, app.SeedIDs())
}
