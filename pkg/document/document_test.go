package document_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/bower/pkg/document"
)

func TestDocument_SetGet(t *testing.T) {
	doc := document.New()

	_, ok := doc.Get("missing")
	assert.False(t, ok)

	doc.Set("greeting", "hello")
	v, ok := doc.Get("greeting")
	require.True(t, ok)
	assert.Equal(t, "hello", v)

	doc.Set("greeting", "hi")
	v, _ = doc.Get("greeting")
	assert.Equal(t, "hi", v)
	assert.Equal(t, 1, doc.Len())
}

func TestDocument_Delete(t *testing.T) {
	doc := document.New()
	doc.Set("a", 1)

	doc.Delete("a")
	_, ok := doc.Get("a")
	assert.False(t, ok)

	rev := doc.Revision()
	doc.Delete("a") // absent, should not bump revision
	assert.Equal(t, rev, doc.Revision())
}

func TestDocument_KeysSorted(t *testing.T) {
	doc := document.New()
	doc.Set("b", 2)
	doc.Set("a", 1)
	doc.Set("c", 3)

	assert.Equal(t, []string{"a", "b", "c"}, doc.Keys())
}

func TestDocument_Revision(t *testing.T) {
	doc := document.New()
	assert.Equal(t, int64(0), doc.Revision())

	doc.Set("k", "v")
	assert.Equal(t, int64(1), doc.Revision())

	doc.SetTitle("report")
	assert.Equal(t, int64(2), doc.Revision())

	doc.SetTitle("report") // unchanged title
	assert.Equal(t, int64(2), doc.Revision())

	doc.Restore(map[string]any{"x": 1})
	assert.Equal(t, int64(3), doc.Revision())
}

func TestDocument_Decode(t *testing.T) {
	type profile struct {
		Name  string `mapstructure:"name"`
		Score int    `mapstructure:"score"`
	}

	doc := document.New()
	doc.Set("profile", map[string]any{"name": "ada", "score": 42})

	var p profile
	require.NoError(t, doc.Decode("profile", &p))
	assert.Equal(t, "ada", p.Name)
	assert.Equal(t, 42, p.Score)

	err := doc.Decode("missing", &p)
	assert.Error(t, err)
}

func TestDocument_SnapshotIsolation(t *testing.T) {
	doc := document.New()
	doc.Set("nested", map[string]any{"count": 1})

	snap := doc.Snapshot()
	snap["nested"].(map[string]any)["count"] = 99

	v, _ := doc.Get("nested")
	assert.Equal(t, 1, v.(map[string]any)["count"])
}

func TestDocument_Restore(t *testing.T) {
	doc := document.New()
	doc.SetTitle("kept")
	doc.Set("old", true)

	state := map[string]any{"fresh": "yes"}
	doc.Restore(state)
	state["fresh"] = "mutated after restore"

	_, ok := doc.Get("old")
	assert.False(t, ok)
	v, ok := doc.Get("fresh")
	require.True(t, ok)
	assert.Equal(t, "yes", v)
	assert.Equal(t, "kept", doc.Title())
}

func TestDocument_ConcurrentAccess(t *testing.T) {
	doc := document.New()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			doc.Set("shared", n)
			doc.Get("shared")
			doc.Keys()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, doc.Len())
	assert.Equal(t, int64(32), doc.Revision())
}
