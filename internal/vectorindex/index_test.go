package vectorindex

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T, dim int) *Index {
	t.Helper()
	ix, err := New(dim, filepath.Join(t.TempDir(), "index.snapshot"))
	require.NoError(t, err)
	return ix
}

func TestNew_InvalidDimension(t *testing.T) {
	_, err := New(0, "unused")
	assert.Error(t, err)
	_, err = New(-5, "unused")
	assert.Error(t, err)
}

func TestSearch_SelfNearest(t *testing.T) {
	ix := newTestIndex(t, 3)
	require.NoError(t, ix.Add("a", []float32{1, 0, 0}))
	require.NoError(t, ix.Add("b", []float32{0, 1, 0}))
	require.NoError(t, ix.Add("c", []float32{0, 0, 1}))

	ids, err := ix.Search([]float32{0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Equal(t, "b", ids[0])
}

func TestSearch_EmptyIndex(t *testing.T) {
	ix := newTestIndex(t, 3)

	ids, err := ix.Search([]float32{1, 2, 3}, 5)
	require.NoError(t, err)
	require.NotNil(t, ids)
	assert.Empty(t, ids)
}

func TestSearch_KLargerThanSize(t *testing.T) {
	ix := newTestIndex(t, 2)
	require.NoError(t, ix.Add("only", []float32{1, 1}))

	ids, err := ix.Search([]float32{1, 1}, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"only"}, ids)
}

func TestSearch_TieBreaksByInsertionOrder(t *testing.T) {
	ix := newTestIndex(t, 2)
	// Equidistant from the query.
	require.NoError(t, ix.Add("first", []float32{1, 0}))
	require.NoError(t, ix.Add("second", []float32{-1, 0}))
	require.NoError(t, ix.Add("third", []float32{0, 1}))

	ids, err := ix.Search([]float32{0, 0}, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, ids)
}

func TestSearch_DimensionMismatch(t *testing.T) {
	ix := newTestIndex(t, 3)
	_, err := ix.Search([]float32{1, 2}, 1)
	assert.Error(t, err)
}

func TestAdd_Idempotent(t *testing.T) {
	ix := newTestIndex(t, 2)
	require.NoError(t, ix.Add("dup", []float32{1, 2}))
	require.NoError(t, ix.Add("dup", []float32{3, 4}))

	assert.Equal(t, 1, ix.Size())

	// The second Add must not have replaced the vector.
	ids, err := ix.Search([]float32{1, 2}, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"dup"}, ids)
}

func TestAdd_DimensionMismatch(t *testing.T) {
	ix := newTestIndex(t, 3)
	err := ix.Add("bad", []float32{1, 2})
	assert.Error(t, err)
	assert.Equal(t, 0, ix.Size())
}

func TestAdd_CopiesVector(t *testing.T) {
	ix := newTestIndex(t, 2)
	vec := []float32{5, 5}
	require.NoError(t, ix.Add("a", vec))
	require.NoError(t, ix.Add("b", []float32{0, 0}))

	// Mutating the caller's slice must not affect the index.
	vec[0] = -100
	vec[1] = -100

	ids, err := ix.Search([]float32{5, 5}, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids)
}

func TestSnapshot_Roundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.snapshot")

	ix, err := New(2, path)
	require.NoError(t, err)
	require.NoError(t, ix.Add("a", []float32{1, 0}))
	require.NoError(t, ix.Add("b", []float32{0, 1}))
	require.NoError(t, ix.Snapshot())

	restored, err := New(2, path)
	require.NoError(t, err)
	err = restored.EnsureLoaded(func() ([]Entry, error) {
		return []Entry{
			{ID: "a", Vector: []float32{1, 0}},
			{ID: "b", Vector: []float32{0, 1}},
		}, nil
	})
	require.NoError(t, err)

	assert.Equal(t, 2, restored.Size())
	ids, err := restored.Search([]float32{0, 1}, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids)
}

// A snapshot older than the chunk table must not shadow vectors persisted
// after it was written: loading seeds from disk, then tops up from the store.
func TestEnsureLoaded_TopsUpStaleSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.snapshot")

	ix, err := New(2, path)
	require.NoError(t, err)
	require.NoError(t, ix.Add("a", []float32{1, 0}))
	require.NoError(t, ix.Add("b", []float32{0, 1}))
	require.NoError(t, ix.Snapshot())

	// The store has since gained a third chunk the snapshot never saw.
	restored, err := New(2, path)
	require.NoError(t, err)
	err = restored.EnsureLoaded(func() ([]Entry, error) {
		return []Entry{
			{ID: "a", Vector: []float32{1, 0}},
			{ID: "b", Vector: []float32{0, 1}},
			{ID: "c", Vector: []float32{1, 1}},
		}, nil
	})
	require.NoError(t, err)

	assert.Equal(t, 3, restored.Size())
	ids, err := restored.Search([]float32{1, 1}, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, ids)
}

func TestEnsureLoaded_RebuildsWithoutSnapshot(t *testing.T) {
	ix := newTestIndex(t, 2)

	calls := 0
	err := ix.EnsureLoaded(func() ([]Entry, error) {
		calls++
		return []Entry{
			{ID: "x", Vector: []float32{1, 0}},
			{ID: "y", Vector: []float32{0, 1}},
		}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 2, ix.Size())

	// Second call is a no-op.
	require.NoError(t, ix.EnsureLoaded(func() ([]Entry, error) {
		calls++
		return nil, nil
	}))
	assert.Equal(t, 1, calls)
}

func TestEnsureLoaded_DimensionMismatchFallsBackToRebuild(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.snapshot")

	ix, err := New(2, path)
	require.NoError(t, err)
	require.NoError(t, ix.Add("a", []float32{1, 0}))
	require.NoError(t, ix.Snapshot())

	// A snapshot with the wrong dimension is ignored.
	wider, err := New(3, path)
	require.NoError(t, err)
	err = wider.EnsureLoaded(func() ([]Entry, error) {
		return []Entry{{ID: "z", Vector: []float32{1, 2, 3}}}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, wider.Size())

	ids, err := wider.Search([]float32{1, 2, 3}, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"z"}, ids)
}

func TestSnapshot_SkipsWhenClean(t *testing.T) {
	ix := newTestIndex(t, 2)
	// Nothing added yet, nothing to write.
	require.NoError(t, ix.Snapshot())

	require.NoError(t, ix.Add("a", []float32{1, 0}))
	require.NoError(t, ix.Snapshot())

	// A clean index does not rewrite the file; a second call still succeeds.
	require.NoError(t, ix.Snapshot())
}
