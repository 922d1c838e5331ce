package vectorindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	dims  int
	calls int
}

func (f *fakeEmbedder) Dimensions() int { return f.dims }

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	v := make([]float32, f.dims)
	for i := range v {
		v[i] = float32(len(text) + i)
	}
	return v, nil
}

func TestUpsertAndSearch(t *testing.T) {
	idx, err := Open(t.TempDir(), 3, &fakeEmbedder{dims: 3}, 0)
	require.NoError(t, err)

	require.NoError(t, idx.Upsert("a", []float32{1, 0, 0}))
	require.NoError(t, idx.Upsert("b", []float32{0, 1, 0}))
	require.NoError(t, idx.Upsert("c", []float32{0.9, 0.1, 0}))

	got, err := idx.Search(context.Background(), []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].FID)
	assert.Equal(t, "c", got[1].FID)
}

// TestUpsert_DimensionMismatchLeavesIndexUntouched grounds §8's
// dimension-mismatch boundary: a malformed write is rejected outright, and
// the index's existing entries are unaffected.
func TestUpsert_DimensionMismatchLeavesIndexUntouched(t *testing.T) {
	idx, err := Open(t.TempDir(), 3, &fakeEmbedder{dims: 3}, 0)
	require.NoError(t, err)
	require.NoError(t, idx.Upsert("a", []float32{1, 0, 0}))

	err = idx.Upsert("a", []float32{1, 0})
	require.Error(t, err)

	got, err := idx.Search(context.Background(), []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].FID)
	assert.InDelta(t, float32(1.0), got[0].Score, 1e-6)
}

func TestSoftDeleteExcludesFromSearch(t *testing.T) {
	idx, err := Open(t.TempDir(), 2, &fakeEmbedder{dims: 2}, 0)
	require.NoError(t, err)
	require.NoError(t, idx.Upsert("a", []float32{1, 0}))
	require.NoError(t, idx.Upsert("b", []float32{0, 1}))

	idx.SoftDelete("a")

	got, err := idx.Search(context.Background(), []float32{1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].FID)
}

func TestNeedsCompactionThresholds(t *testing.T) {
	idx, err := Open(t.TempDir(), 1, &fakeEmbedder{dims: 1}, 0)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		require.NoError(t, idx.Upsert(string(rune('a'+i)), []float32{float32(i)}))
	}
	assert.False(t, idx.NeedsCompaction())

	for i := 0; i < 9; i++ {
		idx.SoftDelete(string(rune('a' + i)))
	}
	assert.False(t, idx.NeedsCompaction(), "9 deletions is below compactionMinSoft=10")

	idx.SoftDelete(string(rune('a' + 9)))
	assert.True(t, idx.NeedsCompaction(), "10 of 20 deleted clears both the min-count and 20%% fraction thresholds")
}

func TestCompactReclaimsSoftDeletes(t *testing.T) {
	idx, err := Open(t.TempDir(), 1, &fakeEmbedder{dims: 1}, 0)
	require.NoError(t, err)
	require.NoError(t, idx.Upsert("a", []float32{1}))
	require.NoError(t, idx.Upsert("b", []float32{2}))
	idx.SoftDelete("a")

	idx.Compact()

	got, err := idx.Search(context.Background(), []float32{2}, 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].FID)
}

func TestEmbedCached(t *testing.T) {
	emb := &fakeEmbedder{dims: 2}
	idx, err := Open(t.TempDir(), 2, emb, 0)
	require.NoError(t, err)

	v1, err := idx.EmbedCached(context.Background(), "k", "hello")
	require.NoError(t, err)
	v2, err := idx.EmbedCached(context.Background(), "k", "hello")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Equal(t, 1, emb.calls, "second call should be served from cache")
}

func TestSaveAndReload(t *testing.T) {
	dir := t.TempDir()
	idx, err := Open(dir, 2, &fakeEmbedder{dims: 2}, 0)
	require.NoError(t, err)
	require.NoError(t, idx.Upsert("a", []float32{1, 0}))
	require.NoError(t, idx.Save())

	reloaded, err := Open(dir, 2, &fakeEmbedder{dims: 2}, 0)
	require.NoError(t, err)

	got, err := reloaded.Search(context.Background(), []float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].FID)
}
