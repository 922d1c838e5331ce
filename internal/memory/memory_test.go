package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFuseRRF_Bounds checks §8's RRF invariant: every normalized score lands
// in [0,1], and a candidate present in both rankings outscores one present
// in only a single ranking.
func TestFuseRRF_Bounds(t *testing.T) {
	vector := []string{"a", "b", "c"}
	keyword := []string{"b", "d", "a"}

	out := fuseRRF(vector, keyword, 60)
	require.NotEmpty(t, out)

	byFID := map[string]float64{}
	for _, c := range out {
		byFID[c.FID] = c.RRFScore
		assert.GreaterOrEqual(t, c.RRFScore, 0.0)
		assert.LessOrEqual(t, c.RRFScore, 1.0)
	}

	// "a" and "b" appear in both lists; "c" and "d" appear in only one.
	assert.Greater(t, byFID["a"], byFID["c"])
	assert.Greater(t, byFID["b"], byFID["d"])
}

func TestFuseRRF_RanksPreserved(t *testing.T) {
	vector := []string{"x", "y"}
	keyword := []string(nil)

	out := fuseRRF(vector, keyword, 60)
	require.Len(t, out, 2)
	for _, c := range out {
		if c.FID == "x" {
			assert.Equal(t, 0, c.VectorRank)
			assert.Equal(t, -1, c.KeywordRank)
		}
		if c.FID == "y" {
			assert.Equal(t, 1, c.VectorRank)
			assert.Equal(t, -1, c.KeywordRank)
		}
	}
	// x ranked above y in the vector list, so it must score at least as high.
	assert.GreaterOrEqual(t, out[0].RRFScore, out[1].RRFScore)
}

func TestFuseRRF_Empty(t *testing.T) {
	out := fuseRRF(nil, nil, 60)
	assert.Empty(t, out)
}
