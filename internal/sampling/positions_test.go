package sampling

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/eigerco/katedas/internal/crypto"
	"github.com/eigerco/katedas/internal/grid"
)

func TestSamplePositions(t *testing.T) {
	dims := grid.Dimensions{Rows: 8, Cols: 16}
	hash := crypto.HashData([]byte("block"))

	a := SamplePositions([]byte("node-a"), hash, dims, 10)
	assert.Len(t, a, 10)
	assert.Equal(t, a, SamplePositions([]byte("node-a"), hash, dims, 10))
	assert.NotEqual(t, a, SamplePositions([]byte("node-b"), hash, dims, 10))

	seen := map[grid.Position]bool{}
	for _, p := range a {
		assert.True(t, dims.Contains(p))
		assert.False(t, seen[p], "duplicate %s", p)
		seen[p] = true
	}
}

func TestSamplePositionsCappedAtGridSize(t *testing.T) {
	dims := grid.Dimensions{Rows: 2, Cols: 4}
	all := SamplePositions(nil, crypto.Hash{}, dims, 100)
	assert.Len(t, all, 8)

	var want []grid.Position
	for r := uint32(0); r < 2; r++ {
		for c := uint32(0); c < 4; c++ {
			want = append(want, grid.Position{Row: r, Col: c})
		}
	}
	assert.Equal(t, want, all)
	assert.Empty(t, SamplePositions(nil, crypto.Hash{}, dims, 0))
}
