package sampling

import (
	"slices"

	"github.com/eigerco/katedas/internal/crypto"
	"github.com/eigerco/katedas/internal/grid"
)

// SamplePositions picks min(count, dims.Size()) distinct cells of a grid of
// dims. The choice is a pure function of the node key and block hash, so a
// node asks for the same cells on every attempt.
func SamplePositions(nodeKey []byte, hash crypto.Hash, dims grid.Dimensions, count int) []grid.Position {
	size := uint64(dims.Size())
	n := min(uint64(max(count, 0)), size)

	stream := crypto.NewStream(crypto.HashData(nodeKey, hash[:]))

	// partial Fisher-Yates over [0, size), swapped entries kept sparse
	swapped := make(map[uint64]uint64, n)
	at := func(i uint64) uint64 {
		if v, ok := swapped[i]; ok {
			return v
		}
		return i
	}
	out := make([]grid.Position, 0, n)
	cols := uint64(dims.Cols)
	for i := uint64(0); i < n; i++ {
		j := i + stream.Uint64n(size-i)
		vi, vj := at(i), at(j)
		swapped[j] = vi
		swapped[i] = vj
		out = append(out, grid.Position{Row: uint32(vj / cols), Col: uint32(vj % cols)})
	}

	slices.SortFunc(out, comparePositions)
	return out
}
