package recovery

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/katedas/internal/crypto"
	"github.com/eigerco/katedas/internal/grid"
	"github.com/eigerco/katedas/internal/kate"
)

func extendedTestGrid(t *testing.T) (*grid.EvaluationGrid, *grid.EvaluationGrid) {
	t.Helper()
	payloads := []grid.AppPayload{
		{AppID: 1, Data: bytes.Repeat([]byte("abc"), 120)},
		{AppID: 4, Data: bytes.Repeat([]byte{0xfe}, 300)},
	}
	g, err := grid.Build(payloads, 4, 8, 32, crypto.Seed{42})
	require.NoError(t, err)
	require.Equal(t, grid.Dimensions{Rows: 4, Cols: 8}, g.Dims())
	ext, err := grid.Extend(g, 2)
	require.NoError(t, err)
	return g, ext
}

func columnCells(t *testing.T, ext *grid.EvaluationGrid, col int, rows []int) []DataCell {
	t.Helper()
	cells := make([]DataCell, 0, len(rows))
	for _, r := range rows {
		v, ok := ext.Get(r, col)
		require.True(t, ok)
		cells = append(cells, DataCell{Position: grid.Position{Row: uint32(r), Col: uint32(col)}, Data: v})
	}
	return cells
}

func TestReconstructColumnFromHalf(t *testing.T) {
	g, ext := extendedTestGrid(t)
	rowCount := int(ext.Dims().Rows)

	subsets := [][]int{
		{0, 2, 4, 6},
		{1, 3, 5, 7},
		{0, 1, 2, 3},
		{4, 5, 6, 7},
		{0, 3, 5, 6, 7},
	}
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 3; i++ {
		subsets = append(subsets, rng.Perm(rowCount)[:rowCount/2])
	}

	for c := 0; c < int(g.Dims().Cols); c++ {
		want, err := g.Column(c)
		require.NoError(t, err)
		wantExt, err := ext.Column(c)
		require.NoError(t, err)

		for _, rows := range subsets {
			got, err := ReconstructColumn(rowCount, columnCells(t, ext, c, rows))
			require.NoError(t, err)
			assert.Equal(t, want, got, "col %d rows %v", c, rows)

			gotExt, err := ReconstructExtendedColumn(rowCount, columnCells(t, ext, c, rows))
			require.NoError(t, err)
			assert.Equal(t, wantExt, gotExt, "col %d rows %v", c, rows)
		}
	}
}

func TestReconstructBelowThreshold(t *testing.T) {
	_, ext := extendedTestGrid(t)
	rowCount := int(ext.Dims().Rows)
	cells := columnCells(t, ext, 2, []int{0, 3, 6})

	_, err := ReconstructColumn(rowCount, cells)
	assert.ErrorIs(t, err, ErrInsufficientCells)

	// the unchecked core produces a column, just not the right one
	subset := make([]*fr.Element, rowCount)
	for i := range cells {
		subset[cells[i].Position.Row] = &cells[i].Data
	}
	coeffs, err := recoverFromSubset(subset)
	require.NoError(t, err)
	d, err := kate.Domain(uint64(rowCount))
	require.NoError(t, err)
	require.NoError(t, kate.FFT(d, coeffs))

	want, err := ext.Column(2)
	require.NoError(t, err)
	assert.NotEqual(t, want, coeffs)
}

func TestReconstructValidation(t *testing.T) {
	_, ext := extendedTestGrid(t)
	cells := columnCells(t, ext, 1, []int{0, 1, 2, 3})

	mixed := append(columnCells(t, ext, 1, []int{0, 1, 2}), columnCells(t, ext, 2, []int{3})...)
	_, err := ReconstructColumn(8, mixed)
	assert.ErrorIs(t, err, ErrMixedColumns)

	dup := append(columnCells(t, ext, 1, []int{0, 1, 2}), cells[0])
	_, err = ReconstructColumn(8, dup)
	assert.ErrorIs(t, err, ErrDuplicateRow)

	_, err = ReconstructColumn(4, cells[:3])
	require.NoError(t, err)
	_, err = ReconstructColumn(2, cells)
	assert.ErrorIs(t, err, ErrRowOutOfRange)

	_, err = ReconstructColumn(6, cells)
	assert.ErrorIs(t, err, ErrInvalidRowCount)
	_, err = ReconstructColumn(8, nil)
	assert.ErrorIs(t, err, ErrInsufficientCells)
}
