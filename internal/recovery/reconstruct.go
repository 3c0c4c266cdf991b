// Package recovery rebuilds erasure coded columns from a subset of their
// cells and decodes grid data back into application payloads.
package recovery

import (
	"errors"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"

	"github.com/eigerco/katedas/internal/grid"
	"github.com/eigerco/katedas/internal/kate"
	"github.com/eigerco/katedas/pkg/log"
)

var (
	ErrInsufficientCells = errors.New("fewer than half of the column cells")
	ErrMixedColumns      = errors.New("cells from more than one column")
	ErrRowOutOfRange     = errors.New("cell row beyond extended column")
	ErrDuplicateRow      = errors.New("duplicate cell row")
	ErrInvalidRowCount   = errors.New("row count must be an even power of two")
)

// shiftFactor moves evaluation off the domain so the zero polynomial has no
// roots there.
const shiftFactor = 5

// DataCell is one known value of an extended column.
type DataCell struct {
	Position grid.Position
	Data     fr.Element
}

// ReconstructColumn recovers the original column of rowCount/2 values from at
// least half of the cells of its rowCount long extension.
func ReconstructColumn(rowCount int, cells []DataCell) ([]fr.Element, error) {
	coeffs, err := recoverCoefficients(rowCount, cells)
	if err != nil {
		return nil, err
	}
	half, err := kate.Domain(uint64(rowCount / 2))
	if err != nil {
		return nil, err
	}
	out := coeffs[:rowCount/2]
	if err := kate.FFT(half, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ReconstructExtendedColumn recovers all rowCount values of an extended column.
func ReconstructExtendedColumn(rowCount int, cells []DataCell) ([]fr.Element, error) {
	coeffs, err := recoverCoefficients(rowCount, cells)
	if err != nil {
		return nil, err
	}
	full, err := kate.Domain(uint64(rowCount))
	if err != nil {
		return nil, err
	}
	if err := kate.FFT(full, coeffs); err != nil {
		return nil, err
	}
	return coeffs, nil
}

func recoverCoefficients(rowCount int, cells []DataCell) ([]fr.Element, error) {
	if rowCount < 2 || !kate.IsPowerOfTwo(rowCount) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRowCount, rowCount)
	}
	if len(cells) == 0 {
		return nil, fmt.Errorf("%w: none of %d", ErrInsufficientCells, rowCount)
	}

	col := cells[0].Position.Col
	values := make([]*fr.Element, rowCount)
	for i := range cells {
		c := &cells[i]
		if c.Position.Col != col {
			return nil, fmt.Errorf("%w: %d and %d", ErrMixedColumns, col, c.Position.Col)
		}
		if c.Position.Row >= uint32(rowCount) {
			return nil, fmt.Errorf("%w: row %d of %d", ErrRowOutOfRange, c.Position.Row, rowCount)
		}
		if values[c.Position.Row] != nil {
			return nil, fmt.Errorf("%w: row %d", ErrDuplicateRow, c.Position.Row)
		}
		values[c.Position.Row] = &c.Data
	}
	if len(cells) < rowCount/2 {
		return nil, fmt.Errorf("%w: %d of %d", ErrInsufficientCells, len(cells), rowCount)
	}

	coeffs, err := recoverFromSubset(values)
	if err != nil {
		return nil, err
	}
	log.Grid.Debug().
		Uint32("col", col).
		Int("known", len(cells)).
		Int("rows", rowCount).
		Msg("column reconstructed")
	return coeffs, nil
}

// recoverFromSubset returns the coefficients of the polynomial of degree
// < len(subset)/2 taking the known values of subset on the domain. A nil
// entry is a missing value. With fewer than half known the output is
// meaningless.
func recoverFromSubset(subset []*fr.Element) ([]fr.Element, error) {
	n := len(subset)
	d, err := kate.Domain(uint64(n))
	if err != nil {
		return nil, err
	}

	// Z(X) = prod over missing i of (X - w^i)
	zero := make([]fr.Element, n)
	zero[0].SetOne()
	degree := 0
	for i, v := range subset {
		if v != nil {
			continue
		}
		root := kate.Point(d, uint64(i))
		for k := degree + 1; k > 0; k-- {
			var t fr.Element
			t.Mul(&zero[k], &root)
			zero[k].Sub(&zero[k-1], &t)
		}
		zero[0].Mul(&zero[0], &root)
		zero[0].Neg(&zero[0])
		degree++
	}

	zeroEval := append([]fr.Element(nil), zero...)
	if err := kate.FFT(d, zeroEval); err != nil {
		return nil, err
	}

	// (D * Z)(w^i) is known everywhere, zero where D is missing
	withZero := make([]fr.Element, n)
	for i, v := range subset {
		if v != nil {
			withZero[i].Mul(v, &zeroEval[i])
		}
	}
	if err := kate.IFFT(d, withZero); err != nil {
		return nil, err
	}

	var k, kInv fr.Element
	k.SetUint64(shiftFactor)
	kInv.Inverse(&k)
	shift := powers(k, n)
	for i := range withZero {
		withZero[i].Mul(&withZero[i], &shift[i])
		zero[i].Mul(&zero[i], &shift[i])
	}
	if err := kate.FFT(d, withZero); err != nil {
		return nil, err
	}
	if err := kate.FFT(d, zero); err != nil {
		return nil, err
	}

	zeroInv := fr.BatchInvert(zero)
	for i := range withZero {
		withZero[i].Mul(&withZero[i], &zeroInv[i])
	}
	if err := kate.IFFT(d, withZero); err != nil {
		return nil, err
	}

	unshift := powers(kInv, n)
	for i := range withZero {
		withZero[i].Mul(&withZero[i], &unshift[i])
	}
	return withZero, nil
}

// powers returns 1, k, k^2, ... of length n.
func powers(k fr.Element, n int) []fr.Element {
	out := make([]fr.Element, n)
	out[0].SetOne()
	for i := 1; i < n; i++ {
		out[i].Mul(&out[i-1], &k)
	}
	return out
}
