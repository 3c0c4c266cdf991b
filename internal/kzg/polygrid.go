package kzg

import (
	"slices"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr/fft"

	"github.com/eigerco/katedas/internal/grid"
	"github.com/eigerco/katedas/internal/kate"
)

// PolynomialGrid holds one coefficient vector per grid row, interpolated over
// the column domain.
type PolynomialGrid struct {
	dims   grid.Dimensions
	domain *fft.Domain
	rows   [][]fr.Element
}

// Interpolate turns each row of g into the polynomial taking the row's values
// on the column domain.
func Interpolate(g *grid.EvaluationGrid) (*PolynomialGrid, error) {
	dims := g.Dims()
	d, err := kate.Domain(uint64(dims.Cols))
	if err != nil {
		return nil, err
	}
	rows := make([][]fr.Element, dims.Rows)
	for i := range rows {
		row, err := g.Row(i)
		if err != nil {
			return nil, err
		}
		if err := kate.IFFT(d, row); err != nil {
			return nil, err
		}
		rows[i] = row
	}
	return &PolynomialGrid{dims: dims, domain: d, rows: rows}, nil
}

func (pg *PolynomialGrid) Dims() grid.Dimensions { return pg.dims }

// Row returns a copy of the coefficients of row i.
func (pg *PolynomialGrid) Row(i int) []fr.Element {
	return slices.Clone(pg.rows[i])
}

// Eval evaluates row at the domain point of col.
func (pg *PolynomialGrid) Eval(row, col int) fr.Element {
	return evalPoly(pg.rows[row], kate.Point(pg.domain, uint64(col)))
}
