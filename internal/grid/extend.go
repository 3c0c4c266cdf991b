package grid

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"

	"github.com/eigerco/katedas/internal/kate"
)

// Extend erasure codes every column of g, returning a grid rowFactor times
// taller. The original grid is left untouched. The result is systematic: the
// first Rows coefficients of each extended column are those of the original
// column and the rest are zero.
func Extend(g *EvaluationGrid, rowFactor int) (*EvaluationGrid, error) {
	if !kate.IsPowerOfTwo(rowFactor) {
		return nil, fmt.Errorf("%w: row factor %d", kate.ErrDomainSizeInvalid, rowFactor)
	}
	rows := int(g.dims.Rows)
	cols := int(g.dims.Cols)
	extRows := rows * rowFactor
	if extRows > 0xffff {
		return nil, fmt.Errorf("%w: %d extended rows", kate.ErrDomainSizeInvalid, extRows)
	}

	small, err := kate.Domain(uint64(rows))
	if err != nil {
		return nil, err
	}
	large, err := kate.Domain(uint64(extRows))
	if err != nil {
		return nil, err
	}

	out := make([]fr.Element, extRows*cols)
	column := make([]fr.Element, extRows)
	for j := 0; j < cols; j++ {
		for i := 0; i < rows; i++ {
			column[i] = g.evals[i*cols+j]
		}
		if err := kate.IFFT(small, column[:rows]); err != nil {
			return nil, err
		}
		for i := rows; i < extRows; i++ {
			column[i].SetZero()
		}
		if err := kate.FFT(large, column); err != nil {
			return nil, err
		}
		for i := 0; i < extRows; i++ {
			out[i*cols+j] = column[i]
		}
	}

	return &EvaluationGrid{
		layout: g.layout,
		dims:   Dimensions{Rows: uint16(extRows), Cols: g.dims.Cols},
		evals:  out,
	}, nil
}
