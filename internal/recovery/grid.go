package recovery

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"

	"github.com/eigerco/katedas/internal/grid"
	"github.com/eigerco/katedas/internal/kate"
)

// ReconstructGrid rebuilds the original grid of dims from cells of its
// extension by a factor of two. Every column needs at least half of its
// extended cells.
func ReconstructGrid(layout grid.Layout, dims grid.Dimensions, cells []DataCell) (*grid.EvaluationGrid, error) {
	rows, cols := int(dims.Rows), int(dims.Cols)
	byColumn := make([][]DataCell, cols)
	for _, c := range cells {
		if int(c.Position.Col) >= cols {
			return nil, fmt.Errorf("%w: %s outside %s", grid.ErrOutOfBounds, c.Position, dims)
		}
		byColumn[c.Position.Col] = append(byColumn[c.Position.Col], c)
	}

	evals := make([]fr.Element, dims.Size())
	for col, known := range byColumn {
		column, err := ReconstructColumn(2*rows, known)
		if err != nil {
			return nil, fmt.Errorf("column %d: %w", col, err)
		}
		for row := range column {
			evals[row*cols+col] = column[row]
		}
	}
	return grid.NewEvaluationGrid(layout, dims, evals)
}

// ReconstructPayloads rebuilds the grid and decodes its application data.
func ReconstructPayloads(layout grid.Layout, dims grid.Dimensions, cells []DataCell) ([]grid.AppPayload, error) {
	g, err := ReconstructGrid(layout, dims, cells)
	if err != nil {
		return nil, err
	}
	return DecodeGrid(g)
}

// CellsFromRows splits encoded rows of an extended grid into cells. rows[i]
// holds the scalars of row indices[i].
func CellsFromRows(indices []int, rows [][]byte, cols int) ([]DataCell, error) {
	if len(indices) != len(rows) {
		return nil, fmt.Errorf("%d row indices for %d rows", len(indices), len(rows))
	}
	cells := make([]DataCell, 0, len(rows)*cols)
	for i, row := range rows {
		if len(row) != cols*kate.ChunkSize {
			return nil, fmt.Errorf("%w: row %d has %d bytes", ErrInvalidLen, indices[i], len(row))
		}
		for col := 0; col < cols; col++ {
			var b kate.ScalarBytes
			copy(b[:], row[col*kate.ChunkSize:])
			v, err := kate.ScalarFromBytes(b)
			if err != nil {
				return nil, fmt.Errorf("row %d col %d: %w", indices[i], col, err)
			}
			cells = append(cells, DataCell{
				Position: grid.Position{Row: uint32(indices[i]), Col: uint32(col)},
				Data:     v,
			})
		}
	}
	return cells, nil
}
