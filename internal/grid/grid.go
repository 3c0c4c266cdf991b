// Package grid lays application payloads out as a matrix of BLS12-381 scalars
// and erasure-extends it column wise.
package grid

import (
	"errors"
	"fmt"
	"slices"

	"github.com/ChainSafe/gossamer/pkg/scale"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"

	"github.com/eigerco/katedas/internal/crypto"
	"github.com/eigerco/katedas/internal/kate"
	"github.com/eigerco/katedas/pkg/log"
)

var (
	ErrInvalidChunk = errors.New("chunk does not decode to a scalar")
	ErrOutOfBounds  = errors.New("position out of grid bounds")
)

// EvaluationGrid is a row-major matrix of scalars plus the layout of the data
// it holds. It is never mutated once built.
type EvaluationGrid struct {
	layout Layout
	dims   Dimensions
	evals  []fr.Element
}

// NewEvaluationGrid wraps row-major evals. The slice is owned by the grid.
func NewEvaluationGrid(layout Layout, dims Dimensions, evals []fr.Element) (*EvaluationGrid, error) {
	if len(evals) != dims.Size() {
		return nil, fmt.Errorf("%w: %d values for %s", ErrInvalidDimensions, len(evals), dims)
	}
	return &EvaluationGrid{layout: layout, dims: dims, evals: evals}, nil
}

// Build encodes payloads into a grid. Payloads are stably grouped by AppID,
// each group SCALE encoded as a list of byte strings followed by the padding
// tail marker and split into 31 byte chunks. Cells past the data are filled
// from a ChaCha20 stream keyed by seed.
func Build(payloads []AppPayload, minWidth, maxWidth, maxHeight int, seed crypto.Seed) (*EvaluationGrid, error) {
	sorted := slices.Clone(payloads)
	slices.SortStableFunc(sorted, func(a, b AppPayload) int {
		switch {
		case a.AppID < b.AppID:
			return -1
		case a.AppID > b.AppID:
			return 1
		}
		return 0
	})

	var (
		layout Layout
		evals  []fr.Element
	)
	for start := 0; start < len(sorted); {
		end := start
		group := [][]byte{}
		for end < len(sorted) && sorted[end].AppID == sorted[start].AppID {
			group = append(group, sorted[end].Data)
			end++
		}

		scalars, err := encodeGroup(group)
		if err != nil {
			return nil, fmt.Errorf("app %d: %w", sorted[start].AppID, err)
		}
		layout = append(layout, LayoutEntry{AppID: sorted[start].AppID, Len: uint32(len(scalars))})
		evals = append(evals, scalars...)
		start = end
	}

	dims, err := ComputeDimensions(len(evals), minWidth, maxWidth, maxHeight)
	if err != nil {
		return nil, err
	}

	stream := crypto.NewStream(seed)
	dataLen := len(evals)
	chunk := make([]byte, kate.DataChunkSize)
	for len(evals) < dims.Size() {
		_, _ = stream.Read(chunk)
		e, err := kate.PadToScalar(chunk)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidChunk, err)
		}
		evals = append(evals, e)
	}

	log.Grid.Debug().
		Int("payloads", len(payloads)).
		Int("data_scalars", dataLen).
		Stringer("dims", dims).
		Msg("grid built")

	return &EvaluationGrid{layout: layout, dims: dims, evals: evals}, nil
}

func encodeGroup(group [][]byte) ([]fr.Element, error) {
	encoded, err := scale.Marshal(group)
	if err != nil {
		return nil, fmt.Errorf("encode payloads: %w", err)
	}
	encoded = append(encoded, kate.PaddingTailValue)

	scalars := make([]fr.Element, 0, (len(encoded)+kate.DataChunkSize-1)/kate.DataChunkSize)
	for off := 0; off < len(encoded); off += kate.DataChunkSize {
		e, err := kate.PadToScalar(encoded[off:min(off+kate.DataChunkSize, len(encoded))])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidChunk, err)
		}
		scalars = append(scalars, e)
	}
	return scalars, nil
}

func (g *EvaluationGrid) Dims() Dimensions { return g.dims }
func (g *EvaluationGrid) Layout() Layout   { return g.layout }

// Get returns the scalar at (row, col).
func (g *EvaluationGrid) Get(row, col int) (fr.Element, bool) {
	if row < 0 || col < 0 || row >= int(g.dims.Rows) || col >= int(g.dims.Cols) {
		return fr.Element{}, false
	}
	return g.evals[row*int(g.dims.Cols)+col], true
}

// Row returns a copy of row i.
func (g *EvaluationGrid) Row(i int) ([]fr.Element, error) {
	if i < 0 || i >= int(g.dims.Rows) {
		return nil, fmt.Errorf("%w: row %d of %s", ErrOutOfBounds, i, g.dims)
	}
	cols := int(g.dims.Cols)
	return slices.Clone(g.evals[i*cols : (i+1)*cols]), nil
}

// Column returns a copy of column j.
func (g *EvaluationGrid) Column(j int) ([]fr.Element, error) {
	if j < 0 || j >= int(g.dims.Cols) {
		return nil, fmt.Errorf("%w: column %d of %s", ErrOutOfBounds, j, g.dims)
	}
	col := make([]fr.Element, g.dims.Rows)
	for i := range col {
		col[i] = g.evals[i*int(g.dims.Cols)+j]
	}
	return col, nil
}

// Evals returns a row-major copy of all values.
func (g *EvaluationGrid) Evals() []fr.Element {
	return slices.Clone(g.evals)
}

// FlatBytes is the row-major concatenation of every scalar's encoding.
func (g *EvaluationGrid) FlatBytes() []byte {
	out := make([]byte, 0, len(g.evals)*kate.ChunkSize)
	for i := range g.evals {
		b := kate.ScalarToBytes(&g.evals[i])
		out = append(out, b[:]...)
	}
	return out
}

// RowBytes is the encoding of row i.
func (g *EvaluationGrid) RowBytes(i int) ([]byte, error) {
	row, err := g.Row(i)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(row)*kate.ChunkSize)
	for k := range row {
		b := kate.ScalarToBytes(&row[k])
		out = append(out, b[:]...)
	}
	return out, nil
}

// AppRows lists the rows touched by app's data, in ascending order.
func (g *EvaluationGrid) AppRows(app AppID) []int {
	start, end, ok := g.layout.Range(app)
	if !ok || start == end {
		return nil
	}
	cols := uint32(g.dims.Cols)
	var rows []int
	for r := start / cols; r <= (end-1)/cols; r++ {
		rows = append(rows, int(r))
	}
	return rows
}
