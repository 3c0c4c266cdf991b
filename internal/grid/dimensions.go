package grid

import (
	"errors"
	"fmt"

	"github.com/eigerco/katedas/internal/kate"
)

var (
	ErrBlockTooBig       = errors.New("block too big for max grid height")
	ErrInvalidDimensions = errors.New("invalid grid dimensions")
)

// Dimensions of an evaluation grid. Both sides are non-zero.
type Dimensions struct {
	Rows uint16
	Cols uint16
}

func NewDimensions(rows, cols int) (Dimensions, error) {
	if rows <= 0 || cols <= 0 || rows > 0xffff || cols > 0xffff {
		return Dimensions{}, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, rows, cols)
	}
	return Dimensions{Rows: uint16(rows), Cols: uint16(cols)}, nil
}

func (d Dimensions) Size() int {
	return int(d.Rows) * int(d.Cols)
}

// Validate checks that both sides are non-zero powers of two, as every
// grid built by ComputeDimensions is.
func (d Dimensions) Validate() error {
	if !kate.IsPowerOfTwo(int(d.Rows)) || !kate.IsPowerOfTwo(int(d.Cols)) {
		return fmt.Errorf("%w: %s", ErrInvalidDimensions, d)
	}
	return nil
}

// Extended returns the dimensions after erasure extension by rowFactor. It
// fails when the extended height does not fit the row index.
func (d Dimensions) Extended(rowFactor int) (Dimensions, error) {
	if rowFactor < 1 {
		return Dimensions{}, fmt.Errorf("%w: row factor %d", ErrInvalidDimensions, rowFactor)
	}
	return NewDimensions(int(d.Rows)*rowFactor, int(d.Cols))
}

// Contains reports whether p is inside the grid.
func (d Dimensions) Contains(p Position) bool {
	return p.Row < uint32(d.Rows) && p.Col < uint32(d.Cols)
}

func (d Dimensions) String() string {
	return fmt.Sprintf("%dx%d", d.Rows, d.Cols)
}

// ComputeDimensions picks the grid shape able to hold n scalars. A block that
// fits in less than one full row gets a single row rounded up to a power of
// two, otherwise the grid is maxWidth wide with a power of two row count.
func ComputeDimensions(n, minWidth, maxWidth, maxHeight int) (Dimensions, error) {
	if minWidth <= 0 || maxWidth < minWidth || maxHeight <= 0 {
		return Dimensions{}, fmt.Errorf("%w: width bounds %d..%d, height %d", ErrInvalidDimensions, minWidth, maxWidth, maxHeight)
	}
	if n < maxWidth {
		return NewDimensions(1, max(kate.NextPowerOfTwo(n), minWidth))
	}

	rows := kate.NextPowerOfTwo((n + maxWidth - 1) / maxWidth)
	if rows > maxHeight {
		return Dimensions{}, fmt.Errorf("%w: %d rows needed, max %d", ErrBlockTooBig, rows, maxHeight)
	}
	return NewDimensions(rows, maxWidth)
}
