package grid

import "fmt"

// Position of a cell in a grid.
type Position struct {
	Row uint32
	Col uint32
}

func (p Position) String() string {
	return fmt.Sprintf("(%d,%d)", p.Row, p.Col)
}

// Less orders positions row-major.
func (p Position) Less(o Position) bool {
	if p.Row != o.Row {
		return p.Row < o.Row
	}
	return p.Col < o.Col
}

// CellBlock is the half open rectangle [StartX, EndX) x [StartY, EndY), X
// being the column axis.
type CellBlock struct {
	StartX, StartY int
	EndX, EndY     int
}

func (b CellBlock) Width() int  { return b.EndX - b.StartX }
func (b CellBlock) Height() int { return b.EndY - b.StartY }

// MultiproofDims is the number of blocks along each axis when the grid is
// divided towards target. It fails when either side does not divide evenly.
func MultiproofDims(g, target Dimensions) (Dimensions, bool) {
	cols := min(g.Cols, target.Cols)
	rows := min(g.Rows, target.Rows)
	if cols == 0 || rows == 0 || g.Cols%cols != 0 || g.Rows%rows != 0 {
		return Dimensions{}, false
	}
	return Dimensions{Rows: rows, Cols: cols}, true
}

// MultiproofBlock maps the block coordinate (x, y) of the divided grid to the
// cell rectangle it covers.
func MultiproofBlock(x, y int, g, target Dimensions) (CellBlock, bool) {
	mp, ok := MultiproofDims(g, target)
	if !ok {
		return CellBlock{}, false
	}
	if x < 0 || y < 0 || x >= int(mp.Cols) || y >= int(mp.Rows) {
		return CellBlock{}, false
	}
	bw := int(g.Cols / mp.Cols)
	bh := int(g.Rows / mp.Rows)
	return CellBlock{
		StartX: x * bw,
		StartY: y * bh,
		EndX:   (x + 1) * bw,
		EndY:   (y + 1) * bh,
	}, true
}

// BlockOf returns the multiproof block containing cell p.
func BlockOf(p Position, g, target Dimensions) (CellBlock, bool) {
	mp, ok := MultiproofDims(g, target)
	if !ok || !g.Contains(p) {
		return CellBlock{}, false
	}
	bw := g.Cols / mp.Cols
	bh := g.Rows / mp.Rows
	return MultiproofBlock(int(p.Col)/int(bw), int(p.Row)/int(bh), g, target)
}
