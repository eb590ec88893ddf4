// Package arena provides the square grid, the entity data model, and the
// seeded arena generator.
//
// Coordinates are (row, col) with row 0 at the top. Row/col 0 and Size-1 form
// an impassable border ring; every interior cell lies in [1, Size-2].
package arena

import (
	"fmt"

	"golang.org/x/exp/constraints"
)

// DefaultSize is the side length of the standard arena.
const DefaultSize = 20

// Position is a cell on the grid.
type Position struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Add returns p displaced by (dRow, dCol).
func (p Position) Add(dRow, dCol int) Position {
	return Position{Row: p.Row + dRow, Col: p.Col + dCol}
}

// String returns "(row,col)".
func (p Position) String() string {
	return fmt.Sprintf("(%d,%d)", p.Row, p.Col)
}

// Chebyshev returns the king-move distance between two cells.
func Chebyshev(a, b Position) int {
	dr := Abs(a.Row - b.Row)
	dc := Abs(a.Col - b.Col)
	if dr > dc {
		return dr
	}
	return dc
}

// OnBorder reports whether p lies on the border ring (or outside the grid)
// of an arena with the given side length.
func OnBorder(p Position, size int) bool {
	return p.Row <= 0 || p.Col <= 0 || p.Row >= size-1 || p.Col >= size-1
}

// InteriorCells returns the number of cells strictly inside the border.
func InteriorCells(size int) int {
	if size < 3 {
		return 0
	}
	return (size - 2) * (size - 2)
}

// Abs returns the absolute value of x.
func Abs[T constraints.Signed](x T) T {
	if x < 0 {
		return -x
	}
	return x
}

// Sign returns -1, 0, or 1.
func Sign[T constraints.Signed](x T) T {
	switch {
	case x < 0:
		return -1
	case x > 0:
		return 1
	default:
		return 0
	}
}
