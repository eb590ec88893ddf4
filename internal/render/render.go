// Package render turns a GameState into a text grid or a flat cell encoding.
package render

import (
	"strings"

	"github.com/talgya/chase/internal/arena"
)

// Cell codes for the flattened encoding, row-major.
type Cell uint8

const (
	CellEmpty     Cell = 0
	CellBorder    Cell = 1
	CellHazard    Cell = 2
	CellAdversary Cell = 3
	CellAgent     Cell = 4
)

// Glyphs used by Text.
const (
	GlyphHazard    = 'X' // border and interior hazards
	GlyphAdversary = 'R'
	GlyphAgent     = 'A'
	GlyphEmpty     = '.'
)

// Cells returns the Size*Size row-major encoding of s. Overlaps resolve with
// hazards on top of adversaries on top of the agent, so an agent that died on
// a hazard shows as a hazard and a caught agent shows as an adversary.
// Dead adversaries are not drawn.
func Cells(s arena.GameState) []Cell {
	n := s.Size
	cells := make([]Cell, n*n)
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			if arena.OnBorder(arena.Position{Row: r, Col: c}, n) {
				cells[r*n+c] = CellBorder
			}
		}
	}

	set := func(p arena.Position, v Cell) {
		if p.Row < 0 || p.Col < 0 || p.Row >= n || p.Col >= n {
			return
		}
		if cells[p.Row*n+p.Col] == CellBorder {
			return
		}
		cells[p.Row*n+p.Col] = v
	}

	set(s.Agent, CellAgent)
	for _, a := range s.Adversaries {
		if a.Alive {
			set(a.Position, CellAdversary)
		}
	}
	for _, h := range s.Hazards {
		set(h, CellHazard)
	}
	return cells
}

// Encode returns Cells as a string of digits, one per cell.
func Encode(s arena.GameState) string {
	cells := Cells(s)
	var b strings.Builder
	b.Grow(len(cells))
	for _, c := range cells {
		b.WriteByte('0' + byte(c))
	}
	return b.String()
}

// Glyph returns the display character for a cell code.
func Glyph(c Cell) byte {
	switch c {
	case CellBorder, CellHazard:
		return GlyphHazard
	case CellAdversary:
		return GlyphAdversary
	case CellAgent:
		return GlyphAgent
	default:
		return GlyphEmpty
	}
}

// Text renders s as Size lines of glyphs separated by two spaces, with no
// trailing newline.
func Text(s arena.GameState) string {
	cells := Cells(s)
	n := s.Size
	var b strings.Builder
	for r := 0; r < n; r++ {
		if r > 0 {
			b.WriteByte('\n')
		}
		for c := 0; c < n; c++ {
			if c > 0 {
				b.WriteString("  ")
			}
			b.WriteByte(Glyph(cells[r*n+c]))
		}
	}
	return b.String()
}

// Source supplies the canonical state, e.g. an *engine.Episode.
type Source interface {
	CurrentState() (arena.GameState, error)
}

// Current renders the canonical state of src.
func Current(src Source) (string, error) {
	s, err := src.CurrentState()
	if err != nil {
		return "", err
	}
	return Text(s), nil
}
