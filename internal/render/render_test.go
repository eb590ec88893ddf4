package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/chase/internal/arena"
)

func TestText(t *testing.T) {
	s := arena.GameState{
		Size:  5,
		Agent: arena.Position{Row: 3, Col: 1},
		Adversaries: []arena.Adversary{
			{ID: 0, Position: arena.Position{Row: 1, Col: 3}, Alive: true},
			{ID: 1, Position: arena.Position{Row: 2, Col: 2}, Alive: false},
		},
		Hazards: []arena.Position{{Row: 2, Col: 1}},
	}

	want := strings.Join([]string{
		"X  X  X  X  X",
		"X  .  .  R  X",
		"X  X  .  .  X",
		"X  A  .  .  X",
		"X  X  X  X  X",
	}, "\n")
	assert.Equal(t, want, Text(s))
}

func TestEncode(t *testing.T) {
	s := arena.GameState{
		Size:        4,
		Agent:       arena.Position{Row: 1, Col: 1},
		Adversaries: []arena.Adversary{{ID: 0, Position: arena.Position{Row: 2, Col: 2}, Alive: true}},
		Hazards:     []arena.Position{{Row: 1, Col: 2}},
	}
	assert.Equal(t, "1111"+"1421"+"1031"+"1111", Encode(s))
}

func TestOverlapsOnFinalFrame(t *testing.T) {
	// Caught agent, then the same cell turned into a hazard.
	s := arena.GameState{
		Size:        5,
		Agent:       arena.Position{Row: 2, Col: 2},
		Adversaries: []arena.Adversary{{ID: 0, Position: arena.Position{Row: 2, Col: 2}, Alive: true}},
	}
	assert.Equal(t, CellAdversary, Cells(s)[2*5+2])

	s.Hazards = []arena.Position{{Row: 2, Col: 2}}
	assert.Equal(t, CellHazard, Cells(s)[2*5+2])

	// Off-grid or border positions never panic and keep the border glyph.
	s.Agent = arena.Position{Row: 0, Col: -1}
	require.NotPanics(t, func() { Text(s) })
}

func TestGeneratedArenaHasAllGlyphs(t *testing.T) {
	s, err := arena.Generate(arena.DefaultGenConfig())
	require.NoError(t, err)

	text := Text(s)
	assert.Equal(t, 1, strings.Count(text, "A"))
	assert.Equal(t, 5, strings.Count(text, "R"))
	assert.Equal(t, 4*19+10, strings.Count(text, "X"))
	assert.Len(t, strings.Split(text, "\n"), 20)
}

type stubSource struct {
	s   arena.GameState
	err error
}

func (s stubSource) CurrentState() (arena.GameState, error) { return s.s, s.err }

func TestCurrent(t *testing.T) {
	s := arena.GameState{Size: 3, Agent: arena.Position{Row: 1, Col: 1}}
	text, err := Current(stubSource{s: s})
	require.NoError(t, err)
	assert.Equal(t, "X  X  X\nX  A  X\nX  X  X", text)

	_, err = Current(stubSource{err: assert.AnError})
	assert.ErrorIs(t, err, assert.AnError)
}
