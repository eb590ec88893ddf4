package engine

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidAction is returned for an action outside the nine-action domain.
var ErrInvalidAction = errors.New("invalid action")

// Action is one of the nine agent moves, numbered as in the classic keypad
// layout minus one (keypad 5 = Hold = 4).
type Action int

const (
	SouthWest Action = iota // (+1, -1)
	South                   // (+1,  0)
	SouthEast               // (+1, +1)
	West                    // ( 0, -1)
	Hold                    // ( 0,  0)
	East                    // ( 0, +1)
	NorthWest               // (-1, -1)
	North                   // (-1,  0)
	NorthEast               // (-1, +1)
)

// NumActions is the size of the action domain.
const NumActions = 9

var actionDeltas = [NumActions][2]int{
	{1, -1}, {1, 0}, {1, 1},
	{0, -1}, {0, 0}, {0, 1},
	{-1, -1}, {-1, 0}, {-1, 1},
}

var actionNames = [NumActions]string{
	"southwest", "south", "southeast",
	"west", "hold", "east",
	"northwest", "north", "northeast",
}

// Valid reports whether a is in the action domain.
func (a Action) Valid() bool {
	return a >= 0 && a < NumActions
}

// Delta returns the (row, col) displacement of a. It panics on an invalid action;
// callers validate first.
func (a Action) Delta() (dRow, dCol int) {
	d := actionDeltas[a]
	return d[0], d[1]
}

func (a Action) String() string {
	if !a.Valid() {
		return fmt.Sprintf("Action(%d)", int(a))
	}
	return actionNames[a]
}

// Key returns the keypad digit for a.
func (a Action) Key() int {
	return int(a) + 1
}

// Actions returns the whole domain in id order.
func Actions() []Action {
	out := make([]Action, NumActions)
	for i := range out {
		out[i] = Action(i)
	}
	return out
}

// ActionFromKey maps a keypad digit (1-9) to its action.
func ActionFromKey(key int) (Action, error) {
	a := Action(key - 1)
	if !a.Valid() {
		return 0, fmt.Errorf("%w: keypad key %d", ErrInvalidAction, key)
	}
	return a, nil
}

// ParseAction accepts an action id ("0".."8") or a name ("north", "Hold").
func ParseAction(s string) (Action, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		a := Action(n)
		if !a.Valid() {
			return 0, fmt.Errorf("%w: %d", ErrInvalidAction, n)
		}
		return a, nil
	}
	lower := strings.ToLower(s)
	for i, name := range actionNames {
		if name == lower {
			return Action(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidAction, s)
}
