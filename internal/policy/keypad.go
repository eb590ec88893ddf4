package policy

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/talgya/chase/internal/arena"
	"github.com/talgya/chase/internal/engine"
	"github.com/talgya/chase/internal/render"
)

// ErrQuit is returned when the player asks to stop.
var ErrQuit = errors.New("player quit")

const keypadHelp = "7 8 9\n4 5 6   5 = hold, q = quit\n1 2 3"

// Keypad reads one move per line from a reader, laid out like a numeric
// keypad (8 is north, 5 holds). Action names are accepted too.
type Keypad struct {
	in  *bufio.Scanner
	out io.Writer
}

func NewKeypad(in io.Reader, out io.Writer) *Keypad {
	return &Keypad{in: bufio.NewScanner(in), out: out}
}

func (*Keypad) Name() string { return "keypad" }

// Act draws the arena, then prompts until it reads a valid move. Input
// running out returns io.EOF.
func (k *Keypad) Act(ctx context.Context, s arena.GameState, _ engine.Projector) (engine.Action, error) {
	fmt.Fprintf(k.out, "%s\n%s\n", render.Text(s), keypadHelp)
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		fmt.Fprint(k.out, "move> ")
		if !k.in.Scan() {
			if err := k.in.Err(); err != nil {
				return 0, err
			}
			return 0, io.EOF
		}

		a, err := parseKey(k.in.Text())
		if errors.Is(err, ErrQuit) {
			return 0, err
		}
		if err != nil {
			fmt.Fprintf(k.out, "%v\n", err)
			continue
		}
		fmt.Fprintf(k.out, "%s (%d)\n", a, a.Key())
		return a, nil
	}
}

func parseKey(line string) (engine.Action, error) {
	line = strings.TrimSpace(line)
	switch strings.ToLower(line) {
	case "q", "quit", "exit":
		return 0, ErrQuit
	}
	if key, err := strconv.Atoi(line); err == nil {
		return engine.ActionFromKey(key)
	}
	return engine.ParseAction(line)
}
