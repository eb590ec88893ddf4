// Package policy holds the agent controllers that drive an engine.Episode:
// scripted baselines, a one-step projection search, and a human keypad.
package policy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"sort"
	"strings"

	"github.com/talgya/chase/internal/arena"
	"github.com/talgya/chase/internal/engine"
)

// ErrUnknownPolicy is returned by ByName for names it does not recognise.
var ErrUnknownPolicy = errors.New("unknown policy")

// Options configures the policies built by ByName.
type Options struct {
	Seed int64     // random
	In   io.Reader // keypad, defaults to os.Stdin
	Out  io.Writer // keypad, defaults to os.Stdout
}

// Names lists the policies ByName understands.
func Names() []string {
	return []string{"random", "hold", "lookahead", "keypad"}
}

// ByName builds the named policy.
func ByName(name string, opts Options) (engine.Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "random":
		return NewRandom(opts.Seed), nil
	case "hold", "possum":
		return Hold{}, nil
	case "lookahead":
		return Lookahead{}, nil
	case "keypad":
		in, out := opts.In, opts.Out
		if in == nil {
			in = os.Stdin
		}
		if out == nil {
			out = os.Stdout
		}
		return NewKeypad(in, out), nil
	default:
		return nil, fmt.Errorf("%w: %q (want one of %s)", ErrUnknownPolicy, name, strings.Join(Names(), ", "))
	}
}

// Random picks uniformly among the nine actions from its own seeded source.
type Random struct {
	rng *rand.Rand
}

func NewRandom(seed int64) *Random {
	return &Random{rng: rand.New(rand.NewSource(seed))}
}

func (*Random) Name() string { return "random" }

func (r *Random) Act(context.Context, arena.GameState, engine.Projector) (engine.Action, error) {
	return engine.Action(r.rng.Intn(engine.NumActions)), nil
}

// Hold never moves and lets the adversaries run into hazards on their own.
type Hold struct{}

func (Hold) Name() string { return "hold" }

func (Hold) Act(context.Context, arena.GameState, engine.Projector) (engine.Action, error) {
	return engine.Hold, nil
}

// Lookahead projects every action one step ahead and commits the best:
// outcomes that keep the agent alive beat those that don't, then higher
// reward wins, then preference order (Hold first, then ascending id).
type Lookahead struct{}

func (Lookahead) Name() string { return "lookahead" }

func (Lookahead) Act(ctx context.Context, _ arena.GameState, p engine.Projector) (engine.Action, error) {
	type candidate struct {
		action engine.Action
		rank   int
		out    engine.Outcome
	}

	cands := make([]candidate, 0, engine.NumActions)
	for rank, a := range preference() {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		out, err := p.Project(a)
		if err != nil {
			return 0, fmt.Errorf("project %s: %w", a, err)
		}
		cands = append(cands, candidate{action: a, rank: rank, out: out})
	}

	sort.SliceStable(cands, func(i, j int) bool {
		ci, cj := cands[i], cands[j]
		if li, lj := ci.out.AgentEliminated(), cj.out.AgentEliminated(); li != lj {
			return !li
		}
		if ci.out.Reward != cj.out.Reward {
			return ci.out.Reward > cj.out.Reward
		}
		return ci.rank < cj.rank
	})
	return cands[0].action, nil
}

func preference() []engine.Action {
	order := []engine.Action{engine.Hold}
	for _, a := range engine.Actions() {
		if a != engine.Hold {
			order = append(order, a)
		}
	}
	return order
}
