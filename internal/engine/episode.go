// Package engine provides the chase transition rules, the Episode that owns
// the canonical state, and the Runner that plays episodes with a policy.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/talgya/chase/internal/arena"
)

// DefaultSeed is used when a reset does not name a seed.
const DefaultSeed int64 = 0

var (
	// ErrUninitializedEpisode is returned by Step and CurrentState before the first reset.
	ErrUninitializedEpisode = errors.New("episode not reset")

	// ErrEpisodeTerminated is returned by Step once the episode has ended.
	ErrEpisodeTerminated = errors.New("episode terminated")
)

// Projector evaluates an action without committing it.
type Projector interface {
	Project(a Action) (Outcome, error)
}

// Episode owns one canonical GameState. Reset, ResetTo, and non-projected
// Step are the only operations that replace it; each replacement is
// all-or-nothing. Projections read a snapshot and never write.
//
// Episode is safe for concurrent use.
type Episode struct {
	cfg arena.GenConfig

	mu         sync.RWMutex
	state      *arena.GameState
	initial    *arena.GameState
	seed       int64
	steps      int
	terminated bool
}

// NewEpisode creates an episode that generates arenas from cfg. The seed in
// cfg is ignored; each reset supplies its own.
func NewEpisode(cfg arena.GenConfig) *Episode {
	return &Episode{cfg: cfg}
}

// Config returns the generator config.
func (e *Episode) Config() arena.GenConfig {
	return e.cfg
}

// Reset generates a fresh arena from seed and installs it. On error the
// previous state is kept.
func (e *Episode) Reset(seed int64) (arena.GameState, error) {
	cfg := e.cfg
	cfg.Seed = seed
	s, err := arena.Generate(cfg)
	if err != nil {
		return arena.GameState{}, fmt.Errorf("reset seed %d: %w", seed, err)
	}

	e.install(s, seed)
	slog.Debug("episode reset", "seed", seed, "agent", s.Agent.String(), "adversaries", len(s.Adversaries))
	return s.Clone(), nil
}

// ResetDefault resets with DefaultSeed.
func (e *Episode) ResetDefault() (arena.GameState, error) {
	return e.Reset(DefaultSeed)
}

// ResetTo installs a caller-built state after validating it.
func (e *Episode) ResetTo(s arena.GameState) error {
	if err := s.Validate(); err != nil {
		return err
	}
	e.install(s.Clone(), 0)
	return nil
}

func (e *Episode) install(s arena.GameState, seed int64) {
	initial := s.Clone()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = &s
	e.initial = &initial
	e.seed = seed
	e.steps = 0
	e.terminated = false
}

// Step applies a to the canonical state. With project set, the result is
// returned but the canonical state is left untouched.
func (e *Episode) Step(a Action, project bool) (Outcome, error) {
	if project {
		return e.Project(a)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ready(); err != nil {
		return Outcome{}, err
	}
	out, err := Transition(*e.state, a)
	if err != nil {
		return Outcome{}, err
	}

	committed := out.State.Clone()
	e.state = &committed
	e.steps++
	e.terminated = out.Terminated
	out.Step = e.steps

	if out.Terminated {
		slog.Info("episode terminated",
			"seed", e.seed,
			"steps", e.steps,
			"reward", out.Reward,
			"agent_eliminated", out.AgentEliminated(),
			"adversaries_alive", committed.AliveCount(),
		)
	}
	return out, nil
}

// Project returns what Step(a, false) would return without committing it.
func (e *Episode) Project(a Action) (Outcome, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if err := e.ready(); err != nil {
		return Outcome{}, err
	}
	out, err := Transition(*e.state, a)
	if err != nil {
		return Outcome{}, err
	}
	out.Step = e.steps + 1
	return out, nil
}

// ready must be called with e.mu held.
func (e *Episode) ready() error {
	if e.state == nil {
		return ErrUninitializedEpisode
	}
	if e.terminated {
		return fmt.Errorf("%w after %d steps", ErrEpisodeTerminated, e.steps)
	}
	return nil
}

// CurrentState returns a copy of the canonical state.
func (e *Episode) CurrentState() (arena.GameState, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.state == nil {
		return arena.GameState{}, ErrUninitializedEpisode
	}
	return e.state.Clone(), nil
}

// InitialState returns a copy of the state installed by the last reset.
func (e *Episode) InitialState() (arena.GameState, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.initial == nil {
		return arena.GameState{}, ErrUninitializedEpisode
	}
	return e.initial.Clone(), nil
}

// Status is a summary of the episode.
type Status struct {
	Initialized      bool  `json:"initialized"`
	Seed             int64 `json:"seed"`
	Steps            int   `json:"steps"`
	Terminated       bool  `json:"terminated"`
	AdversariesAlive int   `json:"adversaries_alive"`
}

// Status returns the current summary.
func (e *Episode) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	st := Status{
		Initialized: e.state != nil,
		Seed:        e.seed,
		Steps:       e.steps,
		Terminated:  e.terminated,
	}
	if e.state != nil {
		st.AdversariesAlive = e.state.AliveCount()
	}
	return st
}
