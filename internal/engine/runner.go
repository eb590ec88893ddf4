package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/talgya/chase/internal/arena"
)

// Policy chooses the agent's next action. It may project any number of
// actions through p before answering.
type Policy interface {
	Name() string
	Act(ctx context.Context, s arena.GameState, p Projector) (Action, error)
}

// Env is something a Runner can play: a local Episode or a remote one.
type Env interface {
	Projector
	Reset(seed int64) (arena.GameState, error)
	Step(a Action, project bool) (Outcome, error)
}

var _ Env = (*Episode)(nil)

// Result classifies how an episode ended.
type Result string

const (
	ResultWin       Result = "win"       // every adversary eliminated, agent alive
	ResultLoss      Result = "loss"      // agent eliminated
	ResultTruncated Result = "truncated" // stopped by MaxSteps
)

// StepRecord is one committed step as seen by the Runner.
type StepRecord struct {
	Episode int
	Step    int
	Action  Action
	Outcome Outcome
}

// Summary describes a finished episode.
type Summary struct {
	Episode     int    `json:"episode"`
	Seed        int64  `json:"seed"`
	Steps       int    `json:"steps"`
	TotalReward int    `json:"total_reward"`
	Result      Result `json:"result"`
}

// Runner plays episodes on an Env with a Policy.
type Runner struct {
	Episode  Env
	Policy   Policy
	MaxSteps int           // 0 = run until the episode terminates
	Interval time.Duration // pause after each step; 0 = no pause

	// Callbacks, all optional.
	OnReset   func(episode int, seed int64, s arena.GameState)
	OnStep    func(rec StepRecord)
	OnEpisode func(sum Summary)
}

// Run plays episodes 0..count-1 with seeds baseSeed, baseSeed+1, ... and
// returns their summaries. It stops early when ctx is cancelled, returning
// the summaries of the episodes that finished.
func (r *Runner) Run(ctx context.Context, count int, baseSeed int64) ([]Summary, error) {
	slog.Info("runner started", "policy", r.Policy.Name(), "episodes", count, "base_seed", baseSeed)

	summaries := make([]Summary, 0, count)
	for ep := 0; ep < count; ep++ {
		sum, err := r.playEpisode(ctx, ep, baseSeed+int64(ep))
		if err != nil {
			slog.Info("runner stopped", "episodes_done", len(summaries), "error", err)
			return summaries, err
		}
		summaries = append(summaries, sum)
		if r.OnEpisode != nil {
			r.OnEpisode(sum)
		}
		slog.Info("episode finished",
			"episode", ep,
			"seed", sum.Seed,
			"steps", sum.Steps,
			"total_reward", sum.TotalReward,
			"result", sum.Result,
		)
	}

	slog.Info("runner stopped", "episodes_done", len(summaries))
	return summaries, nil
}

func (r *Runner) playEpisode(ctx context.Context, ep int, seed int64) (Summary, error) {
	state, err := r.Episode.Reset(seed)
	if err != nil {
		return Summary{}, err
	}
	if r.OnReset != nil {
		r.OnReset(ep, seed, state)
	}

	sum := Summary{Episode: ep, Seed: seed}
	for {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		action, err := r.Policy.Act(ctx, state, r.Episode)
		if err != nil {
			return sum, fmt.Errorf("policy %s: %w", r.Policy.Name(), err)
		}
		out, err := r.Episode.Step(action, false)
		if err != nil {
			return sum, fmt.Errorf("episode %d step %d: %w", ep, sum.Steps, err)
		}

		sum.Steps++
		sum.TotalReward += out.Reward
		if !out.Terminated && r.MaxSteps > 0 && sum.Steps >= r.MaxSteps {
			out.Truncated = true
		}
		if r.OnStep != nil {
			r.OnStep(StepRecord{Episode: ep, Step: sum.Steps, Action: action, Outcome: out})
		}

		switch {
		case out.Terminated && out.AgentEliminated():
			sum.Result = ResultLoss
			return sum, nil
		case out.Terminated:
			sum.Result = ResultWin
			return sum, nil
		case out.Truncated:
			sum.Result = ResultTruncated
			return sum, nil
		}

		state = out.State
		if r.Interval > 0 {
			select {
			case <-ctx.Done():
				return sum, ctx.Err()
			case <-time.After(r.Interval):
			}
		}
	}
}
