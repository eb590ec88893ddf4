package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/chase/internal/arena"
)

type fixedPolicy struct{ action Action }

func (p fixedPolicy) Name() string { return "fixed" }

func (p fixedPolicy) Act(context.Context, arena.GameState, Projector) (Action, error) {
	return p.action, nil
}

type failingPolicy struct{}

func (failingPolicy) Name() string { return "failing" }

func (failingPolicy) Act(context.Context, arena.GameState, Projector) (Action, error) {
	return 0, errors.New("no idea")
}

func TestRunnerPlaysEpisodesToTermination(t *testing.T) {
	var resets, steps int
	var last []StepRecord
	r := &Runner{
		Episode: NewEpisode(arena.DefaultGenConfig()),
		Policy:  fixedPolicy{action: Hold},
		OnReset: func(int, int64, arena.GameState) { resets++ },
		OnStep: func(rec StepRecord) {
			steps++
			last = append(last, rec)
		},
	}

	sums, err := r.Run(context.Background(), 20, 100)
	require.NoError(t, err)
	require.Len(t, sums, 20)
	assert.Equal(t, 20, resets)

	total := 0
	for i, s := range sums {
		assert.Equal(t, int64(100+i), s.Seed)
		assert.Contains(t, []Result{ResultWin, ResultLoss}, s.Result)
		assert.GreaterOrEqual(t, s.TotalReward, -1)
		assert.LessOrEqual(t, s.TotalReward, 5)
		total += s.Steps
	}
	assert.Equal(t, total, steps)
	assert.True(t, last[len(last)-1].Outcome.Terminated)
}

func TestRunnerTruncates(t *testing.T) {
	// A lone adversary far away cannot reach a holding agent in two steps.
	ep := NewEpisode(arena.GenConfig{Size: 20, Adversaries: 1, SpawnClearance: 5})
	var outs []Outcome
	r := &Runner{
		Episode:  ep,
		Policy:   fixedPolicy{action: Hold},
		MaxSteps: 2,
		OnStep:   func(rec StepRecord) { outs = append(outs, rec.Outcome) },
	}

	sums, err := r.Run(context.Background(), 1, 0)
	require.NoError(t, err)
	require.Len(t, sums, 1)
	assert.Equal(t, ResultTruncated, sums[0].Result)
	assert.Equal(t, 2, sums[0].Steps)
	require.Len(t, outs, 2)
	assert.False(t, outs[0].Truncated)
	assert.True(t, outs[1].Truncated)
	assert.False(t, outs[1].Terminated)
}

func TestRunnerIsReproducible(t *testing.T) {
	run := func() []Summary {
		r := &Runner{Episode: NewEpisode(arena.DefaultGenConfig()), Policy: fixedPolicy{action: Hold}}
		sums, err := r.Run(context.Background(), 10, 7)
		require.NoError(t, err)
		return sums
	}
	assert.Equal(t, run(), run())
}

func TestRunnerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := &Runner{Episode: NewEpisode(arena.DefaultGenConfig()), Policy: fixedPolicy{action: Hold}}
	sums, err := r.Run(ctx, 5, 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, sums)
}

func TestRunnerPolicyError(t *testing.T) {
	r := &Runner{Episode: NewEpisode(arena.DefaultGenConfig()), Policy: failingPolicy{}}
	_, err := r.Run(context.Background(), 1, 0)
	assert.ErrorContains(t, err, "policy failing")
}
