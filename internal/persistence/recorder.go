package persistence

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/talgya/chase/internal/arena"
	"github.com/talgya/chase/internal/engine"
	"github.com/talgya/chase/internal/render"
)

// Recorder buffers one episode at a time and writes it to the store when the
// episode finishes. Attach it to a Runner with Attach.
type Recorder struct {
	db  *DB
	run Run

	episode int
	steps   []StepRow
	err     error
}

// NewRecorder creates the run row and returns a recorder for it.
func NewRecorder(db *DB, policy string, baseSeed int64, arenaSize int) (*Recorder, error) {
	run, err := db.CreateRun(policy, baseSeed, arenaSize)
	if err != nil {
		return nil, err
	}
	return &Recorder{db: db, run: run}, nil
}

// Run returns the run being recorded.
func (r *Recorder) Run() Run {
	return r.run
}

// Err returns the first write error, if any. Recording stops after it.
func (r *Recorder) Err() error {
	return r.err
}

// Attach wires the recorder into the runner's callbacks, chaining any that
// are already set.
func (r *Recorder) Attach(runner *engine.Runner) {
	prevReset, prevStep, prevEpisode := runner.OnReset, runner.OnStep, runner.OnEpisode

	runner.OnReset = func(ep int, seed int64, s arena.GameState) {
		r.Reset(ep, s)
		if prevReset != nil {
			prevReset(ep, seed, s)
		}
	}
	runner.OnStep = func(rec engine.StepRecord) {
		r.Step(rec)
		if prevStep != nil {
			prevStep(rec)
		}
	}
	runner.OnEpisode = func(sum engine.Summary) {
		r.Finish(sum)
		if prevEpisode != nil {
			prevEpisode(sum)
		}
	}
}

// Reset starts buffering a new episode with its initial state as step 0.
func (r *Recorder) Reset(episode int, s arena.GameState) {
	r.episode = episode
	r.steps = append(r.steps[:0], StepRow{
		RunID:   r.run.ID,
		Episode: episode,
		Step:    0,
		Cells:   render.Encode(s),
	})
}

// Step buffers a committed step.
func (r *Recorder) Step(rec engine.StepRecord) {
	r.steps = append(r.steps, StepRow{
		RunID:   r.run.ID,
		Episode: rec.Episode,
		Step:    rec.Step,
		Action:  sql.NullInt64{Int64: int64(rec.Action), Valid: true},
		Reward:  sql.NullInt64{Int64: int64(rec.Outcome.Reward), Valid: true},
		Done:    rec.Outcome.Terminated || rec.Outcome.Truncated,
		Cells:   render.Encode(rec.Outcome.State),
	})
}

// Finish writes the buffered episode.
func (r *Recorder) Finish(sum engine.Summary) {
	if r.err != nil {
		return
	}
	row := EpisodeRow{
		RunID:       r.run.ID,
		Episode:     sum.Episode,
		Seed:        sum.Seed,
		Steps:       sum.Steps,
		TotalReward: sum.TotalReward,
		Outcome:     string(sum.Result),
	}
	if err := r.db.SaveEpisode(row, r.steps); err != nil {
		r.err = fmt.Errorf("record episode %d: %w", sum.Episode, err)
		slog.Error("trace write failed", "run", r.run.ID, "episode", sum.Episode, "error", err)
		return
	}
	slog.Debug("episode recorded", "run", r.run.ID, "episode", sum.Episode, "rows", len(r.steps))
	r.steps = r.steps[:0]
}
