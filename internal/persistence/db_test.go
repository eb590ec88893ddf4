package persistence

import (
	"bytes"
	"context"
	"encoding/csv"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/chase/internal/arena"
	"github.com/talgya/chase/internal/engine"
)

type holdPolicy struct{}

func (holdPolicy) Name() string { return "hold" }

func (holdPolicy) Act(context.Context, arena.GameState, engine.Projector) (engine.Action, error) {
	return engine.Hold, nil
}

func openTemp(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "chase.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func recordRun(t *testing.T, db *DB, cfg arena.GenConfig, episodes int, baseSeed int64) (*Recorder, []engine.Summary) {
	t.Helper()
	rec, err := NewRecorder(db, "hold", baseSeed, cfg.Size)
	require.NoError(t, err)

	runner := &engine.Runner{Episode: engine.NewEpisode(cfg), Policy: holdPolicy{}, MaxSteps: 100}
	rec.Attach(runner)
	sums, err := runner.Run(context.Background(), episodes, baseSeed)
	require.NoError(t, err)
	require.NoError(t, rec.Err())
	return rec, sums
}

func TestRecorderWritesRunsEpisodesSteps(t *testing.T) {
	db := openTemp(t)
	rec, sums := recordRun(t, db, arena.DefaultGenConfig(), 3, 10)

	eps, err := db.Episodes(rec.Run().ID)
	require.NoError(t, err)
	require.Len(t, eps, 3)
	for i, e := range eps {
		assert.Equal(t, sums[i].Seed, e.Seed)
		assert.Equal(t, sums[i].Steps, e.Steps)
		assert.Equal(t, sums[i].TotalReward, e.TotalReward)
		assert.Equal(t, string(sums[i].Result), e.Outcome)
	}

	steps, err := db.Steps(rec.Run().ID)
	require.NoError(t, err)
	wantRows := 0
	for _, s := range sums {
		wantRows += s.Steps + 1
	}
	require.Len(t, steps, wantRows)

	first := steps[0]
	assert.Equal(t, 0, first.Step)
	assert.False(t, first.Action.Valid)
	assert.False(t, first.Reward.Valid)
	assert.False(t, first.Done)
	assert.Len(t, first.Cells, 400)

	second := steps[1]
	assert.True(t, second.Action.Valid)
	assert.Equal(t, int64(engine.Hold), second.Action.Int64)

	last := steps[sums[0].Steps]
	assert.Equal(t, sums[0].Steps, last.Step)
	assert.True(t, last.Done)
}

func TestRecentRuns(t *testing.T) {
	db := openTemp(t)
	cfg := arena.SmallTestConfig()
	a, _ := recordRun(t, db, cfg, 2, 0)
	b, sums := recordRun(t, db, cfg, 4, 50)

	runs, err := db.RecentRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, b.Run().ID, runs[0].ID)
	assert.Equal(t, a.Run().ID, runs[1].ID)
	assert.WithinDuration(t, time.Now(), runs[0].Started(), time.Minute)
	assert.Equal(t, 4, runs[0].Episodes)
	assert.Equal(t, int64(50), runs[0].BaseSeed)

	total, wins := 0, 0
	for _, s := range sums {
		total += s.TotalReward
		if s.Result == engine.ResultWin {
			wins++
		}
	}
	assert.Equal(t, total, runs[0].TotalReward)
	assert.Equal(t, wins, runs[0].Wins)

	runs, err = db.RecentRuns(1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestGetRunNotFound(t *testing.T) {
	db := openTemp(t)
	_, err := db.GetRun("nope")
	assert.ErrorIs(t, err, ErrRunNotFound)

	var buf bytes.Buffer
	assert.ErrorIs(t, db.ExportCSV(&buf, "nope"), ErrRunNotFound)
}

func TestExportCSV(t *testing.T) {
	db := openTemp(t)
	cfg := arena.SmallTestConfig()
	rec, sums := recordRun(t, db, cfg, 2, 0)

	var buf bytes.Buffer
	require.NoError(t, db.ExportCSV(&buf, rec.Run().ID))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 1+sums[0].Steps+1+sums[1].Steps+1)

	header := records[0]
	require.Len(t, header, 5+cfg.Size*cfg.Size)
	assert.Equal(t, []string{"Episode", "Step", "Action", "Reward", "Done", "0"}, header[:6])
	assert.Equal(t, "63", header[len(header)-1])

	assert.Equal(t, []string{"0", "0", "None", "None", "False"}, records[1][:5])
	assert.Equal(t, "1", records[1][5], "top-left corner is border")
	assert.Equal(t, "4", records[2][2], "hold")

	end := records[1+sums[0].Steps]
	assert.Equal(t, "True", end[4])
}

func TestMeta(t *testing.T) {
	db := openTemp(t)
	require.NoError(t, db.SaveMeta("last_run", "abc"))
	require.NoError(t, db.SaveMeta("last_run", "def"))
	v, err := db.GetMeta("last_run")
	require.NoError(t, err)
	assert.Equal(t, "def", v)
}
