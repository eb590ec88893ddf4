package client

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/chase/internal/api"
	"github.com/talgya/chase/internal/arena"
	"github.com/talgya/chase/internal/engine"
	"github.com/talgya/chase/internal/policy"
)

const key = "k"

func serve(t *testing.T, cfg arena.GenConfig) (*api.Server, *Client) {
	t.Helper()
	srv := &api.Server{Episode: engine.NewEpisode(cfg), AdminKey: key}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, New(ts.URL+"/", key)
}

func TestClientBeforeReset(t *testing.T) {
	_, c := serve(t, arena.DefaultGenConfig())

	st, err := c.Status()
	require.NoError(t, err)
	assert.False(t, st.Initialized)
	assert.Equal(t, 20, st.ArenaSize)

	_, err = c.State()
	assert.ErrorIs(t, err, engine.ErrUninitializedEpisode)
	_, err = c.Project(engine.Hold)
	assert.ErrorIs(t, err, engine.ErrUninitializedEpisode)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 409, apiErr.StatusCode)
}

func TestClientMatchesLocalEpisode(t *testing.T) {
	srv, c := serve(t, arena.DefaultGenConfig())
	local := engine.NewEpisode(arena.DefaultGenConfig())

	remote, err := c.Reset(8)
	require.NoError(t, err)
	want, err := local.Reset(8)
	require.NoError(t, err)
	assert.True(t, want.Equal(remote))

	for i := 0; i < 50; i++ {
		a := engine.Action(i * 4 % engine.NumActions)
		gotOut, err := c.Step(a, false)
		require.NoError(t, err)
		wantOut, err := local.Step(a, false)
		require.NoError(t, err)
		require.True(t, wantOut.State.Equal(gotOut.State), "step %d", i)
		require.Equal(t, wantOut.Reward, gotOut.Reward)
		require.Equal(t, wantOut.Terminated, gotOut.Terminated)
		require.Equal(t, i+1, gotOut.Step)
		if gotOut.Terminated {
			_, err = c.Step(engine.Hold, false)
			assert.ErrorIs(t, err, engine.ErrEpisodeTerminated)
			break
		}
	}
	assert.Equal(t, local.Status().Steps, srv.Episode.Status().Steps)
}

func TestClientErrors(t *testing.T) {
	_, c := serve(t, arena.DefaultGenConfig())
	_, err := c.Reset(0)
	require.NoError(t, err)

	_, err = c.Step(engine.Action(11), false)
	assert.ErrorIs(t, err, engine.ErrInvalidAction)

	bad := New(c.BaseURL, "wrong")
	_, err = bad.Reset(0)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 401, apiErr.StatusCode)

	_, tiny := serve(t, arena.GenConfig{Size: 4, Adversaries: 3, Hazards: 3})
	_, err = tiny.Reset(0)
	assert.ErrorIs(t, err, arena.ErrCapacityExceeded)

	srv, owned := serve(t, arena.DefaultGenConfig())
	srv.SetRunnerActive(true)
	_, err = owned.Reset(0)
	assert.ErrorIs(t, err, ErrRunnerActive)
	assert.NotErrorIs(t, err, engine.ErrUninitializedEpisode)
}

func TestClientRender(t *testing.T) {
	_, c := serve(t, arena.DefaultGenConfig())
	_, err := c.Reset(1)
	require.NoError(t, err)

	text, err := c.Render()
	require.NoError(t, err)
	assert.Len(t, strings.Split(text, "\n"), 20)
	assert.True(t, strings.HasPrefix(text, "X  X  X"))
}

func TestRunnerPlaysRemoteEpisode(t *testing.T) {
	_, c := serve(t, arena.DefaultGenConfig())
	runner := &engine.Runner{Episode: c, Policy: policy.Lookahead{}, MaxSteps: 100}
	sums, err := runner.Run(context.Background(), 3, 20)
	require.NoError(t, err)

	local := &engine.Runner{Episode: engine.NewEpisode(arena.DefaultGenConfig()), Policy: policy.Lookahead{}, MaxSteps: 100}
	want, err := local.Run(context.Background(), 3, 20)
	require.NoError(t, err)
	assert.Equal(t, want, sums)
}

func TestWaitReady(t *testing.T) {
	_, c := serve(t, arena.DefaultGenConfig())
	require.NoError(t, c.WaitReady(context.Background()))

	dead := New("http://127.0.0.1:1", key)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, dead.WaitReady(ctx), context.DeadlineExceeded)
}
