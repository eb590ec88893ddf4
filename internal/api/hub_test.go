package api

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/chase/internal/arena"
	"github.com/talgya/chase/internal/engine"
)

func TestHubFanOut(t *testing.T) {
	h := NewHub()
	a, cha := h.Subscribe()
	_, chb := h.Subscribe()
	assert.Equal(t, 2, h.Count())

	h.Publish(Message{Type: "step", Step: 3})
	for _, ch := range []<-chan []byte{cha, chb} {
		var m Message
		require.NoError(t, json.Unmarshal(<-ch, &m))
		assert.Equal(t, 3, m.Step)
	}

	h.Unsubscribe(a)
	_, open := <-cha
	assert.False(t, open)
	assert.Equal(t, 1, h.Count())
	h.Unsubscribe(a)
}

func TestHubDropsForSlowSubscribers(t *testing.T) {
	h := NewHub()
	_, ch := h.Subscribe()
	for i := 0; i < subscriberBuffer+10; i++ {
		h.Publish(Message{Type: "step", Step: i})
	}
	assert.Len(t, ch, subscriberBuffer)
}

func TestHubAttachChainsCallbacks(t *testing.T) {
	h := NewHub()
	_, ch := h.Subscribe()

	steps := 0
	runner := &engine.Runner{
		Episode:  engine.NewEpisode(arena.SmallTestConfig()),
		Policy:   holdPolicy{},
		MaxSteps: 3,
		OnStep:   func(engine.StepRecord) { steps++ },
	}
	h.Attach(runner)
	sums, err := runner.Run(context.Background(), 1, 0)
	require.NoError(t, err)

	assert.Equal(t, sums[0].Steps, steps)
	require.Len(t, ch, 1+sums[0].Steps)

	var m Message
	require.NoError(t, json.Unmarshal(<-ch, &m))
	assert.Equal(t, "reset", m.Type)
	require.NotNil(t, m.Episode)
	assert.Equal(t, 0, *m.Episode)
}
