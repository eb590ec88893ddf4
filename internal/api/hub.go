package api

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/talgya/chase/internal/arena"
	"github.com/talgya/chase/internal/engine"
)

// Message is one stream frame.
type Message struct {
	Type       string           `json:"type"` // "snapshot", "reset" or "step"
	Seed       *int64           `json:"seed,omitempty"`
	Episode    *int             `json:"episode,omitempty"`
	Step       int              `json:"step"`
	Action     *engine.Action   `json:"action,omitempty"`
	Reward     int              `json:"reward"`
	Terminated bool             `json:"terminated"`
	Truncated  bool             `json:"truncated"`
	Events     []engine.Event   `json:"events,omitempty"`
	State      *arena.GameState `json:"state,omitempty"`
}

const subscriberBuffer = 64

// Hub fans committed resets and steps out to stream subscribers. Slow
// subscribers miss frames rather than block the publisher.
type Hub struct {
	mu   sync.Mutex
	subs map[int]chan []byte
	next int
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan []byte)}
}

// Subscribe registers a new subscriber.
func (h *Hub) Subscribe() (int, <-chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.next
	h.next++
	ch := make(chan []byte, subscriberBuffer)
	h.subs[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

// Count returns the number of subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Publish sends m to every subscriber.
func (h *Hub) Publish(m Message) {
	data, err := json.Marshal(m)
	if err != nil {
		slog.Error("stream marshal failed", "type", m.Type, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		select {
		case ch <- data:
		default:
			slog.Debug("stream subscriber lagging, frame dropped", "sub_id", id)
		}
	}
}

// Attach publishes the runner's resets and steps, chaining any callbacks
// that are already set.
func (h *Hub) Attach(runner *engine.Runner) {
	prevReset, prevStep := runner.OnReset, runner.OnStep

	runner.OnReset = func(ep int, seed int64, s arena.GameState) {
		if prevReset != nil {
			prevReset(ep, seed, s)
		}
		h.Publish(resetMessage(&ep, seed, s))
	}
	runner.OnStep = func(rec engine.StepRecord) {
		if prevStep != nil {
			prevStep(rec)
		}
		h.Publish(stepMessage(&rec.Episode, rec.Action, rec.Outcome))
	}
}

func resetMessage(episode *int, seed int64, s arena.GameState) Message {
	return Message{Type: "reset", Seed: &seed, Episode: episode, State: &s}
}

func stepMessage(episode *int, a engine.Action, out engine.Outcome) Message {
	return Message{
		Type:       "step",
		Episode:    episode,
		Step:       out.Step,
		Action:     &a,
		Reward:     out.Reward,
		Terminated: out.Terminated,
		Truncated:  out.Truncated,
		Events:     out.Events,
		State:      &out.State,
	}
}
