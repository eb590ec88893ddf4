package engine

import (
	"fmt"
	"sort"

	"github.com/talgya/chase/internal/arena"
)

// Reward terms.
const (
	RewardAdversaryEliminated = 1
	RewardAgentEliminated     = -1
)

// EventKind names something that happened during a step.
type EventKind string

const (
	EventAgentHitBorder      EventKind = "agent_hit_border"
	EventAgentHitHazard      EventKind = "agent_hit_hazard"
	EventAgentHitAdversary   EventKind = "agent_hit_adversary"
	EventAgentCaught         EventKind = "agent_caught"
	EventAdversaryEliminated EventKind = "adversary_eliminated"
	EventAllEliminated       EventKind = "all_adversaries_eliminated"
)

// Event records one elimination during a step. Adversary is set for events
// caused by or happening to a specific adversary.
type Event struct {
	Kind      EventKind          `json:"kind"`
	Adversary *arena.AdversaryID `json:"adversary,omitempty"`
}

// Outcome is the result of one step, real or projected. Step is the 1-based
// index of the step within its episode; Transition leaves it zero and
// Episode fills it in.
type Outcome struct {
	Step       int             `json:"step"`
	State      arena.GameState `json:"state"`
	Reward     int             `json:"reward"`
	Terminated bool            `json:"terminated"`
	Truncated  bool            `json:"truncated"`
	Events     []Event         `json:"events,omitempty"`
}

// AgentEliminated reports whether the agent died during the step.
func (o Outcome) AgentEliminated() bool {
	for _, e := range o.Events {
		switch e.Kind {
		case EventAgentHitBorder, EventAgentHitHazard, EventAgentHitAdversary, EventAgentCaught:
			return true
		}
	}
	return false
}

// Transition computes the state that follows s under action a. It works on a
// private deep copy and never modifies s, so it is safe to call concurrently
// on the same state.
//
// Order of resolution:
//  1. the agent moves unconditionally;
//  2. the agent is eliminated if it landed on the border, a hazard, or a live
//     adversary's pre-move cell;
//  3. every live adversary, in ascending id order, takes one greedy Chebyshev
//     step toward the agent's new cell, holding instead if that cell currently
//     holds another live adversary, then may catch the agent or be eliminated
//     on the border or a hazard;
//  4. the episode also ends when no adversary is left alive.
//
// The reward is +1 per adversary eliminated plus -1 if the agent was
// eliminated, counted at most once.
func Transition(s arena.GameState, a Action) (Outcome, error) {
	if !a.Valid() {
		return Outcome{}, fmt.Errorf("%w: %d", ErrInvalidAction, int(a))
	}

	next := s.Clone()
	var events []Event
	reward := 0
	agentDown := false

	dRow, dCol := a.Delta()
	next.Agent = next.Agent.Add(dRow, dCol)
	agent := next.Agent

	switch {
	case next.OnBorder(agent):
		agentDown = true
		events = append(events, Event{Kind: EventAgentHitBorder})
	case next.IsInteriorHazard(agent):
		agentDown = true
		events = append(events, Event{Kind: EventAgentHitHazard})
	default:
		if i := next.LiveAdversaryAt(agent); i >= 0 {
			agentDown = true
			events = append(events, Event{Kind: EventAgentHitAdversary, Adversary: idRef(next.Adversaries[i].ID)})
		}
	}
	terminated := agentDown

	for _, i := range pursuitOrder(next.Adversaries) {
		adv := &next.Adversaries[i]
		if !adv.Alive {
			continue
		}

		dr, dc := pursuit(adv.Position, agent)
		target := adv.Position.Add(dr, dc)
		if j := next.LiveAdversaryAt(target); j >= 0 && j != i {
			target = adv.Position
		}
		adv.Position = target

		if adv.Position == agent {
			terminated = true
			if !agentDown {
				agentDown = true
				events = append(events, Event{Kind: EventAgentCaught, Adversary: idRef(adv.ID)})
			}
		}

		if next.IsHazard(adv.Position) {
			adv.Alive = false
			reward += RewardAdversaryEliminated
			events = append(events, Event{Kind: EventAdversaryEliminated, Adversary: idRef(adv.ID)})
		}
	}

	if agentDown {
		reward += RewardAgentEliminated
	}

	if next.AliveCount() == 0 {
		terminated = true
		events = append(events, Event{Kind: EventAllEliminated})
	}

	return Outcome{
		State:      next,
		Reward:     reward,
		Terminated: terminated,
		Events:     events,
	}, nil
}

// pursuit returns the greedy step from p toward target: diagonal when the
// absolute deltas tie, otherwise along the axis with the larger delta.
func pursuit(p, target arena.Position) (dRow, dCol int) {
	dr := target.Row - p.Row
	dc := target.Col - p.Col
	switch {
	case arena.Abs(dr) == arena.Abs(dc):
		return arena.Sign(dr), arena.Sign(dc)
	case arena.Abs(dr) > arena.Abs(dc):
		return arena.Sign(dr), 0
	default:
		return 0, arena.Sign(dc)
	}
}

// pursuitOrder returns adversary indices in ascending id order.
func pursuitOrder(advs []arena.Adversary) []int {
	order := make([]int, len(advs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(x, y int) bool {
		return advs[order[x]].ID < advs[order[y]].ID
	})
	return order
}

func idRef(id arena.AdversaryID) *arena.AdversaryID {
	return &id
}
