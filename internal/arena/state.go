package arena

import "slices"

// AdversaryID is the stable identity of an adversary within an episode.
type AdversaryID int

// Adversary is a pursuing entity. Dead adversaries are kept as tombstones so
// that identities stay stable; they never move and are ignored by collision checks.
type Adversary struct {
	ID       AdversaryID `json:"id"`
	Position Position    `json:"position"`
	Alive    bool        `json:"alive"`
}

// GameState is one snapshot of an arena.
//
// Hazards holds only the generated interior hazards. The border ring is
// implicit in Size; use IsHazard to test against the full hazard set.
// Adversaries are kept in ascending ID order.
type GameState struct {
	Size        int         `json:"size"`
	Agent       Position    `json:"agent"`
	Adversaries []Adversary `json:"adversaries"`
	Hazards     []Position  `json:"hazards"`
}

// Clone returns a deep copy. Nothing in the copy aliases s.
func (s GameState) Clone() GameState {
	out := GameState{
		Size:  s.Size,
		Agent: s.Agent,
	}
	if s.Adversaries != nil {
		out.Adversaries = slices.Clone(s.Adversaries)
	}
	if s.Hazards != nil {
		out.Hazards = slices.Clone(s.Hazards)
	}
	return out
}

// Equal reports whether two states are identical field by field.
func (s GameState) Equal(o GameState) bool {
	return s.Size == o.Size &&
		s.Agent == o.Agent &&
		slices.Equal(s.Adversaries, o.Adversaries) &&
		slices.Equal(s.Hazards, o.Hazards)
}

// OnBorder reports whether p is on this arena's border ring.
func (s GameState) OnBorder(p Position) bool {
	return OnBorder(p, s.Size)
}

// IsHazard reports whether p is on the border ring or an interior hazard.
func (s GameState) IsHazard(p Position) bool {
	return s.OnBorder(p) || s.IsInteriorHazard(p)
}

// IsInteriorHazard reports whether p is one of the generated interior hazards.
func (s GameState) IsInteriorHazard(p Position) bool {
	return slices.Contains(s.Hazards, p)
}

// LiveAdversaryAt returns the index of the live adversary at p, or -1.
func (s GameState) LiveAdversaryAt(p Position) int {
	for i, a := range s.Adversaries {
		if a.Alive && a.Position == p {
			return i
		}
	}
	return -1
}

// AliveCount returns the number of live adversaries.
func (s GameState) AliveCount() int {
	n := 0
	for _, a := range s.Adversaries {
		if a.Alive {
			n++
		}
	}
	return n
}
