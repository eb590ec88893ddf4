package arena

import (
	"errors"
	"fmt"
)

// ErrInvalidState is returned by Validate for a state that is not a
// well-formed running arena.
var ErrInvalidState = errors.New("invalid arena state")

// Validate checks that s is a well-formed running state:
//   - the grid has an interior,
//   - hazards are interior and distinct,
//   - adversary IDs are unique and ascending,
//   - the agent and every live adversary sit on distinct, non-hazard interior cells.
//
// Dead adversaries are not position-checked.
func (s GameState) Validate() error {
	if s.Size < 3 {
		return fmt.Errorf("%w: size %d has no interior", ErrInvalidState, s.Size)
	}

	seen := make(map[Position]string, len(s.Hazards)+len(s.Adversaries)+1)
	for _, h := range s.Hazards {
		if s.OnBorder(h) {
			return fmt.Errorf("%w: hazard %s outside the interior", ErrInvalidState, h)
		}
		if _, dup := seen[h]; dup {
			return fmt.Errorf("%w: duplicate hazard %s", ErrInvalidState, h)
		}
		seen[h] = "hazard"
	}

	for i, a := range s.Adversaries {
		if i > 0 && a.ID <= s.Adversaries[i-1].ID {
			return fmt.Errorf("%w: adversary ids not strictly ascending at index %d", ErrInvalidState, i)
		}
		if !a.Alive {
			continue
		}
		if s.OnBorder(a.Position) {
			return fmt.Errorf("%w: live adversary %d on border %s", ErrInvalidState, a.ID, a.Position)
		}
		if what, taken := seen[a.Position]; taken {
			return fmt.Errorf("%w: live adversary %d shares %s with %s", ErrInvalidState, a.ID, a.Position, what)
		}
		seen[a.Position] = fmt.Sprintf("adversary %d", a.ID)
	}

	if s.OnBorder(s.Agent) {
		return fmt.Errorf("%w: agent on border %s", ErrInvalidState, s.Agent)
	}
	if what, taken := seen[s.Agent]; taken {
		return fmt.Errorf("%w: agent shares %s with %s", ErrInvalidState, s.Agent, what)
	}
	return nil
}
