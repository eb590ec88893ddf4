// Arena generation by seeded reject-and-resample placement.
// Hazards are placed first, then adversaries, then the agent.
package arena

import (
	"errors"
	"fmt"
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"
)

var (
	// ErrCapacityExceeded is returned when the requested entities cannot all be
	// placed on distinct interior cells. No partial arena is returned.
	ErrCapacityExceeded = errors.New("arena capacity exceeded")

	// ErrInvalidConfig is returned for a malformed GenConfig.
	ErrInvalidConfig = errors.New("invalid arena config")
)

// Layout selects how interior hazards are distributed.
type Layout string

const (
	LayoutUniform   Layout = "uniform"   // every interior cell equally likely
	LayoutClustered Layout = "clustered" // noise-weighted, hazards bunch into walls
)

// GenConfig holds arena generation parameters.
type GenConfig struct {
	Size        int    // Side length including the border ring
	Seed        int64  // Same seed, same arena
	Adversaries int    // Adversaries to place
	Hazards     int    // Interior hazards to place
	Layout      Layout // Hazard layout; empty means uniform

	// SpawnClearance is the minimum Chebyshev distance, exclusive, kept between
	// the agent and every adversary at spawn. 0 disables the rule; 1 keeps the
	// agent out of every adversary's 8-neighbourhood.
	SpawnClearance int
}

// DefaultGenConfig returns the standard 20x20 arena with five adversaries and
// ten interior hazards.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		Size:        DefaultSize,
		Seed:        0,
		Adversaries: 5,
		Hazards:     10,
		Layout:      LayoutUniform,
	}
}

// SmallTestConfig returns a cramped arena for fast tests.
func SmallTestConfig() GenConfig {
	return GenConfig{
		Size:        8,
		Seed:        42,
		Adversaries: 2,
		Hazards:     3,
		Layout:      LayoutUniform,
	}
}

// Validate checks the config without generating anything.
func (c GenConfig) Validate() error {
	if c.Size < 3 {
		return fmt.Errorf("%w: size %d leaves no interior", ErrInvalidConfig, c.Size)
	}
	if c.Adversaries < 0 || c.Hazards < 0 {
		return fmt.Errorf("%w: negative entity count (adversaries=%d hazards=%d)", ErrInvalidConfig, c.Adversaries, c.Hazards)
	}
	if c.SpawnClearance < 0 {
		return fmt.Errorf("%w: negative spawn clearance %d", ErrInvalidConfig, c.SpawnClearance)
	}
	switch c.Layout {
	case "", LayoutUniform, LayoutClustered:
	default:
		return fmt.Errorf("%w: unknown layout %q", ErrInvalidConfig, c.Layout)
	}
	need := c.Hazards + c.Adversaries + 1
	if have := InteriorCells(c.Size); need > have {
		return fmt.Errorf("%w: %d entities requested, %d interior cells", ErrCapacityExceeded, need, have)
	}
	return nil
}

// Generate builds the initial arena for cfg. The random source is reseeded from
// cfg.Seed on every call, so the same config always yields the same arena.
func Generate(cfg GenConfig) (GameState, error) {
	if err := cfg.Validate(); err != nil {
		return GameState{}, err
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	s := GameState{
		Size:        cfg.Size,
		Adversaries: make([]Adversary, 0, cfg.Adversaries),
		Hazards:     make([]Position, 0, cfg.Hazards),
	}
	used := make(map[Position]bool, cfg.Hazards+cfg.Adversaries+1)

	// Interior hazards.
	accept := func(Position) bool { return true }
	if cfg.Layout == LayoutClustered {
		accept = clusterAcceptor(cfg.Seed+1, rng)
	}
	for len(s.Hazards) < cfg.Hazards {
		p := randomInterior(rng, cfg.Size)
		if used[p] || !accept(p) {
			continue
		}
		used[p] = true
		s.Hazards = append(s.Hazards, p)
	}

	// Adversaries, identified in placement order.
	for len(s.Adversaries) < cfg.Adversaries {
		p := randomInterior(rng, cfg.Size)
		if used[p] {
			continue
		}
		used[p] = true
		s.Adversaries = append(s.Adversaries, Adversary{
			ID:       AdversaryID(len(s.Adversaries)),
			Position: p,
			Alive:    true,
		})
	}

	// Agent.
	spawnable := func(p Position) bool {
		if used[p] {
			return false
		}
		for _, a := range s.Adversaries {
			if Chebyshev(p, a.Position) <= cfg.SpawnClearance {
				return false
			}
		}
		return true
	}
	if cfg.SpawnClearance > 0 && !anyInterior(cfg.Size, spawnable) {
		return GameState{}, fmt.Errorf("%w: no cell clears every adversary by %d", ErrCapacityExceeded, cfg.SpawnClearance)
	}
	for {
		p := randomInterior(rng, cfg.Size)
		if spawnable(p) {
			s.Agent = p
			break
		}
	}

	return s, nil
}

// randomInterior draws row then column uniformly from [1, size-2].
func randomInterior(rng *rand.Rand, size int) Position {
	row := 1 + rng.Intn(size-2)
	col := 1 + rng.Intn(size-2)
	return Position{Row: row, Col: col}
}

func anyInterior(size int, ok func(Position) bool) bool {
	for r := 1; r < size-1; r++ {
		for c := 1; c < size-1; c++ {
			if ok(Position{Row: r, Col: c}) {
				return true
			}
		}
	}
	return false
}

// clusterFloor keeps every cell reachable so the rejection loop always terminates.
const clusterFloor = 0.05

// clusterAcceptor returns a second-stage filter that keeps a uniformly drawn
// cell with probability rising steeply with the local noise value.
func clusterAcceptor(seed int64, rng *rand.Rand) func(Position) bool {
	noise := opensimplex.NewNormalized(seed)
	return func(p Position) bool {
		w := octaveNoise(noise, float64(p.Col), float64(p.Row), 3, 0.15, 0.5)
		weight := clusterFloor + (1-clusterFloor)*w*w*w
		return rng.Float64() < weight
	}
}

// octaveNoise layers several noise frequencies into a value in [0, 1].
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}
