package env

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"swarmrl/internal/geom"
	"swarmrl/internal/prng"
)

// HoverConfig configures a Hover task.
type HoverConfig struct {
	// DroneIDs names the agents; nil means 0..n-1.
	DroneIDs      []int
	InitFlyingPos []r3.Vec
	// Targets gives one target per agent; nil means hover at the initial
	// flying positions.
	Targets      []r3.Vec
	Size         float64
	EpisodeLimit int
}

// Hover asks each drone to stay close to its own fixed target. The reward is
// dense and the task never terminates, it only truncates.
type Hover struct {
	base
}

var _ Env = (*Hover)(nil)
var _ Informer = (*Hover)(nil)

// NewHover validates cfg and builds the task.
func NewHover(cfg HoverConfig) (*Hover, error) {
	b, err := newBase("hover", cfg.DroneIDs, cfg.InitFlyingPos, cfg.Size, cfg.EpisodeLimit)
	if err != nil {
		return nil, err
	}
	targets := cfg.Targets
	if targets == nil {
		targets = cfg.InitFlyingPos
	}
	if len(targets) != len(cfg.InitFlyingPos) {
		return nil, fmt.Errorf("%d targets for %d agents: %w", len(targets), len(cfg.InitFlyingPos), ErrShapeMismatch)
	}
	b.initTargets = cloneVecs(targets)
	return &Hover{base: b}, nil
}

// ObservationSpace is the agent position followed by its target.
func (h *Hover) ObservationSpace() Box {
	return Tile([]float64{-h.size, -h.size, 0}, []float64{h.size, h.size, h.size}, 2)
}

func (h *Hover) Reset(prng.Key) State { return h.reset(h) }

func (h *Hover) Step(s State, actions []r3.Vec, _ prng.Key) (State, error) {
	return h.step(h, s, actions)
}

func (h *Hover) AutoReset(s State) State { return h.autoReset(h, s) }

// Info reports the L1 distance of each agent to its target.
func (h *Hover) Info(s State) []map[string]float64 {
	out := make([]map[string]float64, s.NumAgents())
	for i, p := range s.agentLocations {
		out[i] = map[string]float64{"distance": geom.L1(p, s.Target(i))}
	}
	return out
}

// Targets are fixed.
func (h *Hover) advance(s State) State { return s }

func (h *Hover) observe(s State) State {
	n := len(s.agentLocations)
	obs := mat.NewDense(n, 6, nil)
	for i, p := range s.agentLocations {
		t := s.Target(i)
		obs.SetRow(i, []float64{p.X, p.Y, p.Z, t.X, t.Y, t.Z})
	}
	return s.WithObservations(obs)
}

func (h *Hover) terminate(s State) State {
	return s.WithTerminations(make([]float64, len(s.agentLocations)))
}

func (h *Hover) reward(s State) State {
	r := make([]float64, len(s.agentLocations))
	for i, p := range s.agentLocations {
		r[i] = -geom.Dist2(p, s.Target(i))
	}
	return s.WithRewards(r)
}
