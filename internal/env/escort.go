package env

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"swarmrl/internal/geom"
	"swarmrl/internal/prng"
)

// Reward weights for the escort task.
const (
	CohesionWeight  = 0.05
	ProximityWeight = 0.95
	CrashPenalty    = -10.0
)

// EscortConfig configures an Escort task.
type EscortConfig struct {
	DroneIDs      []int
	InitFlyingPos []r3.Vec
	InitTarget    r3.Vec
	FinalTarget   r3.Vec
	// IntermediatePoints between the initial and final target. The
	// reference trajectory holds IntermediatePoints+2 points.
	IntermediatePoints int
	Size               float64
	EpisodeLimit       int
}

// Escort asks the swarm to surround one shared target that moves along a
// straight reference trajectory. Reward is only paid when the episode
// truncates, and a crash by any drone ends the episode for all of them.
type Escort struct {
	base
	ref []r3.Vec
}

var _ Env = (*Escort)(nil)

// NewEscort validates cfg and precomputes the reference trajectory.
func NewEscort(cfg EscortConfig) (*Escort, error) {
	return newEscort("escort", cfg)
}

// NewSurround builds an escort task whose target never moves.
func NewSurround(ids []int, initPos []r3.Vec, target r3.Vec, size float64, limit int) (*Escort, error) {
	return newEscort("surround", EscortConfig{
		DroneIDs:      ids,
		InitFlyingPos: initPos,
		InitTarget:    target,
		FinalTarget:   target,
		Size:          size,
		EpisodeLimit:  limit,
	})
}

func newEscort(name string, cfg EscortConfig) (*Escort, error) {
	b, err := newBase(name, cfg.DroneIDs, cfg.InitFlyingPos, cfg.Size, cfg.EpisodeLimit)
	if err != nil {
		return nil, err
	}
	if len(cfg.InitFlyingPos) < 2 {
		return nil, ErrTooFewAgents
	}
	if cfg.IntermediatePoints < 0 {
		return nil, fmt.Errorf("%d intermediate points: %w", cfg.IntermediatePoints, ErrEmptyTrajectory)
	}
	b.initTargets = []r3.Vec{cfg.InitTarget}
	return &Escort{
		base: b,
		ref:  geom.Trajectory(cfg.InitTarget, cfg.FinalTarget, cfg.IntermediatePoints+2),
	}, nil
}

// Reference returns a copy of the target's reference trajectory.
func (e *Escort) Reference() []r3.Vec { return cloneVecs(e.ref) }

// ObservationSpace is the agent position, the target and the other agents.
func (e *Escort) ObservationSpace() Box {
	return Tile([]float64{-e.size, -e.size, 0}, []float64{e.size, e.size, e.size}, e.NumAgents()+1)
}

func (e *Escort) Reset(prng.Key) State { return e.reset(e) }

func (e *Escort) Step(s State, actions []r3.Vec, _ prng.Key) (State, error) {
	return e.step(e, s, actions)
}

func (e *Escort) AutoReset(s State) State { return e.autoReset(e, s) }

// advance moves the target to the reference point for the current timestep,
// holding at the last point once the trajectory is exhausted.
func (e *Escort) advance(s State) State {
	last := len(e.ref) - 1
	inRange := geom.Mask(s.timestep < len(e.ref))
	at := e.ref[min(s.timestep, last)]
	return s.WithTargets([]r3.Vec{geom.SelectVec(inRange, at, e.ref[last])})
}

func (e *Escort) observe(s State) State {
	n := len(s.agentLocations)
	target := s.targets[0]
	obs := mat.NewDense(n, 3*(n+1), nil)
	for i, p := range s.agentLocations {
		row := make([]float64, 0, 3*(n+1))
		row = append(row, p.X, p.Y, p.Z, target.X, target.Y, target.Z)
		for j, q := range s.agentLocations {
			if j == i {
				continue
			}
			row = append(row, q.X, q.Y, q.Z)
		}
		obs.SetRow(i, row)
	}
	return s.WithObservations(obs)
}

// terminate flags a crash into the ground, the target or another drone and
// broadcasts it to the whole swarm. A crash stays set until the next reset.
func (e *Escort) terminate(s State) State {
	n := len(s.agentLocations)
	target := s.targets[0]
	crashed := make([]float64, n)
	for i, p := range s.agentLocations {
		c := geom.Mask(p.Z < MinAltitude) + geom.Mask(geom.Dist(p, target) < CrashDistance)
		for _, q := range s.agentLocations {
			d := geom.Dist(p, q)
			c += geom.Mask(d > SelfDistance && d < CrashDistance)
		}
		crashed[i] = geom.Mask(c > 0)
	}
	all := geom.Mask(geom.Any(crashed)+geom.Any(s.terminations) > 0)
	return s.WithTerminations(geom.Fill(n, all))
}

func (e *Escort) reward(s State) State {
	n := len(s.agentLocations)
	target := s.targets[0]
	truncated := geom.Any(s.truncations)
	crashed := geom.Any(s.terminations)

	dists := make([]float64, n)
	r := make([]float64, n)
	for i, p := range s.agentLocations {
		for j, q := range s.agentLocations {
			dists[j] = geom.Dist(p, q)
		}
		cohesion := floats.Sum(dists) * CohesionWeight / float64(n-1)
		proximity := ProximityWeight * (2*e.size - geom.Dist(p, target))
		r[i] = truncated*(cohesion+proximity) + crashed*(1-truncated)*CrashPenalty
	}
	return s.WithRewards(r)
}
