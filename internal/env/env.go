// Package env implements the drone swarm environments: the immutable State,
// the transition family shared by every task and the branch-free auto-reset
// used by batched execution.
//
// A transition runs its sub-steps in a fixed order:
//
//	sanitize actions -> timestep+1 -> advance world -> observe
//	-> terminate -> truncate -> reward
//
// Reward comes last because it reads this step's termination and truncation
// masks.
package env

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"swarmrl/internal/geom"
	"swarmrl/internal/prng"
)

// Construction and argument errors.
var (
	ErrNoAgents        = errors.New("env: no agents")
	ErrTooFewAgents    = errors.New("env: task needs at least two agents")
	ErrShapeMismatch   = errors.New("env: shape mismatch")
	ErrEmptyTrajectory = errors.New("env: empty reference trajectory")
	ErrBadSize         = errors.New("env: map size must be positive")
	ErrBadLimit        = errors.New("env: episode limit must be positive")
	ErrEpisodeOver     = errors.New("env: episode is over, call Reset")
)

// StepSize is the distance travelled per unit of action on each axis.
const StepSize = 0.2

// Collision thresholds.
const (
	MinAltitude   = 0.2
	CrashDistance = 0.2
	// SelfDistance excludes an agent's zero distance to itself from the
	// inter-agent collision test.
	SelfDistance = 0.001
)

// Env is the transition family of one task. Implementations are immutable
// after construction and safe for concurrent use across replicas.
type Env interface {
	// Name identifies the task ("hover", "escort", "surround").
	Name() string
	NumAgents() int
	// AgentNames returns the identifiers used by the keyed single-env API.
	AgentNames() []string
	ObservationSpace() Box
	ActionSpace() Box
	// Reset returns the fresh initial state.
	Reset(key prng.Key) State
	// Step applies one transition. actions holds one vector per agent.
	Step(s State, actions []r3.Vec, key prng.Key) (State, error)
	// AutoReset replaces s with the fresh state when its episode has ended
	// and otherwise passes it through with observations recomputed.
	AutoReset(s State) State
	// GlobalState flattens agent locations followed by the targets.
	GlobalState(s State) []float64
}

// Informer is implemented by tasks that expose per-agent diagnostics.
type Informer interface {
	Info(s State) []map[string]float64
}

// task holds the per-task sub-steps. base drives them in order.
type task interface {
	advance(s State) State
	observe(s State) State
	terminate(s State) State
	reward(s State) State
}

// base carries the configuration shared by every task. It is referenced by
// closure from the sub-steps and never copied into State.
type base struct {
	name         string
	agentNames   []string
	initPos      []r3.Vec
	initTargets  []r3.Vec
	size         float64
	episodeLimit int
	lo, hi       r3.Vec
}

func newBase(name string, ids []int, initPos []r3.Vec, size float64, limit int) (base, error) {
	n := len(initPos)
	if n == 0 {
		return base{}, ErrNoAgents
	}
	if ids == nil {
		ids = make([]int, n)
		for i := range ids {
			ids[i] = i
		}
	}
	if len(ids) != n {
		return base{}, fmt.Errorf("%d drone ids for %d initial positions: %w", len(ids), n, ErrShapeMismatch)
	}
	if size <= 0 {
		return base{}, fmt.Errorf("size %v: %w", size, ErrBadSize)
	}
	if limit <= 0 {
		return base{}, fmt.Errorf("limit %d: %w", limit, ErrBadLimit)
	}
	names := make([]string, n)
	for i, id := range ids {
		names[i] = fmt.Sprintf("agent_%d", id)
	}
	return base{
		name:         name,
		agentNames:   names,
		initPos:      cloneVecs(initPos),
		size:         size,
		episodeLimit: limit,
		lo:           r3.Vec{X: -size, Y: -size, Z: 0},
		hi:           r3.Vec{X: size, Y: size, Z: size},
	}, nil
}

func (b *base) Name() string { return b.name }

func (b *base) NumAgents() int { return len(b.initPos) }

func (b *base) AgentNames() []string {
	out := make([]string, len(b.agentNames))
	copy(out, b.agentNames)
	return out
}

// Size returns the map bound.
func (b *base) Size() float64 { return b.size }

// EpisodeLimit returns the step budget after which all agents truncate.
func (b *base) EpisodeLimit() int { return b.episodeLimit }

func (b *base) ActionSpace() Box {
	return Box{Low: []float64{-1, -1, -1}, High: []float64{1, 1, 1}}
}

func (b *base) GlobalState(s State) []float64 {
	out := make([]float64, 0, 3*(len(s.agentLocations)+len(s.targets)))
	for _, v := range s.agentLocations {
		out = append(out, v.X, v.Y, v.Z)
	}
	for _, v := range s.targets {
		out = append(out, v.X, v.Y, v.Z)
	}
	return out
}

// fresh builds the initial state without observations.
func (b *base) fresh() State {
	n := len(b.initPos)
	return State{
		agentLocations: cloneVecs(b.initPos),
		rewards:        make([]float64, n),
		terminations:   make([]float64, n),
		truncations:    make([]float64, n),
		targets:        cloneVecs(b.initTargets),
	}
}

func (b *base) reset(t task) State {
	return t.observe(b.fresh())
}

// sanitize scales each action by StepSize, adds it to the agent position and
// clips the result to the map.
func (b *base) sanitize(s State, actions []r3.Vec) State {
	locs := make([]r3.Vec, len(s.agentLocations))
	for i, p := range s.agentLocations {
		locs[i] = geom.Clip(r3.Add(p, r3.Scale(StepSize, actions[i])), b.lo, b.hi)
	}
	return s.WithAgentLocations(locs)
}

// truncate sets every agent's truncation mask when the step budget is hit.
func (b *base) truncate(s State) State {
	return s.WithTruncations(geom.Fill(len(s.agentLocations), geom.Mask(s.timestep == b.episodeLimit)))
}

func (b *base) step(t task, s State, actions []r3.Vec) (State, error) {
	n := len(b.initPos)
	if len(actions) != n {
		return State{}, fmt.Errorf("%d actions for %d agents: %w", len(actions), n, ErrShapeMismatch)
	}
	if s.NumAgents() != n {
		return State{}, fmt.Errorf("state holds %d agents, env has %d: %w", s.NumAgents(), n, ErrShapeMismatch)
	}
	s = b.sanitize(s, actions)
	s = s.WithTimestep(s.timestep + 1)
	s = t.advance(s)
	s = t.observe(s)
	s = t.terminate(s)
	s = b.truncate(s)
	s = t.reward(s)
	return s, nil
}

// autoReset blends the fresh state and s field by field with the done mask.
func (b *base) autoReset(t task, s State) State {
	done := geom.Mask(geom.Any(s.truncations)+geom.Any(s.terminations) > 0)
	keep := 1 - done

	locs := make([]r3.Vec, len(s.agentLocations))
	for i := range locs {
		locs[i] = geom.SelectVec(done, b.initPos[i], s.agentLocations[i])
	}
	targets := make([]r3.Vec, len(s.targets))
	for i := range targets {
		targets[i] = geom.SelectVec(done, b.initTargets[i], s.targets[i])
	}
	next := State{
		agentLocations: locs,
		timestep:       int(keep * float64(s.timestep)),
		rewards:        scale(keep, s.rewards),
		terminations:   scale(keep, s.terminations),
		truncations:    scale(keep, s.truncations),
		targets:        targets,
	}
	return t.observe(next)
}

func scale(f float64, xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = f * x
	}
	return out
}
