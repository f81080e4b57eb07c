package env

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// State is one replica's full mutable world, held as an immutable value.
// Every transition sub-step returns a new State through one of the With
// methods; slices reachable from a published State are never written again.
//
// Terminations and truncations are 0/1 masks so they can be blended
// arithmetically with other values.
type State struct {
	agentLocations []r3.Vec
	timestep       int
	observations   *mat.Dense
	rewards        []float64
	terminations   []float64
	truncations    []float64
	targets        []r3.Vec
}

// NewState builds a State after checking that every per-agent field agrees
// on the agent count. Targets holds either one shared point or one point
// per agent. A nil observation matrix is allowed for states that have not
// been observed yet.
func NewState(locs []r3.Vec, timestep int, obs *mat.Dense, rewards, terms, truncs []float64, targets []r3.Vec) (State, error) {
	n := len(locs)
	if n == 0 {
		return State{}, ErrNoAgents
	}
	if timestep < 0 {
		return State{}, fmt.Errorf("timestep %d: %w", timestep, ErrShapeMismatch)
	}
	for name, l := range map[string]int{"rewards": len(rewards), "terminations": len(terms), "truncations": len(truncs)} {
		if l != n {
			return State{}, fmt.Errorf("%s has %d entries for %d agents: %w", name, l, n, ErrShapeMismatch)
		}
	}
	if len(targets) != 1 && len(targets) != n {
		return State{}, fmt.Errorf("%d targets for %d agents: %w", len(targets), n, ErrShapeMismatch)
	}
	if obs != nil {
		if r, _ := obs.Dims(); r != n {
			return State{}, fmt.Errorf("observation rows %d for %d agents: %w", r, n, ErrShapeMismatch)
		}
	}
	return State{
		agentLocations: cloneVecs(locs),
		timestep:       timestep,
		observations:   cloneDense(obs),
		rewards:        cloneFloats(rewards),
		terminations:   cloneFloats(terms),
		truncations:    cloneFloats(truncs),
		targets:        cloneVecs(targets),
	}, nil
}

// NumAgents returns the number of agents in the state.
func (s State) NumAgents() int { return len(s.agentLocations) }

// Timestep returns the number of transitions since the last reset.
func (s State) Timestep() int { return s.timestep }

// AgentLocations returns a copy of the agent positions.
func (s State) AgentLocations() []r3.Vec { return cloneVecs(s.agentLocations) }

// AgentLocation returns the position of agent i.
func (s State) AgentLocation(i int) r3.Vec { return s.agentLocations[i] }

// Targets returns a copy of the target points.
func (s State) Targets() []r3.Vec { return cloneVecs(s.targets) }

// Target returns the target seen by agent i.
func (s State) Target(i int) r3.Vec {
	if len(s.targets) == 1 {
		return s.targets[0]
	}
	return s.targets[i]
}

// Observations returns a copy of the per-agent observation matrix, one row
// per agent.
func (s State) Observations() *mat.Dense { return cloneDense(s.observations) }

// Observation returns a copy of agent i's observation row.
func (s State) Observation(i int) []float64 {
	return cloneFloats(s.observations.RawRowView(i))
}

// Rewards returns a copy of the per-agent rewards.
func (s State) Rewards() []float64 { return cloneFloats(s.rewards) }

// Terminations returns a copy of the per-agent termination mask.
func (s State) Terminations() []float64 { return cloneFloats(s.terminations) }

// Truncations returns a copy of the per-agent truncation mask.
func (s State) Truncations() []float64 { return cloneFloats(s.truncations) }

// Terminated reports whether any agent has terminated.
func (s State) Terminated() bool { return anySet(s.terminations) }

// Truncated reports whether any agent has been truncated.
func (s State) Truncated() bool { return anySet(s.truncations) }

// Done reports whether the episode has ended for this replica.
func (s State) Done() bool { return s.Terminated() || s.Truncated() }

// The With methods return a copy of s with one field replaced. The caller
// hands over ownership of the argument.

func (s State) WithAgentLocations(locs []r3.Vec) State {
	s.agentLocations = locs
	return s
}

func (s State) WithTimestep(t int) State {
	s.timestep = t
	return s
}

func (s State) WithObservations(obs *mat.Dense) State {
	s.observations = obs
	return s
}

func (s State) WithRewards(r []float64) State {
	s.rewards = r
	return s
}

func (s State) WithTerminations(m []float64) State {
	s.terminations = m
	return s
}

func (s State) WithTruncations(m []float64) State {
	s.truncations = m
	return s
}

func (s State) WithTargets(t []r3.Vec) State {
	s.targets = t
	return s
}

// Equal reports whether two states are bit-for-bit identical.
func (s State) Equal(o State) bool {
	if s.timestep != o.timestep ||
		!equalVecs(s.agentLocations, o.agentLocations) ||
		!equalVecs(s.targets, o.targets) ||
		!equalFloats(s.rewards, o.rewards) ||
		!equalFloats(s.terminations, o.terminations) ||
		!equalFloats(s.truncations, o.truncations) {
		return false
	}
	if s.observations == nil || o.observations == nil {
		return s.observations == nil && o.observations == nil
	}
	return mat.Equal(s.observations, o.observations)
}

// Snapshot is the serialisable form of a State.
type Snapshot struct {
	AgentLocations [][3]float64 `json:"agent_locations"`
	Timestep       int          `json:"timestep"`
	Observations   [][]float64  `json:"observations,omitempty"`
	Rewards        []float64    `json:"rewards"`
	Terminations   []float64    `json:"terminations"`
	Truncations    []float64    `json:"truncations"`
	Targets        [][3]float64 `json:"targets"`
}

// Snapshot copies s into its serialisable form.
func (s State) Snapshot() Snapshot {
	snap := Snapshot{
		AgentLocations: toArrays(s.agentLocations),
		Timestep:       s.timestep,
		Rewards:        cloneFloats(s.rewards),
		Terminations:   cloneFloats(s.terminations),
		Truncations:    cloneFloats(s.truncations),
		Targets:        toArrays(s.targets),
	}
	if s.observations != nil {
		r, _ := s.observations.Dims()
		snap.Observations = make([][]float64, r)
		for i := 0; i < r; i++ {
			snap.Observations[i] = cloneFloats(s.observations.RawRowView(i))
		}
	}
	return snap
}

func anySet(m []float64) bool {
	for _, v := range m {
		if v != 0 {
			return true
		}
	}
	return false
}

func toArrays(vs []r3.Vec) [][3]float64 {
	out := make([][3]float64, len(vs))
	for i, v := range vs {
		out[i] = [3]float64{v.X, v.Y, v.Z}
	}
	return out
}

func cloneVecs(vs []r3.Vec) []r3.Vec {
	if vs == nil {
		return nil
	}
	out := make([]r3.Vec, len(vs))
	copy(out, vs)
	return out
}

func cloneFloats(fs []float64) []float64 {
	if fs == nil {
		return nil
	}
	out := make([]float64, len(fs))
	copy(out, fs)
	return out
}

func cloneDense(m *mat.Dense) *mat.Dense {
	if m == nil {
		return nil
	}
	return mat.DenseCopyOf(m)
}

func equalVecs(a, b []r3.Vec) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalFloats(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
