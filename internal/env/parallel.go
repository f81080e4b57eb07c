package env

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"swarmrl/internal/prng"
)

// StepResult is what the keyed single-environment API returns per step,
// every mapping keyed by agent name.
type StepResult struct {
	Observations map[string][]float64          `json:"observations"`
	Rewards      map[string]float64            `json:"rewards"`
	Terminations map[string]bool               `json:"terminations"`
	Truncations  map[string]bool               `json:"truncations"`
	Infos        map[string]map[string]float64 `json:"infos"`
}

// Parallel wraps an Env as a single interactive environment with the usual
// parallel multi-agent reset/step signature. Once the episode ends the live
// agent list is emptied until the next Reset.
//
// Parallel is not safe for concurrent use.
type Parallel struct {
	env    Env
	names  []string
	state  State
	key    prng.Key
	agents []string
}

// NewParallel wraps e.
func NewParallel(e Env) *Parallel {
	return &Parallel{env: e, names: e.AgentNames()}
}

// Env returns the wrapped task.
func (p *Parallel) Env() Env { return p.env }

// Agents returns the agents still acting in the current episode.
func (p *Parallel) Agents() []string {
	out := make([]string, len(p.agents))
	copy(out, p.agents)
	return out
}

// State returns the current state.
func (p *Parallel) State() State { return p.state }

// Reset starts a new episode and returns the initial observations.
func (p *Parallel) Reset(key prng.Key) map[string][]float64 {
	p.key = key
	p.state = p.env.Reset(key)
	p.agents = append(p.agents[:0], p.names...)
	return p.observations()
}

// Step applies one action per agent. Every agent must be present and every
// action must have three components.
func (p *Parallel) Step(actions map[string][]float64) (StepResult, error) {
	if len(p.agents) == 0 {
		return StepResult{}, ErrEpisodeOver
	}
	vecs := make([]r3.Vec, len(p.names))
	for i, name := range p.names {
		a, ok := actions[name]
		if !ok {
			return StepResult{}, fmt.Errorf("missing action for %s: %w", name, ErrShapeMismatch)
		}
		if len(a) != 3 {
			return StepResult{}, fmt.Errorf("action for %s has %d components: %w", name, len(a), ErrShapeMismatch)
		}
		vecs[i] = r3.Vec{X: a[0], Y: a[1], Z: a[2]}
	}

	var stepKey prng.Key
	p.key, stepKey = p.key.Pair()
	next, err := p.env.Step(p.state, vecs, stepKey)
	if err != nil {
		return StepResult{}, err
	}
	p.state = next

	res := StepResult{
		Observations: p.observations(),
		Rewards:      make(map[string]float64, len(p.names)),
		Terminations: make(map[string]bool, len(p.names)),
		Truncations:  make(map[string]bool, len(p.names)),
		Infos:        make(map[string]map[string]float64, len(p.names)),
	}
	var infos []map[string]float64
	if inf, ok := p.env.(Informer); ok {
		infos = inf.Info(next)
	}
	for i, name := range p.names {
		res.Rewards[name] = next.rewards[i]
		res.Terminations[name] = next.terminations[i] != 0
		res.Truncations[name] = next.truncations[i] != 0
		if infos != nil {
			res.Infos[name] = infos[i]
		} else {
			res.Infos[name] = map[string]float64{}
		}
	}
	if next.Done() {
		p.agents = p.agents[:0]
	}
	return res, nil
}

func (p *Parallel) observations() map[string][]float64 {
	obs := make(map[string][]float64, len(p.names))
	for i, name := range p.names {
		obs[name] = p.state.Observation(i)
	}
	return obs
}
