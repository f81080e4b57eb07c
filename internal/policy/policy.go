// Package policy holds decentralised controllers that map one agent's
// observation row to a velocity command in [-1,1]^3. Every observation row
// starts with the agent's own position followed by its target; escort rows
// then list the other drones.
package policy

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat/distuv"

	"swarmrl/internal/env"
	"swarmrl/internal/geom"
	"swarmrl/internal/prng"
)

// ErrShortObservation is returned for rows too short to hold a position and
// a target.
var ErrShortObservation = errors.New("policy: observation shorter than 6")

// Policy picks one agent's action.
type Policy interface {
	Name() string
	Act(obs []float64, key prng.Key) (r3.Vec, error)
}

var (
	unitLo = r3.Vec{X: -1, Y: -1, Z: -1}
	unitHi = r3.Vec{X: 1, Y: 1, Z: 1}
)

// Hold always commands zero velocity.
type Hold struct{}

func (Hold) Name() string { return "hold" }

func (Hold) Act(obs []float64, _ prng.Key) (r3.Vec, error) {
	if len(obs) < 6 {
		return r3.Vec{}, ErrShortObservation
	}
	return r3.Vec{}, nil
}

// Random samples each component uniformly from [-1,1].
type Random struct{}

func (Random) Name() string { return "random" }

func (Random) Act(obs []float64, key prng.Key) (r3.Vec, error) {
	if len(obs) < 6 {
		return r3.Vec{}, ErrShortObservation
	}
	u := distuv.Uniform{Min: -1, Max: 1, Src: key.Source()}
	return r3.Vec{X: u.Rand(), Y: u.Rand(), Z: u.Rand()}, nil
}

// Greedy flies straight at a point Standoff away from the target along the
// line to it, and pushes away from neighbours closer than Separation.
type Greedy struct {
	Standoff   float64
	Separation float64
}

// NewGreedy uses twice the crash distance as separation radius.
func NewGreedy(standoff float64) Greedy {
	return Greedy{Standoff: standoff, Separation: 2 * env.CrashDistance}
}

func (g Greedy) Name() string { return "greedy" }

func (g Greedy) Act(obs []float64, _ prng.Key) (r3.Vec, error) {
	if len(obs) < 6 {
		return r3.Vec{}, ErrShortObservation
	}
	pos := vecAt(obs, 0)
	target := vecAt(obs, 3)

	toTarget := r3.Sub(target, pos)
	d := r3.Norm(toTarget)
	var move r3.Vec
	if d > 0 {
		move = r3.Scale((d-g.Standoff)/d, toTarget)
	}
	for off := 6; off+3 <= len(obs); off += 3 {
		away := r3.Sub(pos, vecAt(obs, off))
		if nd := r3.Norm(away); nd > 0 && nd < g.Separation {
			move = r3.Add(move, r3.Scale((g.Separation-nd)/nd, away))
		}
	}
	return geom.Clip(r3.Scale(1/env.StepSize, move), unitLo, unitHi), nil
}

// ActAll runs p for every row of s's observations. Each agent gets its own
// key split from key.
func ActAll(p Policy, s env.State, key prng.Key) ([]r3.Vec, error) {
	n := s.NumAgents()
	_, keys := key.Split(n)
	out := make([]r3.Vec, n)
	for i := 0; i < n; i++ {
		a, err := p.Act(s.Observation(i), keys[i])
		if err != nil {
			return nil, fmt.Errorf("agent %d: %w", i, err)
		}
		out[i] = a
	}
	return out, nil
}

// ActMap is ActAll for the keyed API. Agents are visited in names order.
func ActMap(p Policy, names []string, obs map[string][]float64, key prng.Key) (map[string][]float64, error) {
	_, keys := key.Split(len(names))
	out := make(map[string][]float64, len(names))
	for i, name := range names {
		row, ok := obs[name]
		if !ok {
			return nil, fmt.Errorf("no observation for %s", name)
		}
		a, err := p.Act(row, keys[i])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out[name] = []float64{a.X, a.Y, a.Z}
	}
	return out, nil
}

func vecAt(xs []float64, off int) r3.Vec {
	return r3.Vec{X: xs[off], Y: xs[off+1], Z: xs[off+2]}
}
