// Package batch runs many independent replicas of one task in lockstep.
//
// Each iteration splits the shared key into one child per replica, samples
// uniform actions in [-1, 1] from that child, applies the transition and then
// the auto-reset. Replicas never read each other's state, so they are fanned
// out across workers and the result does not depend on scheduling.
package batch

import (
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat/distuv"

	"swarmrl/internal/env"
	"swarmrl/internal/prng"
)

// ErrNoReplicas is returned for a batch without replicas.
var ErrNoReplicas = errors.New("batch: num_envs must be positive")

// Config sizes a batch run.
type Config struct {
	NumEnvs int
	Steps   int
	// Workers bounds the number of goroutines; <= 0 means one per CPU.
	Workers int
}

// Hook sees the states of every replica after the transition and before the
// auto-reset, so finished episodes are still visible.
type Hook func(iter int, stepped []env.State)

// Driver owns the replica states and the shared key.
type Driver struct {
	env     env.Env
	cfg     Config
	workers int
	states  []env.State
	key     prng.Key
}

// New builds a driver for e. Call Init before iterating.
func New(e env.Env, cfg Config) (*Driver, error) {
	if cfg.NumEnvs <= 0 {
		return nil, ErrNoReplicas
	}
	if cfg.Steps < 0 {
		return nil, fmt.Errorf("batch: negative step count %d", cfg.Steps)
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Driver{
		env:     e,
		cfg:     cfg,
		workers: min(workers, cfg.NumEnvs),
		states:  make([]env.State, cfg.NumEnvs),
	}, nil
}

// Init resets every replica from its own child of key.
func (d *Driver) Init(key prng.Key) {
	next, subs := key.Split(d.cfg.NumEnvs)
	_ = d.forEach(func(r int) error {
		d.states[r] = d.env.Reset(subs[r])
		return nil
	})
	d.key = next
}

// Run iterates the configured number of steps.
func (d *Driver) Run(hook Hook) error {
	return d.Iterate(d.cfg.Steps, hook)
}

// Iterate advances every replica n times. The loop always runs to the end
// unless a transition rejects its arguments.
func (d *Driver) Iterate(n int, hook Hook) error {
	numAgents := d.env.NumAgents()
	for it := 0; it < n; it++ {
		next, subs := d.key.Split(d.cfg.NumEnvs)
		stepped := make([]env.State, d.cfg.NumEnvs)
		reset := make([]env.State, d.cfg.NumEnvs)
		err := d.forEach(func(r int) error {
			actKey, stepKey := subs[r].Pair()
			s, err := d.env.Step(d.states[r], SampleActions(actKey, numAgents), stepKey)
			if err != nil {
				return fmt.Errorf("replica %d: %w", r, err)
			}
			stepped[r] = s
			reset[r] = d.env.AutoReset(s)
			return nil
		})
		if err != nil {
			return fmt.Errorf("iteration %d: %w", it, err)
		}
		if hook != nil {
			hook(it, stepped)
		}
		d.states = reset
		d.key = next
	}
	return nil
}

// States returns the current replica states.
func (d *Driver) States() []env.State {
	out := make([]env.State, len(d.states))
	copy(out, d.states)
	return out
}

// Key returns the shared key the next iteration will split.
func (d *Driver) Key() prng.Key { return d.key }

// forEach calls fn for every replica, spreading contiguous chunks over the
// worker pool.
func (d *Driver) forEach(fn func(r int) error) error {
	var g errgroup.Group
	chunk := (d.cfg.NumEnvs + d.workers - 1) / d.workers
	for lo := 0; lo < d.cfg.NumEnvs; lo += chunk {
		lo, hi := lo, min(lo+chunk, d.cfg.NumEnvs)
		g.Go(func() error {
			for r := lo; r < hi; r++ {
				if err := fn(r); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// SampleActions draws one uniform [-1, 1] action per agent from key.
func SampleActions(key prng.Key, numAgents int) []r3.Vec {
	u := distuv.Uniform{Min: -1, Max: 1, Src: key.Source()}
	acts := make([]r3.Vec, numAgents)
	for i := range acts {
		acts[i] = r3.Vec{X: u.Rand(), Y: u.Rand(), Z: u.Rand()}
	}
	return acts
}
