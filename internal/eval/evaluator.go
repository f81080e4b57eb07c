package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"

	"swarmrl/internal/batch"
	"swarmrl/internal/env"
	"swarmrl/internal/policy"
	"swarmrl/internal/prng"
)

// Evaluator runs full episodes of one task under one policy.
type Evaluator struct {
	env     env.Env
	policy  policy.Policy
	cfgJSON json.RawMessage
	workers int
}

// NewEvaluator creates a new evaluator. cfg is stored in recorded replays so
// they can be rebuilt later; it may be nil.
func NewEvaluator(e env.Env, p policy.Policy, cfg json.RawMessage, workers int) *Evaluator {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Evaluator{env: e, policy: p, cfgJSON: cfg, workers: workers}
}

// local returns a policy safe to use from one goroutine.
func (ev *Evaluator) local() policy.Policy {
	if m, ok := ev.policy.(*policy.MLP); ok {
		return m.Clone()
	}
	return ev.policy
}

// Episode runs one episode from seed until every agent is done.
func (ev *Evaluator) Episode(seed uint64) (env.EpisodeStats, error) {
	_, stats, err := ev.run(seed, nil)
	return stats, err
}

// EpisodeWithReplay runs an episode and records actions for replay
func (ev *Evaluator) EpisodeWithReplay(seed uint64) (*env.Replay, env.EpisodeStats, error) {
	rep := env.NewReplay(seed, ev.env.Name(), ev.cfgJSON)
	_, stats, err := ev.run(seed, rep)
	if err != nil {
		return nil, stats, err
	}
	rep.SetFinalStats(stats)
	return rep, stats, nil
}

func (ev *Evaluator) run(seed uint64, rep *env.Replay) (env.State, env.EpisodeStats, error) {
	p := env.NewParallel(ev.env)
	pol := ev.local()
	names := ev.env.AgentNames()

	key := prng.New(seed)
	p.Reset(key)
	actKey, _ := key.Split(0)

	stats := env.EpisodeStats{Seed: seed}
	for len(p.Agents()) > 0 {
		var sub prng.Key
		actKey, sub = actKey.Pair()
		acts, err := policy.ActAll(pol, p.State(), sub)
		if err != nil {
			return p.State(), stats, err
		}
		if _, err := p.Step(toMap(names, acts)); err != nil {
			return p.State(), stats, fmt.Errorf("eval seed %d: %w", seed, err)
		}
		s := p.State()
		stats.Return += stat.Mean(s.Rewards(), nil)
		if rep != nil {
			rep.Record(acts, s.Rewards())
		}
	}
	s := p.State()
	stats.Steps = s.Timestep()
	stats.FinalDistance = batch.MeanTargetDistance(s)
	stats.End = env.EndOf(s)
	return s, stats, nil
}

// MultiSeed evaluates n consecutive seeds starting at base on the worker
// pool. Results are in seed order whatever the worker count.
func (ev *Evaluator) MultiSeed(ctx context.Context, base uint64, n int) (env.AggregatedStats, []env.EpisodeStats, error) {
	episodes := make([]env.EpisodeStats, n)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(ev.workers)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			st, err := ev.Episode(base + uint64(i))
			if err != nil {
				return err
			}
			episodes[i] = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return env.AggregatedStats{}, nil, err
	}
	return env.Aggregate(episodes), episodes, nil
}

// Compare evaluates several policies on the same seeds and returns their
// aggregated stats in input order.
func Compare(ctx context.Context, e env.Env, policies []policy.Policy, base uint64, n, workers int) ([]env.AggregatedStats, error) {
	out := make([]env.AggregatedStats, len(policies))
	for i, p := range policies {
		agg, _, err := NewEvaluator(e, p, nil, workers).MultiSeed(ctx, base, n)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p.Name(), err)
		}
		out[i] = agg
	}
	return out, nil
}

func toMap(names []string, acts []r3.Vec) map[string][]float64 {
	m := make(map[string][]float64, len(names))
	for i, name := range names {
		m[name] = []float64{acts[i].X, acts[i].Y, acts[i].Z}
	}
	return m
}
