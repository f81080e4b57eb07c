package batch

import (
	"gonum.org/v1/gonum/stat"

	"swarmrl/internal/env"
	"swarmrl/internal/geom"
)

// Summary aggregates one iteration across all replicas.
type Summary struct {
	Iteration    int     `json:"iteration"`
	MeanReward   float64 `json:"mean_reward"`
	MeanTimestep float64 `json:"mean_timestep"`
	Finished     int     `json:"finished"`
	Terminated   int     `json:"terminated"`
	Truncated    int     `json:"truncated"`
}

// Summarize reduces the post-transition states of one iteration.
func Summarize(iter int, stepped []env.State) Summary {
	sum := Summary{Iteration: iter}
	rewards := make([]float64, len(stepped))
	steps := make([]float64, len(stepped))
	for i, s := range stepped {
		rewards[i] = stat.Mean(s.Rewards(), nil)
		steps[i] = float64(s.Timestep())
		switch env.EndOf(s) {
		case env.EndTerminated:
			sum.Terminated++
			sum.Finished++
		case env.EndTruncated:
			sum.Truncated++
			sum.Finished++
		}
	}
	if len(stepped) > 0 {
		sum.MeanReward = stat.Mean(rewards, nil)
		sum.MeanTimestep = stat.Mean(steps, nil)
	}
	return sum
}

// Episode is a finished episode of one replica.
type Episode struct {
	Replica   int `json:"replica"`
	Iteration int `json:"iteration"`
	env.EpisodeStats
}

// Tracker accumulates per-replica returns across iterations and emits an
// Episode whenever a replica finishes.
type Tracker struct {
	returns []float64
}

// NewTracker tracks n replicas.
func NewTracker(n int) *Tracker {
	return &Tracker{returns: make([]float64, n)}
}

// Observe folds one iteration into the running returns.
func (t *Tracker) Observe(iter int, stepped []env.State) []Episode {
	var done []Episode
	for r, s := range stepped {
		t.returns[r] += stat.Mean(s.Rewards(), nil)
		if !s.Done() {
			continue
		}
		done = append(done, Episode{
			Replica:   r,
			Iteration: iter,
			EpisodeStats: env.EpisodeStats{
				Return:        t.returns[r],
				Steps:         s.Timestep(),
				FinalDistance: MeanTargetDistance(s),
				End:           env.EndOf(s),
			},
		})
		t.returns[r] = 0
	}
	return done
}

// MeanTargetDistance averages the agent-to-target distance over agents.
func MeanTargetDistance(s env.State) float64 {
	d := make([]float64, s.NumAgents())
	for i := range d {
		d[i] = geom.Dist(s.AgentLocation(i), s.Target(i))
	}
	return stat.Mean(d, nil)
}
