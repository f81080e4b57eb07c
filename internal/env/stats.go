package env

import "math"

// EndReason indicates how an episode ended
type EndReason int

const (
	EndNone       EndReason = iota
	EndTerminated           // a drone crashed
	EndTruncated            // step budget exhausted
)

func (e EndReason) String() string {
	switch e {
	case EndNone:
		return "none"
	case EndTerminated:
		return "terminated"
	case EndTruncated:
		return "truncated"
	default:
		return "unknown"
	}
}

// EndOf classifies a state that closes an episode. Truncation wins when both
// masks are set, matching the reward rule.
func EndOf(s State) EndReason {
	switch {
	case s.Truncated():
		return EndTruncated
	case s.Terminated():
		return EndTerminated
	default:
		return EndNone
	}
}

// EpisodeStats captures all metrics from a single episode
type EpisodeStats struct {
	Return        float64   `json:"return"`         // summed reward, averaged over agents
	Steps         int       `json:"steps"`          // transitions taken
	FinalDistance float64   `json:"final_distance"` // mean agent-to-target distance at the end
	End           EndReason `json:"end"`
	Seed          uint64    `json:"seed"`
}

// AggregatedStats holds statistics across multiple episodes
type AggregatedStats struct {
	ReturnMean   float64
	ReturnStd    float64
	StepsMean    float64
	DistanceMean float64
	EndCounts    map[EndReason]int
	NumEpisodes  int
}

// Aggregate computes statistics from multiple episode stats
func Aggregate(episodes []EpisodeStats) AggregatedStats {
	n := len(episodes)
	if n == 0 {
		return AggregatedStats{EndCounts: make(map[EndReason]int)}
	}

	agg := AggregatedStats{
		EndCounts:   make(map[EndReason]int),
		NumEpisodes: n,
	}

	var returnSum, stepsSum, distSum float64
	for _, ep := range episodes {
		returnSum += ep.Return
		stepsSum += float64(ep.Steps)
		distSum += ep.FinalDistance
		agg.EndCounts[ep.End]++
	}

	nf := float64(n)
	agg.ReturnMean = returnSum / nf
	agg.StepsMean = stepsSum / nf
	agg.DistanceMean = distSum / nf

	var variance float64
	for _, ep := range episodes {
		diff := ep.Return - agg.ReturnMean
		variance += diff * diff
	}
	agg.ReturnStd = math.Sqrt(variance / nf)

	return agg
}

// RobustnessScore ranks a policy by mean - lambda * std of its return
func (a AggregatedStats) RobustnessScore(lambda float64) float64 {
	return a.ReturnMean - lambda*a.ReturnStd
}
