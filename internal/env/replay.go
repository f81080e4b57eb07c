package env

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"gonum.org/v1/gonum/spatial/r3"

	"swarmrl/internal/prng"
)

// ErrReplayMismatch is returned when playback diverges from the recording.
var ErrReplayMismatch = errors.New("env: replay diverged")

// Replay stores a deterministic action trace for playback
type Replay struct {
	Seed       uint64          `json:"seed"`
	Task       string          `json:"task"`
	Config     json.RawMessage `json:"config,omitempty"`
	Actions    [][][3]float64  `json:"actions"`
	Rewards    [][]float64     `json:"rewards"`
	FinalStats EpisodeStats    `json:"final_stats"`
}

// NewReplay creates a new replay recorder. cfg is stored verbatim so the
// environment can be rebuilt later.
func NewReplay(seed uint64, task string, cfg json.RawMessage) *Replay {
	return &Replay{
		Seed:    seed,
		Task:    task,
		Config:  cfg,
		Actions: make([][][3]float64, 0, 256),
		Rewards: make([][]float64, 0, 256),
	}
}

// Record adds one step to the replay
func (r *Replay) Record(actions []r3.Vec, rewards []float64) {
	r.Actions = append(r.Actions, toArrays(actions))
	r.Rewards = append(r.Rewards, cloneFloats(rewards))
}

// SetFinalStats sets the final episode statistics
func (r *Replay) SetFinalStats(stats EpisodeStats) {
	r.FinalStats = stats
}

// Save writes the replay to a file. Paths ending in .zst are compressed.
func (r *Replay) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	var w io.Writer = f
	if strings.HasSuffix(path, ".zst") {
		enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return err
		}
		defer enc.Close()
		w = enc
	}
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode replay: %w", err)
	}
	return bw.Flush()
}

// LoadReplay loads a replay from a file
func LoadReplay(path string) (*Replay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rd io.Reader = f
	if strings.HasSuffix(path, ".zst") {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		rd = dec
	}
	var r Replay
	if err := json.NewDecoder(bufio.NewReader(rd)).Decode(&r); err != nil {
		return nil, fmt.Errorf("decode replay: %w", err)
	}
	return &r, nil
}

// Playback re-runs the recorded actions on e and checks that every reward
// matches bit for bit. It returns the final state.
func (r *Replay) Playback(e Env) (State, error) {
	p := NewParallel(e)
	p.Reset(prng.New(r.Seed))
	names := e.AgentNames()
	for step, acts := range r.Actions {
		if len(acts) != len(names) {
			return State{}, fmt.Errorf("step %d: %d actions for %d agents: %w", step, len(acts), len(names), ErrShapeMismatch)
		}
		m := make(map[string][]float64, len(names))
		for i, name := range names {
			m[name] = []float64{acts[i][0], acts[i][1], acts[i][2]}
		}
		if _, err := p.Step(m); err != nil {
			return State{}, fmt.Errorf("step %d: %w", step, err)
		}
		got := p.State().rewards
		if step < len(r.Rewards) && !equalFloats(got, r.Rewards[step]) {
			return p.State(), fmt.Errorf("step %d: rewards %v, recorded %v: %w", step, got, r.Rewards[step], ErrReplayMismatch)
		}
	}
	return p.State(), nil
}
