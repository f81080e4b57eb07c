package policy

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat/distuv"

	"swarmrl/internal/prng"
)

// MLP is a small feedforward network with tanh outputs, so its three outputs
// are already valid velocity commands.
type MLP struct {
	InputSize int
	Hidden1   int
	Hidden2   int // 0 means no second hidden layer

	// Weights stored contiguously, bias first for every unit.
	Weights []float64

	// Pre-allocated buffers for the forward pass
	h1  []float64
	h2  []float64
	out [3]float64
}

var _ Policy = (*MLP)(nil)

// NewMLP creates a zero-weight MLP with the given architecture.
func NewMLP(inputSize, hidden1, hidden2 int) *MLP {
	m := &MLP{
		InputSize: inputSize,
		Hidden1:   hidden1,
		Hidden2:   hidden2,
	}
	m.Weights = make([]float64, m.NumWeights())
	m.h1 = make([]float64, hidden1)
	if hidden2 > 0 {
		m.h2 = make([]float64, hidden2)
	}
	return m
}

// NumWeights returns the total number of weights including biases.
func (m *MLP) NumWeights() int {
	size := (m.InputSize + 1) * m.Hidden1
	if m.Hidden2 > 0 {
		size += (m.Hidden1 + 1) * m.Hidden2
		size += (m.Hidden2 + 1) * 3
	} else {
		size += (m.Hidden1 + 1) * 3
	}
	return size
}

// SetWeights copies w into the network.
func (m *MLP) SetWeights(w []float64) error {
	if len(w) != m.NumWeights() {
		return fmt.Errorf("policy: %d weights for a network of %d", len(w), m.NumWeights())
	}
	copy(m.Weights, w)
	return nil
}

// Randomize draws Xavier-like normal weights from key.
func (m *MLP) Randomize(key prng.Key) {
	n := distuv.Normal{Mu: 0, Sigma: math.Sqrt(2.0 / float64(len(m.Weights))), Src: key.Source()}
	for i := range m.Weights {
		m.Weights[i] = n.Rand()
	}
}

func (m *MLP) Name() string { return "mlp" }

// Act runs a forward pass. The MLP reuses its buffers, so it is not safe for
// concurrent use; Clone one per goroutine.
func (m *MLP) Act(obs []float64, _ prng.Key) (r3.Vec, error) {
	if len(obs) != m.InputSize {
		return r3.Vec{}, fmt.Errorf("policy: observation of %d for input %d", len(obs), m.InputSize)
	}
	offset := layer(obs, m.Weights, 0, m.h1, relu)
	last := m.h1
	if m.Hidden2 > 0 {
		offset = layer(m.h1, m.Weights, offset, m.h2, relu)
		last = m.h2
	}
	layer(last, m.Weights, offset, m.out[:], math.Tanh)
	return r3.Vec{X: m.out[0], Y: m.out[1], Z: m.out[2]}, nil
}

// Clone returns an independent copy with its own buffers.
func (m *MLP) Clone() *MLP {
	c := NewMLP(m.InputSize, m.Hidden1, m.Hidden2)
	copy(c.Weights, m.Weights)
	return c
}

// layer fills out from in and returns the offset past the weights it used.
func layer(in, w []float64, offset int, out []float64, act func(float64) float64) int {
	for j := range out {
		sum := w[offset] // bias
		offset++
		for _, x := range in {
			sum += x * w[offset]
			offset++
		}
		out[j] = act(sum)
	}
	return offset
}

func relu(x float64) float64 {
	if x > 0 {
		return x
	}
	return 0
}

type savedMLP struct {
	InputSize int       `json:"input_size"`
	Hidden1   int       `json:"hidden1"`
	Hidden2   int       `json:"hidden2"`
	Task      string    `json:"task,omitempty"`
	Weights   []float64 `json:"weights"`
}

// SaveWeights writes the network as indented JSON, creating parent dirs.
func (m *MLP) SaveWeights(path, task string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(savedMLP{
		InputSize: m.InputSize,
		Hidden1:   m.Hidden1,
		Hidden2:   m.Hidden2,
		Task:      task,
		Weights:   m.Weights,
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadMLP reads a network written by SaveWeights.
func LoadMLP(path string) (*MLP, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var saved savedMLP
	if err := json.Unmarshal(data, &saved); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	m := NewMLP(saved.InputSize, saved.Hidden1, saved.Hidden2)
	if err := m.SetWeights(saved.Weights); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Options selects and parameterises a policy by name.
type Options struct {
	Name        string
	Standoff    float64
	WeightsPath string
	InputSize   int
	Hidden1     int
	Hidden2     int
	Seed        uint64
}

// FromOptions builds the named policy. An mlp without a weights file gets
// random weights drawn from Seed.
func FromOptions(o Options) (Policy, error) {
	switch o.Name {
	case "hold":
		return Hold{}, nil
	case "random":
		return Random{}, nil
	case "greedy":
		return NewGreedy(o.Standoff), nil
	case "mlp":
		if o.WeightsPath != "" {
			m, err := LoadMLP(o.WeightsPath)
			if err != nil {
				return nil, err
			}
			if m.InputSize != o.InputSize {
				return nil, fmt.Errorf("policy: weights expect input %d, task observes %d", m.InputSize, o.InputSize)
			}
			return m, nil
		}
		m := NewMLP(o.InputSize, o.Hidden1, o.Hidden2)
		m.Randomize(prng.New(o.Seed))
		return m, nil
	default:
		return nil, fmt.Errorf("policy: unknown policy %q", o.Name)
	}
}
