package env

import "fmt"

// Box describes a bounded real vector: its length and per-component bounds.
type Box struct {
	Low  []float64 `json:"low"`
	High []float64 `json:"high"`
}

// NewBox builds a Box, checking that both bounds have the same length.
func NewBox(low, high []float64) (Box, error) {
	if len(low) != len(high) {
		return Box{}, fmt.Errorf("box bounds %d/%d: %w", len(low), len(high), ErrShapeMismatch)
	}
	return Box{Low: low, High: high}, nil
}

// Tile repeats the bound pair (low, high) reps times.
func Tile(low, high []float64, reps int) Box {
	b := Box{
		Low:  make([]float64, 0, len(low)*reps),
		High: make([]float64, 0, len(high)*reps),
	}
	for i := 0; i < reps; i++ {
		b.Low = append(b.Low, low...)
		b.High = append(b.High, high...)
	}
	return b
}

// Dim returns the vector length described by the box.
func (b Box) Dim() int { return len(b.Low) }

// Contains reports whether v has the right length and lies within bounds.
func (b Box) Contains(v []float64) bool {
	if len(v) != len(b.Low) {
		return false
	}
	for i, x := range v {
		if x < b.Low[i] || x > b.High[i] {
			return false
		}
	}
	return true
}
