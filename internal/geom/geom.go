// Package geom holds the numeric primitives shared by every task: distances,
// per-axis clipping, 0/1 masks and reference trajectories.
//
// Nothing in here branches on data that varies between replicas. Where two
// outcomes are possible both are computed and blended with a mask.
package geom

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
)

// Dist returns the Euclidean distance between a and b.
func Dist(a, b r3.Vec) float64 {
	return r3.Norm(r3.Sub(a, b))
}

// Dist2 returns the squared Euclidean distance between a and b.
func Dist2(a, b r3.Vec) float64 {
	return r3.Norm2(r3.Sub(a, b))
}

// L1 returns the Manhattan distance between a and b.
func L1(a, b r3.Vec) float64 {
	d := r3.Sub(a, b)
	return math.Abs(d.X) + math.Abs(d.Y) + math.Abs(d.Z)
}

// Clip bounds v per axis to [lo, hi].
func Clip(v, lo, hi r3.Vec) r3.Vec {
	return r3.Vec{
		X: math.Min(math.Max(v.X, lo.X), hi.X),
		Y: math.Min(math.Max(v.Y, lo.Y), hi.Y),
		Z: math.Min(math.Max(v.Z, lo.Z), hi.Z),
	}
}

// Mask converts a predicate to 1 or 0.
func Mask(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Select blends two already computed values: mask*a + (1-mask)*b.
func Select(mask, a, b float64) float64 {
	return mask*a + (1-mask)*b
}

// SelectVec is Select applied to each axis.
func SelectVec(mask float64, a, b r3.Vec) r3.Vec {
	return r3.Add(r3.Scale(mask, a), r3.Scale(1-mask, b))
}

// Any returns 1 if any mask in m is set. An empty slice yields 0.
func Any(m []float64) float64 {
	if len(m) == 0 {
		return 0
	}
	return Mask(floats.Max(m) > 0)
}

// Fill returns a slice of n copies of v.
func Fill(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// Trajectory interpolates n reference points from start towards end.
// Point t is start + (end-start)*t/n, so the last point stops one step short
// of end.
func Trajectory(start, end r3.Vec, n int) []r3.Vec {
	ref := make([]r3.Vec, n)
	delta := r3.Sub(end, start)
	for t := 0; t < n; t++ {
		ref[t] = r3.Add(start, r3.Scale(float64(t)/float64(n), delta))
	}
	return ref
}
