package geom

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func TestDistances(t *testing.T) {
	a := r3.Vec{X: 1, Y: 2, Z: 3}
	b := r3.Vec{X: 4, Y: -2, Z: 3}
	if got := Dist(a, b); got != 5 {
		t.Fatalf("Dist = %v", got)
	}
	if got := Dist2(a, b); got != 25 {
		t.Fatalf("Dist2 = %v", got)
	}
	if got := L1(a, b); got != 7 {
		t.Fatalf("L1 = %v", got)
	}
}

func TestClip(t *testing.T) {
	lo := r3.Vec{X: -3, Y: -3, Z: 0}
	hi := r3.Vec{X: 3, Y: 3, Z: 3}
	got := Clip(r3.Vec{X: -5, Y: 1, Z: 7}, lo, hi)
	if got != (r3.Vec{X: -3, Y: 1, Z: 3}) {
		t.Fatalf("Clip = %v", got)
	}
}

func TestMasks(t *testing.T) {
	if Mask(true) != 1 || Mask(false) != 0 {
		t.Fatal("Mask")
	}
	if Select(1, 2, 5) != 2 || Select(0, 2, 5) != 5 {
		t.Fatal("Select")
	}
	if v := SelectVec(0, r3.Vec{X: 1}, r3.Vec{Y: 1}); v != (r3.Vec{Y: 1}) {
		t.Fatalf("SelectVec = %v", v)
	}
	if Any(nil) != 0 || Any([]float64{0, 0}) != 0 || Any([]float64{0, 1}) != 1 {
		t.Fatal("Any")
	}
	if f := Fill(3, 1); len(f) != 3 || f[2] != 1 {
		t.Fatalf("Fill = %v", f)
	}
}

func TestTrajectory(t *testing.T) {
	start := r3.Vec{X: 1, Y: 1, Z: 2.5}
	end := r3.Vec{X: -1, Y: -1, Z: 2.5}
	ref := Trajectory(start, end, 12)
	if len(ref) != 12 {
		t.Fatalf("len = %d", len(ref))
	}
	if ref[0] != start {
		t.Fatalf("first point %v", ref[0])
	}
	for i := 1; i < len(ref); i++ {
		step := Dist(ref[i-1], ref[i])
		if math.Abs(step-Dist(start, end)/12) > 1e-12 {
			t.Fatalf("uneven spacing at %d: %v", i, step)
		}
	}
	if ref[11].Z != 2.5 || ref[11].X <= -1 {
		t.Fatalf("last point %v", ref[11])
	}
	if same := Trajectory(start, start, 3); same[2] != start {
		t.Fatalf("stationary trajectory %v", same)
	}
}
