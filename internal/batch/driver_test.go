package batch

import (
	"errors"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"swarmrl/internal/env"
	"swarmrl/internal/prng"
)

func newEscort(t *testing.T) env.Env {
	t.Helper()
	e, err := env.NewEscort(env.EscortConfig{
		InitFlyingPos: []r3.Vec{
			{X: 0, Y: 0, Z: 1}, {X: 2, Y: 1, Z: 1}, {X: 0, Y: 1, Z: 1}, {X: 2, Y: 2, Z: 1}, {X: 1, Y: 0, Z: 1},
		},
		InitTarget:         r3.Vec{X: 1, Y: 1, Z: 2.5},
		FinalTarget:        r3.Vec{X: -2, Y: -2, Z: 3},
		IntermediatePoints: 150,
		Size:               3,
		EpisodeLimit:       100,
	})
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func runDriver(t *testing.T, e env.Env, workers int, seed uint64, steps int) ([]env.State, [][]env.State) {
	t.Helper()
	d, err := New(e, Config{NumEnvs: 16, Steps: steps, Workers: workers})
	if err != nil {
		t.Fatal(err)
	}
	d.Init(prng.New(seed))
	var trace [][]env.State
	if err := d.Run(func(_ int, stepped []env.State) { trace = append(trace, stepped) }); err != nil {
		t.Fatal(err)
	}
	return d.States(), trace
}

func TestDriverDeterministic(t *testing.T) {
	e := newEscort(t)
	a, traceA := runDriver(t, e, 4, 5, 150)
	b, traceB := runDriver(t, e, 4, 5, 150)
	for r := range a {
		if !a[r].Equal(b[r]) {
			t.Fatalf("replica %d diverged between runs", r)
		}
	}
	for it := range traceA {
		for r := range traceA[it] {
			if !traceA[it][r].Equal(traceB[it][r]) {
				t.Fatalf("iteration %d replica %d diverged", it, r)
			}
		}
	}
}

func TestDriverIndependentOfWorkerCount(t *testing.T) {
	e := newEscort(t)
	a, _ := runDriver(t, e, 1, 9, 60)
	b, _ := runDriver(t, e, 7, 9, 60)
	for r := range a {
		if !a[r].Equal(b[r]) {
			t.Fatalf("replica %d depends on worker count", r)
		}
	}
}

func TestDriverSeedsDiffer(t *testing.T) {
	e := newEscort(t)
	a, _ := runDriver(t, e, 2, 1, 10)
	b, _ := runDriver(t, e, 2, 2, 10)
	same := true
	for r := range a {
		same = same && a[r].Equal(b[r])
	}
	if same {
		t.Fatal("different seeds produced identical batches")
	}
}

func TestDriverReplicasEvolveIndependently(t *testing.T) {
	e := newEscort(t)
	states, _ := runDriver(t, e, 3, 5, 3)
	if states[0].Equal(states[1]) {
		t.Fatal("replicas received identical actions")
	}
}

func TestDriverAutoResets(t *testing.T) {
	e := newEscort(t)
	_, trace := runDriver(t, e, 4, 3, 150)
	finished := 0
	for it := 1; it < len(trace); it++ {
		for r := range trace[it] {
			prev := trace[it-1][r]
			cur := trace[it][r]
			if prev.Done() {
				finished++
				if cur.Timestep() != 1 {
					t.Fatalf("iteration %d replica %d: timestep %d after reset", it, r, cur.Timestep())
				}
			} else if cur.Timestep() != prev.Timestep()+1 {
				t.Fatalf("iteration %d replica %d: timestep jumped %d -> %d", it, r, prev.Timestep(), cur.Timestep())
			}
			if cur.Timestep() > 100 {
				t.Fatalf("timestep %d past the limit", cur.Timestep())
			}
		}
	}
	if finished == 0 {
		t.Fatal("no episode finished in 150 iterations")
	}
}

func TestSampleActionsRange(t *testing.T) {
	acts := SampleActions(prng.New(4), 50)
	for _, a := range acts {
		for _, v := range []float64{a.X, a.Y, a.Z} {
			if v < -1 || v > 1 {
				t.Fatalf("action component %v outside [-1, 1]", v)
			}
		}
	}
	again := SampleActions(prng.New(4), 50)
	for i := range acts {
		if acts[i] != again[i] {
			t.Fatal("sampling is not deterministic")
		}
	}
}

func TestNewRejectsEmptyBatch(t *testing.T) {
	if _, err := New(newEscort(t), Config{NumEnvs: 0, Steps: 1}); !errors.Is(err, ErrNoReplicas) {
		t.Fatalf("err %v, want ErrNoReplicas", err)
	}
}
