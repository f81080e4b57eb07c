package logging

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"swarmrl/internal/batch"
	"swarmrl/internal/env"
	"swarmrl/internal/prng"
)

func TestLoggerWritesCSVAndJSONL(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "a", "run.csv")
	jsonPath := filepath.Join(dir, "b", "run.jsonl")
	var console bytes.Buffer
	l, err := NewLogger(csvPath, jsonPath, New("info", &console), 2)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Init(); err != nil {
		t.Fatal(err)
	}
	for i := 1; i <= 3; i++ {
		sum := batch.Summary{Iteration: i, MeanReward: -0.5 * float64(i), MeanTimestep: float64(i), Truncated: i - 1, Finished: i - 1}
		if err := l.LogIteration("run-1", 0, sum); err != nil {
			t.Fatal(err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(csvPath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 4 {
		t.Fatalf("csv rows = %d, want header + 3", len(rows))
	}
	if rows[0][2] != "iteration" || rows[3][2] != "3" || rows[3][0] != "run-1" {
		t.Fatalf("unexpected csv: %v", rows)
	}

	jf, err := os.Open(jsonPath)
	if err != nil {
		t.Fatal(err)
	}
	defer jf.Close()
	sc := bufio.NewScanner(jf)
	var recs []IterationRecord
	for sc.Scan() {
		var r IterationRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Fatal(err)
		}
		recs = append(recs, r)
	}
	if len(recs) != 3 || recs[1].Iteration != 2 || recs[1].MeanReward != -1 {
		t.Fatalf("jsonl records: %+v", recs)
	}

	// Only iteration 2 is a multiple of every=2.
	if got := strings.Count(console.String(), "iteration"); got != 1 {
		t.Fatalf("console lines = %d:\n%s", got, console.String())
	}
}

func TestLoggerBeforeInitIsNoop(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLogger(filepath.Join(dir, "x.csv"), filepath.Join(dir, "x.jsonl"), nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.LogIteration("r", 0, batch.Summary{Iteration: 1}); err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestNewLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	lg := New("warn", &buf)
	lg.Info("hidden")
	lg.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("level filtering failed: %q", buf.String())
	}
	buf.Reset()
	New("bogus", &buf).Info("fallback")
	if !strings.Contains(buf.String(), "fallback") {
		t.Fatal("unknown level should default to info")
	}
}

func TestTrajectoryRoundTrip(t *testing.T) {
	h, err := env.NewHover(env.HoverConfig{
		InitFlyingPos: []r3.Vec{{X: 0, Y: 0, Z: 1}, {X: 1, Y: 1, Z: 1}},
		Size:          4,
		EpisodeLimit:  200,
	})
	if err != nil {
		t.Fatal(err)
	}
	key := prng.New(3)
	s := h.Reset(key)
	var want []env.Snapshot

	dir := t.TempDir()
	w, err := NewTrajectoryWriter(dir, "traj")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		s, err = h.Step(s, []r3.Vec{{X: 1}, {Y: -1}}, key)
		if err != nil {
			t.Fatal(err)
		}
		want = append(want, s.Snapshot())
		if err := w.Write(Frame{Run: "traj", Iteration: i, Replica: 0, State: s.Snapshot()}); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := w.Write(Frame{}); !errors.Is(err, os.ErrClosed) {
		t.Fatalf("write after close: %v", err)
	}

	var got []Frame
	err = ReadTrajectory(w.Path(), func(fr Frame) error {
		got = append(got, fr)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(want) {
		t.Fatalf("frames = %d, want %d", len(got), len(want))
	}
	for i := range got {
		if got[i].Iteration != i || got[i].State.Timestep != want[i].Timestep {
			t.Fatalf("frame %d: %+v", i, got[i])
		}
		if got[i].State.AgentLocations[0] != want[i].AgentLocations[0] {
			t.Fatalf("frame %d location %v, want %v", i, got[i].State.AgentLocations[0], want[i].AgentLocations[0])
		}
	}
}

func TestReadTrajectoryStopsOnCallbackError(t *testing.T) {
	w, err := NewTrajectoryWriter(t.TempDir(), "stop")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := w.Write(Frame{Iteration: i}); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	stop := errors.New("stop")
	n := 0
	err = ReadTrajectory(w.Path(), func(Frame) error {
		n++
		return stop
	})
	if !errors.Is(err, stop) || n != 1 {
		t.Fatalf("err=%v n=%d", err, n)
	}
}
