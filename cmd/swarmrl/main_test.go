package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"swarmrl/internal/logging"
)

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	cfg := fmt.Sprintf(`seed: 3
env:
  kind: escort
  init_flying_pos: [[0, 0, 1], [1, 1, 1], [-1, 0, 1]]
  init_target: [1, 1, 2.5]
  final_target: [-1, -1, 2.5]
batch:
  num_envs: 8
  steps: 120
  workers: 2
  repeats: 2
eval:
  episodes: 3
  policy: greedy
logging:
  level: error
  csv_path: %[1]s/run.csv
  json_path: %[1]s/run.jsonl
  trajectory_dir: %[1]s/traj
  index_db: %[1]s/index.sqlite
`, dir)
	path := filepath.Join(dir, "escort.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func run(t *testing.T, args ...string) error {
	t.Helper()
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	return cmd.ExecuteContext(context.Background())
}

func TestBenchWritesArtifacts(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir)
	if err := run(t, "bench", "--config", cfg); err != nil {
		t.Fatalf("bench: %v", err)
	}
	for _, name := range []string{"run.csv", "run.jsonl", "index.sqlite"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
	}
	trajs, _ := filepath.Glob(filepath.Join(dir, "traj", "*.jsonl.zst"))
	if len(trajs) != 1 {
		t.Fatalf("trajectory files: %v", trajs)
	}
	frames := 0
	if err := logging.ReadTrajectory(trajs[0], func(logging.Frame) error { frames++; return nil }); err != nil {
		t.Fatal(err)
	}
	if frames != 2*120 {
		t.Fatalf("frames = %d, want %d", frames, 2*120)
	}
	if err := run(t, "replay", "--frames", trajs[0]); err != nil {
		t.Fatalf("replay --frames: %v", err)
	}
}

func TestPlayRecordAndReplay(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir)
	rec := filepath.Join(dir, "ep.json.zst")
	if err := run(t, "play", "--config", cfg, "--policy", "random", "--seed", "4", "--record", rec); err != nil {
		t.Fatalf("play: %v", err)
	}
	if err := run(t, "replay", rec); err != nil {
		t.Fatalf("replay: %v", err)
	}
}

func TestEvalCompare(t *testing.T) {
	cfg := writeConfig(t, t.TempDir())
	if err := run(t, "eval", "--config", cfg, "--compare", "--episodes", "2"); err != nil {
		t.Fatalf("eval: %v", err)
	}
}

func TestMissingConfig(t *testing.T) {
	if err := run(t, "bench", "--config", filepath.Join(t.TempDir(), "none.yaml")); err == nil {
		t.Fatal("expected error")
	}
}
