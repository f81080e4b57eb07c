package config

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"swarmrl/internal/env"
)

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte("env:\n  kind: escort\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Seed != 5 || cfg.Env.Size != 3 || cfg.Env.EpisodeLimit != 100 {
		t.Fatalf("escort defaults: %+v", cfg.Env)
	}
	if cfg.Env.IntermediatePoints != 10 {
		t.Fatalf("intermediate points = %d", cfg.Env.IntermediatePoints)
	}
	if cfg.Batch.NumEnvs != 1000 || cfg.Batch.Steps != 1000 || cfg.Batch.Repeats != 1 {
		t.Fatalf("batch defaults: %+v", cfg.Batch)
	}

	cfg, err = Parse(nil)
	if err != nil {
		t.Fatalf("parse empty: %v", err)
	}
	if cfg.Env.Kind != "hover" || cfg.Env.Size != 4 || cfg.Env.EpisodeLimit != 200 {
		t.Fatalf("hover defaults: %+v", cfg.Env)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"unknown kind":    "env:\n  kind: orbit\n",
		"short vector":    "env:\n  init_target: [1, 2]\n",
		"unknown section": "training:\n  epochs: 3\n",
		"negative size":   "env:\n  size: -1\n",
		"bad policy":      "eval:\n  policy: clever\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(doc)); err == nil {
				t.Fatalf("expected validation error for %q", doc)
			}
		})
	}
}

func TestShippedConfigsBuild(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("..", "..", "configs", "*.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) == 0 {
		t.Fatal("no configs found")
	}
	for _, p := range paths {
		t.Run(filepath.Base(p), func(t *testing.T) {
			cfg, err := Load(p)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			e, err := cfg.Env.Build()
			if err != nil {
				t.Fatalf("build: %v", err)
			}
			if want := strings.TrimSuffix(filepath.Base(p), ".yaml"); e.Name() != want {
				t.Fatalf("name = %q, want %q", e.Name(), want)
			}
		})
	}
}

func TestBuildEscort(t *testing.T) {
	cfg, err := Parse([]byte(`
env:
  kind: escort
  init_flying_pos: [[0, 0, 1], [1, 1, 1]]
  init_target: [1, 1, 2.5]
  final_target: [-1, -1, 2.5]
  intermediate_points: 3
`))
	if err != nil {
		t.Fatal(err)
	}
	e, err := cfg.Env.Build()
	if err != nil {
		t.Fatal(err)
	}
	esc, ok := e.(*env.Escort)
	if !ok {
		t.Fatalf("built %T", e)
	}
	ref := esc.Reference()
	if len(ref) != 5 {
		t.Fatalf("reference length = %d, want 5", len(ref))
	}
	// Point t is start + (end-start)*t/5, so the last point is short of end.
	if ref[0].X != 1 || math.Abs(ref[4].X-(-0.6)) > 1e-12 {
		t.Fatalf("reference endpoints %v %v", ref[0], ref[4])
	}
}

func TestBuildErrors(t *testing.T) {
	if _, err := (EnvConfig{Kind: "escort", InitFlyingPos: [][3]float64{{0, 0, 1}}, Size: 3, EpisodeLimit: 10}).Build(); err == nil {
		t.Fatal("single agent escort should fail")
	}
	if _, err := (EnvConfig{Kind: "nope"}).Build(); err == nil {
		t.Fatal("unknown kind should fail")
	}
}

func TestEnvJSONRoundTrip(t *testing.T) {
	in := EnvConfig{Kind: "surround", InitFlyingPos: [][3]float64{{0, 0, 1}, {1, 0, 1}}, InitTarget: [3]float64{0, 0, 2}, Size: 3, EpisodeLimit: 50}
	out, err := ParseEnvJSON(in.JSON())
	if err != nil {
		t.Fatal(err)
	}
	e, err := out.Build()
	if err != nil {
		t.Fatal(err)
	}
	if e.Name() != "surround" || e.NumAgents() != 2 {
		t.Fatalf("rebuilt %s with %d agents", e.Name(), e.NumAgents())
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); !os.IsNotExist(err) {
		t.Fatalf("err = %v", err)
	}
}
