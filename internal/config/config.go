package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"

	"swarmrl/internal/batch"
	"swarmrl/internal/env"
)

//go:embed schema.json
var schemaJSON string

var schema = jsonschema.MustCompileString("swarmrl://config.schema.json", schemaJSON)

// Config is the root configuration structure
type Config struct {
	Seed    uint64       `yaml:"seed" json:"seed"`
	Env     EnvConfig    `yaml:"env" json:"env"`
	Batch   BatchConfig  `yaml:"batch" json:"batch"`
	Eval    EvalConfig   `yaml:"eval" json:"eval"`
	Logging LogConfig    `yaml:"logging" json:"logging"`
	Server  ServerConfig `yaml:"server" json:"server"`
}

// EnvConfig defines environment parameters
type EnvConfig struct {
	Kind               string       `yaml:"kind" json:"kind"` // hover|escort|surround
	DroneIDs           []int        `yaml:"drone_ids" json:"drone_ids,omitempty"`
	InitFlyingPos      [][3]float64 `yaml:"init_flying_pos" json:"init_flying_pos"`
	Targets            [][3]float64 `yaml:"targets" json:"targets,omitempty"` // hover only
	InitTarget         [3]float64   `yaml:"init_target" json:"init_target"`
	FinalTarget        *[3]float64  `yaml:"final_target" json:"final_target,omitempty"`
	IntermediatePoints int          `yaml:"intermediate_points" json:"intermediate_points"`
	Size               float64      `yaml:"size" json:"size"`
	EpisodeLimit       int          `yaml:"episode_limit" json:"episode_limit"`
}

// BatchConfig sizes the batched driver
type BatchConfig struct {
	NumEnvs int `yaml:"num_envs" json:"num_envs"`
	Steps   int `yaml:"steps" json:"steps"`
	Workers int `yaml:"workers" json:"workers"`
	Repeats int `yaml:"repeats" json:"repeats"`
}

// EvalConfig defines evaluation parameters
type EvalConfig struct {
	Episodes    int     `yaml:"episodes" json:"episodes"`
	BaseSeed    uint64  `yaml:"base_seed" json:"base_seed"`
	Workers     int     `yaml:"workers" json:"workers"`
	Policy      string  `yaml:"policy" json:"policy"` // random|hold|greedy|mlp
	Standoff    float64 `yaml:"standoff" json:"standoff"`
	WeightsPath string  `yaml:"weights_path" json:"weights_path,omitempty"`
	Hidden1     int     `yaml:"hidden1" json:"hidden1"`
	Hidden2     int     `yaml:"hidden2" json:"hidden2"`
	Lambda      float64 `yaml:"robustness_lambda" json:"robustness_lambda"`
}

// LogConfig defines logging parameters
type LogConfig struct {
	Level         string `yaml:"level" json:"level"`
	CSVPath       string `yaml:"csv_path" json:"csv_path"`
	JSONPath      string `yaml:"json_path" json:"json_path"`
	TrajectoryDir string `yaml:"trajectory_dir" json:"trajectory_dir,omitempty"`
	IndexDB       string `yaml:"index_db" json:"index_db,omitempty"`
	SummaryEvery  int    `yaml:"summary_every" json:"summary_every"`
}

// ServerConfig defines the remote environment endpoint
type ServerConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

// Load reads a YAML config file, validates it against the schema and
// returns it with defaults applied.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse validates and decodes YAML config bytes.
func Parse(data []byte) (*Config, error) {
	if err := validate(data); err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	return cfg, nil
}

// validate checks the raw document against the embedded JSON schema. YAML is
// re-encoded as JSON first so numbers reach the validator as JSON numbers.
func validate(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return err
	}
	if doc == nil {
		doc = map[string]any{}
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("config is not JSON compatible: %w", err)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Seed == 0 {
		cfg.Seed = 5
	}
	if cfg.Env.Kind == "" {
		cfg.Env.Kind = "hover"
	}
	if len(cfg.Env.InitFlyingPos) == 0 {
		cfg.Env.InitFlyingPos = [][3]float64{{0, 0, 1}, {1, 1, 1}}
	}
	if cfg.Env.Size == 0 {
		switch cfg.Env.Kind {
		case "hover":
			cfg.Env.Size = 4
		default:
			cfg.Env.Size = 3
		}
	}
	if cfg.Env.EpisodeLimit == 0 {
		switch cfg.Env.Kind {
		case "hover":
			cfg.Env.EpisodeLimit = 200
		default:
			cfg.Env.EpisodeLimit = 100
		}
	}
	if cfg.Env.IntermediatePoints == 0 {
		cfg.Env.IntermediatePoints = 10
	}
	if cfg.Batch.NumEnvs == 0 {
		cfg.Batch.NumEnvs = 1000
	}
	if cfg.Batch.Steps == 0 {
		cfg.Batch.Steps = 1000
	}
	if cfg.Batch.Repeats == 0 {
		cfg.Batch.Repeats = 1
	}
	if cfg.Eval.Episodes == 0 {
		cfg.Eval.Episodes = 10
	}
	if cfg.Eval.BaseSeed == 0 {
		cfg.Eval.BaseSeed = 1000
	}
	if cfg.Eval.Policy == "" {
		cfg.Eval.Policy = "greedy"
	}
	if cfg.Eval.Standoff == 0 {
		cfg.Eval.Standoff = 0.5
	}
	if cfg.Eval.Hidden1 == 0 {
		cfg.Eval.Hidden1 = 32
	}
	if cfg.Eval.Lambda == 0 {
		cfg.Eval.Lambda = 0.25
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.CSVPath == "" {
		cfg.Logging.CSVPath = "runs/run.csv"
	}
	if cfg.Logging.JSONPath == "" {
		cfg.Logging.JSONPath = "runs/run.jsonl"
	}
	if cfg.Logging.SummaryEvery == 0 {
		cfg.Logging.SummaryEvery = 100
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8765"
	}
}

// Build constructs the environment described by the env section.
func (c EnvConfig) Build() (env.Env, error) {
	pos := toVecs(c.InitFlyingPos)
	switch strings.ToLower(c.Kind) {
	case "hover":
		var targets []r3.Vec
		if len(c.Targets) > 0 {
			targets = toVecs(c.Targets)
		}
		h, err := env.NewHover(env.HoverConfig{
			DroneIDs:      c.DroneIDs,
			InitFlyingPos: pos,
			Targets:       targets,
			Size:          c.Size,
			EpisodeLimit:  c.EpisodeLimit,
		})
		if err != nil {
			return nil, err
		}
		return h, nil
	case "escort":
		final := c.InitTarget
		if c.FinalTarget != nil {
			final = *c.FinalTarget
		}
		e, err := env.NewEscort(env.EscortConfig{
			DroneIDs:           c.DroneIDs,
			InitFlyingPos:      pos,
			InitTarget:         toVec(c.InitTarget),
			FinalTarget:        toVec(final),
			IntermediatePoints: c.IntermediatePoints,
			Size:               c.Size,
			EpisodeLimit:       c.EpisodeLimit,
		})
		if err != nil {
			return nil, err
		}
		return e, nil
	case "surround":
		e, err := env.NewSurround(c.DroneIDs, pos, toVec(c.InitTarget), c.Size, c.EpisodeLimit)
		if err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, fmt.Errorf("unknown env kind %q", c.Kind)
	}
}

// JSON returns the env section as JSON, used to tag replays.
func (c EnvConfig) JSON() json.RawMessage {
	b, _ := json.Marshal(c)
	return b
}

// ParseEnvJSON decodes an env section stored by JSON.
func ParseEnvJSON(raw json.RawMessage) (EnvConfig, error) {
	var c EnvConfig
	if err := json.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("env config: %w", err)
	}
	return c, nil
}

// DriverConfig converts the batch section for the driver.
func (c BatchConfig) DriverConfig() batch.Config {
	return batch.Config{NumEnvs: c.NumEnvs, Steps: c.Steps, Workers: c.Workers}
}

func toVec(a [3]float64) r3.Vec { return r3.Vec{X: a[0], Y: a[1], Z: a[2]} }

func toVecs(as [][3]float64) []r3.Vec {
	out := make([]r3.Vec, len(as))
	for i, a := range as {
		out[i] = toVec(a)
	}
	return out
}
