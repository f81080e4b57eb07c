package server

import (
	"encoding/json"

	"swarmrl/internal/env"
)

// Message types.
const (
	TypeDescribe = "describe"
	TypeReset    = "reset"
	TypeStep     = "step"
	TypeError    = "error"
)

// Request is any client message. Seed is read by reset, Actions by step.
type Request struct {
	Type    string               `json:"type"`
	Seed    uint64               `json:"seed,omitempty"`
	Actions map[string][]float64 `json:"actions,omitempty"`
}

// DescribeMsg describes the served task.
type DescribeMsg struct {
	Type         string       `json:"type"`
	Session      string       `json:"session"`
	Task         string       `json:"task"`
	Agents       []string     `json:"agents"`
	ObsLow       []float64    `json:"obs_low"`
	ObsHigh      []float64    `json:"obs_high"`
	ActLow       []float64    `json:"act_low"`
	ActHigh      []float64    `json:"act_high"`
	EpisodeLimit int          `json:"episode_limit,omitempty"`
	Reference    [][3]float64 `json:"reference,omitempty"`
}

// ResetMsg answers a reset.
type ResetMsg struct {
	Type         string               `json:"type"`
	Session      string               `json:"session"`
	Agents       []string             `json:"agents"`
	Observations map[string][]float64 `json:"observations"`
	GlobalState  []float64            `json:"global_state"`
}

// StepMsg answers a step. Agents is empty once the episode is over.
type StepMsg struct {
	Type    string   `json:"type"`
	Session string   `json:"session"`
	Agents  []string `json:"agents"`
	env.StepResult
	GlobalState []float64 `json:"global_state"`
}

// ErrorMsg reports a rejected request; the session stays open.
type ErrorMsg struct {
	Type    string `json:"type"`
	Session string `json:"session"`
	Message string `json:"message"`
}

func decodeRequest(b []byte) (Request, error) {
	var r Request
	err := json.Unmarshal(b, &r)
	return r, err
}
