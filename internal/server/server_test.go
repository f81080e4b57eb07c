package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"gonum.org/v1/gonum/spatial/r3"

	"swarmrl/internal/env"
	"swarmrl/internal/logging"
)

func dial(t *testing.T, e env.Env) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(NewServer(e, logging.Discard()).Routes())
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/env"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func roundTrip[T any](t *testing.T, conn *websocket.Conn, req Request) T {
	t.Helper()
	if err := conn.WriteJSON(req); err != nil {
		t.Fatalf("write: %v", err)
	}
	var out T
	if err := conn.ReadJSON(&out); err != nil {
		t.Fatalf("read: %v", err)
	}
	return out
}

func hover(t *testing.T, limit int) env.Env {
	t.Helper()
	h, err := env.NewHover(env.HoverConfig{
		InitFlyingPos: []r3.Vec{{X: 0, Y: 0, Z: 1}, {X: 1, Y: 1, Z: 1}},
		Size:          4,
		EpisodeLimit:  limit,
	})
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func TestSessionEpisode(t *testing.T) {
	conn := dial(t, hover(t, 3))

	desc := roundTrip[DescribeMsg](t, conn, Request{Type: TypeDescribe})
	if desc.Task != "hover" || len(desc.Agents) != 2 || desc.EpisodeLimit != 3 || len(desc.ObsLow) != 6 {
		t.Fatalf("describe %+v", desc)
	}

	reset := roundTrip[ResetMsg](t, conn, Request{Type: TypeReset, Seed: 1})
	if reset.Type != TypeReset || len(reset.Agents) != 2 || len(reset.GlobalState) != 12 {
		t.Fatalf("reset %+v", reset)
	}
	if got := reset.Observations["agent_1"]; len(got) != 6 || got[0] != 1 {
		t.Fatalf("agent_1 observation %v", got)
	}
	if reset.Session != desc.Session || reset.Session == "" {
		t.Fatalf("session ids %q %q", desc.Session, reset.Session)
	}

	acts := map[string][]float64{"agent_0": {1, 0, 0}, "agent_1": {0, 0, 0}}
	var last StepMsg
	for i := 0; i < 3; i++ {
		last = roundTrip[StepMsg](t, conn, Request{Type: TypeStep, Actions: acts})
		if last.Type != TypeStep {
			t.Fatalf("step %d: %+v", i, last)
		}
	}
	if len(last.Agents) != 0 {
		t.Fatalf("agents after truncation: %v", last.Agents)
	}
	if !last.Truncations["agent_0"] || last.Terminations["agent_0"] {
		t.Fatalf("flags %+v %+v", last.Truncations, last.Terminations)
	}
	// agent_0 moved 0.6 along x from its target.
	if r := last.Rewards["agent_0"]; r > -0.35 || r < -0.37 {
		t.Fatalf("agent_0 reward %v", r)
	}

	over := roundTrip[ErrorMsg](t, conn, Request{Type: TypeStep, Actions: acts})
	if over.Type != TypeError || !strings.Contains(over.Message, "episode is over") {
		t.Fatalf("step after end: %+v", over)
	}
}

func TestSessionErrors(t *testing.T) {
	conn := dial(t, hover(t, 10))

	if m := roundTrip[ErrorMsg](t, conn, Request{Type: TypeStep}); m.Type != TypeError {
		t.Fatalf("step before reset: %+v", m)
	}
	if m := roundTrip[ErrorMsg](t, conn, Request{Type: "dance"}); !strings.Contains(m.Message, "dance") {
		t.Fatalf("unknown type: %+v", m)
	}
	roundTrip[ResetMsg](t, conn, Request{Type: TypeReset})
	m := roundTrip[ErrorMsg](t, conn, Request{Type: TypeStep, Actions: map[string][]float64{"agent_0": {0, 0, 0}}})
	if !strings.Contains(m.Message, "agent_1") {
		t.Fatalf("missing agent: %+v", m)
	}
	// The session survives rejected requests.
	ok := roundTrip[StepMsg](t, conn, Request{Type: TypeStep, Actions: map[string][]float64{"agent_0": {0, 0, 0}, "agent_1": {0, 0, 0}}})
	if ok.Type != TypeStep || len(ok.Agents) != 2 {
		t.Fatalf("step after errors: %+v", ok)
	}
}

func TestHealthz(t *testing.T) {
	srv := httptest.NewServer(NewServer(hover(t, 10), logging.Discard()).Routes())
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
}
