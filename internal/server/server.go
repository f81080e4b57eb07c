// Package server exposes one task over a websocket so that out-of-process
// learners can drive it with the keyed reset/step API. Each connection is
// an independent session.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"gonum.org/v1/gonum/spatial/r3"

	"swarmrl/internal/env"
	"swarmrl/internal/prng"
)

type Server struct {
	env env.Env
	log *log.Logger

	idleTimeout time.Duration
	upgrader    websocket.Upgrader
}

func NewServer(e env.Env, logger *log.Logger) *Server {
	return &Server{
		env:         e,
		log:         logger,
		idleTimeout: 5 * time.Minute,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Routes returns the HTTP mux with /env and /healthz.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/env", s.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "task": s.env.Name()})
	})
	return mux
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			s.log.Warn("upgrade failed", "err", err)
			return
		}
		defer conn.Close()

		sess := &session{
			id:  uuid.NewString(),
			env: s.env,
			par: env.NewParallel(s.env),
		}
		logger := s.log.With("session", sess.id)
		logger.Info("session opened", "remote", r.RemoteAddr)
		defer logger.Info("session closed", "steps", sess.steps)

		for {
			_ = conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Warn("read", "err", err)
				}
				return
			}
			reply := sess.handle(msg)
			if e, ok := reply.(ErrorMsg); ok {
				logger.Debug("rejected request", "err", e.Message)
			}
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(reply); err != nil {
				logger.Warn("write", "err", err)
				return
			}
		}
	}
}

type session struct {
	id    string
	env   env.Env
	par   *env.Parallel
	live  bool
	steps int
}

func (s *session) handle(msg []byte) any {
	req, err := decodeRequest(msg)
	if err != nil {
		return s.fail(fmt.Errorf("bad request: %w", err))
	}
	switch req.Type {
	case TypeDescribe:
		return s.describe()
	case TypeReset:
		obs := s.par.Reset(prng.New(req.Seed))
		s.live = true
		return ResetMsg{
			Type:         TypeReset,
			Session:      s.id,
			Agents:       s.par.Agents(),
			Observations: obs,
			GlobalState:  s.env.GlobalState(s.par.State()),
		}
	case TypeStep:
		if !s.live {
			return s.fail(fmt.Errorf("step before reset"))
		}
		res, err := s.par.Step(req.Actions)
		if err != nil {
			return s.fail(err)
		}
		s.steps++
		return StepMsg{
			Type:        TypeStep,
			Session:     s.id,
			Agents:      s.par.Agents(),
			StepResult:  res,
			GlobalState: s.env.GlobalState(s.par.State()),
		}
	default:
		return s.fail(fmt.Errorf("unknown message type %q", req.Type))
	}
}

func (s *session) describe() DescribeMsg {
	obs := s.env.ObservationSpace()
	act := s.env.ActionSpace()
	m := DescribeMsg{
		Type:    TypeDescribe,
		Session: s.id,
		Task:    s.env.Name(),
		Agents:  s.env.AgentNames(),
		ObsLow:  obs.Low,
		ObsHigh: obs.High,
		ActLow:  act.Low,
		ActHigh: act.High,
	}
	if l, ok := s.env.(interface{ EpisodeLimit() int }); ok {
		m.EpisodeLimit = l.EpisodeLimit()
	}
	if r, ok := s.env.(interface{ Reference() []r3.Vec }); ok {
		for _, v := range r.Reference() {
			m.Reference = append(m.Reference, [3]float64{v.X, v.Y, v.Z})
		}
	}
	return m
}

func (s *session) fail(err error) ErrorMsg {
	return ErrorMsg{Type: TypeError, Session: s.id, Message: err.Error()}
}
