// Package web exposes the operator dashboard API: ride status over REST,
// live telemetry over a websocket, and command injection.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/Terrier-Ride-Engineering-Club/Ride-Control-Computer/internal/logger"
	"github.com/Terrier-Ride-Engineering-Club/Ride-Control-Computer/internal/types"
)

const wsPushInterval = 500 * time.Millisecond

// Controller is the slice of the orchestrator the dashboard needs.
type Controller interface {
	State() types.RideState
	Snapshot() types.Snapshot
	Command(name string) error
}

// InputSimulator lets the dashboard toggle simulated operator inputs. Nil
// on real hardware, which disables the /api/sim routes.
type InputSimulator interface {
	SetInput(name string, value bool) error
}

type Server struct {
	log      *logger.Logger
	ctrl     Controller
	sim      InputSimulator
	srv      *http.Server
	upgrader websocket.Upgrader
}

func NewServer(addr string, ctrl Controller, sim InputSimulator, l *logger.Logger) *Server {
	s := &Server{
		log:  l.WithTag("Web"),
		ctrl: ctrl,
		sim:  sim,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The dashboard is served on the park's closed network.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/api/status", s.handleStatus)
	r.Get("/api/health", s.handleHealth)
	r.Post("/api/command/{name}", s.handleCommand)
	r.Get("/api/ws", s.handleWS)
	if sim != nil {
		r.Post("/api/sim/{name}", s.handleSimInput)
	}

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // websocket connections are long-lived
	}
	return s
}

// Start runs the HTTP server until Shutdown. Blocking.
func (s *Server) Start() error {
	s.log.Infof("dashboard listening on %s", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("web server failed: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warnf("failed to encode response: %v", err)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.ctrl.Snapshot())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"state":  string(s.ctrl.State()),
	})
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.ctrl.Command(name); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	s.log.Infof("dashboard command accepted: %s", name)
	s.writeJSON(w, http.StatusOK, map[string]string{"result": "queued"})
}

func (s *Server) handleSimInput(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var body struct {
		Value bool `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	if err := s.sim.SetInput(name, body.Value); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"result": "ok"})
}

// handleWS streams telemetry snapshots and accepts command messages of the
// form {"command":"estop"} on the same connection.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnf("websocket upgrade failed: %v", err)
		return
	}
	s.log.Debugf("websocket client connected: %s", conn.RemoteAddr())

	done := make(chan struct{})
	go s.wsReadPump(conn, done)

	ticker := time.NewTicker(wsPushInterval)
	defer ticker.Stop()
	defer conn.Close()

	for {
		select {
		case <-done:
			s.log.Debugf("websocket client disconnected: %s", conn.RemoteAddr())
			return
		case <-ticker.C:
			if err := conn.WriteJSON(s.ctrl.Snapshot()); err != nil {
				s.log.Debugf("websocket write failed: %v", err)
				return
			}
		}
	}
}

func (s *Server) wsReadPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		var msg struct {
			Command string `json:"command"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Command == "" {
			continue
		}
		if err := s.ctrl.Command(msg.Command); err != nil {
			s.log.Warnf("websocket command rejected: %v", err)
		}
	}
}
