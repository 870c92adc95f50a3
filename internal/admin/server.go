// Package admin serves the operator's HTTP JSON surface over a running
// swarm.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"droneops-swarm/internal/formation"
	"droneops-swarm/internal/logging"
	"droneops-swarm/internal/recovery"
	"droneops-swarm/internal/swarm"
)

// Swarm is the coordinator surface the admin server reads and drives.
type Swarm interface {
	Health() swarm.Health
	Status() swarm.Status
	Formation() (*formation.Formation, bool)
	Diagnose(id string) (recovery.Diagnosis, error)
	DiagnoseAll() []recovery.Diagnosis
	CollisionRisks(threshold float64) []formation.Risk
	EmergencyStopAll(ctx context.Context) swarm.Report
	ResetUnitErrorStats(ctx context.Context, id string) error
}

type Server struct {
	Swarm Swarm
	// Chaos toggles fault injection on the simulated fleet. Nil disables
	// the endpoint.
	Chaos func() bool
	mux   *http.ServeMux
}

func NewServer(s Swarm, chaos func() bool) *Server {
	srv := &Server{Swarm: s, Chaos: chaos, mux: http.NewServeMux()}
	srv.routes()
	return srv
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /status", s.handleStatus)
	s.mux.HandleFunc("GET /formation", s.handleFormation)
	s.mux.HandleFunc("GET /collisions", s.handleCollisions)
	s.mux.HandleFunc("GET /diagnose", s.handleDiagnose)
	s.mux.HandleFunc("POST /emergency-stop", s.handleEmergencyStop)
	s.mux.HandleFunc("POST /reset", s.handleReset)
	s.mux.HandleFunc("POST /toggle-chaos", s.handleToggleChaos)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Start serves on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	log := logging.FromContext(ctx)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}
	errc := make(chan error, 1)
	go func() {
		log.Info("admin server listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Swarm.Health())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Swarm.Status())
}

func (s *Server) handleFormation(w http.ResponseWriter, r *http.Request) {
	f, ok := s.Swarm.Formation()
	if !ok {
		writeError(w, http.StatusNotFound, swarm.ErrNoFormation)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) handleCollisions(w http.ResponseWriter, r *http.Request) {
	var threshold float64
	if v := r.URL.Query().Get("threshold"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil || t < 0 {
			writeError(w, http.StatusBadRequest, errors.New("threshold must be a non-negative number"))
			return
		}
		threshold = t
	}
	risks := s.Swarm.CollisionRisks(threshold)
	if risks == nil {
		risks = []formation.Risk{}
	}
	writeJSON(w, http.StatusOK, risks)
}

func (s *Server) handleDiagnose(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("unit")
	if id == "" {
		writeJSON(w, http.StatusOK, s.Swarm.DiagnoseAll())
		return
	}
	d, err := s.Swarm.Diagnose(id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleEmergencyStop(w http.ResponseWriter, r *http.Request) {
	logging.FromContext(r.Context()).Warn("emergency stop requested over admin API", "remote", r.RemoteAddr)
	// A client hanging up must not abort the stop.
	rep := s.Swarm.EmergencyStopAll(context.WithoutCancel(r.Context()))
	writeJSON(w, http.StatusOK, map[string]any{
		"attempted": rep.Attempted,
		"succeeded": rep.Succeeded,
		"errors":    rep.Errors(),
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("unit")
	if id == "" {
		writeError(w, http.StatusBadRequest, errors.New("unit is required"))
		return
	}
	if err := s.Swarm.ResetUnitErrorStats(r.Context(), id); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleToggleChaos(w http.ResponseWriter, r *http.Request) {
	if s.Chaos == nil {
		writeError(w, http.StatusNotImplemented, errors.New("chaos is only available on the simulated fleet"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chaos": s.Chaos()})
}

func statusFor(err error) int {
	if errors.Is(err, swarm.ErrUnknownUnit) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
