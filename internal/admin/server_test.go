package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"droneops-swarm/internal/config"
	"droneops-swarm/internal/recovery"
	"droneops-swarm/internal/sim"
	"droneops-swarm/internal/swarm"
)

func newTestSwarm(t *testing.T, ids ...string) (*swarm.Swarm, []*sim.Quad) {
	t.Helper()
	s := swarm.New(swarm.DefaultConfig())
	var quads []*sim.Quad
	for _, id := range ids {
		q := sim.NewQuad(id, "tello", config.Behavior{})
		quads = append(quads, q)
		if _, err := s.AddUnit(context.Background(), id, q); err != nil {
			t.Fatalf("add unit: %v", err)
		}
	}
	if _, err := s.InitializeSwarm(context.Background(), time.Second); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s, quads
}

func do(t *testing.T, srv http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func TestHandleHealth(t *testing.T) {
	s, _ := newTestSwarm(t, "u1", "u2")
	w := do(t, NewServer(s, nil), http.MethodGet, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var h swarm.Health
	if err := json.NewDecoder(w.Body).Decode(&h); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if h.TotalUnits != 2 || h.OperationalUnits != 2 || h.OperationalPercentage != 100 {
		t.Fatalf("unexpected health %+v", h)
	}
}

func TestHandleStatusAndFormation(t *testing.T) {
	s, _ := newTestSwarm(t, "u1", "u2", "u3")
	srv := NewServer(s, nil)

	w := do(t, srv, http.MethodGet, "/status")
	var st swarm.Status
	if err := json.NewDecoder(w.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.State != swarm.StateReady || len(st.Units) != 3 {
		t.Fatalf("unexpected status %+v", st)
	}

	if w := do(t, srv, http.MethodGet, "/formation"); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without formation, got %d", w.Code)
	}
	if _, err := s.CreateFormation(context.Background(), swarm.FormationSpec{Type: "line"}); err != nil {
		t.Fatalf("create formation: %v", err)
	}
	w = do(t, srv, http.MethodGet, "/formation")
	if w.Code != http.StatusOK {
		t.Fatalf("formation status %d", w.Code)
	}
}

func TestHandleDiagnose(t *testing.T) {
	s, _ := newTestSwarm(t, "u1", "u2")
	srv := NewServer(s, nil)

	w := do(t, srv, http.MethodGet, "/diagnose")
	var all []recovery.Diagnosis
	if err := json.NewDecoder(w.Body).Decode(&all); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 diagnoses, got %d", len(all))
	}
	if w := do(t, srv, http.MethodGet, "/diagnose?unit=u2"); w.Code != http.StatusOK {
		t.Fatalf("diagnose u2: %d", w.Code)
	}
	if w := do(t, srv, http.MethodGet, "/diagnose?unit=nope"); w.Code != http.StatusNotFound {
		t.Fatalf("diagnose unknown: %d", w.Code)
	}
}

func TestHandleCollisions(t *testing.T) {
	s, _ := newTestSwarm(t, "u1", "u2")
	srv := NewServer(s, nil)
	// Both units sit at the connect-time origin.
	w := do(t, srv, http.MethodGet, "/collisions")
	var risks []map[string]any
	if err := json.NewDecoder(w.Body).Decode(&risks); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(risks) != 1 {
		t.Fatalf("expected one risk, got %v", risks)
	}
	if w := do(t, srv, http.MethodGet, "/collisions?threshold=abc"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestHandleEmergencyStop(t *testing.T) {
	s, quads := newTestSwarm(t, "u1", "u2")
	if _, err := s.TakeoffAll(context.Background(), swarm.StaggerOptions{Synchronized: true}); err != nil {
		t.Fatalf("takeoff: %v", err)
	}
	srv := NewServer(s, nil)
	if w := do(t, srv, http.MethodGet, "/emergency-stop"); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET should not stop the swarm: %d", w.Code)
	}
	w := do(t, srv, http.MethodPost, "/emergency-stop")
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	for _, q := range quads {
		if _, _, flying, _ := q.Snapshot(); flying {
			t.Fatalf("%s still flying", q.ID())
		}
	}
	if s.Flying() {
		t.Fatal("swarm still reports flying")
	}
}

type stopRecorder struct {
	Swarm
	ctxErr error
}

func (s *stopRecorder) EmergencyStopAll(ctx context.Context) swarm.Report {
	s.ctxErr = ctx.Err()
	return swarm.Report{}
}

func TestEmergencyStopOutlivesClient(t *testing.T) {
	rec := &stopRecorder{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/emergency-stop", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	NewServer(rec, nil).ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	if rec.ctxErr != nil {
		t.Fatalf("emergency stop ran with a cancelled context: %v", rec.ctxErr)
	}
}

func TestHandleReset(t *testing.T) {
	s, _ := newTestSwarm(t, "u1")
	srv := NewServer(s, nil)
	if w := do(t, srv, http.MethodPost, "/reset"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if w := do(t, srv, http.MethodPost, "/reset?unit=ghost"); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if w := do(t, srv, http.MethodPost, "/reset?unit=u1"); w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
}

func TestHandleToggleChaos(t *testing.T) {
	s, quads := newTestSwarm(t, "u1")
	if w := do(t, NewServer(s, nil), http.MethodPost, "/toggle-chaos"); w.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501 without a simulated fleet, got %d", w.Code)
	}

	srv := NewServer(s, quads[0].ToggleChaos)
	w := do(t, srv, http.MethodPost, "/toggle-chaos")
	var body map[string]bool
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body["chaos"] {
		t.Fatal("expected chaos enabled")
	}
	w = do(t, srv, http.MethodPost, "/toggle-chaos")
	body = nil
	_ = json.NewDecoder(w.Body).Decode(&body)
	if body["chaos"] {
		t.Fatal("expected chaos disabled")
	}
}

func TestStartStopsWithContext(t *testing.T) {
	s, _ := newTestSwarm(t, "u1")
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- NewServer(s, nil).Start(ctx, "127.0.0.1:0") }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("start: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
