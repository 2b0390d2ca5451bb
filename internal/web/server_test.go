package web

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Terrier-Ride-Engineering-Club/Ride-Control-Computer/internal/logger"
	"github.com/Terrier-Ride-Engineering-Club/Ride-Control-Computer/internal/types"
)

type stubController struct {
	snap     types.Snapshot
	commands []string
}

func (s *stubController) State() types.RideState   { return s.snap.State }
func (s *stubController) Snapshot() types.Snapshot { return s.snap }

func (s *stubController) Command(name string) error {
	if name == "bogus" {
		return fmt.Errorf("unknown command %q", name)
	}
	s.commands = append(s.commands, name)
	return nil
}

type stubSim struct {
	set map[string]bool
}

func (s *stubSim) SetInput(name string, value bool) error {
	if name == "flux" {
		return fmt.Errorf("unknown input %s", name)
	}
	s.set[name] = value
	return nil
}

func testServer(t *testing.T, sim InputSimulator) (*stubController, *httptest.Server) {
	t.Helper()
	ctrl := &stubController{
		snap: types.Snapshot{
			State:  types.StateIdle,
			Faults: []types.FaultInfo{{Code: 103, Message: "Motor Controller Fault", Severity: "High"}},
			Motor:  types.MotorTelemetry{Encoder: 42, Speed: 570, Status: "Normal"},
		},
	}
	l := logger.NewLogger(log.New(io.Discard, "", 0), logger.LogLevelNone)
	srv := NewServer("127.0.0.1:0", ctrl, sim, l)
	ts := httptest.NewServer(srv.srv.Handler)
	t.Cleanup(ts.Close)
	return ctrl, ts
}

func TestStatusEndpoint(t *testing.T) {
	_, ts := testServer(t, nil)

	resp, err := http.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatalf("GET /api/status failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var snap types.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("failed to decode snapshot: %v", err)
	}
	if snap.State != types.StateIdle || snap.Motor.Encoder != 42 {
		t.Errorf("snapshot = %+v", snap)
	}
	if len(snap.Faults) != 1 || snap.Faults[0].Code != 103 {
		t.Errorf("faults = %v", snap.Faults)
	}
}

func TestHealthEndpoint(t *testing.T) {
	_, ts := testServer(t, nil)

	resp, err := http.Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET /api/health failed: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["state"] != "idle" {
		t.Errorf("health state = %q, want idle", body["state"])
	}
}

func TestCommandEndpoint(t *testing.T) {
	ctrl, ts := testServer(t, nil)

	resp, err := http.Post(ts.URL+"/api/command/estop", "application/json", nil)
	if err != nil {
		t.Fatalf("POST command failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if len(ctrl.commands) != 1 || ctrl.commands[0] != "estop" {
		t.Errorf("forwarded commands = %v, want [estop]", ctrl.commands)
	}
}

func TestCommandEndpointRejectsUnknown(t *testing.T) {
	_, ts := testServer(t, nil)

	resp, err := http.Post(ts.URL+"/api/command/bogus", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestSimEndpoint(t *testing.T) {
	sim := &stubSim{set: make(map[string]bool)}
	_, ts := testServer(t, sim)

	resp, err := http.Post(ts.URL+"/api/sim/dispatch", "application/json",
		strings.NewReader(`{"value":true}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if !sim.set["dispatch"] {
		t.Error("sim input was not set")
	}
}

func TestSimEndpointAbsentOnHardware(t *testing.T) {
	_, ts := testServer(t, nil)

	resp, err := http.Post(ts.URL+"/api/sim/dispatch", "application/json",
		strings.NewReader(`{"value":true}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound && resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
