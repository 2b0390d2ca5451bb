package core

import (
	"io"
	"log"
	"testing"
	"time"

	"github.com/Terrier-Ride-Engineering-Club/Ride-Control-Computer/internal/faults"
	"github.com/Terrier-Ride-Engineering-Club/Ride-Control-Computer/internal/logger"
	"github.com/Terrier-Ride-Engineering-Club/Ride-Control-Computer/internal/sequencer"
	"github.com/Terrier-Ride-Engineering-Club/Ride-Control-Computer/internal/types"
)

// mockIO is a scriptable IOController that records every actuation.
type mockIO struct {
	estop    bool
	stop     bool
	dispatch bool
	rideOn   bool
	restart  bool

	encoder  int32
	speed    float64
	maxSpeed float64
	status   string
	temp     float64
	current  float64

	positionAck bool

	commands        []*sequencer.Instruction
	servosExtended  bool
	motorsEnabled   bool
	powerTerminated bool
}

func newMockIO() *mockIO {
	return &mockIO{
		maxSpeed:       1425,
		status:         "Normal",
		temp:           30,
		servosExtended: true,
	}
}

func (m *mockIO) ReadEStop() (bool, error)     { return m.estop, nil }
func (m *mockIO) ReadStop() (bool, error)      { return m.stop, nil }
func (m *mockIO) ReadDispatch() (bool, error)  { return m.dispatch, nil }
func (m *mockIO) ReadRideOnOff() (bool, error) { return m.rideOn, nil }
func (m *mockIO) ReadRestart() (bool, error)   { return m.restart, nil }

func (m *mockIO) ReadEncoder() (int32, error)         { return m.encoder, nil }
func (m *mockIO) ReadSpeed() (float64, error)         { return m.speed, nil }
func (m *mockIO) ReadMaxSpeed() (float64, error)      { return m.maxSpeed, nil }
func (m *mockIO) ReadStatus() (string, error)         { return m.status, nil }
func (m *mockIO) ReadTempSensor(int) (float64, error) { return m.temp, nil }
func (m *mockIO) ReadCurrent() (float64, error)       { return m.current, nil }

func (m *mockIO) SendMotorCommand(in *sequencer.Instruction) (bool, error) {
	m.commands = append(m.commands, in)
	if in != nil && in.Kind == sequencer.KindPosition {
		return m.positionAck, nil
	}
	return false, nil
}

func (m *mockIO) ExtendServos() error  { m.servosExtended = true; return nil }
func (m *mockIO) RetractServos() error { m.servosExtended = false; return nil }

func (m *mockIO) EnableMotors() error {
	m.motorsEnabled = true
	m.powerTerminated = false
	return nil
}
func (m *mockIO) DisableMotors() error { m.motorsEnabled = false; return nil }
func (m *mockIO) TerminatePower() error {
	m.powerTerminated = true
	m.motorsEnabled = false
	return nil
}
func (m *mockIO) Close() error { return nil }

func (m *mockIO) lastCommand() *sequencer.Instruction {
	if len(m.commands) == 0 {
		return nil
	}
	return m.commands[len(m.commands)-1]
}

type mockPublisher struct {
	states    []types.RideState
	snapshots []types.Snapshot
}

func (p *mockPublisher) PublishState(s types.RideState) error {
	p.states = append(p.states, s)
	return nil
}

func (p *mockPublisher) PublishSnapshot(s types.Snapshot) error {
	p.snapshots = append(p.snapshots, s)
	return nil
}

func testCycle() sequencer.Cycle {
	return sequencer.Cycle{
		{Kind: sequencer.KindMove, Duration: 5 * time.Second, Speed: "med", Direction: "fwd", Accel: "med"},
		{Kind: sequencer.KindPosition, Duration: 3 * time.Second, Pos: "home"},
	}
}

func testSystem(ioc IOController, pub TelemetryPublisher) (*RideControlComputer, *fakeClock) {
	l := logger.NewLogger(log.New(io.Discard, "", 0), logger.LogLevelNone)
	c := NewRideControlComputer(ioc, testCycle(), l, Options{Publisher: pub})
	clock := &fakeClock{t: time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)}
	c.now = clock.now
	c.tracker.now = clock.now
	return c, clock
}

// toIdle walks a fresh system to the idle state: baseline scan, then the
// ride on/off switch flips on.
func toIdle(c *RideControlComputer, m *mockIO) {
	c.Update()
	m.rideOn = true
	c.Update()
}

// toRunning continues from idle through a dispatch press.
func toRunning(c *RideControlComputer, m *mockIO) {
	toIdle(c, m)
	m.dispatch = true
	c.Update()
	m.dispatch = false
}

func TestStartsOff(t *testing.T) {
	c, _ := testSystem(newMockIO(), nil)
	if c.State() != types.StateOff {
		t.Errorf("initial state = %s, want off", c.State())
	}
}

func TestRideOnOffSwitch(t *testing.T) {
	m := newMockIO()
	c, _ := testSystem(m, nil)
	toIdle(c, m)
	if c.State() != types.StateIdle {
		t.Fatalf("state = %s, want idle after switch on", c.State())
	}

	m.rideOn = false
	c.Update()
	if c.State() != types.StateOff {
		t.Errorf("state = %s, want off after switch off", c.State())
	}
}

func TestFirstScanSuppressesBootEdges(t *testing.T) {
	m := newMockIO()
	m.rideOn = true
	m.dispatch = true
	c, _ := testSystem(m, nil)

	// Inputs already asserted at boot must not fire as edges.
	c.Update()
	if c.State() != types.StateOff {
		t.Errorf("state = %s, want off after baseline scan", c.State())
	}
}

func TestDispatchStartsRide(t *testing.T) {
	m := newMockIO()
	c, clock := testSystem(m, nil)
	toRunning(c, m)

	if c.State() != types.StateRunning {
		t.Fatalf("state = %s, want running", c.State())
	}
	if !m.motorsEnabled {
		t.Error("motors must be enabled on entering running")
	}
	// While the restraints pull clear the motor holds.
	if m.lastCommand() != nil {
		t.Errorf("command during servo settle = %v, want hold", m.lastCommand())
	}
	if m.servosExtended {
		t.Error("servos must be retracting at ride start")
	}

	clock.advance(ServoSettleBuffer + time.Second)
	c.Update()
	last := m.lastCommand()
	if last == nil || last.Kind != sequencer.KindMove || last.Speed != "med" {
		t.Errorf("command after settle = %v, want the first Move", last)
	}
}

func TestDispatchIgnoredWhileRunning(t *testing.T) {
	m := newMockIO()
	c, _ := testSystem(m, nil)
	toRunning(c, m)

	m.dispatch = true
	c.Update()
	if c.State() != types.StateRunning {
		t.Errorf("state = %s, want running after redundant dispatch", c.State())
	}
}

func TestEStopInputForcesEstopped(t *testing.T) {
	m := newMockIO()
	c, _ := testSystem(m, nil)
	toRunning(c, m)

	m.estop = true
	c.Update()
	if c.State() != types.StateEstopped {
		t.Fatalf("state = %s, want estopped", c.State())
	}
	if !m.powerTerminated {
		t.Error("estopped must terminate motor power")
	}
}

func TestHighFaultForcesEstopBeforeMotorCommands(t *testing.T) {
	m := newMockIO()
	c, clock := testSystem(m, nil)
	toRunning(c, m)
	clock.advance(ServoSettleBuffer + time.Second)
	c.Update()
	sent := len(m.commands)

	c.faults.Raise(faults.CodeHomingTimeout)
	c.Update()
	if c.State() != types.StateEstopped {
		t.Fatalf("state = %s, want estopped on high fault", c.State())
	}
	// The tick that saw the fault must not have issued a motion command.
	for _, cmd := range m.commands[sent:] {
		if cmd != nil {
			t.Errorf("motion command issued after high fault: %v", cmd)
		}
	}
}

func TestResetBlockedWhileEStopHeld(t *testing.T) {
	m := newMockIO()
	c, _ := testSystem(m, nil)
	toRunning(c, m)

	m.estop = true
	c.Update()

	m.restart = true
	c.Update()
	if c.State() != types.StateEstopped {
		t.Errorf("state = %s, want estopped while the estop input is held", c.State())
	}
}

func TestResetCycleClearsFaultsAndReturnsToIdle(t *testing.T) {
	m := newMockIO()
	c, clock := testSystem(m, nil)
	toRunning(c, m)

	m.estop = true
	c.Update()
	m.estop = false

	m.restart = true
	c.Update()
	if c.State() != types.StateResetting {
		t.Fatalf("state = %s, want resetting", c.State())
	}
	if c.faults.IsActive(faults.CodeEStopActivated) {
		t.Error("reset must clear fault 101")
	}
	m.restart = false

	clock.advance(ResettingDwell + time.Second)
	c.Update()
	if c.State() != types.StateIdle {
		t.Errorf("state = %s, want idle after the resetting dwell", c.State())
	}
}

func TestStopHomesAndReturnsToIdle(t *testing.T) {
	m := newMockIO()
	c, clock := testSystem(m, nil)
	toRunning(c, m)

	m.stop = true
	c.Update()
	m.stop = false
	if c.State() != types.StateStopping {
		t.Fatalf("state = %s, want stopping", c.State())
	}
	last := m.lastCommand()
	if last == nil || last.Kind != sequencer.KindPosition {
		t.Fatalf("stopping command = %v, want the home hold", last)
	}

	// Arrival extends the servos and starts the settle clock.
	m.positionAck = true
	c.Update()
	if !m.servosExtended {
		t.Error("servos must extend once the ride is home")
	}
	if c.State() != types.StateStopping {
		t.Fatalf("state = %s, want stopping during the settle buffer", c.State())
	}

	clock.advance(ServoSettleBuffer + time.Second)
	c.Update()
	if c.State() != types.StateIdle {
		t.Errorf("state = %s, want idle after homing completes", c.State())
	}
	if m.motorsEnabled {
		t.Error("motors must be disabled back in idle")
	}
}

func TestHomingTimeoutRaisesFaultAndEstops(t *testing.T) {
	m := newMockIO()
	c, clock := testSystem(m, nil)
	toRunning(c, m)

	m.stop = true
	c.Update()
	m.stop = false

	clock.advance(HomingTimeout + time.Second)
	c.Update()
	if c.State() != types.StateEstopped {
		t.Fatalf("state = %s, want estopped after the homing timeout", c.State())
	}
	if !c.faults.IsActive(faults.CodeHomingTimeout) {
		t.Error("homing timeout must raise its fault")
	}
}

func TestExternalCommands(t *testing.T) {
	m := newMockIO()
	c, _ := testSystem(m, nil)
	toRunning(c, m)

	if err := c.Command("bogus"); err == nil {
		t.Error("unknown command must be rejected")
	}

	if err := c.Command("estop"); err != nil {
		t.Fatalf("Command(estop) failed: %v", err)
	}
	c.Update()
	if c.State() != types.StateEstopped {
		t.Errorf("state = %s, want estopped after the estop command", c.State())
	}
	if !c.faults.IsActive(faults.CodeEStopActivated) {
		t.Error("estop command must raise fault 101")
	}
}

func TestPublisherSeesTransitions(t *testing.T) {
	m := newMockIO()
	pub := &mockPublisher{}
	c, _ := testSystem(m, pub)
	toRunning(c, m)

	want := []types.RideState{types.StateIdle, types.StateRunning}
	if len(pub.states) != len(want) {
		t.Fatalf("published states = %v, want %v", pub.states, want)
	}
	for i := range want {
		if pub.states[i] != want[i] {
			t.Errorf("published state %d = %s, want %s", i, pub.states[i], want[i])
		}
	}
}

func TestSnapshotReflectsFaults(t *testing.T) {
	m := newMockIO()
	c, clock := testSystem(m, nil)
	toIdle(c, m)

	c.faults.Raise(faults.CodeOverTemperature)
	clock.advance(2 * time.Second) // past the telemetry refresh interval
	c.Update()

	snap := c.Snapshot()
	if len(snap.Faults) != 1 || snap.Faults[0].Code != faults.CodeOverTemperature {
		t.Errorf("snapshot faults = %v, want the over-temperature fault", snap.Faults)
	}
	if snap.State != types.StateIdle {
		t.Errorf("snapshot state = %s, want idle", snap.State)
	}
}
