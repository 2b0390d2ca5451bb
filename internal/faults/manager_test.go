package faults

import (
	"errors"
	"io"
	"log"
	"testing"

	"github.com/Terrier-Ride-Engineering-Club/Ride-Control-Computer/internal/logger"
)

// fakeDiagIO returns canned readings and counts which sensors each check
// touched.
type fakeDiagIO struct {
	estop    bool
	status   string
	encoder  int32
	speed    float64
	maxSpeed float64
	temp1    float64
	temp2    float64

	estopErr   error
	statusErr  error
	encoderErr error
	speedErr   error
	tempErr    error

	reads map[string]int
}

func newFakeDiagIO() *fakeDiagIO {
	return &fakeDiagIO{
		status:   "Normal",
		maxSpeed: 1425,
		temp1:    30,
		temp2:    30,
		reads:    make(map[string]int),
	}
}

func (f *fakeDiagIO) ReadEStop() (bool, error) {
	f.reads["estop"]++
	return f.estop, f.estopErr
}

func (f *fakeDiagIO) ReadStatus() (string, error) {
	f.reads["status"]++
	return f.status, f.statusErr
}

func (f *fakeDiagIO) ReadEncoder() (int32, error) {
	f.reads["encoder"]++
	return f.encoder, f.encoderErr
}

func (f *fakeDiagIO) ReadSpeed() (float64, error) {
	f.reads["speed"]++
	return f.speed, f.speedErr
}

func (f *fakeDiagIO) ReadMaxSpeed() (float64, error) {
	f.reads["maxspeed"]++
	return f.maxSpeed, nil
}

func (f *fakeDiagIO) ReadTempSensor(sensor int) (float64, error) {
	if sensor == 2 {
		f.reads["temp2"]++
		return f.temp2, f.tempErr
	}
	f.reads["temp1"]++
	return f.temp1, f.tempErr
}

func testManager() *Manager {
	l := logger.NewLogger(log.New(io.Discard, "", 0), logger.LogLevelNone)
	return NewManager(l)
}

func runFullRotation(m *Manager, io DiagnosticIO) {
	for i := 0; i < m.NumChecks(); i++ {
		m.Check(io)
	}
}

func TestRaiseIsIdempotent(t *testing.T) {
	m := testManager()
	m.Raise(CodeMotorController)
	m.Raise(CodeMotorController)

	active := m.Active()
	if len(active) != 1 {
		t.Fatalf("active faults = %d, want 1", len(active))
	}
	if active[0].Code != CodeMotorController {
		t.Errorf("active code = %d, want %d", active[0].Code, CodeMotorController)
	}
}

func TestRaiseUnknownCodeIgnored(t *testing.T) {
	m := testManager()
	m.Raise(999)
	if len(m.Active()) != 0 {
		t.Error("unknown code must not enter the active set")
	}
}

func TestHighSeverityRequiresEStop(t *testing.T) {
	m := testManager()
	m.Raise(CodeOverTemperature) // medium
	if m.EStopRequired() {
		t.Error("medium fault must not demand an estop")
	}
	m.Raise(CodeEStopActivated) // high
	if !m.EStopRequired() {
		t.Error("high fault must demand an estop")
	}
	m.Clear(CodeEStopActivated)
	if m.EStopRequired() {
		t.Error("latch must release once the high fault is cleared")
	}
}

func TestClearReportsPresence(t *testing.T) {
	m := testManager()
	if m.Clear(CodeSensorFailure) {
		t.Error("clearing an inactive fault must report false")
	}
	m.Raise(CodeSensorFailure)
	if !m.Clear(CodeSensorFailure) {
		t.Error("clearing an active fault must report true")
	}
}

func TestClearAll(t *testing.T) {
	m := testManager()
	m.Raise(CodeEStopActivated)
	m.Raise(CodeOverTemperature)
	m.ClearAll()
	if len(m.Active()) != 0 || m.EStopRequired() {
		t.Error("ClearAll must empty the set and release the latch")
	}
}

func TestActiveSortedByCode(t *testing.T) {
	m := testManager()
	m.Raise(CodeOverTemperature)
	m.Raise(CodeEStopActivated)
	m.Raise(CodeMotorController)

	active := m.Active()
	for i := 1; i < len(active); i++ {
		if active[i-1].Code >= active[i].Code {
			t.Fatalf("active not sorted: %v", active)
		}
	}
}

func TestRoundRobinVisitsEveryCheckOnce(t *testing.T) {
	m := testManager()
	io := newFakeDiagIO()
	runFullRotation(m, io)

	for _, sensor := range []string{"estop", "status", "encoder", "temp1", "temp2"} {
		if io.reads[sensor] != 1 {
			t.Errorf("sensor %s read %d times in one rotation, want 1", sensor, io.reads[sensor])
		}
	}
	// The speed check reads both actual and max speed.
	if io.reads["speed"] != 1 || io.reads["maxspeed"] != 1 {
		t.Errorf("speed check reads = %d/%d, want 1/1", io.reads["speed"], io.reads["maxspeed"])
	}
}

func TestEStopInputRaisesButNeverClears(t *testing.T) {
	m := testManager()
	io := newFakeDiagIO()
	io.estop = true
	runFullRotation(m, io)

	if !m.IsActive(CodeEStopActivated) {
		t.Fatal("asserted estop input must raise fault 101")
	}

	// Releasing the input does not clear the fault; only a reset does.
	io.estop = false
	runFullRotation(m, io)
	if !m.IsActive(CodeEStopActivated) {
		t.Error("fault 101 must persist after the input releases")
	}
}

func TestControllerStatusRaisesAndClears(t *testing.T) {
	m := testManager()
	io := newFakeDiagIO()
	io.status = "M1 Driver Fault Error"
	runFullRotation(m, io)
	if !m.IsActive(CodeMotorController) {
		t.Fatal("abnormal status must raise the controller fault")
	}

	io.status = "Normal"
	runFullRotation(m, io)
	if m.IsActive(CodeMotorController) {
		t.Error("normal status must clear the controller fault")
	}
}

func TestSpeedDeviationRaisesAndClears(t *testing.T) {
	m := testManager()
	io := newFakeDiagIO()
	io.speed = -(io.maxSpeed + SpeedDeviationQPPS + 1)
	runFullRotation(m, io)
	if !m.IsActive(CodeSpeedDeviation) {
		t.Fatal("overspeed must raise the deviation fault")
	}

	io.speed = io.maxSpeed
	runFullRotation(m, io)
	if m.IsActive(CodeSpeedDeviation) {
		t.Error("in-band speed must clear the deviation fault")
	}
}

func TestOverTemperatureClearsOnlyViaSensorOne(t *testing.T) {
	m := testManager()
	io := newFakeDiagIO()
	io.temp1 = OverTemperatureC + 5
	runFullRotation(m, io)
	if !m.IsActive(CodeOverTemperature) {
		t.Fatal("hot sensor must raise the over-temperature fault")
	}

	// Sensor 2 staying cool must not clear a fault raised by sensor 1.
	io.temp1 = OverTemperatureC + 5
	io.temp2 = 25
	runFullRotation(m, io)
	if !m.IsActive(CodeOverTemperature) {
		t.Error("cool sensor 2 must not mask a hot sensor 1")
	}

	io.temp1 = 30
	runFullRotation(m, io)
	if m.IsActive(CodeOverTemperature) {
		t.Error("cooled sensor 1 must clear the fault")
	}
}

func TestTransportErrorRaisesCommFailure(t *testing.T) {
	m := testManager()
	io := newFakeDiagIO()
	dead := errors.New("serial: device not configured")
	io.estopErr, io.statusErr, io.encoderErr, io.speedErr, io.tempErr = dead, dead, dead, dead, dead
	runFullRotation(m, io)
	if !m.IsActive(CodeCommFailure) {
		t.Fatal("transport failure in a check must raise fault 105")
	}

	io.estopErr, io.statusErr, io.encoderErr, io.speedErr, io.tempErr = nil, nil, nil, nil, nil
	runFullRotation(m, io)
	if m.IsActive(CodeCommFailure) {
		t.Error("a successful check must clear fault 105")
	}
}

func TestNoReadingRaisesSensorFailure(t *testing.T) {
	m := testManager()
	io := newFakeDiagIO()
	io.encoderErr = ErrNoReading
	runFullRotation(m, io)

	if !m.IsActive(CodeSensorFailure) {
		t.Error("missing reading must raise fault 104")
	}
	if m.IsActive(CodeCommFailure) {
		t.Error("missing reading must not raise fault 105")
	}
}
