package faults

import (
	"errors"
	"math"
	"sort"

	"github.com/Terrier-Ride-Engineering-Club/Ride-Control-Computer/internal/logger"
	"github.com/Terrier-Ride-Engineering-Club/Ride-Control-Computer/internal/types"
)

// Diagnostic policy constants.
const (
	// SpeedDeviationQPPS is how far beyond the configured max speed the
	// measured speed may drift before fault 108 is raised.
	SpeedDeviationQPPS = 5.0
	// OverTemperatureC is the controller temperature ceiling for fault 114.
	OverTemperatureC = 80.0
)

// ErrNoReading marks a sensor value that is absent rather than a transport
// failure. IO implementations return it when the device answered but the
// value is missing or unusable; the diagnostic slice maps it to fault 104
// instead of 105.
var ErrNoReading = errors.New("no sensor reading")

// DiagnosticIO is the capability subset the round-robin checks need. Each
// read may cost a full serial round trip, which is why only one check runs
// per control tick.
type DiagnosticIO interface {
	ReadEStop() (bool, error)
	ReadStatus() (string, error)
	ReadEncoder() (int32, error)
	ReadSpeed() (float64, error)
	ReadMaxSpeed() (float64, error)
	ReadTempSensor(sensor int) (float64, error)
}

type check struct {
	name string
	run  func(m *Manager, io DiagnosticIO) error
}

// Manager tracks the set of currently active faults keyed by code and the
// single derived "must-estop" latch. It also owns the time-sliced diagnostic
// schedule: one hardware check per Check call, round-robin.
type Manager struct {
	log           *logger.Logger
	active        map[int]Fault
	estopRequired bool
	checks        []check
	cursor        int
}

func NewManager(log *logger.Logger) *Manager {
	m := &Manager{
		log:    log.WithTag("Faults"),
		active: make(map[int]Fault),
	}
	m.checks = []check{
		{"estop-input", (*Manager).checkEStopInput},
		{"controller-status", (*Manager).checkControllerStatus},
		{"encoder-presence", (*Manager).checkEncoderPresence},
		{"speed-deviation", (*Manager).checkSpeedDeviation},
		{"temperature-1", func(m *Manager, io DiagnosticIO) error { return m.checkTemperature(io, 1) }},
		{"temperature-2", func(m *Manager, io DiagnosticIO) error { return m.checkTemperature(io, 2) }},
	}
	return m
}

// Raise inserts the canonical fault for code into the active set. Raising an
// already-active code is a no-op for the set but still recomputes the latch.
func (m *Manager) Raise(code int) {
	f, ok := Lookup(code)
	if !ok {
		m.log.Errorf("Raise called with unknown fault code %d", code)
		return
	}
	if _, present := m.active[code]; !present {
		m.active[code] = f
		switch f.Severity {
		case SeverityLow:
			m.log.Warnf("FAULT DETECTED: %s", f)
		case SeverityMedium:
			m.log.Errorf("FAULT DETECTED: %s", f)
		case SeverityHigh:
			m.log.Criticalf("FAULT DETECTED: %s", f)
		}
	}
	m.recomputeLatch()
}

// Clear removes the fault if present and reports whether anything was
// removed.
func (m *Manager) Clear(code int) bool {
	if _, present := m.active[code]; !present {
		return false
	}
	delete(m.active, code)
	m.recomputeLatch()
	m.log.Infof("Fault #%d cleared", code)
	return true
}

// ClearAll empties the active set. Used by the reset cycle.
func (m *Manager) ClearAll() {
	if len(m.active) == 0 {
		return
	}
	m.active = make(map[int]Fault)
	m.estopRequired = false
	m.log.Infof("All faults cleared")
}

// EStopRequired reports whether any active fault has High severity.
func (m *Manager) EStopRequired() bool {
	return m.estopRequired
}

// IsActive reports whether the given fault code is currently raised.
func (m *Manager) IsActive(code int) bool {
	_, present := m.active[code]
	return present
}

// Active returns a snapshot of the active faults ordered by code.
func (m *Manager) Active() []types.FaultInfo {
	out := make([]types.FaultInfo, 0, len(m.active))
	for _, f := range m.active {
		out = append(out, types.FaultInfo{
			Code:     f.Code,
			Message:  f.Message,
			Severity: f.Severity.String(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// NumChecks returns the length of the diagnostic schedule, i.e. how many
// Check calls it takes to re-verify every condition once.
func (m *Manager) NumChecks() int {
	return len(m.checks)
}

// Check runs exactly one diagnostic check and advances the round-robin
// cursor. Each check costs up to a couple of serial round trips; running the
// whole list every tick would blow the control loop's timing budget.
//
// A transport-level failure inside a check raises the communication-failure
// fault and aborts the slice; the next successful slice clears it again.
func (m *Manager) Check(io DiagnosticIO) {
	c := m.checks[m.cursor]
	m.cursor = (m.cursor + 1) % len(m.checks)

	if err := c.run(m, io); err != nil {
		if errors.Is(err, ErrNoReading) {
			m.Raise(CodeSensorFailure)
			return
		}
		m.log.Errorf("diagnostic %s: %v", c.name, err)
		m.Raise(CodeCommFailure)
		return
	}
	m.Clear(CodeCommFailure)
}

func (m *Manager) recomputeLatch() {
	m.estopRequired = false
	for _, f := range m.active {
		if f.Severity == SeverityHigh {
			m.estopRequired = true
			return
		}
	}
}

// checkEStopInput raises fault 101 while the hardware estop input is
// asserted. The fault is deliberately not cleared when the input de-asserts:
// the estop latch releases only through an explicit reset cycle.
func (m *Manager) checkEStopInput(io DiagnosticIO) error {
	pressed, err := io.ReadEStop()
	if err != nil {
		return err
	}
	if pressed {
		m.Raise(CodeEStopActivated)
	}
	return nil
}

func (m *Manager) checkControllerStatus(io DiagnosticIO) error {
	status, err := io.ReadStatus()
	if err != nil {
		return err
	}
	if status != "Normal" {
		m.Raise(CodeMotorController)
		m.log.Warnf("controller status: %s", status)
	} else {
		m.Clear(CodeMotorController)
	}
	return nil
}

func (m *Manager) checkEncoderPresence(io DiagnosticIO) error {
	if _, err := io.ReadEncoder(); err != nil {
		return err
	}
	m.Clear(CodeSensorFailure)
	return nil
}

func (m *Manager) checkSpeedDeviation(io DiagnosticIO) error {
	speed, err := io.ReadSpeed()
	if err != nil {
		return err
	}
	maxSpeed, err := io.ReadMaxSpeed()
	if err != nil {
		return err
	}
	if math.Abs(speed)-maxSpeed > SpeedDeviationQPPS {
		m.Raise(CodeSpeedDeviation)
		m.log.Warnf("speed deviation: |%.0f| exceeds max %.0f", speed, maxSpeed)
	} else {
		m.Clear(CodeSpeedDeviation)
	}
	return nil
}

func (m *Manager) checkTemperature(io DiagnosticIO, sensor int) error {
	temp, err := io.ReadTempSensor(sensor)
	if err != nil {
		return err
	}
	if temp > OverTemperatureC {
		m.Raise(CodeOverTemperature)
		m.log.Warnf("temperature sensor %d at %.1fC", sensor, temp)
	} else if sensor == 1 {
		// Sensor 1 is authoritative for clearing so a cool sensor 2 cannot
		// mask an overheating sensor 1 within the same rotation.
		m.Clear(CodeOverTemperature)
	}
	return nil
}
