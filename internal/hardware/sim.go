package hardware

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/Terrier-Ride-Engineering-Club/Ride-Control-Computer/internal/logger"
	"github.com/Terrier-Ride-Engineering-Club/Ride-Control-Computer/internal/sequencer"
)

// SimulatedIO is a software-only IOController: operator inputs are toggled
// through the web dashboard and the motor follows a simple constant-
// acceleration model. Good enough to exercise the whole control loop on a
// laptop.
type SimulatedIO struct {
	log *logger.Logger

	mu     sync.Mutex
	inputs map[string]bool

	now      func() time.Time
	lastStep time.Time

	encoder float64 // counts
	speed   float64 // QPPS
	target  float64 // commanded QPPS
	accel   float64 // QPPS/s
	homing  bool

	temp1, temp2 float64
	status       string

	servosExtended  bool
	motorsEnabled   bool
	powerTerminated bool
}

func NewSimulatedIO(log *logger.Logger) *SimulatedIO {
	s := &SimulatedIO{
		log: log.WithTag("SimIO"),
		inputs: map[string]bool{
			"estop":     false,
			"stop":      false,
			"dispatch":  false,
			"rideonoff": false,
			"restart":   false,
		},
		now:            time.Now,
		accel:          float64(StopAccelQPPS2),
		temp1:          31.5,
		temp2:          30.0,
		status:         "Normal",
		servosExtended: true,
	}
	s.lastStep = s.now()
	return s
}

// SetInput toggles a simulated operator input. Unknown names are rejected
// so dashboard typos surface instead of silently doing nothing.
func (s *SimulatedIO) SetInput(name string, value bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inputs[name]; !ok {
		return fmt.Errorf("unknown input %s", name)
	}
	s.inputs[name] = value
	s.log.Infof("input %s=%v", name, value)
	return nil
}

// SetStatus overrides the reported controller status, for fault drills.
func (s *SimulatedIO) SetStatus(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// SetTemperature overrides a board temperature sensor, for fault drills.
func (s *SimulatedIO) SetTemperature(sensor int, temp float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sensor == 2 {
		s.temp2 = temp
	} else {
		s.temp1 = temp
	}
}

// step advances the motor model to the current time. Callers hold s.mu.
func (s *SimulatedIO) step() {
	now := s.now()
	dt := now.Sub(s.lastStep).Seconds()
	s.lastStep = now
	if dt <= 0 {
		return
	}

	target := s.target
	if s.homing {
		// Proportional approach to home, clamped to the homing speed, so
		// the model settles instead of hunting across the tolerance band.
		err := float64(HomePosition) - s.encoder
		target = err * 1.5
		if target > HomingSpeedQPPS {
			target = HomingSpeedQPPS
		} else if target < -HomingSpeedQPPS {
			target = -HomingSpeedQPPS
		}
	}
	if s.powerTerminated || !s.motorsEnabled {
		target = 0
	}

	ramp := s.accel * dt
	switch {
	case s.speed < target:
		s.speed = math.Min(s.speed+ramp, target)
	case s.speed > target:
		s.speed = math.Max(s.speed-ramp, target)
	}
	s.encoder += s.speed * dt
}

func (s *SimulatedIO) readInput(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inputs[name], nil
}

func (s *SimulatedIO) ReadEStop() (bool, error)     { return s.readInput("estop") }
func (s *SimulatedIO) ReadStop() (bool, error)      { return s.readInput("stop") }
func (s *SimulatedIO) ReadDispatch() (bool, error)  { return s.readInput("dispatch") }
func (s *SimulatedIO) ReadRideOnOff() (bool, error) { return s.readInput("rideonoff") }
func (s *SimulatedIO) ReadRestart() (bool, error)   { return s.readInput("restart") }

func (s *SimulatedIO) ReadEncoder() (int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.step()
	return int32(math.Round(s.encoder)), nil
}

func (s *SimulatedIO) ReadSpeed() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.step()
	return s.speed, nil
}

func (s *SimulatedIO) ReadMaxSpeed() (float64, error) {
	return float64(SpeedMapQPPS["fast"]), nil
}

func (s *SimulatedIO) ReadStatus() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, nil
}

func (s *SimulatedIO) ReadTempSensor(sensor int) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sensor == 2 {
		return s.temp2, nil
	}
	return s.temp1, nil
}

func (s *SimulatedIO) ReadCurrent() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.step()
	return math.Abs(s.speed) / float64(SpeedMapQPPS["fast"]) * 5.0, nil
}

func (s *SimulatedIO) SendMotorCommand(in *sequencer.Instruction) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.step()

	if in == nil {
		s.homing = false
		s.target = 0
		s.accel = float64(StopDecelQPPS2)
		return false, nil
	}

	switch in.Kind {
	case sequencer.KindMove:
		s.homing = false
		speed := float64(SpeedMapQPPS[in.Speed])
		if in.Direction == "bwd" {
			speed = -speed
		}
		s.target = speed
		s.accel = float64(AccelMapQPPS2[in.Accel])
		return false, nil

	case sequencer.KindPosition:
		s.homing = true
		s.accel = float64(StopAccelQPPS2)
		arrived := math.Abs(s.encoder-float64(HomePosition)) < HomePositionTolerance &&
			math.Abs(s.speed) < HomeSpeedTolerance
		return arrived, nil

	default:
		return false, fmt.Errorf("unknown instruction kind %q", in.Kind)
	}
}

func (s *SimulatedIO) ExtendServos() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.servosExtended = true
	return nil
}

func (s *SimulatedIO) RetractServos() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.servosExtended = false
	return nil
}

func (s *SimulatedIO) EnableMotors() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.motorsEnabled = true
	s.powerTerminated = false
	return nil
}

func (s *SimulatedIO) DisableMotors() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.motorsEnabled = false
	s.target = 0
	return nil
}

func (s *SimulatedIO) TerminatePower() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.powerTerminated = true
	s.motorsEnabled = false
	s.target = 0
	return nil
}

func (s *SimulatedIO) Close() error { return nil }

// ServosExtended reports the simulated restraint position.
func (s *SimulatedIO) ServosExtended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.servosExtended
}

// MotorsEnabled reports the simulated power relay state.
func (s *SimulatedIO) MotorsEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.motorsEnabled
}
