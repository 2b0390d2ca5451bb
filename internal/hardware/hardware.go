// Package hardware provides the IOController implementations: the Raspberry
// Pi GPIO plus RoboClaw serial stack used on the real ride, and a pure
// software simulation for bench work.
package hardware

import (
	"fmt"
	"math"
	"time"

	"github.com/warthog618/go-gpiocdev"

	"github.com/Terrier-Ride-Engineering-Club/Ride-Control-Computer/internal/logger"
	"github.com/Terrier-Ride-Engineering-Club/Ride-Control-Computer/internal/roboclaw"
	"github.com/Terrier-Ride-Engineering-Club/Ride-Control-Computer/internal/sequencer"
)

const inputDebounce = 5 * time.Millisecond

// PiIO drives the operator panel through the Pi's GPIO character device and
// the ride motor through a RoboClaw controller. All methods are called from
// the single control goroutine.
type PiIO struct {
	log     *logger.Logger
	chip    *gpiocdev.Chip
	inputs  map[string]*gpiocdev.Line
	outputs map[string]*gpiocdev.Line
	rc      *roboclaw.Controller

	// positionMode tracks whether the last motor command was a position
	// target. The controller rejects a position target while executing a
	// velocity command at speed, so the transition goes through a stop.
	positionMode bool
}

// NewPiIO opens the GPIO lines and takes ownership of the RoboClaw
// controller. Servo outputs start extended; the motor power relay starts
// open.
func NewPiIO(rc *roboclaw.Controller, log *logger.Logger) (*PiIO, error) {
	h := &PiIO{
		log:     log.WithTag("PiIO"),
		inputs:  make(map[string]*gpiocdev.Line),
		outputs: make(map[string]*gpiocdev.Line),
		rc:      rc,
	}

	chip, err := gpiocdev.NewChip(GpioChip)
	if err != nil {
		return nil, fmt.Errorf("failed to open GPIO chip %s: %w", GpioChip, err)
	}
	h.chip = chip

	for name, pin := range InputMappings {
		line, err := chip.RequestLine(pin,
			gpiocdev.AsInput,
			gpiocdev.WithPullUp,
			gpiocdev.WithDebounce(inputDebounce),
			gpiocdev.WithConsumer("ride-control"))
		if err != nil {
			h.Close()
			return nil, fmt.Errorf("failed to request input %s (line %d): %w", name, pin, err)
		}
		h.inputs[name] = line
		h.log.Debugf("configured input %s: line=%d", name, pin)
	}

	for name, pin := range OutputMappings {
		initial := 0
		if name == "servo_left" || name == "servo_right" {
			initial = 1
		}
		line, err := chip.RequestLine(pin,
			gpiocdev.AsOutput(initial),
			gpiocdev.WithConsumer("ride-control"))
		if err != nil {
			h.Close()
			return nil, fmt.Errorf("failed to request output %s (line %d): %w", name, pin, err)
		}
		h.outputs[name] = line
		h.log.Debugf("configured output %s: line=%d initial=%d", name, pin, initial)
	}

	return h, nil
}

func (h *PiIO) readInput(name string) (bool, error) {
	line, ok := h.inputs[name]
	if !ok {
		return false, fmt.Errorf("unknown input %s", name)
	}
	v, err := line.Value()
	if err != nil {
		return false, fmt.Errorf("failed to read input %s: %w", name, err)
	}
	// Buttons pull the line low when pressed.
	return v == 0, nil
}

func (h *PiIO) writeOutput(name string, value bool) error {
	line, ok := h.outputs[name]
	if !ok {
		return fmt.Errorf("unknown output %s", name)
	}
	v := 0
	if value {
		v = 1
	}
	if err := line.SetValue(v); err != nil {
		return fmt.Errorf("failed to set output %s=%v: %w", name, value, err)
	}
	return nil
}

// ReadEStop reports whether the estop chain is open. The chain is normally
// closed to ground; a break anywhere reads high.
func (h *PiIO) ReadEStop() (bool, error) {
	line := h.inputs["estop"]
	v, err := line.Value()
	if err != nil {
		return false, fmt.Errorf("failed to read estop chain: %w", err)
	}
	return v != 0, nil
}

func (h *PiIO) ReadStop() (bool, error)      { return h.readInput("stop") }
func (h *PiIO) ReadDispatch() (bool, error)  { return h.readInput("dispatch") }
func (h *PiIO) ReadRideOnOff() (bool, error) { return h.readInput("rideonoff") }
func (h *PiIO) ReadRestart() (bool, error)   { return h.readInput("restart") }

func (h *PiIO) ReadEncoder() (int32, error) {
	r, err := h.rc.ReadEncoder()
	if err != nil {
		return 0, err
	}
	return r.Count, nil
}

func (h *PiIO) ReadSpeed() (float64, error) {
	return h.rc.ReadRawSpeed()
}

func (h *PiIO) ReadMaxSpeed() (float64, error) {
	qpps, err := h.rc.ReadMaxSpeed()
	if err != nil {
		return 0, err
	}
	return float64(qpps), nil
}

func (h *PiIO) ReadStatus() (string, error) {
	return h.rc.ReadStatus()
}

func (h *PiIO) ReadTempSensor(sensor int) (float64, error) {
	return h.rc.ReadTemperature(sensor)
}

func (h *PiIO) ReadCurrent() (float64, error) {
	m1, _, err := h.rc.ReadCurrents()
	return m1, err
}

// SendMotorCommand translates one motion instruction into RoboClaw
// commands. A nil instruction ramps to a controlled stop. For a Position
// instruction the result reports whether the ride has arrived and settled.
func (h *PiIO) SendMotorCommand(in *sequencer.Instruction) (bool, error) {
	if in == nil {
		h.positionMode = false
		return false, h.rc.SetSpeedWithAcceleration(0, StopDecelQPPS2)
	}

	switch in.Kind {
	case sequencer.KindMove:
		h.positionMode = false
		speed := SpeedMapQPPS[in.Speed]
		if in.Direction == "bwd" {
			speed = -speed
		}
		return false, h.rc.SetSpeedWithAcceleration(speed, AccelMapQPPS2[in.Accel])

	case sequencer.KindPosition:
		return h.driveHome()

	default:
		return false, fmt.Errorf("unknown instruction kind %q", in.Kind)
	}
}

// driveHome issues the home position target and polls for arrival. Issuing
// a position target while the motor is still running a velocity command
// makes the controller lurch, so the guard ramps to a stop first.
func (h *PiIO) driveHome() (bool, error) {
	speed, err := h.rc.ReadRawSpeed()
	if err != nil {
		return false, err
	}
	enc, err := h.rc.ReadEncoder()
	if err != nil {
		return false, err
	}

	if math.Abs(float64(enc.Count-HomePosition)) < HomePositionTolerance &&
		math.Abs(speed) < HomeSpeedTolerance {
		return true, nil
	}

	if !h.positionMode {
		if math.Abs(speed) >= HomeSpeedTolerance {
			return false, h.rc.SetSpeedWithAcceleration(0, StopDecelQPPS2)
		}
		h.positionMode = true
	}
	return false, h.rc.DriveToPositionRaw(
		StopAccelQPPS2, HomingSpeedQPPS, StopDecelQPPS2, HomePosition, 0)
}

func (h *PiIO) ExtendServos() error {
	if err := h.writeOutput("servo_left", true); err != nil {
		return err
	}
	return h.writeOutput("servo_right", true)
}

func (h *PiIO) RetractServos() error {
	if err := h.writeOutput("servo_left", false); err != nil {
		return err
	}
	return h.writeOutput("servo_right", false)
}

func (h *PiIO) EnableMotors() error {
	return h.writeOutput("motor_power", true)
}

// DisableMotors ramps the motor down and leaves the power relay closed so
// the controller keeps answering telemetry reads.
func (h *PiIO) DisableMotors() error {
	h.positionMode = false
	return h.rc.SetSpeedWithAcceleration(0, StopDecelQPPS2)
}

// TerminatePower is the estop action: cut the motor drive immediately and
// open the power relay.
func (h *PiIO) TerminatePower() error {
	h.positionMode = false
	if err := h.rc.SetSpeed(0); err != nil {
		h.log.Errorf("failed to zero motor speed: %v", err)
	}
	return h.writeOutput("motor_power", false)
}

func (h *PiIO) Close() error {
	for name, line := range h.inputs {
		line.Close()
		h.log.Debugf("closed input line %s", name)
	}
	for name, line := range h.outputs {
		line.Close()
		h.log.Debugf("closed output line %s", name)
	}
	if h.chip != nil {
		h.chip.Close()
	}
	if h.rc != nil {
		return h.rc.Close()
	}
	return nil
}
