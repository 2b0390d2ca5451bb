package core

import (
	"github.com/Terrier-Ride-Engineering-Club/Ride-Control-Computer/internal/sequencer"
	"github.com/Terrier-Ride-Engineering-Club/Ride-Control-Computer/internal/types"
)

// IOController is the capability interface between the ride control
// computer and its I/O, physical or simulated. The orchestrator holds one
// reference, selected at startup by the hardware factory.
//
// Reads backed by the motor controller cost a serial round trip bounded by
// the transport timeout; none of these methods may block longer than that.
type IOController interface {
	// Operator inputs. EStop and the ride on/off switch are levels; the
	// push buttons are momentary and edge-detected by the orchestrator.
	ReadEStop() (bool, error)
	ReadStop() (bool, error)
	ReadDispatch() (bool, error)
	ReadRideOnOff() (bool, error)
	ReadRestart() (bool, error)

	// Motor controller telemetry. Speeds are in QPPS.
	ReadEncoder() (int32, error)
	ReadSpeed() (float64, error)
	ReadMaxSpeed() (float64, error)
	ReadStatus() (string, error)
	ReadTempSensor(sensor int) (float64, error)
	ReadCurrent() (float64, error)

	// SendMotorCommand executes one motion instruction against the motor
	// controller. A nil instruction commands a controlled stop. The bool
	// result reports whether a Position command has reached its target.
	SendMotorCommand(in *sequencer.Instruction) (bool, error)

	// Restraint servo choreography.
	ExtendServos() error
	RetractServos() error

	// System-level power actions.
	EnableMotors() error
	DisableMotors() error
	TerminatePower() error

	Close() error
}

// TelemetryPublisher receives state changes and periodic snapshots for the
// monitoring side (Redis). Optional; the orchestrator works without one.
type TelemetryPublisher interface {
	PublishState(state types.RideState) error
	PublishSnapshot(snap types.Snapshot) error
}
