package faults

import "strconv"

// Severity classifies how a fault affects ride operation. Low and Medium
// faults are tracked and logged but do not block the ride; any active High
// fault forces the state machine into estopped until a reset cycle clears it.
type Severity int

const (
	SeverityLow Severity = iota + 1
	SeverityMedium
	SeverityHigh
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	default:
		return "UNKNOWN"
	}
}

// Fault is an immutable catalog record.
type Fault struct {
	Code     int
	Message  string
	Severity Severity
}

func (f Fault) String() string {
	return "[" + f.Severity.String() + "] Fault " + strconv.Itoa(f.Code) + ": " + f.Message
}

// Fault codes. The catalog is closed; raising an unknown code is a
// programming error and is logged and ignored.
const (
	CodeEStopActivated     = 101
	CodePowerFailure       = 102
	CodeMotorController    = 103
	CodeSensorFailure      = 104
	CodeCommFailure        = 105
	CodeOperatorInactivity = 106
	CodeRideOverload       = 107
	CodeSpeedDeviation     = 108
	CodeUnexpectedStop     = 109
	CodeRestraintNotLocked = 110
	CodeSensorMismatch     = 111
	CodeRideCycleTimeout   = 112
	CodeHomingTimeout      = 113
	CodeOverTemperature    = 114
)

var catalog = map[int]Fault{
	CodeEStopActivated:     {CodeEStopActivated, "Emergency Stop Activated", SeverityHigh},
	CodePowerFailure:       {CodePowerFailure, "Power Failure", SeverityHigh},
	CodeMotorController:    {CodeMotorController, "Motor Controller Failure", SeverityHigh},
	CodeSensorFailure:      {CodeSensorFailure, "Sensor Failure", SeverityMedium},
	CodeCommFailure:        {CodeCommFailure, "Communication Failure", SeverityMedium},
	CodeOperatorInactivity: {CodeOperatorInactivity, "Operator Inactivity Timeout", SeverityLow},
	CodeRideOverload:       {CodeRideOverload, "Ride Overload Detected", SeverityHigh},
	CodeSpeedDeviation:     {CodeSpeedDeviation, "Speed Deviation Detected", SeverityMedium},
	CodeUnexpectedStop:     {CodeUnexpectedStop, "Unexpected Stop Detected", SeverityHigh},
	CodeRestraintNotLocked: {CodeRestraintNotLocked, "Safety Restraint Not Locked", SeverityHigh},
	CodeSensorMismatch:     {CodeSensorMismatch, "Sensor Mismatch", SeverityMedium},
	CodeRideCycleTimeout:   {CodeRideCycleTimeout, "Ride Cycle Timeout", SeverityMedium},
	CodeHomingTimeout:      {CodeHomingTimeout, "Motor Failed To Home", SeverityHigh},
	CodeOverTemperature:    {CodeOverTemperature, "Motor Controller Over Temperature", SeverityMedium},
}

// Lookup returns the canonical catalog record for a fault code.
func Lookup(code int) (Fault, bool) {
	f, ok := catalog[code]
	return f, ok
}
