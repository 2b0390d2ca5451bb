package types

// RideState identifies one of the closed set of safety states the ride
// control computer can occupy. Exactly one state value is live at a time
// and the orchestrator owns it.
type RideState string

const (
	StateOff       RideState = "off"
	StateIdle      RideState = "idle"
	StateEstopped  RideState = "estopped"
	StateResetting RideState = "resetting"
	StateStopping  RideState = "stopping"
	StateRunning   RideState = "running"
)
