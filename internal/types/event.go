package types

// Event is a discrete input to the safety state machine. Events carry no
// payload; equality is by value. Most events are edge-triggered and consumed
// once. EventEStopPressed and EventRideOff represent switch levels and are
// kept latched by the orchestrator while the level is active (see
// core.StateTracker).
type Event string

const (
	EventRideOn             Event = "ride-on"
	EventRideOff            Event = "ride-off"
	EventDispatchPressed    Event = "dispatch-pressed"
	EventStopPressed        Event = "stop-pressed"
	EventEStopPressed       Event = "estop-pressed"
	EventResetPressed       Event = "reset-pressed"
	EventRideFinishedHoming Event = "ride-finished-homing"
)
