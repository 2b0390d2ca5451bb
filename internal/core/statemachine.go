package core

import (
	"time"

	"github.com/Terrier-Ride-Engineering-Club/Ride-Control-Computer/internal/logger"
	"github.com/Terrier-Ride-Engineering-Club/Ride-Control-Computer/internal/types"
)

// State-local timing policy.
const (
	// HomingTimeout bounds how long Stopping waits for the motor to reach
	// home before the ride is forced into estopped.
	HomingTimeout = 30 * time.Second
	// ResettingDwell is the fixed hold in Resetting before the ride
	// returns to idle.
	ResettingDwell = 5 * time.Second
)

// Transition is the safety state machine: a deterministic, total function
// over all (state, event) pairs. Combinations outside the transition table
// are self-loops, never errors.
func Transition(state types.RideState, event types.Event) types.RideState {
	switch state {
	case types.StateOff:
		if event == types.EventRideOn {
			return types.StateIdle
		}
	case types.StateIdle:
		switch event {
		case types.EventRideOff:
			return types.StateOff
		case types.EventDispatchPressed:
			return types.StateRunning
		case types.EventEStopPressed:
			return types.StateEstopped
		}
	case types.StateRunning:
		switch event {
		case types.EventStopPressed:
			return types.StateStopping
		case types.EventEStopPressed:
			return types.StateEstopped
		}
	case types.StateStopping:
		switch event {
		case types.EventEStopPressed:
			return types.StateEstopped
		case types.EventRideFinishedHoming:
			return types.StateIdle
		}
	case types.StateEstopped:
		if event == types.EventResetPressed {
			return types.StateResetting
		}
	case types.StateResetting:
		if event == types.EventEStopPressed {
			return types.StateEstopped
		}
	}
	return state
}

// DeadlineResult reports what an expired state deadline did.
type DeadlineResult int

const (
	DeadlineNone DeadlineResult = iota
	// DeadlineHomingTimeout means Stopping ran out of time waiting for
	// the homing confirmation and the state was forced to estopped.
	DeadlineHomingTimeout
	// DeadlineResetComplete means the Resetting dwell elapsed and the
	// state moved on (to idle, or back to estopped if the estop level is
	// still latched).
	DeadlineResetComplete
)

// StateTracker owns the live state value, its entry timestamp and deadline,
// and the latched-event set. Latched events represent switch levels (estop,
// ride off) and are replayed against every newly entered state so a
// persistent condition is never lost across a transition.
//
// All state mutation happens on the single control tick goroutine;
// deadlines are absolute timestamps checked once per tick, never background
// timers.
type StateTracker struct {
	log       *logger.Logger
	state     types.RideState
	enteredAt time.Time
	deadline  time.Time
	latched   []types.Event
	now       func() time.Time

	// onTransition fires after every completed transition, including those
	// triggered by deadline expiry and latched-event replay.
	onTransition func(from, to types.RideState)
}

func NewStateTracker(initial types.RideState, log *logger.Logger) *StateTracker {
	t := &StateTracker{
		log:   log.WithTag("State"),
		state: initial,
		now:   time.Now,
	}
	t.enteredAt = t.now()
	return t
}

// OnTransition registers the transition callback. Must be set before the
// tick loop starts.
func (t *StateTracker) OnTransition(fn func(from, to types.RideState)) {
	t.onTransition = fn
}

// State returns the live state.
func (t *StateTracker) State() types.RideState {
	return t.state
}

// EnteredAt returns when the live state was entered.
func (t *StateTracker) EnteredAt() time.Time {
	return t.enteredAt
}

// Latch records a level-triggered event for replay. Latching is idempotent
// and preserves first-latched order.
func (t *StateTracker) Latch(ev types.Event) {
	for _, l := range t.latched {
		if l == ev {
			return
		}
	}
	t.latched = append(t.latched, ev)
}

// Unlatch removes a level-triggered event once its level has cleared.
func (t *StateTracker) Unlatch(ev types.Event) {
	for i, l := range t.latched {
		if l == ev {
			t.latched = append(t.latched[:i], t.latched[i+1:]...)
			return
		}
	}
}

// Latched reports whether the event is currently in the latched set.
func (t *StateTracker) Latched(ev types.Event) bool {
	for _, l := range t.latched {
		if l == ev {
			return true
		}
	}
	return false
}

// Handle feeds one event through the transition function. After a real
// transition the latched set is replayed against the new state. Reports
// whether the state changed.
func (t *StateTracker) Handle(ev types.Event) bool {
	if !t.apply(ev) {
		return false
	}
	t.replayLatched()
	return true
}

// TickDeadlines evaluates the live state's deadline against the monotonic
// clock. Called exactly once per control tick.
func (t *StateTracker) TickDeadlines() DeadlineResult {
	if t.deadline.IsZero() || t.now().Before(t.deadline) {
		return DeadlineNone
	}

	switch t.state {
	case types.StateStopping:
		t.log.Errorf("homing not confirmed within %s, forcing estop", HomingTimeout)
		t.force(types.StateEstopped)
		t.replayLatched()
		return DeadlineHomingTimeout
	case types.StateResetting:
		t.force(types.StateIdle)
		t.replayLatched()
		return DeadlineResetComplete
	}
	t.deadline = time.Time{}
	return DeadlineNone
}

// apply performs a single transition without latched-event replay.
func (t *StateTracker) apply(ev types.Event) bool {
	next := Transition(t.state, ev)
	if next == t.state {
		return false
	}
	t.log.Infof("%s -> %s on %s", t.state, next, ev)
	t.force(next)
	return true
}

// force moves to the target state, running exit/enter bookkeeping. Exit
// precedes enter; both are skipped for self-loops by the callers.
func (t *StateTracker) force(next types.RideState) {
	from := t.state
	t.state = next
	t.enteredAt = t.now()
	t.armDeadline(next)
	if t.onTransition != nil {
		t.onTransition(from, next)
	}
}

// replayLatched re-delivers the latched levels against the freshly entered
// state until no further transition results. A latched estop drags any
// state it can reach straight back to estopped.
func (t *StateTracker) replayLatched() {
	for changed := true; changed; {
		changed = false
		for _, ev := range t.latched {
			if t.apply(ev) {
				changed = true
				break
			}
		}
	}
}

// armDeadline is the on-enter hook for states that own a timer.
func (t *StateTracker) armDeadline(s types.RideState) {
	switch s {
	case types.StateStopping:
		t.deadline = t.now().Add(HomingTimeout)
	case types.StateResetting:
		t.deadline = t.now().Add(ResettingDwell)
	default:
		t.deadline = time.Time{}
	}
}
