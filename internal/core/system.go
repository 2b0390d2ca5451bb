package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Terrier-Ride-Engineering-Club/Ride-Control-Computer/internal/faults"
	"github.com/Terrier-Ride-Engineering-Club/Ride-Control-Computer/internal/logger"
	"github.com/Terrier-Ride-Engineering-Club/Ride-Control-Computer/internal/sequencer"
	"github.com/Terrier-Ride-Engineering-Club/Ride-Control-Computer/internal/types"
)

const (
	// DefaultTickInterval paces the control loop when the config does not
	// override it.
	DefaultTickInterval = 20 * time.Millisecond

	// ServoSettleBuffer is how long after commanding the restraint servos
	// the orchestrator waits before trusting that they have physically
	// moved clear.
	ServoSettleBuffer = 2 * time.Second

	telemetryInterval = time.Second
)

// homeHold is the standing instruction Stopping issues every tick to bring
// the ride back to its home position and hold it there.
var homeHold = sequencer.Instruction{Kind: sequencer.KindPosition, Pos: "home"}

// RideControlComputer is the orchestrator: it pulls inputs, runs one fault
// slice, feeds events to the state machine and turns sequencer instructions
// into motor commands, in that order, once per tick. All of that happens on
// a single control goroutine; the only shared surface is the telemetry
// snapshot guarded by mu.
type RideControlComputer struct {
	log       *logger.Logger
	io        IOController
	faults    *faults.Manager
	seq       *sequencer.Sequencer
	tracker   *StateTracker
	publisher TelemetryPublisher
	now       func() time.Time

	tickInterval time.Duration
	demoMode     bool

	commands chan string

	firstScan    bool
	lastRideOn   bool
	lastDispatch bool
	lastStop     bool
	lastReset    bool

	positionAck      bool
	lastInstruction  *sequencer.Instruction
	servosExtended   bool
	servosRetracting bool
	servoClearAt     time.Time

	homed        bool
	homeStableAt time.Time

	lastTelemetry time.Time

	mu   sync.RWMutex
	snap types.Snapshot
}

// Options carries the orchestrator knobs.
type Options struct {
	TickInterval time.Duration
	// DemoMode keeps the motion cycle looping while the ride sits in idle,
	// bypassing dispatch. Maintenance use only.
	DemoMode  bool
	Publisher TelemetryPublisher
}

func NewRideControlComputer(io IOController, cycle sequencer.Cycle, l *logger.Logger, opts Options) *RideControlComputer {
	if opts.TickInterval == 0 {
		opts.TickInterval = DefaultTickInterval
	}
	c := &RideControlComputer{
		log:          l.WithTag("RCC"),
		io:           io,
		faults:       faults.NewManager(l),
		seq:          sequencer.New(cycle, l),
		tracker:      NewStateTracker(types.StateOff, l),
		publisher:    opts.Publisher,
		now:          time.Now,
		tickInterval: opts.TickInterval,
		demoMode:     opts.DemoMode,
		commands:     make(chan string, 16),
		firstScan:    true,
		// Restraints are assumed engaged until the ride proves otherwise.
		servosExtended: true,
	}
	c.tracker.OnTransition(c.handleTransition)
	c.snap = types.Snapshot{State: c.tracker.State(), Faults: []types.FaultInfo{}}
	return c
}

// State returns the live safety state.
func (c *RideControlComputer) State() types.RideState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap.State
}

// Snapshot returns a read-only telemetry copy for the monitoring surfaces.
func (c *RideControlComputer) Snapshot() types.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap := c.snap
	snap.Faults = append([]types.FaultInfo(nil), c.snap.Faults...)
	return snap
}

// Command injects an operator action from a monitoring collaborator (web
// dashboard, Redis). It is queued and consumed by the next tick so all
// state mutation stays on the control goroutine.
func (c *RideControlComputer) Command(name string) error {
	switch name {
	case "estop", "stop", "dispatch", "reset", "rideon", "rideoff":
	default:
		return fmt.Errorf("unknown command %q", name)
	}
	select {
	case c.commands <- name:
		return nil
	default:
		return fmt.Errorf("command queue full")
	}
}

// Run drives the tick loop until the context is cancelled.
func (c *RideControlComputer) Run(ctx context.Context) error {
	c.log.Infof("control loop started, tick interval %s", c.tickInterval)
	ticker := time.NewTicker(c.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Infof("control loop stopping")
			if err := c.io.TerminatePower(); err != nil {
				c.log.Errorf("failed to terminate power on shutdown: %v", err)
			}
			return ctx.Err()
		case <-ticker.C:
			c.Update()
		}
	}
}

// Update executes one control tick. Ordering is load-bearing: the fault
// slice runs first so a fault detected this tick can force an estop before
// any motor command is issued this tick.
func (c *RideControlComputer) Update() {
	now := c.now()

	// 1. One diagnostic slice.
	c.faults.Check(c.io)

	// 2. EStop level: hardware input or the fault latch.
	hwEstop, err := c.io.ReadEStop()
	if err != nil {
		// An unreadable estop input is treated as asserted.
		c.log.Errorf("failed to read estop input: %v", err)
		hwEstop = true
	}
	estopActive := hwEstop || c.faults.EStopRequired()
	if estopActive {
		c.tracker.Latch(types.EventEStopPressed)
		c.tracker.Handle(types.EventEStopPressed)
	} else {
		c.tracker.Unlatch(types.EventEStopPressed)
	}

	// External commands are folded in here so they see the same estop
	// level as the physical inputs below.
	c.drainCommands(hwEstop)

	// Ride on/off switch level.
	if rideOn, err := c.io.ReadRideOnOff(); err != nil {
		c.log.Errorf("failed to read ride on/off switch: %v", err)
	} else {
		if rideOn {
			c.tracker.Unlatch(types.EventRideOff)
			if !c.lastRideOn && !c.firstScan {
				c.tracker.Handle(types.EventRideOn)
			}
		} else {
			c.tracker.Latch(types.EventRideOff)
			c.tracker.Handle(types.EventRideOff)
		}
		c.lastRideOn = rideOn
	}

	// 3. Momentary buttons, edge triggered.
	c.handleEdge(&c.lastDispatch, c.io.ReadDispatch, types.EventDispatchPressed)
	c.handleEdge(&c.lastStop, c.io.ReadStop, types.EventStopPressed)
	if pressed, err := c.io.ReadRestart(); err != nil {
		c.log.Errorf("failed to read reset input: %v", err)
	} else {
		if pressed && !c.lastReset && !c.firstScan {
			c.handleReset(hwEstop)
		}
		c.lastReset = pressed
	}

	// 4. State deadlines against the monotonic clock.
	if c.tracker.TickDeadlines() == DeadlineHomingTimeout {
		c.faults.Raise(faults.CodeHomingTimeout)
	}

	// 5. State-specific behavior.
	switch c.tracker.State() {
	case types.StateRunning:
		c.runRide(now)
	case types.StateStopping:
		c.runStopping(now)
	case types.StateIdle:
		if c.demoMode {
			c.runRide(now)
		} else if err := c.io.DisableMotors(); err != nil {
			c.log.Errorf("failed to disable motors: %v", err)
		}
	case types.StateOff:
		if err := c.io.DisableMotors(); err != nil {
			c.log.Errorf("failed to disable motors: %v", err)
		}
	case types.StateEstopped:
		if err := c.io.TerminatePower(); err != nil {
			c.log.Errorf("failed to terminate power: %v", err)
		}
	case types.StateResetting:
		// Dwell only; the deadline moves the state on.
	}

	c.firstScan = false
	c.refreshTelemetry(now)
}

func (c *RideControlComputer) handleEdge(last *bool, read func() (bool, error), ev types.Event) {
	pressed, err := read()
	if err != nil {
		c.log.Errorf("failed to read input for %s: %v", ev, err)
		return
	}
	if pressed && !*last && !c.firstScan {
		c.tracker.Handle(ev)
	}
	*last = pressed
}

// handleReset implements the explicit reset-to-clear policy: a reset press
// wipes the fault set, and only if the physical estop level has also been
// released does the estop latch open and the reset cycle proceed.
func (c *RideControlComputer) handleReset(hwEstop bool) {
	c.log.Infof("reset pressed, clearing faults")
	c.faults.ClearAll()
	if !hwEstop {
		c.tracker.Unlatch(types.EventEStopPressed)
	}
	c.tracker.Handle(types.EventResetPressed)
}

func (c *RideControlComputer) drainCommands(hwEstop bool) {
	for {
		select {
		case cmd := <-c.commands:
			c.log.Infof("external command: %s", cmd)
			switch cmd {
			case "estop":
				c.faults.Raise(faults.CodeEStopActivated)
				c.tracker.Latch(types.EventEStopPressed)
				c.tracker.Handle(types.EventEStopPressed)
			case "stop":
				c.tracker.Handle(types.EventStopPressed)
			case "dispatch":
				c.tracker.Handle(types.EventDispatchPressed)
			case "reset":
				c.handleReset(hwEstop)
			case "rideon":
				c.tracker.Handle(types.EventRideOn)
			case "rideoff":
				c.tracker.Handle(types.EventRideOff)
			}
		default:
			return
		}
	}
}

// handleTransition is the StateTracker callback: publish the change and run
// the destination state's entry actions.
func (c *RideControlComputer) handleTransition(from, to types.RideState) {
	c.mu.Lock()
	c.snap.State = to
	c.mu.Unlock()

	if c.publisher != nil {
		if err := c.publisher.PublishState(to); err != nil {
			c.log.Warnf("failed to publish state change: %v", err)
		}
	}

	switch to {
	case types.StateRunning:
		if err := c.io.EnableMotors(); err != nil {
			c.log.Errorf("failed to enable motors: %v", err)
		}
		c.seq.StartCycle()
		c.positionAck = false
		c.lastInstruction = nil
		c.beginServoRetract(c.now())
	case types.StateStopping:
		c.homed = false
	case types.StateEstopped:
		if err := c.io.TerminatePower(); err != nil {
			c.log.Errorf("failed to terminate power: %v", err)
		}
	case types.StateOff, types.StateIdle:
		if err := c.io.DisableMotors(); err != nil {
			c.log.Errorf("failed to disable motors: %v", err)
		}
	}
}

func (c *RideControlComputer) beginServoRetract(now time.Time) {
	if err := c.io.RetractServos(); err != nil {
		c.log.Errorf("failed to retract servos: %v", err)
	}
	c.servosExtended = false
	c.servosRetracting = true
	c.servoClearAt = now.Add(ServoSettleBuffer)
}

// runRide advances the motion cycle while the ride is running (or idling in
// demo mode). Restraint servos must be confirmed clear, with the settle
// buffer, before any motion instruction is issued.
func (c *RideControlComputer) runRide(now time.Time) {
	if !c.seq.Running() {
		if c.tracker.State() == types.StateRunning {
			// Cycle complete: bring the ride home through Stopping.
			c.log.Infof("ride cycle complete, stopping")
			c.tracker.Handle(types.EventStopPressed)
		} else {
			// Demo mode loops the cycle from idle.
			c.seq.StartCycle()
			c.positionAck = false
			c.lastInstruction = nil
			c.beginServoRetract(now)
		}
		return
	}

	// Near the end of a station dwell the parked window opens: start
	// pulling the restraints clear so motion can resume on time.
	if c.seq.Parked() && c.servosExtended {
		c.beginServoRetract(now)
	}

	if c.servosRetracting {
		if now.Before(c.servoClearAt) {
			// Hold the motor until the servos have settled clear.
			if _, err := c.io.SendMotorCommand(nil); err != nil {
				c.motorCommandFailed(err)
			}
			return
		}
		c.servosRetracting = false
	}

	inst := c.seq.Advance(c.positionAck)
	if inst == nil {
		return
	}
	if inst != c.lastInstruction {
		c.lastInstruction = inst
		c.positionAck = false
	}

	// Once a station position is held, open the restraints for the dwell.
	if inst.Kind == sequencer.KindPosition && c.positionAck && !c.servosExtended && !c.servosRetracting {
		if err := c.io.ExtendServos(); err != nil {
			c.log.Errorf("failed to extend servos: %v", err)
		} else {
			c.servosExtended = true
		}
	}

	ack, err := c.io.SendMotorCommand(inst)
	if err != nil {
		c.motorCommandFailed(err)
		return
	}
	c.positionAck = ack
}

// runStopping commands a hold at home every tick. Once the controller
// confirms arrival the servos extend, and after the settle buffer the
// homing-done event completes the stop.
func (c *RideControlComputer) runStopping(now time.Time) {
	arrived, err := c.io.SendMotorCommand(&homeHold)
	if err != nil {
		c.motorCommandFailed(err)
		return
	}
	if !arrived {
		c.homed = false
		return
	}
	if !c.homed {
		c.homed = true
		c.homeStableAt = now.Add(ServoSettleBuffer)
		if err := c.io.ExtendServos(); err != nil {
			c.log.Errorf("failed to extend servos: %v", err)
		} else {
			c.servosExtended = true
		}
		return
	}
	if !now.Before(c.homeStableAt) {
		c.tracker.Handle(types.EventRideFinishedHoming)
	}
}

// motorCommandFailed translates a transport failure into a fault instead of
// letting it escape the tick loop.
func (c *RideControlComputer) motorCommandFailed(err error) {
	c.log.Errorf("motor command failed: %v", err)
	c.faults.Raise(faults.CodeCommFailure)
}

// refreshTelemetry updates the shared snapshot roughly once a second. Each
// read is a serial round trip, so this deliberately does not run every
// tick. Failed reads leave the previous value in place.
func (c *RideControlComputer) refreshTelemetry(now time.Time) {
	if now.Sub(c.lastTelemetry) < telemetryInterval {
		return
	}
	c.lastTelemetry = now

	motor := c.snapMotor()
	if enc, err := c.io.ReadEncoder(); err == nil {
		motor.Encoder = enc
	}
	if speed, err := c.io.ReadSpeed(); err == nil {
		motor.Speed = speed
	}
	if current, err := c.io.ReadCurrent(); err == nil {
		motor.Current = current
	}
	if status, err := c.io.ReadStatus(); err == nil {
		motor.Status = status
	}

	activeFaults := c.faults.Active()

	c.mu.Lock()
	c.snap.Motor = motor
	c.snap.Faults = activeFaults
	snap := c.snap
	c.mu.Unlock()

	if c.publisher != nil {
		if err := c.publisher.PublishSnapshot(snap); err != nil {
			c.log.Warnf("failed to publish telemetry: %v", err)
		}
	}
}

func (c *RideControlComputer) snapMotor() types.MotorTelemetry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap.Motor
}
