// Package sequencer walks an ordered, externally configured list of motion
// instructions, keeping a cursor and a per-instruction dwell clock. It never
// talks to hardware; the orchestrator pulls the current instruction each
// tick and feeds back whether a commanded position has been reached.
package sequencer

import (
	"time"

	"github.com/Terrier-Ride-Engineering-Club/Ride-Control-Computer/internal/logger"
)

// ParkedWindow is the closing stretch of a Position dwell during which the
// ride is considered parked and restraint servos may retract before the
// next Move begins.
const ParkedWindow = 2 * time.Second

// Sequencer holds the cursor into the active cycle. For a Move instruction
// the dwell clock starts on entry; for a Position instruction it starts only
// once the caller reports the motor has confirmed the commanded position.
type Sequencer struct {
	log   *logger.Logger
	cycle Cycle
	now   func() time.Time

	cursor    int
	running   bool
	dwelling  bool
	dwellFrom time.Time
}

func New(cycle Cycle, log *logger.Logger) *Sequencer {
	return &Sequencer{
		log:   log.WithTag("Sequencer"),
		cycle: cycle,
		now:   time.Now,
	}
}

// Running reports whether a cycle is in progress.
func (s *Sequencer) Running() bool {
	return s.running
}

// Current returns the instruction under the cursor, or nil when no cycle is
// running.
func (s *Sequencer) Current() *Instruction {
	if !s.running {
		return nil
	}
	return &s.cycle[s.cursor]
}

// StartCycle rewinds the cursor and returns the first instruction, or nil
// for an empty cycle.
func (s *Sequencer) StartCycle() *Instruction {
	if len(s.cycle) == 0 {
		s.running = false
		return nil
	}
	s.cursor = 0
	s.running = true
	s.enterInstruction()
	s.log.Infof("cycle started: %s", s.cycle[s.cursor])
	return &s.cycle[s.cursor]
}

// Advance moves the dwell clock forward and returns the instruction the
// ride should currently execute. positionAck reports whether the motor has
// confirmed the last commanded position; it gates the dwell clock of a
// Position instruction. Advance returns nil once the cycle has completed.
func (s *Sequencer) Advance(positionAck bool) *Instruction {
	if !s.running {
		return nil
	}

	in := &s.cycle[s.cursor]
	if !s.dwelling {
		if in.Kind == KindPosition && !positionAck {
			// Hold position until the motor confirms arrival; rider dwell
			// time does not count down while still travelling.
			return in
		}
		s.dwelling = true
		s.dwellFrom = s.now()
		return in
	}

	if s.now().Sub(s.dwellFrom) < in.Duration {
		return in
	}

	s.cursor++
	if s.cursor >= len(s.cycle) {
		s.running = false
		s.dwelling = false
		s.log.Infof("cycle complete")
		return nil
	}
	s.enterInstruction()
	s.log.Infof("advancing to: %s", s.cycle[s.cursor])
	return &s.cycle[s.cursor]
}

// enterInstruction arms the dwell clock for the instruction under the
// cursor. Move dwells start immediately; Position dwells wait for the ack.
func (s *Sequencer) enterInstruction() {
	in := &s.cycle[s.cursor]
	if in.Kind == KindMove {
		s.dwelling = true
		s.dwellFrom = s.now()
	} else {
		s.dwelling = false
	}
}

// Parked reports whether the ride is inside the parked window: the final
// stretch of a Position dwell, when restraint servos are safe to retract.
func (s *Sequencer) Parked() bool {
	if !s.running || !s.dwelling {
		return false
	}
	in := &s.cycle[s.cursor]
	if in.Kind != KindPosition {
		return false
	}
	remaining := in.Duration - s.now().Sub(s.dwellFrom)
	return remaining <= ParkedWindow
}
