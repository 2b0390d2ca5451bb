package sequencer

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Kind tags the two motion instruction shapes.
type Kind string

const (
	KindMove     Kind = "Move"
	KindPosition Kind = "Position"
)

// Class values accepted by the cycle validator. The hardware layer maps
// these to device units; the sequencer only cares that they are members of
// the closed sets.
var (
	speedClasses    = map[string]bool{"slow": true, "med": true, "fast": true}
	accelClasses    = map[string]bool{"slow": true, "med": true, "fast": true}
	directions      = map[string]bool{"fwd": true, "bwd": true}
	positionClasses = map[string]bool{"home": true}
)

// Instruction is one step of a ride cycle: either a timed Move at a speed
// class and direction, or a Position hold whose dwell begins once the motor
// confirms arrival.
type Instruction struct {
	Kind     Kind
	Duration time.Duration

	// Move fields
	Speed     string
	Direction string
	Accel     string

	// Position fields
	Pos string
}

func (in Instruction) String() string {
	if in.Kind == KindMove {
		return fmt.Sprintf("Move{%s %s accel=%s for %s}", in.Speed, in.Direction, in.Accel, in.Duration)
	}
	return fmt.Sprintf("Position{%s dwell=%s}", in.Pos, in.Duration)
}

// Cycle is an ordered list of instructions, loaded once at startup.
type Cycle []Instruction

type instructionDoc struct {
	Name      string  `yaml:"name"`
	Duration  float64 `yaml:"duration"`
	Speed     string  `yaml:"speed"`
	Direction string  `yaml:"direction"`
	Accel     string  `yaml:"accel"`
	Pos       string  `yaml:"pos"`
}

type cyclesDoc struct {
	Cycles map[string][]instructionDoc `yaml:"cycles"`
}

// LoadCycles parses and fully validates a ride-cycle document. Any
// malformed instruction is a load-time fatal error; nothing is deferred to
// runtime.
func LoadCycles(path string) (map[string]Cycle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ride cycle file: %w", err)
	}
	return ParseCycles(data)
}

// ParseCycles is LoadCycles without the file read, for tests and embedded
// defaults.
func ParseCycles(data []byte) (map[string]Cycle, error) {
	var doc cyclesDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse ride cycle document: %w", err)
	}
	if len(doc.Cycles) == 0 {
		return nil, fmt.Errorf("ride cycle document defines no cycles")
	}

	out := make(map[string]Cycle, len(doc.Cycles))
	for name, docs := range doc.Cycles {
		if len(docs) == 0 {
			return nil, fmt.Errorf("cycle %q is empty", name)
		}
		cycle := make(Cycle, 0, len(docs))
		for i, d := range docs {
			in, err := d.toInstruction()
			if err != nil {
				return nil, fmt.Errorf("cycle %q instruction %d: %w", name, i, err)
			}
			cycle = append(cycle, in)
		}
		out[name] = cycle
	}
	return out, nil
}

func (d instructionDoc) toInstruction() (Instruction, error) {
	if d.Duration <= 0 {
		return Instruction{}, fmt.Errorf("duration must be positive, got %v", d.Duration)
	}
	dur := time.Duration(d.Duration * float64(time.Second))

	switch Kind(d.Name) {
	case KindMove:
		if d.Pos != "" {
			return Instruction{}, fmt.Errorf("Move instruction must not set pos")
		}
		if !speedClasses[d.Speed] {
			return Instruction{}, fmt.Errorf("unknown speed class %q", d.Speed)
		}
		if !directions[d.Direction] {
			return Instruction{}, fmt.Errorf("unknown direction %q", d.Direction)
		}
		if !accelClasses[d.Accel] {
			return Instruction{}, fmt.Errorf("unknown accel class %q", d.Accel)
		}
		return Instruction{
			Kind:      KindMove,
			Duration:  dur,
			Speed:     d.Speed,
			Direction: d.Direction,
			Accel:     d.Accel,
		}, nil

	case KindPosition:
		if d.Speed != "" || d.Direction != "" || d.Accel != "" {
			return Instruction{}, fmt.Errorf("Position instruction must not set speed, direction or accel")
		}
		if !positionClasses[d.Pos] {
			return Instruction{}, fmt.Errorf("unknown position class %q", d.Pos)
		}
		return Instruction{
			Kind:     KindPosition,
			Duration: dur,
			Pos:      d.Pos,
		}, nil

	default:
		return Instruction{}, fmt.Errorf("unknown instruction name %q", d.Name)
	}
}
