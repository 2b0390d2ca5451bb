package sequencer

import (
	"strings"
	"testing"
	"time"
)

const validDoc = `
cycles:
  default:
    - name: Move
      duration: 5
      speed: med
      direction: fwd
      accel: slow
    - name: Position
      duration: 3
      pos: home
`

func TestParseCycles(t *testing.T) {
	cycles, err := ParseCycles([]byte(validDoc))
	if err != nil {
		t.Fatalf("ParseCycles failed: %v", err)
	}
	cycle, ok := cycles["default"]
	if !ok {
		t.Fatal("cycle \"default\" missing")
	}
	if len(cycle) != 2 {
		t.Fatalf("cycle length = %d, want 2", len(cycle))
	}
	if cycle[0].Kind != KindMove || cycle[0].Duration != 5*time.Second ||
		cycle[0].Speed != "med" || cycle[0].Direction != "fwd" || cycle[0].Accel != "slow" {
		t.Errorf("move parsed as %+v", cycle[0])
	}
	if cycle[1].Kind != KindPosition || cycle[1].Pos != "home" {
		t.Errorf("position parsed as %+v", cycle[1])
	}
}

func TestParseCyclesFractionalDuration(t *testing.T) {
	doc := `
cycles:
  c:
    - name: Position
      duration: 2.5
      pos: home
`
	cycles, err := ParseCycles([]byte(doc))
	if err != nil {
		t.Fatalf("ParseCycles failed: %v", err)
	}
	if d := cycles["c"][0].Duration; d != 2500*time.Millisecond {
		t.Errorf("duration = %v, want 2.5s", d)
	}
}

func TestParseCyclesRejections(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		want string
	}{
		{
			"no cycles",
			`cycles: {}`,
			"defines no cycles",
		},
		{
			"empty cycle",
			"cycles:\n  empty: []\n",
			"is empty",
		},
		{
			"zero duration",
			"cycles:\n  c:\n    - name: Position\n      duration: 0\n      pos: home\n",
			"duration must be positive",
		},
		{
			"unknown instruction",
			"cycles:\n  c:\n    - name: Spin\n      duration: 1\n",
			"unknown instruction name",
		},
		{
			"unknown speed class",
			"cycles:\n  c:\n    - name: Move\n      duration: 1\n      speed: ludicrous\n      direction: fwd\n      accel: slow\n",
			"unknown speed class",
		},
		{
			"unknown direction",
			"cycles:\n  c:\n    - name: Move\n      duration: 1\n      speed: slow\n      direction: up\n      accel: slow\n",
			"unknown direction",
		},
		{
			"unknown position class",
			"cycles:\n  c:\n    - name: Position\n      duration: 1\n      pos: apex\n",
			"unknown position class",
		},
		{
			"move with pos",
			"cycles:\n  c:\n    - name: Move\n      duration: 1\n      speed: slow\n      direction: fwd\n      accel: slow\n      pos: home\n",
			"must not set pos",
		},
		{
			"position with speed",
			"cycles:\n  c:\n    - name: Position\n      duration: 1\n      pos: home\n      speed: slow\n",
			"must not set speed",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseCycles([]byte(tc.doc))
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tc.want)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error = %q, want substring %q", err, tc.want)
			}
		})
	}
}
