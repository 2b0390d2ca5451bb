package hardware

// GpioChip is the Raspberry Pi's primary GPIO controller.
const GpioChip = "gpiochip0"

// Operator input lines (BCM numbering). The buttons are wired active low
// against the internal pull-ups; the estop chain is normally closed, so an
// open circuit reads high and counts as pressed.
var InputMappings = map[string]int{
	"estop":     21,
	"stop":      20,
	"dispatch":  18,
	"rideonoff": 17,
	"restart":   19,
}

// Digital output lines. The restraint servo actuators take a single
// direction signal each (high extends, low retracts); the motor power relay
// sits between the RoboClaw's main battery input and the supply.
var OutputMappings = map[string]int{
	"servo_left":  12,
	"servo_right": 13,
	"motor_power": 26,
}

// Motion profile in RoboClaw device units. The GoBilda 5303 gearmotor's
// encoder yields 5700.4 quadrature counts per output revolution, so speeds
// are quadrature pulses per second (QPPS) and accelerations QPPS per second.
var (
	SpeedMapQPPS = map[string]int32{
		"slow": 570,
		"med":  814,
		"fast": 1425,
	}
	AccelMapQPPS2 = map[string]uint32{
		"slow": 500,
		"med":  1000,
		"fast": 3000,
	}
)

const (
	// HomePosition is the encoder count of the loading station.
	HomePosition = 0
	// HomingSpeedQPPS bounds the return-to-home move.
	HomingSpeedQPPS = 570
	// StopAccelQPPS2 and StopDecelQPPS2 shape controlled stops and the
	// homing profile.
	StopAccelQPPS2 = 500
	StopDecelQPPS2 = 500

	// Arrival tolerances for the home position.
	HomePositionTolerance = 10 // encoder counts
	HomeSpeedTolerance    = 10 // QPPS
)
