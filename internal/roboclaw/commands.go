package roboclaw

// RoboClaw packet serial command codes. Only the subset the ride control
// computer exercises is listed; codes and payload layouts follow the
// controller's documented command table.
const (
	cmdGetM1Encoder         = 16
	cmdGetM1Speed           = 18
	cmdGetVersion           = 21
	cmdSetM1EncCount        = 22
	cmdSetM2EncCount        = 23
	cmdGetMainBattery       = 24
	cmdGetLogicBattery      = 25
	cmdM1Speed              = 35
	cmdM1SpeedAccel         = 38
	cmdGetPWMs              = 48
	cmdGetCurrents          = 49
	cmdReadM1VelocityPID    = 55
	cmdReadM1PositionPID    = 63
	cmdM1SpeedAccelDecelPos = 65
	cmdGetTemp              = 82
	cmdGetTemp2             = 83
	cmdGetError             = 90
)

// Encoder status bits returned alongside the count by command 16.
const (
	encoderStatusUnderflow = 0x01
	encoderStatusBackward  = 0x02
	encoderStatusOverflow  = 0x04
)

// Fixed-point scale factors for the scaled 16-bit telemetry reads.
const (
	tempScale    = 10.0
	voltageScale = 10.0
	currentScale = 100.0
	pwmScale     = 327.67
)
