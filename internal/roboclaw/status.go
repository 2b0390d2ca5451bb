package roboclaw

import "fmt"

// statusConditions maps the controller's 32-bit error/warning bitmask to
// named conditions, in ascending bit order.
var statusConditions = []struct {
	mask uint32
	name string
}{
	{0x00000001, "E-Stop"},
	{0x00000002, "Temperature Error"},
	{0x00000004, "Temperature 2 Error"},
	{0x00000008, "Main Voltage High Error"},
	{0x00000010, "Logic Voltage High Error"},
	{0x00000020, "Logic Voltage Low Error"},
	{0x00000040, "M1 Driver Fault Error"},
	{0x00000080, "M2 Driver Fault Error"},
	{0x00000100, "M1 Speed Error"},
	{0x00000200, "M2 Speed Error"},
	{0x00000400, "M1 Position Error"},
	{0x00000800, "M2 Position Error"},
	{0x00001000, "M1 Current Error"},
	{0x00002000, "M2 Current Error"},
	{0x00010000, "M1 Over Current Warning"},
	{0x00020000, "M2 Over Current Warning"},
	{0x00040000, "Main Voltage High Warning"},
	{0x00080000, "Main Voltage Low Warning"},
	{0x00100000, "Temperature Warning"},
	{0x00200000, "Temperature 2 Warning"},
	{0x00400000, "S4 Signal Triggered"},
	{0x00800000, "S5 Signal Triggered"},
	{0x01000000, "Speed Error Limit Warning"},
	{0x02000000, "Position Error Limit Warning"},
}

// DecodeStatus renders the status bitmask as a readable string. A zero mask
// is "Normal"; multiple set bits are joined with commas; unknown bits are
// reported numerically so nothing is silently dropped.
func DecodeStatus(status uint32) string {
	if status == 0 {
		return "Normal"
	}
	var out string
	remaining := status
	for _, c := range statusConditions {
		if status&c.mask != 0 {
			if out != "" {
				out += ", "
			}
			out += c.name
			remaining &^= c.mask
		}
	}
	if remaining != 0 {
		if out != "" {
			out += ", "
		}
		out += fmt.Sprintf("Unknown Error: 0x%08X", remaining)
	}
	return out
}
