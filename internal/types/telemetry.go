package types

// FaultInfo is the read-only view of an active fault exposed to the
// monitoring surfaces (web dashboard, Redis).
type FaultInfo struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// MotorTelemetry is a snapshot of raw motor controller readings. Values are
// whatever the last successful exchange produced; Status is the decoded
// controller status string.
type MotorTelemetry struct {
	Encoder int32   `json:"encoder"`
	Speed   float64 `json:"speed"`
	Current float64 `json:"current"`
	Status  string  `json:"status"`
}

// Snapshot is the full telemetry view published to monitoring collaborators.
// It is a copy with no control side effects.
type Snapshot struct {
	State  RideState      `json:"state"`
	Faults []FaultInfo    `json:"faults"`
	Motor  MotorTelemetry `json:"motor"`
}
