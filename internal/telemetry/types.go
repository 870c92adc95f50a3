// Row types recorded by the swarm coordinator
package telemetry

import (
	"os"
	"time"
)

// UnitHealthRow is a periodic health snapshot of one unit.
type UnitHealthRow struct {
	SwarmID             string    `json:"swarm_id"` // TAG
	UnitID              string    `json:"unit_id"`  // TAG
	Connected           bool      `json:"connected"`
	Flying              bool      `json:"flying"`
	Operational         bool      `json:"operational"`
	Battery             int       `json:"battery"`
	X                   float64   `json:"x"`
	Y                   float64   `json:"y"`
	Z                   float64   `json:"z"`
	Heading             float64   `json:"heading"`
	Mode                string    `json:"mode"`
	MotorStopCount      int       `json:"motor_stop_count"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	TotalFailures       int       `json:"total_failures"`
	TransportFaults     int       `json:"transport_faults"`
	Timestamp           time.Time `json:"ts"` // TIME INDEX
}

// UnitHealthTableName holds the GreptimeDB table for health rows. It
// defaults to "unit_health" and can be overridden with UNIT_HEALTH_TABLE.
var UnitHealthTableName = func() string {
	if env := os.Getenv("UNIT_HEALTH_TABLE"); env != "" {
		return env
	}
	return "unit_health"
}()

func (UnitHealthRow) TableName() string {
	return UnitHealthTableName
}
