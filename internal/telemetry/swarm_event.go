package telemetry

import (
	"os"
	"time"
)

// Swarm event types.
const (
	EventUnitAdded            = "unit_added"
	EventUnitRemoved          = "unit_removed"
	EventUnitExcluded         = "unit_excluded"
	EventBatteryLow           = "battery_low"
	EventEmergency            = "emergency"
	EventConnectionLost       = "connection_lost"
	EventDegradedEntered      = "degraded_entered"
	EventDegradedExited       = "degraded_exited"
	EventEmergencyStop        = "emergency_stop"
	EventTakeoff              = "takeoff"
	EventLanding              = "landing"
	EventQuorumFailed         = "quorum_failed"
	EventFormationCreated     = "formation_created"
	EventFormationTransformed = "formation_transformed"
	EventFormationConverged   = "formation_converged"
)

// Severity levels attached to swarm events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// SwarmEventRow records one coordination event.
type SwarmEventRow struct {
	EventID   string    `json:"event_id"`
	SwarmID   string    `json:"swarm_id"`
	EventType string    `json:"event_type"`
	Severity  string    `json:"severity"`
	UnitIDs   []string  `json:"unit_ids"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"ts"`
}

// SwarmEventTableName is the GreptimeDB table for swarm events, overridable
// with SWARM_EVENT_TABLE.
var SwarmEventTableName = func() string {
	if env := os.Getenv("SWARM_EVENT_TABLE"); env != "" {
		return env
	}
	return "swarm_events"
}()

func (SwarmEventRow) TableName() string {
	return SwarmEventTableName
}
