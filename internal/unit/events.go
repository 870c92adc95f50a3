package unit

import (
	"time"

	"droneops-swarm/internal/link"
	"droneops-swarm/internal/recovery"
)

// EventType names the notifications a unit raises to its coordinator.
type EventType string

const (
	EventBatteryLow      = EventType(link.EventBatteryLow)
	EventEmergency       = EventType(link.EventEmergency)
	EventConnectionLost  = EventType(link.EventConnectionLost)
	EventDegradedEntered = EventType(recovery.DegradedEntered)
	EventDegradedExited  = EventType(recovery.DegradedExited)
)

// Event is a unit-level notification tagged with the unit id.
type Event struct {
	UnitID  string
	Type    EventType
	Battery int
	Detail  string
	Time    time.Time
}
