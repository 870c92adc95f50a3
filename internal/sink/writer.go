// Package sink records swarm events and unit health snapshots.
package sink

import "droneops-swarm/internal/telemetry"

// EventWriter handles swarm coordination events.
type EventWriter interface {
	WriteSwarmEvent(telemetry.SwarmEventRow) error
}

// HealthWriter handles per-unit health snapshots.
type HealthWriter interface {
	WriteHealth(telemetry.UnitHealthRow) error
}

// Writer records both streams.
type Writer interface {
	EventWriter
	HealthWriter
}

// Optional: writers may support batch mode.
type batchEventWriter interface {
	WriteSwarmEvents([]telemetry.SwarmEventRow) error
}

type batchHealthWriter interface {
	WriteHealthBatch([]telemetry.UnitHealthRow) error
}

// WriteEvents sends rows to w, in one batch when w supports it.
func WriteEvents(w EventWriter, rows []telemetry.SwarmEventRow) error {
	if bw, ok := w.(batchEventWriter); ok {
		return bw.WriteSwarmEvents(rows)
	}
	for _, r := range rows {
		if err := w.WriteSwarmEvent(r); err != nil {
			return err
		}
	}
	return nil
}

// WriteHealth sends rows to w, in one batch when w supports it.
func WriteHealth(w HealthWriter, rows []telemetry.UnitHealthRow) error {
	if bw, ok := w.(batchHealthWriter); ok {
		return bw.WriteHealthBatch(rows)
	}
	for _, r := range rows {
		if err := w.WriteHealth(r); err != nil {
			return err
		}
	}
	return nil
}

// Discard drops everything.
type Discard struct{}

func (Discard) WriteSwarmEvent(telemetry.SwarmEventRow) error { return nil }
func (Discard) WriteHealth(telemetry.UnitHealthRow) error     { return nil }
