package sink

import (
	"context"
	"testing"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"

	"droneops-swarm/internal/logging"
	"droneops-swarm/internal/telemetry"
)

type mockGreptimeClient struct {
	table *table.Table
	calls int
}

func (m *mockGreptimeClient) Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error) {
	m.calls++
	if len(tables) > 0 {
		m.table = tables[0]
	}
	return &gpb.GreptimeResponse{}, nil
}

func TestGreptimeWriterSwarmEvents(t *testing.T) {
	ts := time.Unix(0, 0).UTC()
	rows := []telemetry.SwarmEventRow{{
		EventID:   "e1",
		SwarmID:   "alpha",
		EventType: telemetry.EventEmergencyStop,
		Severity:  telemetry.SeverityCritical,
		UnitIDs:   []string{"u1", "u2"},
		Timestamp: ts,
	}}

	m := &mockGreptimeClient{}
	w := &GreptimeDBWriter{client: m, eventTable: "swarm_events", log: logging.Discard()}
	if err := w.WriteSwarmEvents(rows); err != nil {
		t.Fatalf("WriteSwarmEvents: %v", err)
	}
	if m.table == nil {
		t.Fatalf("expected table to be captured")
	}
	schema := m.table.GetRows().Schema
	if len(schema) != 7 {
		t.Fatalf("unexpected schema length: %d", len(schema))
	}
	if schema[0].SemanticType != gpb.SemanticType_TAG {
		t.Errorf("swarm_id should be a tag, got %v", schema[0].SemanticType)
	}
	if got := m.table.GetRows().Rows[0].Values[2].GetStringValue(); got != `["u1","u2"]` {
		t.Fatalf("unit_ids = %s", got)
	}
}

func TestGreptimeWriterHealthBatch(t *testing.T) {
	rows := []telemetry.UnitHealthRow{
		{SwarmID: "alpha", UnitID: "u1", Connected: true, Battery: 80, X: 10, Mode: "normal", Timestamp: time.Unix(1, 0)},
		{SwarmID: "alpha", UnitID: "u2", Battery: 40, Mode: "degraded", MotorStopCount: 6, Timestamp: time.Unix(1, 0)},
	}
	m := &mockGreptimeClient{}
	w := &GreptimeDBWriter{client: m, healthTable: "unit_health", log: logging.Discard()}
	if err := WriteHealth(w, rows); err != nil {
		t.Fatalf("WriteHealth: %v", err)
	}
	if m.calls != 1 {
		t.Fatalf("expected a single batched write, got %d", m.calls)
	}
	got := m.table.GetRows().Rows
	if len(got) != 2 {
		t.Fatalf("rows = %d", len(got))
	}
	if id := got[1].Values[1].GetStringValue(); id != "u2" {
		t.Errorf("unit_id = %s", id)
	}
	if b := got[0].Values[5].GetI64Value(); b != 80 {
		t.Errorf("battery = %d", b)
	}
}

func TestGreptimeWriterEmptyBatch(t *testing.T) {
	m := &mockGreptimeClient{}
	w := &GreptimeDBWriter{client: m, log: logging.Discard()}
	if err := w.WriteHealthBatch(nil); err != nil || m.calls != 0 {
		t.Fatalf("empty batch: err=%v calls=%d", err, m.calls)
	}
}
