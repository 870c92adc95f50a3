package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"

	"droneops-swarm/internal/telemetry"
)

const (
	defaultGreptimePort = 4001
	writeTimeout        = 5 * time.Second
)

type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeDBWriter writes events and health rows to GreptimeDB over gRPC.
// Tables are created on first insert.
type GreptimeDBWriter struct {
	client      greptimeClient
	eventTable  string
	healthTable string
	log         *slog.Logger
}

// NewGreptimeDBWriter connects to endpoint ("host" or "host:port") and uses
// database for all writes.
func NewGreptimeDBWriter(endpoint, database string, log *slog.Logger) (*GreptimeDBWriter, error) {
	host, port := endpoint, defaultGreptimePort
	if h, p, err := net.SplitHostPort(endpoint); err == nil {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("greptimedb endpoint %q: %w", endpoint, err)
		}
		host, port = h, n
	}
	cfg := greptime.NewConfig(host).WithPort(port).WithDatabase(database)
	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("greptimedb client: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &GreptimeDBWriter{
		client:      client,
		eventTable:  telemetry.SwarmEventTableName,
		healthTable: telemetry.UnitHealthTableName,
		log:         log,
	}, nil
}

// WriteSwarmEvent inserts a single event.
func (w *GreptimeDBWriter) WriteSwarmEvent(row telemetry.SwarmEventRow) error {
	return w.WriteSwarmEvents([]telemetry.SwarmEventRow{row})
}

// WriteSwarmEvents inserts multiple events. Unit ids are stored as a JSON
// array string.
func (w *GreptimeDBWriter) WriteSwarmEvents(rows []telemetry.SwarmEventRow) error {
	if len(rows) == 0 {
		return nil
	}
	tbl, err := table.New(w.eventTable)
	if err != nil {
		return err
	}
	columns := []struct {
		name string
		typ  types.ColumnType
		tag  bool
	}{
		{"swarm_id", types.STRING, true},
		{"event_type", types.STRING, true},
		{"unit_ids", types.STRING, false},
		{"event_id", types.STRING, false},
		{"severity", types.STRING, false},
		{"detail", types.STRING, false},
	}
	for _, c := range columns {
		if c.tag {
			err = tbl.AddTagColumn(c.name, c.typ)
		} else {
			err = tbl.AddFieldColumn(c.name, c.typ)
		}
		if err != nil {
			return err
		}
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return err
	}
	for _, r := range rows {
		ids, err := jsonString(r.UnitIDs)
		if err != nil {
			return err
		}
		if err := tbl.AddRow(r.SwarmID, r.EventType, ids, r.EventID, r.Severity, r.Detail, r.Timestamp); err != nil {
			return err
		}
	}
	return w.write(tbl, len(rows))
}

// WriteHealth inserts a single health row.
func (w *GreptimeDBWriter) WriteHealth(row telemetry.UnitHealthRow) error {
	return w.WriteHealthBatch([]telemetry.UnitHealthRow{row})
}

// WriteHealthBatch inserts multiple health rows.
func (w *GreptimeDBWriter) WriteHealthBatch(rows []telemetry.UnitHealthRow) error {
	if len(rows) == 0 {
		return nil
	}
	tbl, err := table.New(w.healthTable)
	if err != nil {
		return err
	}
	for _, tag := range []string{"swarm_id", "unit_id"} {
		if err := tbl.AddTagColumn(tag, types.STRING); err != nil {
			return err
		}
	}
	fields := []struct {
		name string
		typ  types.ColumnType
	}{
		{"connected", types.BOOLEAN},
		{"flying", types.BOOLEAN},
		{"operational", types.BOOLEAN},
		{"battery", types.INT64},
		{"x", types.FLOAT64},
		{"y", types.FLOAT64},
		{"z", types.FLOAT64},
		{"heading", types.FLOAT64},
		{"mode", types.STRING},
		{"motor_stop_count", types.INT64},
		{"consecutive_failures", types.INT64},
		{"total_failures", types.INT64},
		{"transport_faults", types.INT64},
	}
	for _, f := range fields {
		if err := tbl.AddFieldColumn(f.name, f.typ); err != nil {
			return err
		}
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return err
	}
	for _, r := range rows {
		err := tbl.AddRow(r.SwarmID, r.UnitID,
			r.Connected, r.Flying, r.Operational, int64(r.Battery),
			r.X, r.Y, r.Z, r.Heading, r.Mode,
			int64(r.MotorStopCount), int64(r.ConsecutiveFailures), int64(r.TotalFailures), int64(r.TransportFaults),
			r.Timestamp)
		if err != nil {
			return err
		}
	}
	return w.write(tbl, len(rows))
}

func (w *GreptimeDBWriter) write(tbl *table.Table, n int) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if _, err := w.client.Write(ctx, tbl); err != nil {
		w.log.Error("greptimedb write failed", "rows", n, "err", err)
		return err
	}
	w.log.Debug("greptimedb write", "rows", n)
	return nil
}

func jsonString(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
