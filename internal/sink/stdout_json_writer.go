package sink

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"droneops-swarm/internal/telemetry"
)

// JSONStdoutWriter prints rows as one JSON object per line.
type JSONStdoutWriter struct {
	mu  sync.Mutex
	out io.Writer
}

// NewJSONStdoutWriter creates a JSONStdoutWriter writing to os.Stdout.
func NewJSONStdoutWriter() *JSONStdoutWriter {
	return &JSONStdoutWriter{out: os.Stdout}
}

// NewJSONWriter creates a JSONStdoutWriter writing to out.
func NewJSONWriter(out io.Writer) *JSONStdoutWriter {
	return &JSONStdoutWriter{out: out}
}

type taggedRow struct {
	Kind string `json:"kind"`
	Row  any    `json:"row"`
}

func (w *JSONStdoutWriter) print(kind string, row any) error {
	data, err := json.Marshal(taggedRow{Kind: kind, Row: row})
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = fmt.Fprintln(w.out, string(data))
	return err
}

// WriteSwarmEvent outputs an event row.
func (w *JSONStdoutWriter) WriteSwarmEvent(row telemetry.SwarmEventRow) error {
	return w.print("swarm_event", row)
}

// WriteHealth outputs a health row.
func (w *JSONStdoutWriter) WriteHealth(row telemetry.UnitHealthRow) error {
	return w.print("unit_health", row)
}
