package sink

import (
	"encoding/json"
	"errors"
	"os"
	"sync"

	"droneops-swarm/internal/telemetry"
)

// FileWriter appends events and health rows to JSONL files.
type FileWriter struct {
	mu         sync.Mutex
	eventFile  *os.File
	healthFile *os.File
	eventEnc   *json.Encoder
	healthEnc  *json.Encoder
}

// NewFileWriter creates a FileWriter. Either path may be empty to skip that
// stream.
func NewFileWriter(eventPath, healthPath string) (*FileWriter, error) {
	fw := &FileWriter{}
	if eventPath != "" {
		f, err := os.Create(eventPath)
		if err != nil {
			return nil, err
		}
		fw.eventFile, fw.eventEnc = f, json.NewEncoder(f)
	}
	if healthPath != "" {
		f, err := os.Create(healthPath)
		if err != nil {
			fw.Close()
			return nil, err
		}
		fw.healthFile, fw.healthEnc = f, json.NewEncoder(f)
	}
	return fw, nil
}

// WriteSwarmEvent logs a single event, if enabled.
func (f *FileWriter) WriteSwarmEvent(e telemetry.SwarmEventRow) error {
	if f.eventEnc == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.eventEnc.Encode(e)
}

// WriteSwarmEvents logs multiple events.
func (f *FileWriter) WriteSwarmEvents(rows []telemetry.SwarmEventRow) error {
	for _, r := range rows {
		if err := f.WriteSwarmEvent(r); err != nil {
			return err
		}
	}
	return nil
}

// WriteHealth logs a single health row, if enabled.
func (f *FileWriter) WriteHealth(r telemetry.UnitHealthRow) error {
	if f.healthEnc == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.healthEnc.Encode(r)
}

// WriteHealthBatch logs multiple health rows.
func (f *FileWriter) WriteHealthBatch(rows []telemetry.UnitHealthRow) error {
	for _, r := range rows {
		if err := f.WriteHealth(r); err != nil {
			return err
		}
	}
	return nil
}

// Close closes any underlying files.
func (f *FileWriter) Close() error {
	var errs []error
	if f.eventFile != nil {
		errs = append(errs, f.eventFile.Close())
	}
	if f.healthFile != nil {
		errs = append(errs, f.healthFile.Close())
	}
	return errors.Join(errs...)
}
