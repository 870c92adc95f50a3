package sink

import (
	"errors"
	"sync"

	"droneops-swarm/internal/telemetry"
)

// MultiWriter fans rows out to several writers. A failing writer does not
// stop the others; all errors are joined.
type MultiWriter struct {
	mu      sync.RWMutex
	writers []Writer
}

// NewMultiWriter creates a MultiWriter.
func NewMultiWriter(ws ...Writer) *MultiWriter {
	return &MultiWriter{writers: ws}
}

// Add attaches another writer. Rows written before Add are not replayed.
func (mw *MultiWriter) Add(w Writer) {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	mw.writers = append(mw.writers, w)
}

// Len reports the number of attached writers.
func (mw *MultiWriter) Len() int {
	mw.mu.RLock()
	defer mw.mu.RUnlock()
	return len(mw.writers)
}

func (mw *MultiWriter) snapshot() []Writer {
	mw.mu.RLock()
	defer mw.mu.RUnlock()
	return mw.writers[:len(mw.writers):len(mw.writers)]
}

// WriteSwarmEvent sends an event to all writers.
func (mw *MultiWriter) WriteSwarmEvent(row telemetry.SwarmEventRow) error {
	var errs []error
	for _, w := range mw.snapshot() {
		errs = append(errs, w.WriteSwarmEvent(row))
	}
	return errors.Join(errs...)
}

// WriteSwarmEvents sends events to all writers, using batch if supported.
func (mw *MultiWriter) WriteSwarmEvents(rows []telemetry.SwarmEventRow) error {
	var errs []error
	for _, w := range mw.snapshot() {
		errs = append(errs, WriteEvents(w, rows))
	}
	return errors.Join(errs...)
}

// WriteHealth sends a health row to all writers.
func (mw *MultiWriter) WriteHealth(row telemetry.UnitHealthRow) error {
	var errs []error
	for _, w := range mw.snapshot() {
		errs = append(errs, w.WriteHealth(row))
	}
	return errors.Join(errs...)
}

// WriteHealthBatch sends health rows to all writers, using batch if supported.
func (mw *MultiWriter) WriteHealthBatch(rows []telemetry.UnitHealthRow) error {
	var errs []error
	for _, w := range mw.snapshot() {
		errs = append(errs, WriteHealth(w, rows))
	}
	return errors.Join(errs...)
}
