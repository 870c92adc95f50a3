package sink

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"time"

	"droneops-swarm/internal/telemetry"
)

// ReplayLog replays swarm events from r to writer. A speed >0 scales the
// original gaps between events; speed <= 0 replays without delay.
func ReplayLog(ctx context.Context, r io.Reader, writer EventWriter, speed float64) (int, error) {
	dec := json.NewDecoder(r)
	var prev time.Time
	n := 0
	for {
		var row telemetry.SwarmEventRow
		if err := dec.Decode(&row); err != nil {
			if errors.Is(err, io.EOF) {
				return n, nil
			}
			return n, err
		}
		if !prev.IsZero() && speed > 0 {
			diff := time.Duration(float64(row.Timestamp.Sub(prev)) / speed)
			if diff > 0 {
				timer := time.NewTimer(diff)
				select {
				case <-ctx.Done():
					timer.Stop()
					return n, ctx.Err()
				case <-timer.C:
				}
			}
		}
		if err := writer.WriteSwarmEvent(row); err != nil {
			return n, err
		}
		n++
		prev = row.Timestamp
	}
}

// ReplayLogFile opens a JSONL event log and replays it.
func ReplayLogFile(ctx context.Context, path string, writer EventWriter, speed float64) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return ReplayLog(ctx, f, writer, speed)
}
