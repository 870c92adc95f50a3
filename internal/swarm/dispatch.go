package swarm

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"droneops-swarm/internal/link"
	"droneops-swarm/internal/logging"
	"droneops-swarm/internal/telemetry"
	"droneops-swarm/internal/unit"
)

// UnitFunc is an operation fanned out to one unit.
type UnitFunc func(ctx context.Context, u *unit.Unit) error

// Report is the aggregated outcome of a multi-unit operation. Every
// dispatched unit has an entry in Results, nil on success.
type Report struct {
	Operation string
	Results   map[string]error
	Attempted int
	Succeeded int
	Ratio     float64
	QuorumMet bool
}

func newReport(op string, results map[string]error, quorum float64) Report {
	r := Report{Operation: op, Results: results, Attempted: len(results)}
	for _, err := range results {
		if err == nil {
			r.Succeeded++
		}
	}
	if r.Attempted > 0 {
		r.Ratio = float64(r.Succeeded) / float64(r.Attempted)
	}
	r.QuorumMet = r.Attempted > 0 && r.Ratio >= quorum
	return r
}

// Failed lists the ids of units that did not succeed, sorted.
func (r Report) Failed() []string {
	var ids []string
	for id, err := range r.Results {
		if err != nil {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// Errors renders the failures as strings, keyed by unit id.
func (r Report) Errors() map[string]string {
	out := make(map[string]string)
	for id, err := range r.Results {
		if err != nil {
			out[id] = err.Error()
		}
	}
	return out
}

// dispatch runs fn on every unit concurrently, bounded by the worker pool.
// It returns once all workers finished or timeout elapsed; units still
// running at that point are reported with ErrTimeout and their ctx is
// cancelled.
func (s *Swarm) dispatch(ctx context.Context, op string, units []*unit.Unit, timeout time.Duration, fn UnitFunc) Report {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var mu sync.Mutex
	results := make(map[string]error, len(units))
	var g errgroup.Group
	for _, u := range units {
		g.Go(func() error {
			err := s.pool.Acquire(ctx, 1)
			if err == nil {
				err = fn(ctx, u)
				s.pool.Release(1)
			}
			mu.Lock()
			results[u.ID()] = err
			mu.Unlock()
			return nil
		})
	}
	finished := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-ctx.Done():
	}

	mu.Lock()
	snapshot := maps.Clone(results)
	mu.Unlock()
	for _, u := range units {
		if _, ok := snapshot[u.ID()]; !ok {
			snapshot[u.ID()] = fmt.Errorf("%w: %s after %s", ErrTimeout, op, timeout)
		}
	}
	return newReport(op, snapshot, s.cfg.Quorum)
}

// ExecuteCoordinated fans fn out across the active units and collects a
// per-unit outcome. It never aborts on the first failure.
func (s *Swarm) ExecuteCoordinated(ctx context.Context, op string, fn UnitFunc) Report {
	r := s.dispatch(ctx, op, s.activeUnits(), s.cfg.CommandTimeout, fn)
	s.logReport(ctx, r)
	return r
}

// Execute sends one command to every active unit. ErrQuorumNotMet is
// returned with the complete report when too few units succeed.
func (s *Swarm) Execute(ctx context.Context, cmd link.Command) (Report, error) {
	r := s.ExecuteCoordinated(ctx, cmd.Kind.String(), func(ctx context.Context, u *unit.Unit) error {
		return u.Execute(ctx, cmd)
	})
	s.refreshFlightState()
	return r, s.checkQuorum(ctx, r)
}

func (s *Swarm) checkQuorum(ctx context.Context, r Report) error {
	if r.QuorumMet {
		return nil
	}
	if r.Attempted == 0 {
		return fmt.Errorf("%s: %w", r.Operation, ErrNoUnitsConnected)
	}
	detail := fmt.Sprintf("%s: %d/%d succeeded", r.Operation, r.Succeeded, r.Attempted)
	s.record(ctx, telemetry.EventQuorumFailed, telemetry.SeverityWarning, detail, r.Failed()...)
	return fmt.Errorf("%w: %s", ErrQuorumNotMet, detail)
}

func (s *Swarm) logReport(ctx context.Context, r Report) {
	log := logging.FromContext(ctx)
	for _, id := range r.Failed() {
		log.Warn("unit operation failed", "op", r.Operation, "unit_id", id, "err", r.Results[id])
	}
	log.Info("operation finished", "op", r.Operation, "succeeded", r.Succeeded, "attempted", r.Attempted)
}
