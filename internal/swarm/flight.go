package swarm

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"droneops-swarm/internal/geom"
	"droneops-swarm/internal/logging"
	"droneops-swarm/internal/telemetry"
	"droneops-swarm/internal/unit"
)

// StaggerOptions selects how takeoff and landing are sequenced.
type StaggerOptions struct {
	Stagger      time.Duration // pause between units; 0 uses the configured stagger
	Synchronized bool          // issue every command at once
}

// InitializeSwarm connects every registered unit concurrently. Units that
// fail or exceed timeout are excluded; the swarm is ready once at least one
// unit connected.
func (s *Swarm) InitializeSwarm(ctx context.Context, timeout time.Duration) (Report, error) {
	if timeout <= 0 {
		timeout = s.cfg.ConnectTimeout
	}
	s.mu.Lock()
	if s.state == StateShutdown {
		s.mu.Unlock()
		return Report{}, ErrShutdown
	}
	s.state = StateInitializing
	s.mu.Unlock()

	log := logging.FromContext(ctx)
	units := s.allUnits()
	log.Info("initializing swarm", "units", len(units), "timeout", timeout)
	r := s.dispatch(ctx, "connect", units, timeout, func(ctx context.Context, u *unit.Unit) error {
		return u.Connect(ctx)
	})

	s.mu.Lock()
	s.active = s.active[:0]
	for _, id := range s.order {
		err, ok := r.Results[id]
		if !ok {
			continue
		}
		if err == nil {
			s.active = append(s.active, id)
			delete(s.excluded, id)
		} else {
			s.excluded[id] = err.Error()
		}
	}
	connected := len(s.active)
	if connected > 0 {
		s.state = StateReady
	} else {
		s.state = StateEmpty
	}
	s.mu.Unlock()

	for _, id := range r.Failed() {
		log.Warn("unit excluded after connect", "unit_id", id, "err", r.Results[id])
		s.record(ctx, telemetry.EventUnitExcluded, telemetry.SeverityWarning, r.Results[id].Error(), id)
	}
	if connected == 0 {
		return r, ErrNoUnitsConnected
	}
	log.Info("swarm ready", "connected", connected, "excluded", len(r.Failed()))
	return r, nil
}

// TakeoffAll lifts off every active unit. ErrQuorumNotMet is returned with
// the full report when fewer than the quorum got airborne.
func (s *Swarm) TakeoffAll(ctx context.Context, opts StaggerOptions) (Report, error) {
	r := s.sequence(ctx, "takeoff", opts, s.activeUnits(), func(ctx context.Context, u *unit.Unit) error {
		return u.Takeoff(ctx)
	})
	if opts.Synchronized {
		s.mu.Lock()
		s.lastTakeoff = s.now()
		s.mu.Unlock()
	}
	s.refreshFlightState()
	s.record(ctx, telemetry.EventTakeoff, telemetry.SeverityInfo,
		fmt.Sprintf("%d/%d airborne", r.Succeeded, r.Attempted), successes(r)...)
	return r, s.checkQuorum(ctx, r)
}

// LandAll brings every flying active unit down. Partial success is
// reported, not treated as an error.
func (s *Swarm) LandAll(ctx context.Context, opts StaggerOptions) Report {
	var flying []*unit.Unit
	for _, u := range s.activeUnits() {
		if u.Flying() {
			flying = append(flying, u)
		}
	}
	r := s.sequence(ctx, "land", opts, flying, func(ctx context.Context, u *unit.Unit) error {
		return u.Land(ctx)
	})
	s.refreshFlightState()
	if r.Attempted > 0 {
		s.record(ctx, telemetry.EventLanding, telemetry.SeverityInfo,
			fmt.Sprintf("%d/%d landed", r.Succeeded, r.Attempted), successes(r)...)
	}
	return r
}

// sequence runs fn either concurrently or one unit at a time with a stagger
// pause in between.
func (s *Swarm) sequence(ctx context.Context, op string, opts StaggerOptions, units []*unit.Unit, fn UnitFunc) Report {
	if opts.Synchronized {
		return s.ExecuteCoordinatedOn(ctx, op, units, fn)
	}
	stagger := opts.Stagger
	if stagger <= 0 {
		stagger = s.cfg.Stagger
	}
	log := logging.FromContext(ctx)
	results := make(map[string]error, len(units))
	for i, u := range units {
		if i > 0 {
			if err := s.sleep(ctx, stagger); err != nil {
				for _, rest := range units[i:] {
					results[rest.ID()] = err
				}
				break
			}
		}
		cctx, cancel := context.WithTimeout(ctx, s.cfg.CommandTimeout)
		err := fn(cctx, u)
		cancel()
		results[u.ID()] = err
		if err != nil {
			log.Warn("unit operation failed", "op", op, "unit_id", u.ID(), "err", err)
		} else {
			log.Info("unit operation done", "op", op, "unit_id", u.ID())
		}
	}
	return newReport(op, results, s.cfg.Quorum)
}

// ExecuteCoordinatedOn is ExecuteCoordinated over an explicit unit list.
func (s *Swarm) ExecuteCoordinatedOn(ctx context.Context, op string, units []*unit.Unit, fn UnitFunc) Report {
	r := s.dispatch(ctx, op, units, s.cfg.CommandTimeout, fn)
	s.logReport(ctx, r)
	return r
}

// EmergencyStopAll cuts the motors of every flying unit at once, bypassing
// the worker pool, and marks the swarm as no longer flying whatever the
// individual outcomes.
func (s *Swarm) EmergencyStopAll(ctx context.Context) Report {
	log := logging.FromContext(ctx)
	var flying []*unit.Unit
	for _, u := range s.allUnits() {
		if u.Flying() {
			flying = append(flying, u)
		}
	}
	log.Warn("emergency stop", "units", len(flying))

	ctx, cancel := context.WithTimeout(ctx, s.cfg.EmergencyTimeout)
	defer cancel()
	var mu sync.Mutex
	results := make(map[string]error, len(flying))
	var wg sync.WaitGroup
	for _, u := range flying {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := u.EmergencyLand(ctx)
			mu.Lock()
			results[u.ID()] = err
			mu.Unlock()
		}()
	}
	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-ctx.Done():
		log.Error("emergency stop not confirmed by every unit", "timeout", s.cfg.EmergencyTimeout)
	}

	mu.Lock()
	snapshot := make(map[string]error, len(flying))
	for _, u := range flying {
		err, ok := results[u.ID()]
		if !ok {
			err = fmt.Errorf("%w: emergency stop", ErrTimeout)
		}
		snapshot[u.ID()] = err
	}
	mu.Unlock()

	s.setState(StateLanded)
	r := newReport("emergency_stop", snapshot, s.cfg.Quorum)
	s.record(ctx, telemetry.EventEmergencyStop, telemetry.SeverityCritical,
		fmt.Sprintf("%d/%d confirmed", r.Succeeded, r.Attempted), ids(flying)...)
	return r
}

// MoveSwarmFormation moves each listed unit by its offset concurrently.
// Units that are not active are skipped; quorum is computed over the
// dispatched units.
func (s *Swarm) MoveSwarmFormation(ctx context.Context, offsets map[string]geom.Vec3, speed float64) (Report, error) {
	if speed <= 0 {
		speed = s.cfg.Speed
	}
	log := logging.FromContext(ctx)
	var units []*unit.Unit
	for _, u := range s.activeUnits() {
		if d, ok := offsets[u.ID()]; ok && d != (geom.Vec3{}) {
			units = append(units, u)
		}
	}
	for id := range offsets {
		if !s.isActive(id) {
			log.Warn("offset for inactive unit ignored", "unit_id", id)
		}
	}
	r := s.ExecuteCoordinatedOn(ctx, "move", units, func(ctx context.Context, u *unit.Unit) error {
		d := offsets[u.ID()]
		return u.Move(ctx, d.X, d.Y, d.Z, speed)
	})
	return r, s.checkQuorum(ctx, r)
}

// Shutdown lands flying units, releases every unit and stops Run.
func (s *Swarm) Shutdown(ctx context.Context) error {
	if s.State() == StateShutdown {
		return nil
	}
	log := logging.FromContext(ctx)
	log.Info("shutting down swarm")
	var errs []error
	if r := s.LandAll(ctx, StaggerOptions{Synchronized: true}); len(r.Failed()) > 0 {
		for _, id := range r.Failed() {
			errs = append(errs, fmt.Errorf("land %s: %w", id, r.Results[id]))
		}
	}
	for _, u := range s.allUnits() {
		if err := u.Release(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	s.mu.Lock()
	s.state = StateShutdown
	s.active = nil
	s.mu.Unlock()
	s.doneOnce.Do(func() { close(s.done) })
	return errors.Join(errs...)
}

func (s *Swarm) isActive(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Contains(s.active, id)
}

func successes(r Report) []string {
	var out []string
	for id, err := range r.Results {
		if err == nil {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

func ids(units []*unit.Unit) []string {
	out := make([]string, len(units))
	for i, u := range units {
		out[i] = u.ID()
	}
	return out
}
