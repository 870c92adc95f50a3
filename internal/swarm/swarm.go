// Package swarm coordinates a set of units as one logical swarm: registry,
// bounded concurrent dispatch with quorum, formations, event handling and
// health reporting.
package swarm

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"droneops-swarm/internal/formation"
	"droneops-swarm/internal/link"
	"droneops-swarm/internal/logging"
	"droneops-swarm/internal/recovery"
	"droneops-swarm/internal/sink"
	"droneops-swarm/internal/telemetry"
	"droneops-swarm/internal/unit"
)

// State is the swarm-level lifecycle position.
type State string

const (
	StateEmpty        State = "empty"
	StateInitializing State = "initializing"
	StateReady        State = "ready"
	StateFlying       State = "flying"
	StateLanded       State = "landed"
	StateShutdown     State = "shutdown"
)

const fanInBuffer = 64

// Swarm is the coordination root. The registry lock is never held across a
// link call.
type Swarm struct {
	cfg  Config
	sink sink.Writer
	rec  *recovery.Recovery
	pool *semaphore.Weighted

	now   func() time.Time
	sleep func(context.Context, time.Duration) error

	mu            sync.Mutex
	units         map[string]*unit.Unit
	order         []string // insertion order
	active        []string
	excluded      map[string]string
	state         State
	lastTakeoff   time.Time
	formation     *formation.Formation
	degradedSince map[string]time.Time
	cooling       map[string]bool

	events   chan unit.Event
	done     chan struct{}
	doneOnce sync.Once
}

// Option customizes a Swarm.
type Option func(*Swarm)

// WithSink sets where events and health snapshots are recorded.
func WithSink(w sink.Writer) Option {
	return func(s *Swarm) { s.sink = w }
}

// WithClock overrides the time source for the swarm and its units.
func WithClock(now func() time.Time) Option {
	return func(s *Swarm) { s.now = now }
}

// WithSleep overrides every wait: stagger, cycle pause, backoff and
// inter-command delay.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(s *Swarm) { s.sleep = sleep }
}

// WithRecovery replaces the shared recovery engine.
func WithRecovery(r *recovery.Recovery) Option {
	return func(s *Swarm) { s.rec = r }
}

// New creates an empty swarm.
func New(cfg Config, opts ...Option) *Swarm {
	cfg = cfg.withDefaults()
	s := &Swarm{
		cfg:           cfg,
		sink:          sink.Discard{},
		now:           time.Now,
		sleep:         recovery.Sleep,
		units:         make(map[string]*unit.Unit),
		excluded:      make(map[string]string),
		state:         StateEmpty,
		degradedSince: make(map[string]time.Time),
		cooling:       make(map[string]bool),
		events:        make(chan unit.Event, fanInBuffer),
		done:          make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	s.pool = semaphore.NewWeighted(int64(cfg.WorkerPoolSize))
	if s.rec == nil {
		s.rec = recovery.New(cfg.Recovery, recovery.WithClock(s.now), recovery.WithSleep(s.sleep))
	}
	return s
}

// Config returns the effective configuration.
func (s *Swarm) Config() Config { return s.cfg }

// AddUnit registers a unit around l. The unit stays inactive until
// InitializeSwarm connects it.
func (s *Swarm) AddUnit(ctx context.Context, id string, l link.Link) (*unit.Unit, error) {
	s.mu.Lock()
	switch {
	case s.state == StateShutdown:
		s.mu.Unlock()
		return nil, ErrShutdown
	case len(s.units) >= s.cfg.MaxUnits:
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %d units", ErrSwarmFull, s.cfg.MaxUnits)
	}
	if _, dup := s.units[id]; dup {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrDuplicateUnit, id)
	}
	u := unit.New(id, l,
		unit.WithRecovery(s.rec),
		unit.WithClock(s.now),
		unit.WithSleep(s.sleep),
		unit.WithCommandDelay(s.cfg.CommandDelay),
	)
	s.units[id] = u
	s.order = append(s.order, id)
	s.mu.Unlock()

	go s.forward(u)
	logging.FromContext(ctx).Info("unit added", "unit_id", id)
	s.record(ctx, telemetry.EventUnitAdded, telemetry.SeverityInfo, "", id)
	return u, nil
}

// RemoveUnit disconnects a unit and drops it from the registry.
func (s *Swarm) RemoveUnit(ctx context.Context, id string) error {
	s.mu.Lock()
	u, ok := s.units[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownUnit, id)
	}
	delete(s.units, id)
	delete(s.excluded, id)
	delete(s.degradedSince, id)
	delete(s.cooling, id)
	s.order = slices.DeleteFunc(s.order, func(v string) bool { return v == id })
	s.active = slices.DeleteFunc(s.active, func(v string) bool { return v == id })
	if len(s.units) == 0 && s.state != StateShutdown {
		s.state = StateEmpty
	}
	s.mu.Unlock()

	err := u.Release(ctx)
	if err != nil {
		logging.FromContext(ctx).Warn("unit release failed", "unit_id", id, "err", err)
	}
	s.record(ctx, telemetry.EventUnitRemoved, telemetry.SeverityInfo, "", id)
	return err
}

// Unit returns a registered unit.
func (s *Swarm) Unit(id string) (*unit.Unit, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.units[id]
	return u, ok
}

// ActiveIDs returns the active unit ids in order.
func (s *Swarm) ActiveIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.active)
}

// State returns the lifecycle state.
func (s *Swarm) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Initialized reports whether at least one unit is connected.
func (s *Swarm) Initialized() bool {
	for _, u := range s.allUnits() {
		if u.Connected() {
			return true
		}
	}
	return false
}

// Flying reports whether the swarm is airborne. An emergency stop clears it
// even when a unit could not confirm landing.
func (s *Swarm) Flying() bool {
	return s.State() == StateFlying
}

// LastTakeoff is the time of the last synchronized takeoff.
func (s *Swarm) LastTakeoff() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTakeoff
}

// Done is closed by Shutdown.
func (s *Swarm) Done() <-chan struct{} { return s.done }

// forward copies unit events into the swarm's fan-in channel.
func (s *Swarm) forward(u *unit.Unit) {
	for {
		select {
		case ev := <-u.Events():
			select {
			case s.events <- ev:
			case <-u.Done():
				return
			case <-s.done:
				return
			}
		case <-u.Done():
			return
		case <-s.done:
			return
		}
	}
}

func (s *Swarm) allUnits() []*unit.Unit {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*unit.Unit, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.units[id])
	}
	return out
}

func (s *Swarm) activeUnits() []*unit.Unit {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*unit.Unit, 0, len(s.active))
	for _, id := range s.active {
		out = append(out, s.units[id])
	}
	return out
}

// exclude removes id from the active set, remembering why.
func (s *Swarm) exclude(ctx context.Context, id, reason string) bool {
	s.mu.Lock()
	if _, ok := s.units[id]; !ok || !slices.Contains(s.active, id) {
		s.mu.Unlock()
		return false
	}
	s.active = slices.DeleteFunc(s.active, func(v string) bool { return v == id })
	s.excluded[id] = reason
	s.mu.Unlock()

	logging.FromContext(ctx).Warn("unit excluded", "unit_id", id, "reason", reason)
	s.record(ctx, telemetry.EventUnitExcluded, telemetry.SeverityWarning, reason, id)
	return true
}

// activeFraction is len(active)/len(units).
func (s *Swarm) activeFraction() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.units) == 0 {
		return 0
	}
	return float64(len(s.active)) / float64(len(s.units))
}

// refreshFlightState derives the swarm state from the units after a flight
// operation.
func (s *Swarm) refreshFlightState() {
	flying := false
	for _, u := range s.activeUnits() {
		if u.Flying() {
			flying = true
			break
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.state == StateShutdown:
	case flying:
		s.state = StateFlying
	case s.state == StateFlying:
		s.state = StateLanded
	}
}

func (s *Swarm) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateShutdown {
		s.state = st
	}
}
