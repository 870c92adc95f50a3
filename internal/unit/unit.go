// Package unit wraps one quadcopter link with connection and flight state,
// a commanded position estimate and guarded command execution.
package unit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"droneops-swarm/internal/geom"
	"droneops-swarm/internal/link"
	"droneops-swarm/internal/logging"
	"droneops-swarm/internal/recovery"
)

const (
	defaultTransportRetries    = 2
	defaultTransportRetryDelay = 200 * time.Millisecond
	eventBuffer                = 16
)

// Unit is one coordinated quadcopter. Link commands are serialized by cmdMu;
// state reads only take mu so they never wait behind a command in backoff.
type Unit struct {
	id   string
	link link.Link
	rec  *recovery.Recovery

	cmdMu sync.Mutex

	mu            sync.RWMutex
	connected     bool
	flying        bool
	battery       int
	position      geom.Vec3
	heading       float64
	errState      recovery.State
	lastCommandAt time.Time
	pumpStop      chan struct{}
	pumpDone      chan struct{}

	events    chan Event
	closed    chan struct{}
	closeOnce sync.Once

	now                 func() time.Time
	sleep               func(context.Context, time.Duration) error
	transportRetries    int
	transportRetryDelay time.Duration
}

// Option customizes a Unit.
type Option func(*Unit)

// WithRecovery sets the recovery policy engine. Units of one swarm usually
// share a single Recovery.
func WithRecovery(r *recovery.Recovery) Option {
	return func(u *Unit) { u.rec = r }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(u *Unit) { u.now = now }
}

// WithSleep overrides how inter-command and transport retry delays wait.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(u *Unit) { u.sleep = sleep }
}

// WithCommandDelay sets the baseline pause enforced between two commands.
func WithCommandDelay(d time.Duration) Option {
	return func(u *Unit) { u.errState = recovery.NewState(d) }
}

// WithTransportRetries sets how often a transport fault is retried and the
// fixed pause between tries.
func WithTransportRetries(n int, delay time.Duration) Option {
	return func(u *Unit) {
		u.transportRetries = n
		u.transportRetryDelay = delay
	}
}

// New creates a disconnected unit around l.
func New(id string, l link.Link, opts ...Option) *Unit {
	u := &Unit{
		id:                  id,
		link:                l,
		battery:             -1,
		events:              make(chan Event, eventBuffer),
		closed:              make(chan struct{}),
		now:                 time.Now,
		sleep:               recovery.Sleep,
		transportRetries:    defaultTransportRetries,
		transportRetryDelay: defaultTransportRetryDelay,
	}
	for _, o := range opts {
		o(u)
	}
	if u.rec == nil {
		u.rec = recovery.New(recovery.DefaultPolicy(), recovery.WithClock(u.now))
	}
	return u
}

// ID returns the unit id.
func (u *Unit) ID() string { return u.id }

// Events delivers notifications from the link plus degraded transitions.
// The channel is never closed; use Done to stop reading.
func (u *Unit) Events() <-chan Event { return u.events }

// Done is closed once the unit has been released.
func (u *Unit) Done() <-chan struct{} { return u.closed }

func (u *Unit) Connected() bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.connected
}

func (u *Unit) Flying() bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.flying
}

// Battery returns the last known battery percentage, -1 if never read.
func (u *Unit) Battery() int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.battery
}

// Position returns the commanded offset from the connect-time origin.
func (u *Unit) Position() geom.Vec3 {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.position
}

func (u *Unit) Heading() float64 {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.heading
}

// ErrorState returns a copy of the error bookkeeping.
func (u *Unit) ErrorState() recovery.State {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.errState
}

// Operational reports whether the unit is connected and not in cooldown.
func (u *Unit) Operational() bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.connected && !u.errState.InCooldown(u.now())
}

// Status is a point-in-time snapshot of a unit.
type Status struct {
	ID          string         `json:"id"`
	Connected   bool           `json:"connected"`
	Flying      bool           `json:"flying"`
	Battery     int            `json:"battery"`
	Position    geom.Vec3      `json:"position"`
	Heading     float64        `json:"heading"`
	Mode        recovery.Mode  `json:"mode"`
	InCooldown  bool           `json:"in_cooldown"`
	Operational bool           `json:"operational"`
	Errors      recovery.State `json:"errors"`
}

// Status returns a consistent snapshot of the unit.
func (u *Unit) Status() Status {
	u.mu.RLock()
	defer u.mu.RUnlock()
	cool := u.errState.InCooldown(u.now())
	return Status{
		ID:          u.id,
		Connected:   u.connected,
		Flying:      u.flying,
		Battery:     u.battery,
		Position:    u.position,
		Heading:     u.heading,
		Mode:        u.errState.Mode(),
		InCooldown:  cool,
		Operational: u.connected && !cool,
		Errors:      u.errState,
	}
}

// Connect opens the link, resets the position origin, reads the battery and
// starts forwarding link events.
func (u *Unit) Connect(ctx context.Context) error {
	u.cmdMu.Lock()
	defer u.cmdMu.Unlock()
	log := logging.FromContext(ctx)

	if u.Connected() {
		return nil
	}
	if err := u.link.Connect(ctx); err != nil {
		return fmt.Errorf("unit %s: connect: %w", u.id, err)
	}
	u.stopPump()

	u.mu.Lock()
	u.connected = true
	u.flying = false
	u.position = geom.Vec3{}
	u.heading = 0
	stop, done := make(chan struct{}), make(chan struct{})
	u.pumpStop, u.pumpDone = stop, done
	u.mu.Unlock()

	go u.pump(logging.NewContext(context.WithoutCancel(ctx), log), stop, done)

	if b, err := u.link.Battery(ctx); err != nil {
		log.Warn("battery read failed after connect", "unit_id", u.id, "err", err)
	} else {
		u.mu.Lock()
		u.battery = b
		u.mu.Unlock()
	}
	log.Info("unit connected", "unit_id", u.id, "battery", u.Battery())
	return nil
}

// Disconnect stops event forwarding and closes the link.
func (u *Unit) Disconnect(ctx context.Context) error {
	u.cmdMu.Lock()
	defer u.cmdMu.Unlock()
	return u.disconnectLocked(ctx)
}

func (u *Unit) disconnectLocked(ctx context.Context) error {
	u.mu.RLock()
	attached := u.connected || u.pumpStop != nil
	u.mu.RUnlock()
	if !attached {
		return nil
	}
	u.stopPump()
	err := u.link.Disconnect(ctx)
	u.mu.Lock()
	u.connected = false
	u.flying = false
	u.mu.Unlock()
	if err != nil {
		return fmt.Errorf("unit %s: disconnect: %w", u.id, err)
	}
	logging.FromContext(ctx).Info("unit disconnected", "unit_id", u.id)
	return nil
}

// Release disconnects the unit and closes Done. The unit is unusable after.
func (u *Unit) Release(ctx context.Context) error {
	err := u.Disconnect(ctx)
	u.closeOnce.Do(func() { close(u.closed) })
	return err
}

func (u *Unit) stopPump() {
	u.mu.Lock()
	stop, done := u.pumpStop, u.pumpDone
	u.pumpStop, u.pumpDone = nil, nil
	u.mu.Unlock()
	if stop != nil {
		close(stop)
		<-done
	}
}

// pump copies link events into the unit's event channel, applying their
// state effects first.
func (u *Unit) pump(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	log := logging.FromContext(ctx)
	in := u.link.Events()
	for {
		select {
		case <-stop:
			return
		case ev, ok := <-in:
			if !ok {
				return
			}
			u.applyLinkEvent(ev)
			out := Event{UnitID: u.id, Type: EventType(ev.Type), Battery: ev.Battery, Detail: ev.Detail, Time: ev.Time}
			if out.Time.IsZero() {
				out.Time = u.now()
			}
			log.Debug("link event", "unit_id", u.id, "type", out.Type, "battery", out.Battery)
			select {
			case u.events <- out:
			case <-stop:
				return
			}
		}
	}
}

func (u *Unit) applyLinkEvent(ev link.Event) {
	u.mu.Lock()
	defer u.mu.Unlock()
	switch ev.Type {
	case link.EventBatteryLow:
		if ev.Battery >= 0 {
			u.battery = ev.Battery
		}
	case link.EventEmergency:
		u.flying = false
	case link.EventConnectionLost:
		u.connected = false
	}
}

// emit queues a unit-generated event without blocking; it is called with the
// command lock held.
func (u *Unit) emit(ctx context.Context, ev Event) {
	select {
	case u.events <- ev:
	default:
		logging.FromContext(ctx).Warn("unit event dropped, buffer full", "unit_id", u.id, "type", ev.Type)
	}
}

// flight is the flight-state precondition of a command.
type flight int

const (
	mustFly flight = iota
	mustBeLanded
)

// require rejects cmd unless the unit is connected and in the wanted flight
// state.
func (u *Unit) require(cmd link.Command, want flight) error {
	u.mu.RLock()
	c, f := u.connected, u.flying
	u.mu.RUnlock()
	var err error
	switch {
	case !c:
		err = ErrNotConnected
	case want == mustFly && !f:
		err = ErrNotFlying
	case want == mustBeLanded && f:
		err = ErrAlreadyFlying
	}
	if err != nil {
		return &CommandError{UnitID: u.id, Command: cmd, Kind: FaultPrecondition, Err: err}
	}
	return nil
}

// Takeoff lifts off a connected, landed unit.
func (u *Unit) Takeoff(ctx context.Context) error {
	cmd := link.Takeoff()
	if err := u.require(cmd, mustBeLanded); err != nil {
		return err
	}
	if _, err := u.executeGuarded(ctx, cmd); err != nil {
		return err
	}
	u.mu.Lock()
	u.flying = true
	u.mu.Unlock()
	return nil
}

// Land brings a flying unit down.
func (u *Unit) Land(ctx context.Context) error {
	cmd := link.Land()
	if err := u.require(cmd, mustFly); err != nil {
		return err
	}
	if _, err := u.executeGuarded(ctx, cmd); err != nil {
		return err
	}
	u.mu.Lock()
	u.flying = false
	u.mu.Unlock()
	return nil
}

// EmergencyLand cuts the motors. It skips every guard, including the
// command lock, and always marks the unit as no longer flying.
func (u *Unit) EmergencyLand(ctx context.Context) error {
	err := u.link.Emergency(ctx)
	u.mu.Lock()
	u.flying = false
	u.mu.Unlock()
	if err != nil {
		logging.FromContext(ctx).Error("emergency stop not confirmed", "unit_id", u.id, "err", err)
		return fmt.Errorf("unit %s: emergency: %w", u.id, err)
	}
	logging.FromContext(ctx).Warn("emergency stop", "unit_id", u.id)
	return nil
}

// Move flies by (dx, dy, dz) cm. The position estimate advances by the
// executed delta only when the move succeeded.
func (u *Unit) Move(ctx context.Context, dx, dy, dz, speed float64) error {
	cmd := link.Move(dx, dy, dz, speed)
	if err := u.require(cmd, mustFly); err != nil {
		return err
	}
	if err := validateMove(cmd); err != nil {
		return &CommandError{UnitID: u.id, Command: cmd, Kind: FaultPrecondition, Err: err}
	}
	done, err := u.executeGuarded(ctx, cmd)
	if err != nil {
		return err
	}
	u.mu.Lock()
	u.position = u.position.Add(geom.Vec3{X: done.X, Y: done.Y, Z: done.Z})
	u.mu.Unlock()
	return nil
}

// MoveAxis flies distance cm along one axis.
func (u *Unit) MoveAxis(ctx context.Context, dir link.Direction, distance float64) error {
	cmd := link.MoveAxis(dir, distance)
	if err := u.require(cmd, mustFly); err != nil {
		return err
	}
	if !dir.Valid() || distance < link.MinDistance || distance > link.MaxDistance {
		return &CommandError{UnitID: u.id, Command: cmd, Kind: FaultPrecondition,
			Err: fmt.Errorf("%w: distance must be within [%g, %g]", ErrInvalidCommand, link.MinDistance, link.MaxDistance)}
	}
	done, err := u.executeGuarded(ctx, cmd)
	if err != nil {
		return err
	}
	u.mu.Lock()
	u.position = u.position.Add(axisDelta(done.Direction, done.Distance))
	u.mu.Unlock()
	return nil
}

// Rotate yaws by angle degrees, positive clockwise.
func (u *Unit) Rotate(ctx context.Context, angle float64) error {
	cmd := link.Rotate(angle)
	if err := u.require(cmd, mustFly); err != nil {
		return err
	}
	if _, err := u.executeGuarded(ctx, cmd); err != nil {
		return err
	}
	u.mu.Lock()
	h := math.Mod(u.heading+angle, 360)
	if h < 0 {
		h += 360
	}
	if h >= 360 || h == 0 {
		h = 0 // also clears -0
	}
	u.heading = h
	u.mu.Unlock()
	return nil
}

// Execute dispatches cmd to the matching operation.
func (u *Unit) Execute(ctx context.Context, cmd link.Command) error {
	switch cmd.Kind {
	case link.CmdTakeoff:
		return u.Takeoff(ctx)
	case link.CmdLand:
		return u.Land(ctx)
	case link.CmdMove:
		return u.Move(ctx, cmd.X, cmd.Y, cmd.Z, cmd.Speed)
	case link.CmdMoveAxis:
		return u.MoveAxis(ctx, cmd.Direction, cmd.Distance)
	case link.CmdRotate:
		return u.Rotate(ctx, cmd.Angle)
	}
	return &CommandError{UnitID: u.id, Command: cmd, Kind: FaultPrecondition, Err: ErrInvalidCommand}
}

// RefreshBattery polls the battery level. While a command holds the link
// the cached value is returned instead.
func (u *Unit) RefreshBattery(ctx context.Context) (int, error) {
	if !u.Connected() {
		return u.Battery(), ErrNotConnected
	}
	if !u.cmdMu.TryLock() {
		return u.Battery(), nil
	}
	defer u.cmdMu.Unlock()
	b, err := u.link.Battery(ctx)
	if err != nil {
		return u.Battery(), fmt.Errorf("unit %s: battery: %w", u.id, err)
	}
	u.mu.Lock()
	u.battery = b
	u.mu.Unlock()
	return b, nil
}

// ExitDegraded leaves degraded mode, reporting whether the unit was degraded.
func (u *Unit) ExitDegraded(ctx context.Context) bool {
	return u.rec.ExitDegraded(ctx, target{u: u, ctx: ctx})
}

// ResetErrorStats leaves degraded mode and clears all error counters.
func (u *Unit) ResetErrorStats(ctx context.Context) {
	u.ExitDegraded(ctx)
	u.mu.Lock()
	base := u.errState.BaselineDelay
	u.errState = recovery.NewState(base)
	u.mu.Unlock()
	logging.FromContext(ctx).Info("error stats reset", "unit_id", u.id)
}

// executeGuarded runs cmd under the command lock and returns the command that
// was actually executed (attenuated when degraded).
func (u *Unit) executeGuarded(ctx context.Context, cmd link.Command) (link.Command, error) {
	u.cmdMu.Lock()
	defer u.cmdMu.Unlock()
	log := logging.FromContext(ctx)
	fail := func(kind FaultKind, err error) (link.Command, error) {
		return cmd, &CommandError{UnitID: u.id, Command: cmd, Kind: kind, Err: err}
	}

	st := u.ErrorState()
	if st.InCooldown(u.now()) {
		log.Debug("command refused during cooldown", "unit_id", u.id, "command", cmd.String(), "until", st.CooldownUntil)
		return fail(FaultCooldown, ErrCooldown)
	}
	if err := u.waitCommandDelay(ctx, st.CommandDelay); err != nil {
		return fail(FaultAborted, err)
	}

	issued := cmd
	if st.Degraded {
		issued = recovery.Attenuate(cmd)
	}
	res, err := u.send(ctx, issued)
	if err != nil {
		return u.transportFailure(ctx, cmd, err)
	}

	switch res.Kind {
	case link.ResultOK:
		u.recordSuccess()
		return issued, nil
	case link.ResultMotorStop:
		log.Warn("motor stop", "unit_id", u.id, "command", issued.String())
		out := u.rec.HandleMotorStop(ctx, target{u: u, ctx: ctx}, cmd, u.send, 0)
		switch {
		case errors.Is(out.Err, recovery.ErrMotorStopPersistent):
			return fail(FaultMotorStop, out.Err)
		case out.Err != nil:
			return u.transportFailure(ctx, cmd, out.Err)
		case out.Result.OK():
			u.recordSuccess()
			return out.Command, nil
		}
		res = out.Result
	}

	u.mu.Lock()
	u.errState.RecordFailure(u.now())
	u.mu.Unlock()
	log.Warn("command failed", "unit_id", u.id, "command", cmd.String(), "detail", res.Detail)
	if res.Detail != "" {
		return fail(FaultFailed, fmt.Errorf("%w: %s", ErrCommandFailed, res.Detail))
	}
	return fail(FaultFailed, ErrCommandFailed)
}

func (u *Unit) transportFailure(ctx context.Context, cmd link.Command, err error) (link.Command, error) {
	if ctx.Err() != nil {
		return cmd, &CommandError{UnitID: u.id, Command: cmd, Kind: FaultAborted, Err: err}
	}
	u.mu.Lock()
	u.errState.RecordTransportFault(u.now())
	u.mu.Unlock()
	if !errors.Is(err, link.ErrTransport) {
		err = fmt.Errorf("%w: %v", link.ErrTransport, err)
	}
	logging.FromContext(ctx).Error("transport fault", "unit_id", u.id, "command", cmd.String(), "err", err)
	return cmd, &CommandError{UnitID: u.id, Command: cmd, Kind: FaultTransport, Err: err}
}

// send issues cmd on the link, retrying transport faults a fixed number of
// times. It is also the reissuer handed to recovery.
func (u *Unit) send(ctx context.Context, cmd link.Command) (link.Result, error) {
	var (
		res link.Result
		err error
	)
	for try := 0; try <= u.transportRetries; try++ {
		if try > 0 {
			logging.FromContext(ctx).Debug("retrying after transport fault", "unit_id", u.id, "try", try, "err", err)
			if serr := u.sleep(ctx, u.transportRetryDelay); serr != nil {
				return res, serr
			}
		}
		res, err = link.Apply(ctx, u.link, cmd)
		u.mu.Lock()
		u.lastCommandAt = u.now()
		u.mu.Unlock()
		if err == nil || ctx.Err() != nil {
			return res, err
		}
	}
	return res, err
}

func (u *Unit) waitCommandDelay(ctx context.Context, delay time.Duration) error {
	u.mu.RLock()
	last := u.lastCommandAt
	u.mu.RUnlock()
	if delay <= 0 || last.IsZero() {
		return nil
	}
	if wait := delay - u.now().Sub(last); wait > 0 {
		return u.sleep(ctx, wait)
	}
	return nil
}

func (u *Unit) recordSuccess() {
	u.mu.Lock()
	u.errState.RecordSuccess()
	u.mu.Unlock()
}

func validateMove(cmd link.Command) error {
	for _, v := range []float64{cmd.X, cmd.Y, cmd.Z} {
		if math.Abs(v) > link.MaxDistance {
			return fmt.Errorf("%w: component %g exceeds %g", ErrInvalidCommand, v, link.MaxDistance)
		}
	}
	if cmd.Speed < link.MinSpeed || cmd.Speed > link.MaxSpeed {
		return fmt.Errorf("%w: speed %g outside [%g, %g]", ErrInvalidCommand, cmd.Speed, link.MinSpeed, link.MaxSpeed)
	}
	if cmd.X == 0 && cmd.Y == 0 && cmd.Z == 0 {
		return fmt.Errorf("%w: zero move", ErrInvalidCommand)
	}
	return nil
}

func axisDelta(dir link.Direction, d float64) geom.Vec3 {
	switch dir {
	case link.Up:
		return geom.Vec3{Z: d}
	case link.Down:
		return geom.Vec3{Z: -d}
	case link.Left:
		return geom.Vec3{X: -d}
	case link.Right:
		return geom.Vec3{X: d}
	case link.Forward:
		return geom.Vec3{Y: d}
	case link.Back:
		return geom.Vec3{Y: -d}
	}
	return geom.Vec3{}
}

// target adapts a Unit to recovery.Target.
type target struct {
	u   *Unit
	ctx context.Context
}

func (t target) ID() string                 { return t.u.id }
func (t target) ErrorState() recovery.State { return t.u.ErrorState() }

func (t target) Notify(tr recovery.Transition) {
	t.u.emit(t.ctx, Event{UnitID: t.u.id, Type: EventType(tr), Battery: t.u.Battery(), Time: t.u.now()})
}

func (t target) UpdateErrorState(fn func(*recovery.State)) {
	t.u.mu.Lock()
	defer t.u.mu.Unlock()
	fn(&t.u.errState)
}
