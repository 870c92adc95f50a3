// Simulated quadcopter link with configurable fault injection
package sim

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"droneops-swarm/internal/config"
	"droneops-swarm/internal/geom"
	"droneops-swarm/internal/link"
	"droneops-swarm/internal/recovery"
)

// Fault is an injected misbehaviour for a single command.
type Fault int

const (
	NoFault Fault = iota
	MotorStop
	TransportFault
	CommandFailure
)

func (f Fault) String() string {
	switch f {
	case MotorStop:
		return "motor_stop"
	case TransportFault:
		return "transport"
	case CommandFailure:
		return "failed"
	}
	return "none"
}

// Battery levels at which a battery_low event is raised.
var batteryThresholds = []int{20, 10}

// chaosMotorStopRate is added to the fleet's motor stop rate in chaos mode.
const chaosMotorStopRate = 0.1

// Quad is an in-memory quadcopter implementing link.Link. It replies the way
// the real firmware does: "ok", "error" or "error Motor stop".
type Quad struct {
	id       string
	model    string
	behavior config.Behavior
	drain    float64

	mu        sync.Mutex
	connected bool
	flying    bool
	chaos     bool
	battery   float64
	warned    int // thresholds already reported
	position  geom.Vec3
	heading   float64
	script    []Fault
	calls     int
	rand      *rand.Rand

	events chan link.Event
	now    func() time.Time
	sleep  func(context.Context, time.Duration) error
}

// Option customises a Quad.
type Option func(*Quad)

// WithRand makes random fault injection reproducible.
func WithRand(r *rand.Rand) Option {
	return func(q *Quad) { q.rand = r }
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(q *Quad) { q.now = now }
}

// WithSleep overrides how command latency is waited out.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(q *Quad) { q.sleep = sleep }
}

// NewQuad builds a landed, disconnected quadcopter.
func NewQuad(id, model string, b config.Behavior, opts ...Option) *Quad {
	if b.InitialBattery <= 0 {
		b.InitialBattery = 100
	}
	q := &Quad{
		id:       id,
		model:    model,
		behavior: b,
		drain:    b.BatteryDrainRate,
		battery:  float64(b.InitialBattery),
		events:   make(chan link.Event, 16),
		now:      time.Now,
		sleep:    recovery.Sleep,
	}
	if q.drain <= 0 {
		q.drain = batteryDrain(model)
	}
	for _, t := range batteryThresholds {
		if b.InitialBattery <= t {
			q.warned++
		}
	}
	for _, o := range opts {
		o(q)
	}
	if q.rand == nil {
		q.rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return q
}

// batteryDrain returns the percent lost per command for a model.
func batteryDrain(model string) float64 {
	switch model {
	case "small-fpv":
		return 0.5
	case "medium-uav":
		return 0.3
	case "large-uav":
		return 0.2
	default:
		return 0.4
	}
}

// ID returns the unit id this quadcopter was built for.
func (q *Quad) ID() string { return q.id }

// Model returns the airframe model.
func (q *Quad) Model() string { return q.model }

// Events implements link.Link.
func (q *Quad) Events() <-chan link.Event { return q.events }

// FailNext scripts the outcome of the next commands, in order. Scripted
// faults take precedence over the random rates.
func (q *Quad) FailNext(faults ...Fault) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.script = append(q.script, faults...)
}

// ToggleChaos flips chaos mode on or off and returns the new state.
func (q *Quad) ToggleChaos() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.chaos = !q.chaos
	return q.chaos
}

// Drop severs the connection as if the radio link was lost.
func (q *Quad) Drop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dropLocked("link dropped")
}

// TriggerEmergency cuts the motors from the quadcopter side.
func (q *Quad) TriggerEmergency(detail string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.flying = false
	q.emit(link.Event{Type: link.EventEmergency, Battery: int(q.battery), Detail: detail})
}

// SetBattery forces the battery level, raising battery_low as thresholds
// are crossed.
func (q *Quad) SetBattery(pct int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.battery = float64(max(0, min(100, pct)))
	q.checkBatteryLocked()
}

// Snapshot reports the simulated physical state.
func (q *Quad) Snapshot() (pos geom.Vec3, heading float64, flying bool, battery int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.position, q.heading, q.flying, int(q.battery)
}

// Calls returns the number of commands received.
func (q *Quad) Calls() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.calls
}

// Connect implements link.Link.
func (q *Quad) Connect(ctx context.Context) error {
	if err := q.latency(ctx); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.rand.Float64() < q.behavior.ConnectFailureRate {
		return fmt.Errorf("%w: %s did not answer", link.ErrTransport, q.id)
	}
	q.connected = true
	return nil
}

// Disconnect implements link.Link.
func (q *Quad) Disconnect(context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.connected = false
	return nil
}

// Emergency implements link.Link. It always stops the motors when the
// quadcopter is reachable.
func (q *Quad) Emergency(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.connected {
		return fmt.Errorf("%w: %s not connected", link.ErrTransport, q.id)
	}
	q.calls++
	q.flying = false
	return nil
}

// Battery implements link.Link.
func (q *Quad) Battery(ctx context.Context) (int, error) {
	if err := q.latency(ctx); err != nil {
		return 0, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.connected {
		return 0, fmt.Errorf("%w: %s not connected", link.ErrTransport, q.id)
	}
	return int(q.battery), nil
}

// Takeoff implements link.Link.
func (q *Quad) Takeoff(ctx context.Context) (link.Result, error) {
	return q.command(ctx, func() string {
		if q.flying {
			return "error already flying"
		}
		if q.battery < float64(batteryThresholds[len(batteryThresholds)-1]) {
			return "error battery too low"
		}
		return ""
	}, func() {
		q.flying = true
		q.position.Z = 0
	})
}

// Land implements link.Link.
func (q *Quad) Land(ctx context.Context) (link.Result, error) {
	return q.command(ctx, q.needsFlight, func() {
		q.flying = false
		q.position.Z = 0
	})
}

// Move implements link.Link.
func (q *Quad) Move(ctx context.Context, x, y, z, speed float64) (link.Result, error) {
	return q.command(ctx, func() string {
		if msg := q.needsFlight(); msg != "" {
			return msg
		}
		if !inRange(speed, link.MinSpeed, link.MaxSpeed) {
			return "error speed out of range"
		}
		for _, c := range []float64{x, y, z} {
			if math.Abs(c) > link.MaxDistance {
				return "error out of range"
			}
		}
		if math.Abs(x) < link.MinDistance && math.Abs(y) < link.MinDistance && math.Abs(z) < link.MinDistance {
			return "error out of range"
		}
		return ""
	}, func() {
		q.position = q.position.Add(geom.Vec3{X: x, Y: y, Z: z})
	})
}

// MoveAxis implements link.Link.
func (q *Quad) MoveAxis(ctx context.Context, dir link.Direction, distance float64) (link.Result, error) {
	return q.command(ctx, func() string {
		if msg := q.needsFlight(); msg != "" {
			return msg
		}
		if !dir.Valid() || !inRange(distance, link.MinDistance, link.MaxDistance) {
			return "error out of range"
		}
		return ""
	}, func() {
		switch dir {
		case link.Up:
			q.position.Z += distance
		case link.Down:
			q.position.Z -= distance
		case link.Left:
			q.position.X -= distance
		case link.Right:
			q.position.X += distance
		case link.Forward:
			q.position.Y += distance
		case link.Back:
			q.position.Y -= distance
		}
	})
}

// Rotate implements link.Link.
func (q *Quad) Rotate(ctx context.Context, angle float64) (link.Result, error) {
	return q.command(ctx, func() string {
		if msg := q.needsFlight(); msg != "" {
			return msg
		}
		if !inRange(math.Abs(angle), 1, 360) {
			return "error out of range"
		}
		return ""
	}, func() {
		q.heading = math.Mod(math.Mod(q.heading+angle, 360)+360, 360)
	})
}

// command runs the common reply path. check returns a non-empty error reply
// when the quadcopter refuses the command; apply mutates state on success.
// Both run with q.mu held.
func (q *Quad) command(ctx context.Context, check func() string, apply func()) (link.Result, error) {
	if err := q.latency(ctx); err != nil {
		return link.Result{}, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.connected {
		return link.Result{}, fmt.Errorf("%w: %s not connected", link.ErrTransport, q.id)
	}
	q.calls++

	switch q.nextFault() {
	case TransportFault:
		return link.Result{}, fmt.Errorf("%w: %s reply timed out", link.ErrTransport, q.id)
	case MotorStop:
		q.drainLocked()
		return link.ParseReply("error Motor stop"), nil
	case CommandFailure:
		return link.ParseReply("error"), nil
	}
	if q.rand.Float64() < q.behavior.DropoutRate {
		q.dropLocked("link lost mid-command")
		return link.Result{}, fmt.Errorf("%w: %s connection lost", link.ErrTransport, q.id)
	}
	if msg := check(); msg != "" {
		return link.ParseReply(msg), nil
	}
	apply()
	q.drainLocked()
	return link.ParseReply("ok"), nil
}

// nextFault pops a scripted fault or rolls the configured rates.
func (q *Quad) nextFault() Fault {
	if len(q.script) > 0 {
		f := q.script[0]
		q.script = q.script[1:]
		return f
	}
	motorStop := q.behavior.MotorStopRate
	if q.chaos {
		motorStop += chaosMotorStopRate
	}
	switch r := q.rand.Float64(); {
	case r < q.behavior.TransportFaultRate:
		return TransportFault
	case r < q.behavior.TransportFaultRate+motorStop:
		return MotorStop
	case r < q.behavior.TransportFaultRate+motorStop+q.behavior.CommandFailureRate:
		return CommandFailure
	}
	return NoFault
}

func (q *Quad) needsFlight() string {
	if !q.flying {
		return "error not flying"
	}
	return ""
}

func (q *Quad) drainLocked() {
	q.battery = math.Max(0, q.battery-q.drain)
	q.checkBatteryLocked()
}

func (q *Quad) checkBatteryLocked() {
	for q.warned < len(batteryThresholds) && int(q.battery) <= batteryThresholds[q.warned] {
		q.warned++
		q.emit(link.Event{Type: link.EventBatteryLow, Battery: int(q.battery)})
	}
	if q.battery <= 0 && q.flying {
		q.flying = false
		q.emit(link.Event{Type: link.EventEmergency, Detail: "battery depleted"})
	}
}

func (q *Quad) dropLocked(detail string) {
	if !q.connected {
		return
	}
	q.connected = false
	q.emit(link.Event{Type: link.EventConnectionLost, Battery: int(q.battery), Detail: detail})
}

// emit never blocks; a full channel drops the event.
func (q *Quad) emit(ev link.Event) {
	ev.Time = q.now()
	select {
	case q.events <- ev:
	default:
	}
}

func (q *Quad) latency(ctx context.Context) error {
	if q.behavior.CommandLatency <= 0 {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", link.ErrTransport, err)
		}
		return nil
	}
	if err := q.sleep(ctx, q.behavior.CommandLatency); err != nil {
		return fmt.Errorf("%w: %v", link.ErrTransport, err)
	}
	return nil
}

func inRange(v, lo, hi float64) bool { return v >= lo && v <= hi }
