package unit

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"droneops-swarm/internal/geom"
	"droneops-swarm/internal/link"
	"droneops-swarm/internal/recovery"
)

type reply struct {
	res link.Result
	err error
}

// fakeLink replays scripted replies per command kind; unscripted commands
// succeed.
type fakeLink struct {
	mu        sync.Mutex
	script    map[link.CommandKind][]reply
	calls     []link.Command
	battery   int
	events    chan link.Event
	emergency int
}

func newFakeLink() *fakeLink {
	return &fakeLink{script: map[link.CommandKind][]reply{}, battery: 87, events: make(chan link.Event, 4)}
}

func (f *fakeLink) queue(kind link.CommandKind, rs ...reply) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script[kind] = append(f.script[kind], rs...)
}

func (f *fakeLink) do(cmd link.Command) (link.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, cmd)
	q := f.script[cmd.Kind]
	if len(q) == 0 {
		return link.Result{Kind: link.ResultOK}, nil
	}
	f.script[cmd.Kind] = q[1:]
	return q[0].res, q[0].err
}

func (f *fakeLink) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeLink) lastCall() link.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func (f *fakeLink) Connect(context.Context) error    { return nil }
func (f *fakeLink) Disconnect(context.Context) error { return nil }
func (f *fakeLink) Events() <-chan link.Event        { return f.events }

func (f *fakeLink) Takeoff(context.Context) (link.Result, error) { return f.do(link.Takeoff()) }
func (f *fakeLink) Land(context.Context) (link.Result, error)    { return f.do(link.Land()) }

func (f *fakeLink) Emergency(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emergency++
	return nil
}

func (f *fakeLink) Move(_ context.Context, x, y, z, speed float64) (link.Result, error) {
	return f.do(link.Move(x, y, z, speed))
}

func (f *fakeLink) MoveAxis(_ context.Context, dir link.Direction, d float64) (link.Result, error) {
	return f.do(link.MoveAxis(dir, d))
}

func (f *fakeLink) Rotate(_ context.Context, angle float64) (link.Result, error) {
	return f.do(link.Rotate(angle))
}

func (f *fakeLink) Battery(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.battery, nil
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func newTestUnit(t *testing.T, fl *fakeLink) (*Unit, *fakeClock) {
	t.Helper()
	clk := &fakeClock{t: time.Unix(1_000, 0)}
	rec := recovery.New(recovery.DefaultPolicy(),
		recovery.WithClock(clk.now),
		recovery.WithSleep(noSleep),
		recovery.WithRand(rand.New(rand.NewSource(1))),
	)
	u := New("u1", fl, WithRecovery(rec), WithClock(clk.now), WithSleep(noSleep), WithCommandDelay(100*time.Millisecond))
	t.Cleanup(func() { _ = u.Release(context.Background()) })
	return u, clk
}

func flyingUnit(t *testing.T, fl *fakeLink) (*Unit, *fakeClock) {
	t.Helper()
	u, clk := newTestUnit(t, fl)
	ctx := context.Background()
	if err := u.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := u.Takeoff(ctx); err != nil {
		t.Fatalf("takeoff: %v", err)
	}
	return u, clk
}

func motorStop() reply { return reply{res: link.Result{Kind: link.ResultMotorStop, Detail: "error Motor stop"}} }

func TestPreconditionsFailFast(t *testing.T) {
	fl := newFakeLink()
	u, _ := newTestUnit(t, fl)
	ctx := context.Background()

	err := u.Move(ctx, 100, 0, 0, 50)
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
	if k, _ := Fault(err); k != FaultPrecondition {
		t.Errorf("fault = %s, want precondition", k)
	}

	if err := u.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	if err := u.Rotate(ctx, 90); !errors.Is(err, ErrNotFlying) {
		t.Errorf("rotate while landed: %v", err)
	}
	if err := u.Takeoff(ctx); err != nil {
		t.Fatal(err)
	}
	if err := u.Takeoff(ctx); !errors.Is(err, ErrAlreadyFlying) {
		t.Errorf("second takeoff: %v", err)
	}
	if err := u.Move(ctx, 100, 0, 0, 500); !errors.Is(err, ErrInvalidCommand) {
		t.Errorf("fast move: %v", err)
	}
	if n := fl.callCount(); n != 1 {
		t.Errorf("expected only the takeoff to reach the link, got %d calls", n)
	}
}

func TestFailedMoveDoesNotUpdatePosition(t *testing.T) {
	fl := newFakeLink()
	u, _ := flyingUnit(t, fl)
	ctx := context.Background()

	fl.queue(link.CmdMove, reply{res: link.Result{Kind: link.ResultFailed, Detail: "error"}})
	err := u.Move(ctx, 100, 50, 0, 50)
	if !errors.Is(err, ErrCommandFailed) {
		t.Fatalf("err = %v, want ErrCommandFailed", err)
	}
	if p := u.Position(); p != (geom.Vec3{}) {
		t.Fatalf("failed move changed position to %+v", p)
	}
	if st := u.ErrorState(); st.ConsecutiveFailures != 1 {
		t.Errorf("ConsecutiveFailures = %d, want 1", st.ConsecutiveFailures)
	}

	if err := u.Move(ctx, 100, 50, 0, 50); err != nil {
		t.Fatalf("move: %v", err)
	}
	if p := u.Position(); p != (geom.Vec3{X: 100, Y: 50}) {
		t.Fatalf("position = %+v", p)
	}
	if st := u.ErrorState(); st.ConsecutiveFailures != 0 {
		t.Errorf("success did not reset failures: %+v", st)
	}
}

func TestTransportFaultsRetried(t *testing.T) {
	fl := newFakeLink()
	u, _ := flyingUnit(t, fl)
	ctx := context.Background()
	garbled := reply{err: errors.New("decode: garbled reply")}

	fl.queue(link.CmdRotate, garbled, garbled)
	if err := u.Rotate(ctx, -90); err != nil {
		t.Fatalf("rotate after two transport faults: %v", err)
	}
	if h := u.Heading(); h != 270 {
		t.Errorf("heading = %v, want 270", h)
	}

	fl.queue(link.CmdRotate, garbled, garbled, garbled)
	before := fl.callCount()
	err := u.Rotate(ctx, 90)
	if !errors.Is(err, link.ErrTransport) {
		t.Fatalf("err = %v, want transport fault", err)
	}
	if k, _ := Fault(err); k != FaultTransport {
		t.Errorf("fault = %s", k)
	}
	if calls := fl.callCount() - before; calls != 3 {
		t.Errorf("link calls = %d, want 3", calls)
	}
	if st := u.ErrorState(); st.TransportFaults != 1 || st.MotorStopCount != 0 {
		t.Errorf("state = %+v", st)
	}
}

func TestMotorStopRecoversBeforeMaxRetries(t *testing.T) {
	fl := newFakeLink()
	u, _ := flyingUnit(t, fl)

	fl.queue(link.CmdMove, motorStop(), motorStop(), motorStop(), motorStop(), motorStop())
	if err := u.Move(context.Background(), 100, 0, 0, 50); err != nil {
		t.Fatalf("move: %v", err)
	}
	st := u.ErrorState()
	if st.MotorStopCount != 5 {
		t.Errorf("MotorStopCount = %d, want 5", st.MotorStopCount)
	}
	if st.Mode() != recovery.ModeNormal {
		t.Errorf("mode = %s, want normal", st.Mode())
	}
	if p := u.Position(); p.X != 100 {
		t.Errorf("position = %+v", p)
	}
}

func TestPersistentMotorStopDegradesAndCoolsDown(t *testing.T) {
	fl := newFakeLink()
	u, clk := flyingUnit(t, fl)
	ctx := context.Background()

	fl.queue(link.CmdMove, motorStop(), motorStop(), motorStop(), motorStop(), motorStop(), motorStop())
	err := u.Move(ctx, 200, 0, 0, 60)
	if !errors.Is(err, recovery.ErrMotorStopPersistent) {
		t.Fatalf("err = %v, want persistent motor stop", err)
	}
	if k, _ := Fault(err); k != FaultMotorStop {
		t.Errorf("fault = %s", k)
	}
	st := u.ErrorState()
	if st.Mode() != recovery.ModeDegraded || st.MotorStopCount != 6 {
		t.Fatalf("state = %+v", st)
	}
	if want := clk.now().Add(30 * time.Second); !st.CooldownUntil.Equal(want) {
		t.Errorf("CooldownUntil = %s, want %s", st.CooldownUntil, want)
	}
	if st.CommandDelay != 300*time.Millisecond {
		t.Errorf("CommandDelay = %s", st.CommandDelay)
	}
	if p := u.Position(); p != (geom.Vec3{}) {
		t.Errorf("position moved on failure: %+v", p)
	}

	select {
	case ev := <-u.Events():
		if ev.Type != EventDegradedEntered || ev.UnitID != "u1" {
			t.Errorf("event = %+v", ev)
		}
	default:
		t.Fatalf("expected degraded_entered event")
	}

	before := fl.callCount()
	clk.advance(10 * time.Second)
	err = u.Move(ctx, 100, 0, 0, 50)
	if !errors.Is(err, ErrCooldown) {
		t.Fatalf("err = %v, want ErrCooldown", err)
	}
	if fl.callCount() != before {
		t.Fatalf("cooldown command reached the link")
	}
	if u.Operational() {
		t.Errorf("unit in cooldown reported operational")
	}

	// after the cooldown moves go through attenuated and degraded persists
	clk.advance(25 * time.Second)
	if err := u.Move(ctx, 200, 0, 0, 60); err != nil {
		t.Fatalf("move after cooldown: %v", err)
	}
	if got := fl.lastCall(); got.X != 100 || got.Speed != 30 {
		t.Errorf("link saw %+v, want attenuated move", got)
	}
	if p := u.Position(); p.X != 100 {
		t.Errorf("position = %+v, want executed delta", p)
	}
	if u.ErrorState().Mode() != recovery.ModeDegraded {
		t.Errorf("single success left degraded mode")
	}

	u.ResetErrorStats(ctx)
	st = u.ErrorState()
	if st.Degraded || st.MotorStopCount != 0 || st.TotalFailures != 0 || st.CommandDelay != 100*time.Millisecond {
		t.Errorf("reset state = %+v", st)
	}
}

func TestEmergencyLandBypassesCommandLock(t *testing.T) {
	fl := newFakeLink()
	u, _ := flyingUnit(t, fl)

	u.cmdMu.Lock()
	done := make(chan error, 1)
	go func() { done <- u.EmergencyLand(context.Background()) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("emergency: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("EmergencyLand blocked on the command lock")
	}
	u.cmdMu.Unlock()

	if u.Flying() {
		t.Errorf("unit still flying")
	}
	if fl.emergency != 1 {
		t.Errorf("emergency calls = %d", fl.emergency)
	}
}

func TestLinkEventsForwarded(t *testing.T) {
	fl := newFakeLink()
	u, _ := flyingUnit(t, fl)

	fl.events <- link.Event{Type: link.EventBatteryLow, Battery: 8}
	select {
	case ev := <-u.Events():
		if ev.Type != EventBatteryLow || ev.Battery != 8 || ev.UnitID != "u1" || ev.Time.IsZero() {
			t.Fatalf("event = %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("battery event not forwarded")
	}
	if b := u.Battery(); b != 8 {
		t.Errorf("battery = %d", b)
	}

	fl.events <- link.Event{Type: link.EventConnectionLost}
	select {
	case ev := <-u.Events():
		if ev.Type != EventConnectionLost {
			t.Fatalf("event = %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("connection event not forwarded")
	}
	if u.Connected() {
		t.Errorf("unit still connected after connection_lost")
	}
}

func TestExecuteDispatch(t *testing.T) {
	fl := newFakeLink()
	u, _ := flyingUnit(t, fl)
	ctx := context.Background()

	if err := u.Execute(ctx, link.MoveAxis(link.Up, 50)); err != nil {
		t.Fatalf("move_axis: %v", err)
	}
	if p := u.Position(); p.Z != 50 {
		t.Errorf("position = %+v", p)
	}
	if err := u.Execute(ctx, link.MoveAxis(link.Up, 5)); !errors.Is(err, ErrInvalidCommand) {
		t.Errorf("short axis move: %v", err)
	}
	if err := u.Execute(ctx, link.Command{Kind: 99}); !errors.Is(err, ErrInvalidCommand) {
		t.Errorf("unknown kind: %v", err)
	}
	if err := u.Execute(ctx, link.Land()); err != nil || u.Flying() {
		t.Errorf("land: %v flying=%v", err, u.Flying())
	}
}

func TestRotateKeepsHeadingInRange(t *testing.T) {
	fl := newFakeLink()
	u, _ := flyingUnit(t, fl)
	ctx := context.Background()
	for _, tc := range []struct {
		angle, want float64
	}{
		{90, 90},
		{-450, 0},
		{-1000, 80},
		{720, 80},
		{-80, 0},
	} {
		if err := u.Rotate(ctx, tc.angle); err != nil {
			t.Fatalf("rotate %v: %v", tc.angle, err)
		}
		if h := u.Heading(); h != tc.want {
			t.Errorf("after rotate %v heading = %v, want %v", tc.angle, h, tc.want)
		}
	}
}

func TestConnectResetsOrigin(t *testing.T) {
	fl := newFakeLink()
	u, _ := flyingUnit(t, fl)
	ctx := context.Background()
	if err := u.Move(ctx, 100, 0, 0, 50); err != nil {
		t.Fatal(err)
	}
	if err := u.Disconnect(ctx); err != nil {
		t.Fatal(err)
	}
	if err := u.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	if p := u.Position(); p != (geom.Vec3{}) {
		t.Errorf("position after reconnect = %+v", p)
	}
	if u.Battery() != 87 {
		t.Errorf("battery = %d", u.Battery())
	}
}
