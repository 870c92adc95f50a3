package sim

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"droneops-swarm/internal/config"
	"droneops-swarm/internal/geom"
	"droneops-swarm/internal/link"
)

func newQuad(t *testing.T, b config.Behavior) *Quad {
	t.Helper()
	q := NewQuad("alpha-1", "tello", b, WithRand(rand.New(rand.NewSource(1))))
	if err := q.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	return q
}

func nextEvent(t *testing.T, q *Quad) link.Event {
	t.Helper()
	select {
	case ev := <-q.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event")
	}
	return link.Event{}
}

func TestQuadFlightCycle(t *testing.T) {
	ctx := context.Background()
	q := newQuad(t, config.Behavior{})

	if res, _ := q.Move(ctx, 100, 0, 0, 50); res.Kind != link.ResultFailed {
		t.Fatalf("move while landed = %v", res.Kind)
	}
	for _, step := range []func() (link.Result, error){
		func() (link.Result, error) { return q.Takeoff(ctx) },
		func() (link.Result, error) { return q.Move(ctx, 100, -50, 20, 50) },
		func() (link.Result, error) { return q.MoveAxis(ctx, link.Up, 30) },
		func() (link.Result, error) { return q.Rotate(ctx, -90) },
	} {
		if res, err := step(); err != nil || !res.OK() {
			t.Fatalf("step failed: %v %v", res, err)
		}
	}
	pos, heading, flying, _ := q.Snapshot()
	if pos != (geom.Vec3{X: 100, Y: -50, Z: 50}) || heading != 270 || !flying {
		t.Fatalf("state = %+v %v %v", pos, heading, flying)
	}
	if res, _ := q.Move(ctx, 600, 0, 0, 50); res.Kind != link.ResultFailed {
		t.Errorf("out of range move = %v", res.Kind)
	}
	if res, _ := q.Land(ctx); !res.OK() {
		t.Errorf("land = %v", res)
	}
}

func TestQuadScriptedFaults(t *testing.T) {
	ctx := context.Background()
	q := newQuad(t, config.Behavior{})
	q.FailNext(MotorStop, TransportFault, CommandFailure)

	res, err := q.Takeoff(ctx)
	if err != nil || res.Kind != link.ResultMotorStop {
		t.Fatalf("first = %v %v", res, err)
	}
	if _, err := q.Takeoff(ctx); !errors.Is(err, link.ErrTransport) {
		t.Fatalf("second err = %v", err)
	}
	if res, _ := q.Takeoff(ctx); res.Kind != link.ResultFailed {
		t.Fatalf("third = %v", res)
	}
	if res, _ := q.Takeoff(ctx); !res.OK() {
		t.Fatalf("fourth = %v", res)
	}
	if q.Calls() != 4 {
		t.Errorf("calls = %d", q.Calls())
	}
}

func TestQuadRandomRates(t *testing.T) {
	q := newQuad(t, config.Behavior{MotorStopRate: 1})
	for i := 0; i < 5; i++ {
		if res, _ := q.Takeoff(context.Background()); res.Kind != link.ResultMotorStop {
			t.Fatalf("roll %d = %v", i, res)
		}
	}
	refused := NewQuad("x", "tello", config.Behavior{ConnectFailureRate: 1})
	if err := refused.Connect(context.Background()); !errors.Is(err, link.ErrTransport) {
		t.Errorf("connect err = %v", err)
	}
}

func TestQuadDropout(t *testing.T) {
	q := newQuad(t, config.Behavior{DropoutRate: 1})
	if _, err := q.Takeoff(context.Background()); !errors.Is(err, link.ErrTransport) {
		t.Fatalf("err = %v", err)
	}
	if ev := nextEvent(t, q); ev.Type != link.EventConnectionLost {
		t.Fatalf("event = %+v", ev)
	}
	if _, err := q.Battery(context.Background()); !errors.Is(err, link.ErrTransport) {
		t.Errorf("battery after drop: %v", err)
	}
}

func TestQuadBatteryEvents(t *testing.T) {
	q := newQuad(t, config.Behavior{InitialBattery: 25, BatteryDrainRate: 6})
	ctx := context.Background()
	if res, _ := q.Takeoff(ctx); !res.OK() {
		t.Fatal(res)
	}
	if ev := nextEvent(t, q); ev.Type != link.EventBatteryLow || ev.Battery != 19 {
		t.Fatalf("event = %+v", ev)
	}
	q.SetBattery(5)
	if ev := nextEvent(t, q); ev.Type != link.EventBatteryLow || ev.Battery != 5 {
		t.Fatalf("event = %+v", ev)
	}
	q.SetBattery(0)
	if ev := nextEvent(t, q); ev.Type != link.EventEmergency {
		t.Fatalf("event = %+v", ev)
	}
	if _, _, flying, _ := q.Snapshot(); flying {
		t.Error("still flying on empty battery")
	}
}

func TestQuadLatencyHonoursContext(t *testing.T) {
	q := NewQuad("slow", "tello", config.Behavior{CommandLatency: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := q.Connect(ctx); !errors.Is(err, link.ErrTransport) {
		t.Fatalf("err = %v", err)
	}
}

func TestNewFleet(t *testing.T) {
	cfg := config.Default()
	cfg.Fleets = append(cfg.Fleets, config.Fleet{Name: "bravo", Model: "large-uav", Count: 2})
	quads := NewFleet(cfg, 7)
	if len(quads) != 6 {
		t.Fatalf("fleet size %d", len(quads))
	}
	if quads[0].ID() != "alpha-1" || quads[5].ID() != "bravo-2" || quads[5].Model() != "large-uav" {
		t.Errorf("ids = %s %s", quads[0].ID(), quads[5].ID())
	}
	if quads[5].drain != 0.2 {
		t.Errorf("drain = %v", quads[5].drain)
	}
}
