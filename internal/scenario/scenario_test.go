package scenario

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"droneops-swarm/internal/formation"
	"droneops-swarm/internal/geom"
	"droneops-swarm/internal/link"
	"droneops-swarm/internal/swarm"
)

type fakeController struct {
	calls  []string
	failOn map[string]error
	specs  []swarm.FormationSpec
	cmds   []link.Command
}

func (f *fakeController) call(name string) error {
	f.calls = append(f.calls, name)
	return f.failOn[name]
}

func (f *fakeController) TakeoffAll(_ context.Context, opts swarm.StaggerOptions) (swarm.Report, error) {
	name := "takeoff"
	if opts.Synchronized {
		name += ":sync"
	}
	return swarm.Report{Operation: "takeoff"}, f.call(name)
}

func (f *fakeController) LandAll(_ context.Context, _ swarm.StaggerOptions) swarm.Report {
	_ = f.call("land")
	return swarm.Report{Operation: "land"}
}

func (f *fakeController) EmergencyStopAll(context.Context) swarm.Report {
	_ = f.call("emergency")
	return swarm.Report{Operation: "emergency_stop"}
}

func (f *fakeController) CreateFormation(_ context.Context, spec swarm.FormationSpec) (*formation.Formation, error) {
	f.specs = append(f.specs, spec)
	return nil, f.call("formation")
}

func (f *fakeController) TranslateFormation(context.Context, geom.Vec3) (*formation.Formation, error) {
	return nil, f.call("translate")
}

func (f *fakeController) RotateFormation(context.Context, float64) (*formation.Formation, error) {
	return nil, f.call("rotate")
}

func (f *fakeController) ScaleFormation(context.Context, float64) (*formation.Formation, error) {
	return nil, f.call("scale")
}

func (f *fakeController) MoveToFormation(context.Context, float64, time.Duration) error {
	return f.call("converge")
}

func (f *fakeController) MoveSwarmFormation(context.Context, map[string]geom.Vec3, float64) (swarm.Report, error) {
	return swarm.Report{Operation: "move"}, f.call("move")
}

func (f *fakeController) Execute(_ context.Context, cmd link.Command) (swarm.Report, error) {
	f.cmds = append(f.cmds, cmd)
	return swarm.Report{Operation: cmd.Kind.String()}, f.call("command")
}

func TestLoadScenario(t *testing.T) {
	sc, err := Load("testdata/simple.yaml")
	if err != nil {
		t.Fatalf("load scenario: %v", err)
	}
	if sc.Name != "example" {
		t.Fatalf("unexpected name %s", sc.Name)
	}
	if len(sc.Steps) != 8 {
		t.Fatalf("expected 8 steps, got %d", len(sc.Steps))
	}
	if sc.Steps[0].Stagger != 200*time.Millisecond {
		t.Fatalf("stagger = %v", sc.Steps[0].Stagger)
	}
	f := sc.Steps[1].Formation
	if f == nil || f.Type != formation.V || len(f.UnitIDs) != 3 || f.Center.Z != 120 || f.Params.Angle != 45 {
		t.Fatalf("unexpected formation %+v", f)
	}
	if sc.Steps[2].Timeout != 30*time.Second || sc.Steps[2].Speed != 40 {
		t.Fatalf("unexpected converge step %+v", sc.Steps[2])
	}
	if sc.Steps[4].Offsets["alpha-1"].Z != 30 {
		t.Fatalf("unexpected offsets %+v", sc.Steps[4].Offsets)
	}
	if !sc.Steps[5].ContinueOnError {
		t.Fatal("spin should continue on error")
	}
}

func TestLoadShippedScenarios(t *testing.T) {
	sc, err := Load("../../config/scenarios/diamond.yaml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if sc.Steps[1].Formation.Type != formation.Diamond {
		t.Fatalf("type = %s", sc.Steps[1].Formation.Type)
	}
}

func TestParseRejectsInvalidSteps(t *testing.T) {
	cases := map[string]string{
		"unknown action":    "steps: [{action: barrel_roll}]",
		"missing formation": "steps: [{action: formation}]",
		"bad formation":     "steps: [{action: formation, formation: {type: hexagon}}]",
		"two transforms":    "steps: [{action: transform, rotate: 90, scale: 2}]",
		"no transform":      "steps: [{action: transform}]",
		"empty move":        "steps: [{action: move}]",
		"bad command":       "steps: [{action: command, command: {kind: flip}}]",
		"zero wait":         "steps: [{action: wait}]",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(doc)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestValidateReportsEveryBadStep(t *testing.T) {
	sc := &Scenario{Steps: []Step{{Action: "nope"}, {Action: ActionLand}, {Action: ActionWait}}}
	err := sc.Validate()
	if !errors.Is(err, ErrInvalidStep) {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(err.Error(), "step 1") || !strings.Contains(err.Error(), "step 3") {
		t.Fatalf("expected both steps reported: %v", err)
	}
}

func TestRunPlaysStepsInOrder(t *testing.T) {
	sc, err := Load("testdata/simple.yaml")
	if err != nil {
		t.Fatal(err)
	}
	c := &fakeController{}
	var slept time.Duration
	r := NewRunner(c, WithSleep(func(_ context.Context, d time.Duration) error {
		slept += d
		return nil
	}))
	results, err := r.Run(context.Background(), sc)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	want := []string{"takeoff", "formation", "converge", "translate", "move", "command", "land"}
	if strings.Join(c.calls, ",") != strings.Join(want, ",") {
		t.Fatalf("calls = %v", c.calls)
	}
	if slept != 2*time.Second {
		t.Fatalf("slept %v", slept)
	}
	if len(results) != 8 {
		t.Fatalf("results = %d", len(results))
	}
	if c.cmds[0].Kind != link.CmdRotate || c.cmds[0].Angle != 90 {
		t.Fatalf("command = %+v", c.cmds[0])
	}
	if results[0].Report == nil || results[0].Report.Operation != "takeoff" {
		t.Fatalf("takeoff report missing: %+v", results[0])
	}
}

func TestRunStopsAtFailure(t *testing.T) {
	sc := &Scenario{Name: "t", Steps: []Step{
		{Action: ActionTakeoff},
		{Action: ActionFormation, Formation: &swarm.FormationSpec{Type: formation.Line}},
		{Action: ActionConverge},
		{Action: ActionLand},
	}}
	c := &fakeController{failOn: map[string]error{"converge": swarm.ErrConvergenceTimeout}}
	results, err := NewRunner(c).Run(context.Background(), sc)
	if !errors.Is(err, swarm.ErrConvergenceTimeout) {
		t.Fatalf("err = %v", err)
	}
	if len(results) != 3 || results[2].Error == "" {
		t.Fatalf("results = %+v", results)
	}
	for _, call := range c.calls {
		if call == "land" {
			t.Fatal("land should not run after an aborting failure")
		}
	}
}

func TestRunContinuesOnError(t *testing.T) {
	sc := &Scenario{Steps: []Step{
		{Action: ActionTransform, Scale: 0.1, ContinueOnError: true},
		{Action: ActionLand},
	}}
	c := &fakeController{failOn: map[string]error{"scale": formation.ErrUnknownType}}
	results, err := NewRunner(c).Run(context.Background(), sc)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if results[0].Err == nil || c.calls[1] != "land" {
		t.Fatalf("calls = %v results = %+v", c.calls, results)
	}
}

func TestRunHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := &fakeController{}
	_, err := NewRunner(c).Run(ctx, &Scenario{Steps: []Step{{Action: ActionTakeoff}}})
	if !errors.Is(err, context.Canceled) || len(c.calls) != 0 {
		t.Fatalf("err = %v calls = %v", err, c.calls)
	}
}

func TestBuiltInChoreographies(t *testing.T) {
	for _, name := range Names() {
		sc, err := Resolve(name)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if sc.Description == "" {
			t.Fatalf("%s missing description", name)
		}
		if err := sc.Validate(); err != nil {
			t.Fatalf("%s invalid: %v", name, err)
		}
		if sc.Steps[0].Action != ActionTakeoff || sc.Steps[len(sc.Steps)-1].Action != ActionLand {
			t.Fatalf("%s should start with takeoff and end with land", name)
		}
	}
	if _, err := Resolve("testdata/simple.yaml"); err != nil {
		t.Fatalf("resolve path: %v", err)
	}
}
