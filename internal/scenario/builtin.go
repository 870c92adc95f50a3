package scenario

import (
	"sort"
	"time"

	"droneops-swarm/internal/formation"
	"droneops-swarm/internal/geom"
	"droneops-swarm/internal/swarm"
)

// BuiltIn returns the predefined choreographies keyed by name. Each call
// returns fresh values.
func BuiltIn() map[string]*Scenario {
	return map[string]*Scenario{
		"diamond-show": {
			Name:        "diamond-show",
			Description: "Staggered takeoff, diamond formation, a quarter turn and a staggered landing.",
			Steps: []Step{
				{Name: "launch", Action: ActionTakeoff, Stagger: 500 * time.Millisecond},
				{Name: "plan diamond", Action: ActionFormation, Formation: &swarm.FormationSpec{
					Type: formation.Diamond, Params: formation.Params{Size: 150},
				}},
				{Name: "form up", Action: ActionConverge, Timeout: 60 * time.Second},
				{Name: "hold", Action: ActionWait, Duration: 3 * time.Second},
				{Name: "quarter turn", Action: ActionTransform, Rotate: 90},
				{Name: "re-form", Action: ActionConverge, Timeout: 60 * time.Second},
				{Name: "recover", Action: ActionLand, Stagger: 500 * time.Millisecond},
			},
		},
		"line-sweep": {
			Name:        "line-sweep",
			Description: "Synchronized takeoff into a line that sweeps forward twice before landing.",
			Steps: []Step{
				{Name: "launch", Action: ActionTakeoff, Synchronized: true},
				{Name: "plan line", Action: ActionFormation, Formation: &swarm.FormationSpec{
					Type: formation.Line, Params: formation.Params{Spacing: 100},
				}},
				{Name: "form up", Action: ActionConverge, Timeout: 60 * time.Second},
				{Name: "advance", Action: ActionTransform, Translate: &geom.Vec3{Y: 150}},
				{Name: "sweep 1", Action: ActionConverge, Timeout: 60 * time.Second},
				{Name: "advance again", Action: ActionTransform, Translate: &geom.Vec3{Y: 150}},
				{Name: "sweep 2", Action: ActionConverge, Timeout: 60 * time.Second},
				{Name: "recover", Action: ActionLand, Synchronized: true},
			},
		},
		"breathing-circle": {
			Name:        "breathing-circle",
			Description: "A circle that expands and contracts while holding altitude.",
			Steps: []Step{
				{Name: "launch", Action: ActionTakeoff, Stagger: 300 * time.Millisecond},
				{Name: "plan circle", Action: ActionFormation, Formation: &swarm.FormationSpec{
					Type: formation.Circle, Params: formation.Params{Radius: 120},
				}},
				{Name: "form up", Action: ActionConverge, Timeout: 60 * time.Second},
				{Name: "expand", Action: ActionTransform, Scale: 1.5},
				{Name: "spread", Action: ActionConverge, Timeout: 60 * time.Second},
				{Name: "contract", Action: ActionTransform, Scale: 0.7},
				{Name: "tighten", Action: ActionConverge, Timeout: 60 * time.Second, ContinueOnError: true},
				{Name: "spin", Action: ActionCommand, Command: &CommandSpec{Kind: "rotate", Angle: 360}, ContinueOnError: true},
				{Name: "recover", Action: ActionLand},
			},
		},
	}
}

// Names lists the built-in choreographies in sorted order.
func Names() []string {
	b := BuiltIn()
	out := make([]string, 0, len(b))
	for n := range b {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Resolve returns a built-in choreography by name, or loads the path.
func Resolve(nameOrPath string) (*Scenario, error) {
	if sc, ok := BuiltIn()[nameOrPath]; ok {
		return sc, nil
	}
	return Load(nameOrPath)
}
