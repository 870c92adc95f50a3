// Package scenario loads YAML choreographies and plays them against a
// swarm.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"droneops-swarm/internal/formation"
	"droneops-swarm/internal/geom"
	"droneops-swarm/internal/link"
	"droneops-swarm/internal/swarm"
)

// Action names a step kind.
type Action string

const (
	ActionTakeoff   Action = "takeoff"
	ActionLand      Action = "land"
	ActionFormation Action = "formation"
	ActionTransform Action = "transform"
	ActionConverge  Action = "converge"
	ActionMove      Action = "move"
	ActionCommand   Action = "command"
	ActionWait      Action = "wait"
	ActionEmergency Action = "emergency"
)

var ErrInvalidStep = errors.New("invalid scenario step")

// Scenario is an ordered choreography.
type Scenario struct {
	Name        string `yaml:"name,omitempty"`
	Description string `yaml:"description,omitempty"`
	Steps       []Step `yaml:"steps"`
}

// Step is one choreography instruction. Only the fields relevant to Action
// are read.
type Step struct {
	Name            string        `yaml:"name,omitempty"`
	Action          Action        `yaml:"action"`
	ContinueOnError bool          `yaml:"continue_on_error,omitempty"`
	Synchronized    bool          `yaml:"synchronized,omitempty"`
	Stagger         time.Duration `yaml:"stagger,omitempty"`
	Speed           float64       `yaml:"speed,omitempty"`
	Timeout         time.Duration `yaml:"timeout,omitempty"`
	Duration        time.Duration `yaml:"duration,omitempty"`

	Formation *swarm.FormationSpec `yaml:"formation,omitempty"`
	Translate *geom.Vec3           `yaml:"translate,omitempty"`
	Rotate    float64              `yaml:"rotate,omitempty"`
	Scale     float64              `yaml:"scale,omitempty"`
	Offsets   map[string]geom.Vec3 `yaml:"offsets,omitempty"`
	Command   *CommandSpec         `yaml:"command,omitempty"`
}

// CommandSpec is the YAML form of a link.Command.
type CommandSpec struct {
	Kind      string  `yaml:"kind"`
	X         float64 `yaml:"x,omitempty"`
	Y         float64 `yaml:"y,omitempty"`
	Z         float64 `yaml:"z,omitempty"`
	Speed     float64 `yaml:"speed,omitempty"`
	Direction string  `yaml:"direction,omitempty"`
	Distance  float64 `yaml:"distance,omitempty"`
	Angle     float64 `yaml:"angle,omitempty"`
}

// Command resolves the step command into a link.Command.
func (c CommandSpec) Command() (link.Command, error) {
	kind, err := link.ParseCommandKind(c.Kind)
	if err != nil {
		return link.Command{}, err
	}
	return link.Command{
		Kind:      kind,
		X:         c.X,
		Y:         c.Y,
		Z:         c.Z,
		Speed:     c.Speed,
		Direction: link.Direction(c.Direction),
		Distance:  c.Distance,
		Angle:     c.Angle,
	}, nil
}

// Controller is the part of the swarm a scenario drives.
type Controller interface {
	TakeoffAll(ctx context.Context, opts swarm.StaggerOptions) (swarm.Report, error)
	LandAll(ctx context.Context, opts swarm.StaggerOptions) swarm.Report
	EmergencyStopAll(ctx context.Context) swarm.Report
	CreateFormation(ctx context.Context, spec swarm.FormationSpec) (*formation.Formation, error)
	TranslateFormation(ctx context.Context, d geom.Vec3) (*formation.Formation, error)
	RotateFormation(ctx context.Context, deg float64) (*formation.Formation, error)
	ScaleFormation(ctx context.Context, factor float64) (*formation.Formation, error)
	MoveToFormation(ctx context.Context, speed float64, timeout time.Duration) error
	MoveSwarmFormation(ctx context.Context, offsets map[string]geom.Vec3, speed float64) (swarm.Report, error)
	Execute(ctx context.Context, cmd link.Command) (swarm.Report, error)
}

// Load reads a YAML scenario definition from disk.
func Load(path string) (*Scenario, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return Parse(b)
}

// Parse decodes and validates a YAML scenario.
func Parse(b []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks that every step carries what its action needs.
func (s *Scenario) Validate() error {
	var errs []error
	for i, st := range s.Steps {
		if err := st.validate(); err != nil {
			errs = append(errs, fmt.Errorf("step %d (%s): %w", i+1, st.label(), err))
		}
	}
	return errors.Join(errs...)
}

func (st Step) validate() error {
	switch st.Action {
	case ActionTakeoff, ActionLand, ActionConverge, ActionEmergency:
		return nil
	case ActionFormation:
		if st.Formation == nil {
			return fmt.Errorf("%w: formation is required", ErrInvalidStep)
		}
		_, err := formation.ParseType(string(st.Formation.Type))
		return err
	case ActionTransform:
		n := 0
		if st.Translate != nil {
			n++
		}
		if st.Rotate != 0 {
			n++
		}
		if st.Scale != 0 {
			n++
		}
		if n != 1 {
			return fmt.Errorf("%w: exactly one of translate, rotate or scale", ErrInvalidStep)
		}
		return nil
	case ActionMove:
		if len(st.Offsets) == 0 {
			return fmt.Errorf("%w: offsets are required", ErrInvalidStep)
		}
		return nil
	case ActionCommand:
		if st.Command == nil {
			return fmt.Errorf("%w: command is required", ErrInvalidStep)
		}
		_, err := st.Command.Command()
		return err
	case ActionWait:
		if st.Duration <= 0 {
			return fmt.Errorf("%w: duration must be positive", ErrInvalidStep)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown action %q", ErrInvalidStep, st.Action)
}

func (st Step) label() string {
	if st.Name != "" {
		return st.Name
	}
	return string(st.Action)
}
