// Package formation computes target layouts for a set of units, transforms
// them and plans convergence steps. Everything here is pure geometry.
package formation

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"droneops-swarm/internal/geom"
)

var (
	ErrNoUnits       = errors.New("formation needs at least one unit")
	ErrTooFewUnits   = errors.New("not enough units for formation")
	ErrUnknownType   = errors.New("unknown formation type")
	ErrLeaderMissing = errors.New("leader is not part of the formation")
	ErrDuplicateUnit = errors.New("unit listed twice")
	ErrMissingOffset = errors.New("custom formation lacks an offset")
	ErrInvalidParams = errors.New("invalid formation parameters")
)

// Defaults used when a parameter is left at zero.
const (
	DefaultSpacing            = 150.0 // cm
	DefaultRadius             = 200.0
	DefaultSize               = 200.0
	DefaultVAngle             = 90.0 // degrees between the two arms
	DefaultCollisionThreshold = 50.0
	DefaultMaxStep            = 100.0
	DefaultTolerance          = 30.0
)

// Type is the closed set of layouts.
type Type string

const (
	Line    Type = "line"
	Circle  Type = "circle"
	Diamond Type = "diamond"
	V       Type = "v"
	Grid    Type = "grid"
	Custom  Type = "custom"
)

// Types lists every layout in a stable order.
var Types = []Type{Line, Circle, Diamond, V, Grid, Custom}

// ParseType resolves a layout name, case-insensitively.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Types {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
}

// Params holds the type-specific layout parameters. Zero values fall back to
// the package defaults.
type Params struct {
	Spacing     float64              `yaml:"spacing" json:"spacing,omitempty"`
	Radius      float64              `yaml:"radius" json:"radius,omitempty"`
	Size        float64              `yaml:"size" json:"size,omitempty"`
	Angle       float64              `yaml:"angle" json:"angle,omitempty"`
	Orientation float64              `yaml:"orientation" json:"orientation,omitempty"`
	Rows        int                  `yaml:"rows" json:"rows,omitempty"`
	Cols        int                  `yaml:"cols" json:"cols,omitempty"`
	Leader      string               `yaml:"leader" json:"leader,omitempty"`
	Offsets     map[string]geom.Vec3 `yaml:"offsets" json:"offsets,omitempty"`
}

func (p Params) withDefaults() Params {
	if p.Spacing == 0 {
		p.Spacing = DefaultSpacing
	}
	if p.Radius == 0 {
		p.Radius = DefaultRadius
	}
	if p.Size == 0 {
		p.Size = DefaultSize
	}
	if p.Angle == 0 {
		p.Angle = DefaultVAngle
	}
	return p
}

func (p Params) validate() error {
	switch {
	case p.Spacing < 0, p.Radius < 0, p.Size < 0:
		return fmt.Errorf("%w: distances must be positive", ErrInvalidParams)
	case p.Rows < 0, p.Cols < 0:
		return fmt.Errorf("%w: rows and cols must not be negative", ErrInvalidParams)
	case p.Angle < 0 || p.Angle >= 180:
		return fmt.Errorf("%w: V angle must be within (0, 180)", ErrInvalidParams)
	}
	return nil
}

// Layout is the output of a generator.
type Layout struct {
	Targets  map[string]geom.Vec3
	Warnings []string
}

// Formation is a layout bound to a set of units.
type Formation struct {
	ID        uuid.UUID            `json:"id"`
	Type      Type                 `json:"type"`
	Params    Params               `json:"params"`
	Center    geom.Vec3            `json:"center"`
	UnitIDs   []string             `json:"unit_ids"`
	Targets   map[string]geom.Vec3 `json:"targets"`
	LeaderID  string               `json:"leader_id,omitempty"`
	Active    bool                 `json:"active"`
	Warnings  []string             `json:"warnings,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
}

// New plans a formation of type t over ids around center.
func New(t Type, ids []string, center geom.Vec3, p Params) (*Formation, error) {
	layout, err := Plan(t, ids, center, p)
	if err != nil {
		return nil, err
	}
	f := &Formation{
		ID:        uuid.New(),
		Type:      t,
		Params:    p,
		Center:    center,
		UnitIDs:   append([]string(nil), ids...),
		Targets:   layout.Targets,
		Warnings:  layout.Warnings,
		CreatedAt: time.Now().UTC(),
	}
	if t == V {
		f.LeaderID = leaderOf(ids, p)
	}
	return f, nil
}

// Clone returns a deep copy of f.
func (f *Formation) Clone() *Formation {
	c := *f
	c.UnitIDs = append([]string(nil), f.UnitIDs...)
	c.Warnings = append([]string(nil), f.Warnings...)
	c.Targets = cloneTargets(f.Targets)
	return &c
}

// SortedIDs returns the target ids in lexical order.
func (f *Formation) SortedIDs() []string {
	return sortedKeys(f.Targets)
}

// Translated returns a copy moved by d. The copy is not active.
func (f *Formation) Translated(d geom.Vec3) *Formation {
	c := f.Clone()
	c.Targets, c.Center = Translate(f.Targets, f.Center, d)
	c.Active = false
	c.Warnings = nil
	return c
}

// Rotated returns a copy rotated by deg degrees about its center.
func (f *Formation) Rotated(deg float64) *Formation {
	c := f.Clone()
	c.Targets, c.Center = Rotate(f.Targets, f.Center, deg)
	c.Params.Orientation += deg
	c.Active = false
	c.Warnings = nil
	return c
}

// Scaled returns a copy scaled radially by factor about its center.
func (f *Formation) Scaled(factor, threshold float64) (*Formation, error) {
	targets, center, warnings, err := Scale(f.Targets, f.Center, factor, threshold)
	if err != nil {
		return nil, err
	}
	c := f.Clone()
	c.Targets, c.Center, c.Warnings = targets, center, warnings
	c.Active = false
	return c, nil
}

func cloneTargets(in map[string]geom.Vec3) map[string]geom.Vec3 {
	out := make(map[string]geom.Vec3, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func sortedKeys(m map[string]geom.Vec3) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
