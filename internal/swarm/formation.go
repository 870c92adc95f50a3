package swarm

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"droneops-swarm/internal/formation"
	"droneops-swarm/internal/geom"
	"droneops-swarm/internal/link"
	"droneops-swarm/internal/logging"
	"droneops-swarm/internal/telemetry"
	"droneops-swarm/internal/unit"
)

// FormationSpec describes a formation to create. Empty UnitIDs means every
// active unit in order; a nil Center means the centroid of those units at
// the configured altitude.
type FormationSpec struct {
	Type    formation.Type   `yaml:"type" json:"type"`
	UnitIDs []string         `yaml:"units" json:"unit_ids,omitempty"`
	Center  *geom.Vec3       `yaml:"center" json:"center,omitempty"`
	Params  formation.Params `yaml:"params" json:"params"`
}

// CreateFormation plans a formation and makes it the current one. Nothing
// moves until MoveToFormation.
func (s *Swarm) CreateFormation(ctx context.Context, spec FormationSpec) (*formation.Formation, error) {
	ids := spec.UnitIDs
	if len(ids) == 0 {
		ids = s.ActiveIDs()
	}
	for _, id := range ids {
		if _, ok := s.Unit(id); !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownUnit, id)
		}
	}
	center := s.defaultCenter(ids)
	if spec.Center != nil {
		center = *spec.Center
	}
	f, err := formation.New(spec.Type, ids, center, spec.Params)
	if err != nil {
		return nil, err
	}
	s.setFormation(ctx, f, telemetry.EventFormationCreated,
		fmt.Sprintf("%s of %d units at %s", f.Type, len(f.UnitIDs), fmtVec(f.Center)))
	return f.Clone(), nil
}

// TranslateFormation shifts the current formation by d.
func (s *Swarm) TranslateFormation(ctx context.Context, d geom.Vec3) (*formation.Formation, error) {
	return s.transform(ctx, "translate "+fmtVec(d), func(f *formation.Formation) (*formation.Formation, error) {
		return f.Translated(d), nil
	})
}

// RotateFormation turns the current formation about its center by deg
// degrees.
func (s *Swarm) RotateFormation(ctx context.Context, deg float64) (*formation.Formation, error) {
	return s.transform(ctx, fmt.Sprintf("rotate %.1f", deg), func(f *formation.Formation) (*formation.Formation, error) {
		return f.Rotated(deg), nil
	})
}

// ScaleFormation scales the current formation radially by factor.
func (s *Swarm) ScaleFormation(ctx context.Context, factor float64) (*formation.Formation, error) {
	return s.transform(ctx, fmt.Sprintf("scale %.2f", factor), func(f *formation.Formation) (*formation.Formation, error) {
		return f.Scaled(factor, s.cfg.CollisionThreshold)
	})
}

func (s *Swarm) transform(ctx context.Context, detail string, fn func(*formation.Formation) (*formation.Formation, error)) (*formation.Formation, error) {
	s.mu.Lock()
	cur := s.formation
	s.mu.Unlock()
	if cur == nil {
		return nil, ErrNoFormation
	}
	next, err := fn(cur)
	if err != nil {
		return nil, err
	}
	s.setFormation(ctx, next, telemetry.EventFormationTransformed, detail)
	return next.Clone(), nil
}

func (s *Swarm) setFormation(ctx context.Context, f *formation.Formation, event, detail string) {
	s.mu.Lock()
	s.formation = f
	s.mu.Unlock()
	log := logging.FromContext(ctx)
	for _, w := range f.Warnings {
		log.Warn("formation warning", "formation_id", f.ID, "warning", w)
	}
	if len(f.Warnings) > 0 {
		detail += "; " + strings.Join(f.Warnings, "; ")
	}
	log.Info("formation set", "formation_id", f.ID, "type", f.Type, "detail", detail)
	s.record(ctx, event, telemetry.SeverityInfo, detail, f.UnitIDs...)
}

// Formation returns a copy of the current formation.
func (s *Swarm) Formation() (*formation.Formation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.formation == nil {
		return nil, false
	}
	return s.formation.Clone(), true
}

// MoveToFormation flies the formation's units towards their targets in
// bounded steps until every active member is within tolerance, pausing
// between cycles. It fails with ErrConvergenceTimeout once timeout elapsed.
// Members that are not active are left out of the convergence check.
func (s *Swarm) MoveToFormation(ctx context.Context, speed float64, timeout time.Duration) error {
	s.mu.Lock()
	f := s.formation
	s.mu.Unlock()
	if f == nil {
		return ErrNoFormation
	}
	if speed <= 0 {
		speed = s.cfg.Speed
	}
	if timeout <= 0 {
		timeout = s.cfg.ConvergenceTimeout
	}
	log := logging.FromContext(ctx).With("formation_id", f.ID)
	deadline := s.now().Add(timeout)
	warnedMissing := false

	for cycle := 1; ; cycle++ {
		units := make(map[string]*unit.Unit)
		current := make(map[string]geom.Vec3)
		for _, id := range f.UnitIDs {
			if u, ok := s.Unit(id); ok && s.isActive(id) {
				units[id] = u
				current[id] = u.Position()
			}
		}
		step := formation.Step(current, f.Targets, s.cfg.MaxStep, s.cfg.Tolerance)
		if len(step.Missing) > 0 && !warnedMissing {
			log.Warn("formation members not active, skipped", "unit_ids", step.Missing)
			warnedMissing = true
		}
		if step.Converged() {
			if len(step.InPosition) == 0 {
				return ErrNoUnitsConnected
			}
			s.markConverged(ctx, f, cycle)
			return nil
		}
		if !s.now().Before(deadline) {
			return fmt.Errorf("%w: %d units out of position after %d cycles", ErrConvergenceTimeout, len(step.Moves), cycle-1)
		}

		moves := make(map[string]geom.Vec3, len(step.Moves))
		batch := make([]*unit.Unit, 0, len(step.Moves))
		for _, m := range step.Moves {
			moves[m.UnitID] = reachable(m.Delta)
			batch = append(batch, units[m.UnitID])
		}
		log.Debug("convergence cycle", "cycle", cycle, "moving", len(batch), "in_position", len(step.InPosition))
		s.ExecuteCoordinatedOn(ctx, "converge", batch, func(ctx context.Context, u *unit.Unit) error {
			d := moves[u.ID()]
			return u.Move(ctx, d.X, d.Y, d.Z, speed)
		})

		if err := s.sleep(ctx, s.cfg.CyclePause); err != nil {
			return err
		}
	}
}

func (s *Swarm) markConverged(ctx context.Context, f *formation.Formation, cycles int) {
	s.mu.Lock()
	if s.formation == f {
		f = f.Clone()
		f.Active = true
		s.formation = f
	}
	s.mu.Unlock()
	logging.FromContext(ctx).Info("formation converged", "formation_id", f.ID, "cycles", cycles)
	s.record(ctx, telemetry.EventFormationConverged, telemetry.SeverityInfo,
		fmt.Sprintf("%s converged after %d cycles", f.Type, cycles), f.UnitIDs...)
}

// CollisionRisks lists active unit pairs closer than threshold, closest
// first. A zero threshold uses the configured one.
func (s *Swarm) CollisionRisks(threshold float64) []formation.Risk {
	if threshold <= 0 {
		threshold = s.cfg.CollisionThreshold
	}
	return formation.CollisionRisk(s.positions(), threshold)
}

func (s *Swarm) positions() map[string]geom.Vec3 {
	out := make(map[string]geom.Vec3)
	for _, u := range s.activeUnits() {
		out[u.ID()] = u.Position()
	}
	return out
}

// defaultCenter is the XY centroid of ids at the configured altitude.
func (s *Swarm) defaultCenter(ids []string) geom.Vec3 {
	var pts []geom.Vec3
	for _, id := range ids {
		if u, ok := s.Unit(id); ok {
			pts = append(pts, u.Position())
		}
	}
	c := geom.Centroid(pts)
	c.Z = s.cfg.Altitude
	return c.Round(1)
}

// reachable stretches a step whose every component is below the link's
// minimum distance so the quadcopter accepts it.
func reachable(d geom.Vec3) geom.Vec3 {
	m := math.Max(math.Abs(d.X), math.Max(math.Abs(d.Y), math.Abs(d.Z)))
	if m == 0 || m >= link.MinDistance {
		return d
	}
	return d.Scale(link.MinDistance / m).Round(1)
}

func fmtVec(v geom.Vec3) string {
	return fmt.Sprintf("(%.1f, %.1f, %.1f)", v.X, v.Y, v.Z)
}
