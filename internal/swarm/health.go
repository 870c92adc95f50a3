package swarm

import (
	"context"
	"fmt"
	"maps"
	"time"

	"droneops-swarm/internal/formation"
	"droneops-swarm/internal/recovery"
	"droneops-swarm/internal/unit"
)

// Health summarizes operational readiness. A unit is operational when it is
// connected and not in degraded cooldown.
type Health struct {
	TotalUnits            int                       `json:"total_units"`
	OperationalUnits      int                       `json:"operational_units"`
	DegradedUnits         int                       `json:"degraded_units"`
	ExcludedUnits         int                       `json:"excluded_units"`
	OperationalPercentage float64                   `json:"operational_percentage"`
	PerUnit               map[string]recovery.State `json:"per_unit"`
}

// Health never fails; it reads unit state without touching any link.
func (s *Swarm) Health() Health {
	units := s.allUnits()
	s.mu.Lock()
	h := Health{TotalUnits: len(units), ExcludedUnits: len(s.excluded), PerUnit: make(map[string]recovery.State, len(units))}
	s.mu.Unlock()
	for _, u := range units {
		st := u.Status()
		if st.Operational {
			h.OperationalUnits++
		}
		if st.Errors.Degraded {
			h.DegradedUnits++
		}
		h.PerUnit[st.ID] = st.Errors
	}
	if h.TotalUnits > 0 {
		h.OperationalPercentage = 100 * float64(h.OperationalUnits) / float64(h.TotalUnits)
	}
	return h
}

// Status is the full swarm snapshot.
type Status struct {
	SwarmID     string               `json:"swarm_id"`
	State       State                `json:"state"`
	Initialized bool                 `json:"initialized"`
	Flying      bool                 `json:"flying"`
	ActiveUnits []string             `json:"active_units"`
	Excluded    map[string]string    `json:"excluded,omitempty"`
	LastTakeoff time.Time            `json:"last_takeoff,omitempty"`
	Formation   *formation.Formation `json:"formation,omitempty"`
	Units       []unit.Status        `json:"units"`
}

// Status returns a snapshot of the swarm and every unit.
func (s *Swarm) Status() Status {
	units := s.allUnits()
	s.mu.Lock()
	st := Status{
		SwarmID:     s.cfg.SwarmID,
		State:       s.state,
		Flying:      s.state == StateFlying,
		ActiveUnits: append([]string{}, s.active...),
		Excluded:    maps.Clone(s.excluded),
		LastTakeoff: s.lastTakeoff,
	}
	if s.formation != nil {
		st.Formation = s.formation.Clone()
	}
	s.mu.Unlock()
	for _, u := range units {
		st.Units = append(st.Units, u.Status())
	}
	st.Initialized = s.Initialized()
	return st
}

// ResetUnitErrorStats clears a unit's error counters and degraded mode.
func (s *Swarm) ResetUnitErrorStats(ctx context.Context, id string) error {
	u, ok := s.Unit(id)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownUnit, id)
	}
	u.ResetErrorStats(ctx)
	s.mu.Lock()
	delete(s.degradedSince, id)
	delete(s.cooling, id)
	s.mu.Unlock()
	return nil
}

// Diagnose produces an advisory report for one unit.
func (s *Swarm) Diagnose(id string) (recovery.Diagnosis, error) {
	u, ok := s.Unit(id)
	if !ok {
		return recovery.Diagnosis{}, fmt.Errorf("%w: %q", ErrUnknownUnit, id)
	}
	return diagnose(u, s.now()), nil
}

// DiagnoseAll reports on every unit in registry order.
func (s *Swarm) DiagnoseAll() []recovery.Diagnosis {
	now := s.now()
	var out []recovery.Diagnosis
	for _, u := range s.allUnits() {
		out = append(out, diagnose(u, now))
	}
	return out
}

func diagnose(u *unit.Unit, now time.Time) recovery.Diagnosis {
	st := u.Status()
	return recovery.Diagnose(recovery.DiagnosisInput{
		UnitID:    st.ID,
		Connected: st.Connected,
		Battery:   st.Battery,
		State:     st.Errors,
		Now:       now,
	})
}
